package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// Linear implements a fully connected (dense) layer.
//
// Performs the transformation: y = x @ W.T + b
// where:
//   - x is the input with shape [batch_size, in_features]
//   - W is the weight matrix with shape [out_features, in_features]
//   - b is the bias row with shape [1, out_features]
//   - y is the output with shape [batch_size, out_features]
//
// Weights are initialized using Xavier/Glorot initialization.
// Biases are initialized to zeros.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *autodiff.Parameter // [out_features, in_features]
	bias        *autodiff.Parameter // [1, out_features]
}

// NewLinear creates a new Linear layer drawing its weights from rng.
func NewLinear(inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("nn.NewLinear: features must be positive, got %d -> %d", inFeatures, outFeatures))
	}
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      autodiff.NewParameter("weight", Xavier(inFeatures, outFeatures, outFeatures, inFeatures, rng)),
		bias:        autodiff.NewParameter("bias", Zeros(1, outFeatures)),
	}
}

// Forward computes y = x @ W.T + b.
//
// Panics if the input does not have in_features columns.
func (l *Linear) Forward(tape *autodiff.GradientTape, input *autodiff.Node) *autodiff.Node {
	if _, c := input.Dims(); c != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, c))
	}
	return tape.Affine(input, tape.Param(l.weight), tape.Param(l.bias))
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*autodiff.Parameter {
	return []*autodiff.Parameter{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear) Weight() *autodiff.Parameter {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear) Bias() *autodiff.Parameter {
	return l.bias
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int {
	return l.outFeatures
}
