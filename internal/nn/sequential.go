package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// Sequential is a container module that chains multiple modules together.
//
// Each module's output becomes the next module's input:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, rng),
//	)
//
//	output := model.Forward(tape, input)
type Sequential struct {
	modules []Module
}

// NewSequential creates a new Sequential container.
func NewSequential(modules ...Module) *Sequential {
	return &Sequential{modules: modules}
}

// Forward applies all modules in sequence.
func (s *Sequential) Forward(tape *autodiff.GradientTape, input *autodiff.Node) *autodiff.Node {
	output := input
	for _, module := range s.modules {
		output = module.Forward(tape, output)
	}
	return output
}

// Parameters returns all trainable parameters from all modules, in order.
func (s *Sequential) Parameters() []*autodiff.Parameter {
	var params []*autodiff.Parameter
	for _, module := range s.modules {
		params = append(params, module.Parameters()...)
	}
	return params
}

// NamedParameter pairs a parameter with its position-qualified name.
type NamedParameter struct {
	Name      string
	Parameter *autodiff.Parameter
}

// NamedParameters returns the parameters prefixed with their module index
// (e.g., "0.weight", "0.bias", "2.weight").
func (s *Sequential) NamedParameters() []NamedParameter {
	var named []NamedParameter
	for i, module := range s.modules {
		for _, p := range module.Parameters() {
			named = append(named, NamedParameter{Name: fmt.Sprintf("%d.%s", i, p.Name()), Parameter: p})
		}
	}
	return named
}

// Add appends a module to the sequence.
func (s *Sequential) Add(module Module) {
	s.modules = append(s.modules, module)
}

// Len returns the number of modules in the sequence.
func (s *Sequential) Len() int {
	return len(s.modules)
}

// Module returns the module at the given index.
//
// Panics if index is out of bounds.
func (s *Sequential) Module(index int) Module {
	if index < 0 || index >= len(s.modules) {
		panic("Sequential.Module: index out of bounds")
	}
	return s.modules[index]
}

// NewMLP builds a multilayer perceptron from layer sizes.
//
// sizes lists the input width, any hidden widths and the output width, e.g.
// []int{784, 128, 64, 10}. The activation follows every layer except the
// last, which produces raw logits.
//
// Returns an error if fewer than two sizes are given or any size is not
// positive.
func NewMLP(sizes []int, activation string, rng *rand.Rand) (*Sequential, error) {
	if len(sizes) < 2 {
		return nil, fmt.Errorf("nn: MLP needs at least input and output sizes, got %v", sizes)
	}
	for _, size := range sizes {
		if size <= 0 {
			return nil, fmt.Errorf("nn: MLP layer sizes must be positive, got %v", sizes)
		}
	}
	if _, err := ParseActivation(activation); err != nil {
		return nil, err
	}

	model := NewSequential()
	for i := 0; i+1 < len(sizes); i++ {
		model.Add(NewLinear(sizes[i], sizes[i+1], rng))
		if i+2 < len(sizes) {
			act, _ := ParseActivation(activation)
			model.Add(act)
		}
	}
	return model, nil
}
