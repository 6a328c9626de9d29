// Package autodiff implements reverse-mode automatic differentiation over
// dense gonum matrices.
//
// A GradientTape records every differentiable operation performed while it is
// recording. Backward walks the recorded operations in reverse, applies each
// operation's local gradient rule and adds the result into the gradient
// accumulator of every Parameter that took part in the forward computation.
//
// Supported operation kinds:
//   - MatMul: matrix multiplication (d(A@B)/dA = grad@B^T, d(A@B)/dB = A^T@grad)
//   - Affine: x@W^T + b, the transformation of a fully connected layer
//   - Elementwise: ReLU, Sigmoid, Tanh
//   - Reduction: mean cross-entropy over a batch, mean squared error
//
// Usage:
//
//	tape := autodiff.NewGradientTape()
//	tape.StartRecording()
//
//	x := tape.Constant(inputs)
//	logits := tape.Affine(x, tape.Param(weight), tape.Param(bias))
//	loss := tape.CrossEntropy(logits, targets)
//
//	if err := tape.Backward(loss); err != nil {
//	    return err
//	}
//	fmt.Println(weight.Grad()) // d loss / d weight
package autodiff

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrNotScalar is returned when Backward is asked to start from a non 1x1 node.
	ErrNotScalar = errors.New("autodiff: backward requires a scalar (1x1) loss")

	// ErrEmptyTape is returned when Backward is called with nothing recorded.
	ErrEmptyTape = errors.New("autodiff: no operations recorded (did you forget StartRecording?)")

	// ErrNotRecorded is returned when the loss was not produced on the tape.
	ErrNotRecorded = errors.New("autodiff: loss was not recorded on this tape")
)

// Parameter is a trainable value paired with a gradient accumulator of the
// same shape.
//
// The accumulator is allocated zeroed at construction. Backward adds into it,
// so gradients from consecutive backward passes sum up until ZeroGrad is
// called.
//
// Example:
//
//	weight := autodiff.NewParameter("fc1.weight", mat.NewDense(128, 784, nil))
//	weight.ZeroGrad()
//	// ... forward + backward ...
//	g := weight.Grad()
type Parameter struct {
	name  string
	value *mat.Dense
	grad  *mat.Dense
}

// NewParameter creates a parameter that owns value.
//
// The value is mutated in place by optimizers; callers must not share it
// between parameters.
func NewParameter(name string, value *mat.Dense) *Parameter {
	r, c := value.Dims()
	return &Parameter{
		name:  name,
		value: value,
		grad:  mat.NewDense(r, c, nil),
	}
}

// Name returns the parameter name.
func (p *Parameter) Name() string {
	return p.name
}

// Value returns the parameter matrix.
func (p *Parameter) Value() *mat.Dense {
	return p.value
}

// Grad returns the gradient accumulator.
func (p *Parameter) Grad() *mat.Dense {
	return p.grad
}

// Dims returns the parameter shape.
func (p *Parameter) Dims() (r, c int) {
	return p.value.Dims()
}

// Size returns the number of scalar elements.
func (p *Parameter) Size() int {
	r, c := p.value.Dims()
	return r * c
}

// ZeroGrad resets the gradient accumulator to zero in place.
func (p *Parameter) ZeroGrad() {
	p.grad.Zero()
}

// AccumulateGrad adds g into the gradient accumulator.
//
// Panics if g does not have the parameter's shape.
func (p *Parameter) AccumulateGrad(g mat.Matrix) {
	pr, pc := p.grad.Dims()
	gr, gc := g.Dims()
	if pr != gr || pc != gc {
		panic(fmt.Sprintf("autodiff: gradient shape %dx%d does not match parameter %q shape %dx%d",
			gr, gc, p.name, pr, pc))
	}
	p.grad.Add(p.grad, g)
}

// Node is a value in the computation graph.
//
// Leaf nodes wrap a Parameter or a constant; interior nodes are produced by
// an operation recorded on a tape.
type Node struct {
	value        *mat.Dense
	param        *Parameter
	tape         *GradientTape
	requiresGrad bool
}

// Value returns the node's matrix. It must not be modified.
func (n *Node) Value() *mat.Dense {
	return n.value
}

// Param returns the parameter behind a leaf node, or nil.
func (n *Node) Param() *Parameter {
	return n.param
}

// Dims returns the shape of the node's value.
func (n *Node) Dims() (r, c int) {
	return n.value.Dims()
}

// Scalar returns the single element of a 1x1 node.
func (n *Node) Scalar() float64 {
	return n.value.At(0, 0)
}

// RequiresGrad reports whether any parameter contributes to this node.
func (n *Node) RequiresGrad() bool {
	return n.requiresGrad
}
