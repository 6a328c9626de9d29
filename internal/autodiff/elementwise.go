package autodiff

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Activation selects an element-wise nonlinearity.
type Activation int

// Supported activations.
const (
	ActReLU Activation = iota
	ActSigmoid
	ActTanh
)

// String returns the activation name.
func (a Activation) String() string {
	switch a {
	case ActReLU:
		return "relu"
	case ActSigmoid:
		return "sigmoid"
	case ActTanh:
		return "tanh"
	default:
		return "unknown"
	}
}

func (a Activation) apply(v float64) float64 {
	switch a {
	case ActReLU:
		if v > 0 {
			return v
		}
		return 0
	case ActSigmoid:
		return 1 / (1 + math.Exp(-v))
	case ActTanh:
		return math.Tanh(v)
	default:
		panic("autodiff: unknown activation")
	}
}

// derivative returns d f / d x expressed through the input x and output y.
func (a Activation) derivative(x, y float64) float64 {
	switch a {
	case ActReLU:
		if x > 0 {
			return 1
		}
		return 0
	case ActSigmoid:
		return y * (1 - y)
	case ActTanh:
		return 1 - y*y
	default:
		panic("autodiff: unknown activation")
	}
}

// elementwiseOp represents output = f(input) applied per element.
type elementwiseOp struct {
	act    Activation
	inputs []*Node
	output *Node
}

func (op *elementwiseOp) Kind() OpKind    { return OpElementwise }
func (op *elementwiseOp) Inputs() []*Node { return op.inputs }
func (op *elementwiseOp) Output() *Node   { return op.output }

func (op *elementwiseOp) Backward(outputGrad *mat.Dense) []*mat.Dense {
	x, y := op.inputs[0].value, op.output.value
	grad := new(mat.Dense)
	grad.Apply(func(i, j int, g float64) float64 {
		return g * op.act.derivative(x.At(i, j), y.At(i, j))
	}, outputGrad)
	return []*mat.Dense{grad}
}

// Elementwise applies act to every element of x.
func (t *GradientTape) Elementwise(act Activation, x *Node) *Node {
	value := new(mat.Dense)
	value.Apply(func(_, _ int, v float64) float64 {
		return act.apply(v)
	}, x.value)
	return t.output(value, func(out *Node) Operation {
		return &elementwiseOp{act: act, inputs: []*Node{x}, output: out}
	}, x)
}

// ReLU applies max(0, x) element-wise.
func (t *GradientTape) ReLU(x *Node) *Node {
	return t.Elementwise(ActReLU, x)
}

// Sigmoid applies 1/(1+exp(-x)) element-wise.
func (t *GradientTape) Sigmoid(x *Node) *Node {
	return t.Elementwise(ActSigmoid, x)
}

// Tanh applies tanh(x) element-wise.
func (t *GradientTape) Tanh(x *Node) *Node {
	return t.Elementwise(ActTanh, x)
}
