package autodiff

import "gonum.org/v1/gonum/mat"

// OpKind tags the family an operation belongs to.
type OpKind int

// Operation kinds.
const (
	OpMatMul OpKind = iota
	OpAffine
	OpElementwise
	OpReduction
)

// String returns the kind name.
func (k OpKind) String() string {
	switch k {
	case OpMatMul:
		return "matmul"
	case OpAffine:
		return "affine"
	case OpElementwise:
		return "elementwise"
	case OpReduction:
		return "reduction"
	default:
		return "unknown"
	}
}

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Kind returns the operation family.
	Kind() OpKind

	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input node; an
	// entry may be nil when the input takes no gradient.
	Backward(outputGrad *mat.Dense) []*mat.Dense

	// Inputs returns the input nodes for this operation.
	Inputs() []*Node

	// Output returns the node produced by this operation.
	Output() *Node
}
