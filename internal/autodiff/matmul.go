package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// matMulOp represents output = a @ b.
//
// Backward pass:
//   - d(A@B)/dA = outputGrad @ B^T
//   - d(A@B)/dB = A^T @ outputGrad
type matMulOp struct {
	inputs []*Node // [a, b]
	output *Node
}

func (op *matMulOp) Kind() OpKind    { return OpMatMul }
func (op *matMulOp) Inputs() []*Node { return op.inputs }
func (op *matMulOp) Output() *Node   { return op.output }

func (op *matMulOp) Backward(outputGrad *mat.Dense) []*mat.Dense {
	a, b := op.inputs[0], op.inputs[1]

	var gradA, gradB *mat.Dense
	if a.requiresGrad {
		gradA = new(mat.Dense)
		gradA.Mul(outputGrad, b.value.T())
	}
	if b.requiresGrad {
		gradB = new(mat.Dense)
		gradB.Mul(a.value.T(), outputGrad)
	}
	return []*mat.Dense{gradA, gradB}
}

// MatMul returns a @ b.
//
// Panics if the inner dimensions differ.
func (t *GradientTape) MatMul(a, b *Node) *Node {
	ar, ac := a.Dims()
	br, bc := b.Dims()
	if ac != br {
		panic(fmt.Sprintf("autodiff: MatMul shape mismatch %dx%d @ %dx%d", ar, ac, br, bc))
	}
	value := new(mat.Dense)
	value.Mul(a.value, b.value)
	return t.output(value, func(out *Node) Operation {
		return &matMulOp{inputs: []*Node{a, b}, output: out}
	}, a, b)
}
