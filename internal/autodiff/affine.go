package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// affineOp represents output = x @ W^T + b with b broadcast over rows.
//
// Shapes: x [batch, in], W [out, in], b [1, out], output [batch, out].
//
// Backward pass:
//   - dx = outputGrad @ W
//   - dW = outputGrad^T @ x
//   - db = column sums of outputGrad
type affineOp struct {
	inputs []*Node // [x, W, b]
	output *Node
}

func (op *affineOp) Kind() OpKind    { return OpAffine }
func (op *affineOp) Inputs() []*Node { return op.inputs }
func (op *affineOp) Output() *Node   { return op.output }

func (op *affineOp) Backward(outputGrad *mat.Dense) []*mat.Dense {
	x, w, b := op.inputs[0], op.inputs[1], op.inputs[2]
	grads := make([]*mat.Dense, 3)

	if x.requiresGrad {
		grads[0] = new(mat.Dense)
		grads[0].Mul(outputGrad, w.value)
	}
	if w.requiresGrad {
		grads[1] = new(mat.Dense)
		grads[1].Mul(outputGrad.T(), x.value)
	}
	if b.requiresGrad {
		rows, cols := outputGrad.Dims()
		sums := make([]float64, cols)
		for i := 0; i < rows; i++ {
			floats.Add(sums, outputGrad.RawRowView(i))
		}
		grads[2] = mat.NewDense(1, cols, sums)
	}
	return grads
}

// Affine returns x @ W^T + b, the transformation of a fully connected layer.
//
// Parameters:
//   - x: input with shape [batch, in]
//   - w: weight with shape [out, in]
//   - b: bias with shape [1, out]
//
// Returns a node with shape [batch, out]. Panics on shape mismatch.
func (t *GradientTape) Affine(x, w, b *Node) *Node {
	xr, xc := x.Dims()
	wr, wc := w.Dims()
	br, bc := b.Dims()
	if xc != wc || br != 1 || bc != wr {
		panic(fmt.Sprintf("autodiff: Affine shape mismatch x=%dx%d W=%dx%d b=%dx%d", xr, xc, wr, wc, br, bc))
	}

	value := new(mat.Dense)
	value.Mul(x.value, w.value.T())
	bias := b.value.RawRowView(0)
	for i := 0; i < xr; i++ {
		floats.Add(value.RawRowView(i), bias)
	}

	return t.output(value, func(out *Node) Operation {
		return &affineOp{inputs: []*Node{x, w, b}, output: out}
	}, x, w, b)
}
