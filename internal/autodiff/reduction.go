package autodiff

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// crossEntropyOp represents the mean softmax cross-entropy of a batch of
// logits against class indices.
//
// Gradient:
//
//	dL/dlogits[i][j] = (softmax(logits[i])[j] - onehot(target[i])[j]) / batch
type crossEntropyOp struct {
	inputs  []*Node // [logits]
	output  *Node
	probs   *mat.Dense
	targets []int
}

func (op *crossEntropyOp) Kind() OpKind    { return OpReduction }
func (op *crossEntropyOp) Inputs() []*Node { return op.inputs }
func (op *crossEntropyOp) Output() *Node   { return op.output }

func (op *crossEntropyOp) Backward(outputGrad *mat.Dense) []*mat.Dense {
	rows, _ := op.probs.Dims()
	scale := outputGrad.At(0, 0) / float64(rows)

	grad := mat.DenseCopyOf(op.probs)
	for i, target := range op.targets {
		row := grad.RawRowView(i)
		row[target]--
		floats.Scale(scale, row)
	}
	return []*mat.Dense{grad}
}

// CrossEntropy returns the mean cross-entropy between logits [batch, classes]
// and targets (one class index per row), computed with the log-sum-exp trick.
//
// Panics if len(targets) differs from the batch size or a target is out of
// range.
func (t *GradientTape) CrossEntropy(logits *Node, targets []int) *Node {
	rows, cols := logits.Dims()
	if len(targets) != rows {
		panic(fmt.Sprintf("autodiff: CrossEntropy got %d targets for %d rows", len(targets), rows))
	}

	probs := mat.NewDense(rows, cols, nil)
	total := 0.0
	for i, target := range targets {
		if target < 0 || target >= cols {
			panic(fmt.Sprintf("autodiff: CrossEntropy target %d out of range [0, %d)", target, cols))
		}
		row := logits.value.RawRowView(i)
		lse := floats.LogSumExp(row)
		total += lse - row[target]

		p := probs.RawRowView(i)
		for j, v := range row {
			p[j] = math.Exp(v - lse)
		}
	}

	value := mat.NewDense(1, 1, []float64{total / float64(rows)})
	kept := append([]int(nil), targets...)
	return t.output(value, func(out *Node) Operation {
		return &crossEntropyOp{inputs: []*Node{logits}, output: out, probs: probs, targets: kept}
	}, logits)
}

// mseOp represents mean((pred - target)^2) over every element.
type mseOp struct {
	inputs []*Node // [pred]
	output *Node
	diff   *mat.Dense
}

func (op *mseOp) Kind() OpKind    { return OpReduction }
func (op *mseOp) Inputs() []*Node { return op.inputs }
func (op *mseOp) Output() *Node   { return op.output }

func (op *mseOp) Backward(outputGrad *mat.Dense) []*mat.Dense {
	r, c := op.diff.Dims()
	grad := new(mat.Dense)
	grad.Scale(2*outputGrad.At(0, 0)/float64(r*c), op.diff)
	return []*mat.Dense{grad}
}

// MSE returns the mean squared error between pred and target.
//
// Panics if the shapes differ.
func (t *GradientTape) MSE(pred *Node, target *mat.Dense) *Node {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		panic(fmt.Sprintf("autodiff: MSE shape mismatch %dx%d vs %dx%d", pr, pc, tr, tc))
	}

	diff := new(mat.Dense)
	diff.Sub(pred.value, target)
	sq := new(mat.Dense)
	sq.MulElem(diff, diff)
	value := mat.NewDense(1, 1, []float64{mat.Sum(sq) / float64(pr*pc)})

	return t.output(value, func(out *Node) Operation {
		return &mseOp{inputs: []*Node{pred}, output: out, diff: diff}
	}, pred)
}
