package nn

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// Loss maps a model output and class targets to a scalar node.
type Loss interface {
	Forward(tape *autodiff.GradientTape, output *autodiff.Node, targets []int) *autodiff.Node
}

// CrossEntropyLoss computes cross-entropy loss for multi-class classification.
//
// Mathematical Formulation:
//
//	Loss = mean_i(-log_softmax(logits_i)[target_i])
//
// Gradient (Backward):
//
//	dL/dlogits = (Softmax(logits) - y_one_hot) / batch_size
//
// Expects raw logits (no softmax on the model's last layer).
type CrossEntropyLoss struct{}

// NewCrossEntropyLoss creates a new cross-entropy loss function.
func NewCrossEntropyLoss() *CrossEntropyLoss {
	return &CrossEntropyLoss{}
}

// Forward computes the mean cross-entropy over the batch.
func (c *CrossEntropyLoss) Forward(tape *autodiff.GradientTape, logits *autodiff.Node, targets []int) *autodiff.Node {
	return tape.CrossEntropy(logits, targets)
}

// MSELoss compares outputs against one-hot encoded targets with mean squared
// error. It pairs with sigmoid outputs.
type MSELoss struct{}

// NewMSELoss creates a new mean squared error loss.
func NewMSELoss() *MSELoss {
	return &MSELoss{}
}

// Forward computes mean((output - onehot(targets))^2).
func (m *MSELoss) Forward(tape *autodiff.GradientTape, output *autodiff.Node, targets []int) *autodiff.Node {
	return tape.MSE(output, OneHot(targets, colsOf(output)))
}

// ParseLoss maps a name ("cross_entropy", "mse") to a loss.
func ParseLoss(name string) (Loss, error) {
	switch name {
	case "cross_entropy", "":
		return NewCrossEntropyLoss(), nil
	case "mse":
		return NewMSELoss(), nil
	default:
		return nil, fmt.Errorf("nn: unknown loss %q", name)
	}
}

func colsOf(n *autodiff.Node) int {
	_, c := n.Dims()
	return c
}

// OneHot encodes class indices as rows of a [len(targets), classes] matrix.
//
// Panics if a target is outside [0, classes).
func OneHot(targets []int, classes int) *mat.Dense {
	out := mat.NewDense(len(targets), classes, nil)
	for i, target := range targets {
		if target < 0 || target >= classes {
			panic(fmt.Sprintf("nn.OneHot: target %d out of range [0, %d)", target, classes))
		}
		out.Set(i, target, 1)
	}
	return out
}

// Predict returns the arg-max class for every row of logits.
func Predict(logits *mat.Dense) []int {
	rows, _ := logits.Dims()
	preds := make([]int, rows)
	for i := range preds {
		preds[i] = floats.MaxIdx(logits.RawRowView(i))
	}
	return preds
}

// Correct counts rows whose arg-max equals the target.
func Correct(logits *mat.Dense, targets []int) int {
	correct := 0
	for i, p := range Predict(logits) {
		if p == targets[i] {
			correct++
		}
	}
	return correct
}

// Accuracy returns the fraction of rows classified correctly.
func Accuracy(logits *mat.Dense, targets []int) float64 {
	if len(targets) == 0 {
		return 0
	}
	return float64(Correct(logits, targets)) / float64(len(targets))
}
