package autodiff

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// GradientTape records operations during the forward pass and computes
// gradients during the backward pass using reverse-mode automatic differentiation.
//
// Usage:
//
//	tape := NewGradientTape()
//	tape.StartRecording()
//	// ... perform operations ...
//	err := tape.Backward(loss)
type GradientTape struct {
	operations []Operation // Recorded operations (in execution order)
	leaves     []*Node     // Parameter leaves (in creation order)
	recording  bool        // Whether tape is currently recording
}

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return &GradientTape{
		operations: make([]Operation, 0, 16),
		recording:  false,
	}
}

// StartRecording enables operation recording.
func (t *GradientTape) StartRecording() {
	t.recording = true
}

// StopRecording disables operation recording.
//
// Forward helpers still compute values while the tape is stopped, which is
// how evaluation passes avoid building a graph.
func (t *GradientTape) StopRecording() {
	t.recording = false
}

// IsRecording returns true if the tape is currently recording operations.
func (t *GradientTape) IsRecording() bool {
	return t.recording
}

// Record adds an operation to the tape.
// Only records if the tape is currently recording.
func (t *GradientTape) Record(op Operation) {
	if t.recording {
		t.operations = append(t.operations, op)
	}
}

// Clear resets the tape, removing all recorded operations and leaves.
// Recording state is preserved.
func (t *GradientTape) Clear() {
	clear(t.operations)
	t.operations = t.operations[:0]
	clear(t.leaves)
	t.leaves = t.leaves[:0]
}

// NumOps returns the number of recorded operations.
func (t *GradientTape) NumOps() int {
	return len(t.operations)
}

// Operations returns the recorded operations in execution order.
func (t *GradientTape) Operations() []Operation {
	return t.operations
}

// Param wraps a parameter as a leaf node.
//
// The node shares the parameter's storage, so it always observes the latest
// optimizer update.
func (t *GradientTape) Param(p *Parameter) *Node {
	n := &Node{value: p.value, param: p, requiresGrad: true}
	if t.recording {
		n.tape = t
		t.leaves = append(t.leaves, n)
	}
	return n
}

// Constant wraps a matrix that takes no part in differentiation (inputs,
// targets).
func (t *GradientTape) Constant(m *mat.Dense) *Node {
	return &Node{value: m}
}

// output builds the result node of an operation and records it when any
// input requires a gradient.
func (t *GradientTape) output(value *mat.Dense, build func(out *Node) Operation, inputs ...*Node) *Node {
	out := &Node{value: value}
	for _, in := range inputs {
		if in.requiresGrad {
			out.requiresGrad = true
			break
		}
	}
	if t.recording && out.requiresGrad {
		out.tape = t
		t.Record(build(out))
	}
	return out
}

// Backward computes gradients of loss with respect to every parameter leaf
// recorded on the tape and adds them to the parameters' accumulators.
//
// Algorithm:
//  1. Seed d loss / d loss = 1
//  2. Walk operations in reverse order
//  3. For each operation, compute input gradients using its local rule
//  4. Sum gradients when the same node feeds several operations
//  5. Add each parameter leaf's gradient into Parameter.Grad
//
// The tape is cleared afterwards, so every forward pass gets exactly one
// backward pass. Accumulators are not reset here; that is ZeroGrad's job.
func (t *GradientTape) Backward(loss *Node) error {
	if loss == nil {
		return fmt.Errorf("%w: nil loss", ErrNotScalar)
	}
	if r, c := loss.Dims(); r != 1 || c != 1 {
		return fmt.Errorf("%w: got %dx%d", ErrNotScalar, r, c)
	}
	defer t.Clear()
	if len(t.operations) == 0 {
		return ErrEmptyTape
	}
	if loss.tape != t {
		return ErrNotRecorded
	}

	wasRecording := t.recording
	t.recording = false
	defer func() {
		t.recording = wasRecording
	}()

	grads := make(map[*Node]*mat.Dense, len(t.operations)+len(t.leaves))
	grads[loss] = mat.NewDense(1, 1, []float64{1})

	for i := len(t.operations) - 1; i >= 0; i-- {
		op := t.operations[i]
		outGrad, ok := grads[op.Output()]
		if !ok {
			continue
		}
		inputGrads := op.Backward(outGrad)
		for j, in := range op.Inputs() {
			if j >= len(inputGrads) || inputGrads[j] == nil || !in.requiresGrad {
				continue
			}
			if existing, ok := grads[in]; ok {
				existing.Add(existing, inputGrads[j])
			} else {
				grads[in] = mat.DenseCopyOf(inputGrads[j])
			}
		}
	}

	for _, leaf := range t.leaves {
		if g, ok := grads[leaf]; ok {
			leaf.param.AccumulateGrad(g)
		}
	}
	return nil
}
