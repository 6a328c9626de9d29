package nn

import (
	"fmt"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// Activation is a parameter-free element-wise module.
//
// Example:
//
//	relu := nn.NewReLU()
//	output := relu.Forward(tape, input) // All negative values become 0
type Activation struct {
	act autodiff.Activation
}

// NewReLU creates a ReLU activation: f(x) = max(0, x).
func NewReLU() *Activation {
	return &Activation{act: autodiff.ActReLU}
}

// NewSigmoid creates a sigmoid activation: f(x) = 1 / (1 + exp(-x)).
func NewSigmoid() *Activation {
	return &Activation{act: autodiff.ActSigmoid}
}

// NewTanh creates a tanh activation.
func NewTanh() *Activation {
	return &Activation{act: autodiff.ActTanh}
}

// ParseActivation maps a name ("relu", "sigmoid", "tanh") to a module.
func ParseActivation(name string) (*Activation, error) {
	switch name {
	case "relu", "":
		return NewReLU(), nil
	case "sigmoid":
		return NewSigmoid(), nil
	case "tanh":
		return NewTanh(), nil
	default:
		return nil, fmt.Errorf("nn: unknown activation %q", name)
	}
}

// Forward applies the activation element-wise.
func (a *Activation) Forward(tape *autodiff.GradientTape, input *autodiff.Node) *autodiff.Node {
	return tape.Elementwise(a.act, input)
}

// Parameters returns nil (activations have no trainable parameters).
func (a *Activation) Parameters() []*autodiff.Parameter {
	return nil
}

// String returns the activation name.
func (a *Activation) String() string {
	return a.act.String()
}
