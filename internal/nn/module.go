// Package nn implements the neural network building blocks trained by the
// loop driver.
//
// This package provides:
//   - Module interface: Base interface for all NN components
//   - Linear: Fully connected layer
//   - Activations: ReLU, Sigmoid, Tanh
//   - Sequential: Container for stacking layers
//   - Loss functions: CrossEntropyLoss, MSELoss
//
// Modules compute their forward pass on an autodiff.GradientTape, so a
// recording tape can later produce gradients for every Parameter.
package nn

import (
	"github.com/born-ml/gradloop/internal/autodiff"
)

// Module is the base interface for all neural network components.
//
// Every NN module must implement:
//   - Forward: Compute output from input, recording on the tape
//   - Parameters: Return all trainable parameters
//
// Modules can be composed to build complex architectures:
//
//	model := nn.NewSequential(
//	    nn.NewLinear(784, 128, rng),
//	    nn.NewReLU(),
//	    nn.NewLinear(128, 10, rng),
//	)
type Module interface {
	// Forward computes the output of the module given an input node.
	//
	// The input should have the appropriate shape for this module.
	// For example, Linear expects [batch_size, in_features].
	Forward(tape *autodiff.GradientTape, input *autodiff.Node) *autodiff.Node

	// Parameters returns all trainable parameters of this module.
	//
	// Returns an empty slice for modules without trainable parameters
	// (e.g., activation functions).
	Parameters() []*autodiff.Parameter
}

// CountParameters returns the number of scalar trainable values in m.
func CountParameters(m Module) int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Size()
	}
	return total
}
