// Package optim implements optimization algorithms for training neural networks.
//
// This package provides:
//   - Optimizer interface: Base interface for all optimizers
//   - SGD: Stochastic Gradient Descent with momentum
//   - Adam: Adaptive Moment Estimation
//
// Optimizers read each parameter's gradient accumulator and update the
// parameter value in place.
//
// Example usage:
//
//	optimizer, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.01})
//
//	for _, batch := range batches {
//	    optimizer.ZeroGrad()
//	    loss := lossFn.Forward(tape, model.Forward(tape, x), batch.Targets)
//	    if err := tape.Backward(loss); err != nil {
//	        return err
//	    }
//	    if err := optimizer.Step(); err != nil {
//	        return err
//	    }
//	}
package optim

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// ErrInvalidConfig is returned for out-of-range optimizer hyperparameters.
var ErrInvalidConfig = errors.New("optim: invalid configuration")

// Optimizer is the base interface for all optimization algorithms.
//
// All optimizers must implement:
//   - Step: Apply gradient updates to parameters
//   - ZeroGrad: Reset gradient accumulators before the next backward pass
//   - LR/SetLR: Read and change the learning rate
type Optimizer interface {
	// Step applies one update to every parameter using its accumulated
	// gradient and the current learning rate.
	Step() error

	// ZeroGrad resets every parameter's gradient accumulator to zero.
	//
	// This must be called before each backward pass to prevent gradient
	// accumulation from previous iterations.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// SetLR updates the learning rate.
	SetLR(lr float64) error

	// Parameters returns the parameters managed by the optimizer.
	Parameters() []*autodiff.Parameter
}

// Config is the named, serializable form of an optimizer choice.
type Config struct {
	Name     string     // "sgd" or "adam"
	LR       float64    // Learning rate
	Momentum float64    // SGD only
	Betas    [2]float64 // Adam only
	Eps      float64    // Adam only
}

// New builds the optimizer described by cfg over params.
func New(params []*autodiff.Parameter, cfg Config) (Optimizer, error) {
	switch strings.ToLower(cfg.Name) {
	case "sgd", "":
		return NewSGD(params, SGDConfig{LR: cfg.LR, Momentum: cfg.Momentum})
	case "adam":
		return NewAdam(params, AdamConfig{LR: cfg.LR, Betas: cfg.Betas, Eps: cfg.Eps})
	default:
		return nil, fmt.Errorf("%w: unknown optimizer %q", ErrInvalidConfig, cfg.Name)
	}
}

// validateLR accepts zero (a no-op update) but rejects negative and
// non-finite rates.
func validateLR(lr float64) error {
	if math.IsNaN(lr) || math.IsInf(lr, 0) || lr < 0 {
		return fmt.Errorf("%w: learning rate must be finite and >= 0, got %v", ErrInvalidConfig, lr)
	}
	return nil
}

func zeroGrads(params []*autodiff.Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
