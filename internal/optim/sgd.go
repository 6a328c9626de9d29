package optim

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// SGD implements Stochastic Gradient Descent optimizer with optional momentum.
//
// Update rule without momentum:
//
//	param = param - lr * gradient
//
// Update rule with momentum:
//
//	velocity = momentum * velocity + gradient
//	param = param - lr * velocity
type SGD struct {
	params     []*autodiff.Parameter
	lr         float64
	momentum   float64
	velocities map[*autodiff.Parameter]*mat.Dense
}

// SGDConfig holds configuration for SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate
	Momentum float64 // Momentum factor (default: 0.0, range: [0, 1))
}

// NewSGD creates a new SGD optimizer.
//
// Returns ErrInvalidConfig for a negative or non-finite learning rate or a
// momentum outside [0, 1).
func NewSGD(params []*autodiff.Parameter, config SGDConfig) (*SGD, error) {
	if err := validateLR(config.LR); err != nil {
		return nil, err
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("%w: momentum must be in [0, 1), got %v", ErrInvalidConfig, config.Momentum)
	}
	return &SGD{
		params:     params,
		lr:         config.LR,
		momentum:   config.Momentum,
		velocities: make(map[*autodiff.Parameter]*mat.Dense),
	}, nil
}

// Step performs a single optimization step.
func (s *SGD) Step() error {
	for _, param := range s.params {
		value := param.Value().RawMatrix().Data
		grad := param.Grad().RawMatrix().Data

		if s.momentum == 0 {
			// param -= lr * grad
			floats.AddScaled(value, -s.lr, grad)
			continue
		}

		velocity, ok := s.velocities[param]
		if !ok {
			r, c := param.Dims()
			velocity = mat.NewDense(r, c, nil)
			s.velocities[param] = velocity
		}
		v := velocity.RawMatrix().Data
		// velocity = momentum * velocity + grad
		floats.Scale(s.momentum, v)
		floats.Add(v, grad)
		// param -= lr * velocity
		floats.AddScaled(value, -s.lr, v)
	}
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() {
	zeroGrads(s.params)
}

// LR returns the current learning rate.
func (s *SGD) LR() float64 {
	return s.lr
}

// SetLR updates the learning rate.
func (s *SGD) SetLR(lr float64) error {
	if err := validateLR(lr); err != nil {
		return err
	}
	s.lr = lr
	return nil
}

// Parameters returns the optimized parameters.
func (s *SGD) Parameters() []*autodiff.Parameter {
	return s.params
}
