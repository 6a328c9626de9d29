package optim

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/gradloop/internal/autodiff"
)

// Adam implements the Adam optimizer (Adaptive Moment Estimation).
//
// Update rule:
//
//	m = beta1 * m + (1 - beta1) * grad
//	v = beta2 * v + (1 - beta2) * grad^2
//	m_hat = m / (1 - beta1^t)
//	v_hat = v / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
type Adam struct {
	params []*autodiff.Parameter
	lr     float64
	beta1  float64
	beta2  float64
	eps    float64
	t      int                                // Timestep for bias correction
	m      map[*autodiff.Parameter]*mat.Dense // First moment estimates
	v      map[*autodiff.Parameter]*mat.Dense // Second moment estimates
}

// AdamConfig holds configuration for Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate
	Betas [2]float64 // Coefficients for computing running averages (default: [0.9, 0.999])
	Eps   float64    // Term for numerical stability (default: 1e-8)
}

// NewAdam creates a new Adam optimizer. Zero betas and eps take their
// defaults.
func NewAdam(params []*autodiff.Parameter, config AdamConfig) (*Adam, error) {
	if err := validateLR(config.LR); err != nil {
		return nil, err
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}
	for _, beta := range config.Betas {
		if beta < 0 || beta >= 1 {
			return nil, fmt.Errorf("%w: betas must be in [0, 1), got %v", ErrInvalidConfig, config.Betas)
		}
	}
	if config.Eps < 0 {
		return nil, fmt.Errorf("%w: eps must be positive, got %v", ErrInvalidConfig, config.Eps)
	}

	return &Adam{
		params: params,
		lr:     config.LR,
		beta1:  config.Betas[0],
		beta2:  config.Betas[1],
		eps:    config.Eps,
		m:      make(map[*autodiff.Parameter]*mat.Dense),
		v:      make(map[*autodiff.Parameter]*mat.Dense),
	}, nil
}

// Step performs a single optimization step.
func (a *Adam) Step() error {
	a.t++

	biasCorrection1 := 1.0 - math.Pow(a.beta1, float64(a.t))
	biasCorrection2 := 1.0 - math.Pow(a.beta2, float64(a.t))

	for _, param := range a.params {
		r, c := param.Dims()
		m, ok := a.m[param]
		if !ok {
			m = mat.NewDense(r, c, nil)
			a.m[param] = m
		}
		v, ok := a.v[param]
		if !ok {
			v = mat.NewDense(r, c, nil)
			a.v[param] = v
		}

		gradData := param.Grad().RawMatrix().Data
		mData := m.RawMatrix().Data
		vData := v.RawMatrix().Data
		paramData := param.Value().RawMatrix().Data

		for i, g := range gradData {
			mData[i] = a.beta1*mData[i] + (1.0-a.beta1)*g
			vData[i] = a.beta2*vData[i] + (1.0-a.beta2)*g*g

			mHat := mData[i] / biasCorrection1
			vHat := vData[i] / biasCorrection2

			paramData[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
	return nil
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() {
	zeroGrads(a.params)
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 {
	return a.lr
}

// SetLR updates the learning rate.
func (a *Adam) SetLR(lr float64) error {
	if err := validateLR(lr); err != nil {
		return err
	}
	a.lr = lr
	return nil
}

// Parameters returns the optimized parameters.
func (a *Adam) Parameters() []*autodiff.Parameter {
	return a.params
}
