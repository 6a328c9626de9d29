package optim_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/gradloop/internal/autodiff"
	"github.com/born-ml/gradloop/internal/optim"
)

func scalarParam(value, grad float64) *autodiff.Parameter {
	p := autodiff.NewParameter("x", mat.NewDense(1, 1, []float64{value}))
	p.AccumulateGrad(mat.NewDense(1, 1, []float64{grad}))
	return p
}

func TestSGD_SimpleUpdate(t *testing.T) {
	param := scalarParam(2.0, 1.0)
	optimizer, err := optim.NewSGD([]*autodiff.Parameter{param}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	require.NoError(t, optimizer.Step())

	// Expected: x_new = x_old - lr * grad = 2.0 - 0.1 * 1.0 = 1.9
	assert.InDelta(t, 1.9, param.Value().At(0, 0), 1e-12)
}

func TestSGD_WithMomentum(t *testing.T) {
	param := scalarParam(1.0, 1.0)
	optimizer, err := optim.NewSGD([]*autodiff.Parameter{param}, optim.SGDConfig{LR: 0.1, Momentum: 0.9})
	require.NoError(t, err)

	// v_1 = 0.9 * 0 + 1.0 = 1.0
	// x_1 = 1.0 - 0.1 * 1.0 = 0.9
	require.NoError(t, optimizer.Step())
	assert.InDelta(t, 0.9, param.Value().At(0, 0), 1e-12)

	// v_2 = 0.9 * 1.0 + 1.0 = 1.9
	// x_2 = 0.9 - 0.1 * 1.9 = 0.71
	require.NoError(t, optimizer.Step())
	assert.InDelta(t, 0.71, param.Value().At(0, 0), 1e-12)
}

func TestSGD_ZeroLearningRateLeavesParametersUntouched(t *testing.T) {
	param := autodiff.NewParameter("w", mat.NewDense(2, 2, []float64{0.25, -1.5, 3, 1e-8}))
	param.AccumulateGrad(mat.NewDense(2, 2, []float64{10, -3, 0.5, 7}))
	before := mat.DenseCopyOf(param.Value())

	optimizer, err := optim.NewSGD([]*autodiff.Parameter{param}, optim.SGDConfig{LR: 0})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, optimizer.Step())
	}

	assert.Equal(t, before.RawMatrix().Data, param.Value().RawMatrix().Data)
}

func TestSGD_ZeroGrad(t *testing.T) {
	param := scalarParam(1.0, 5.0)
	optimizer, err := optim.NewSGD([]*autodiff.Parameter{param}, optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)

	optimizer.ZeroGrad()
	assert.Equal(t, 0.0, param.Grad().At(0, 0))

	optimizer.ZeroGrad()
	assert.Equal(t, 0.0, param.Grad().At(0, 0))
}

func TestSGD_GetSetLR(t *testing.T) {
	optimizer, err := optim.NewSGD(nil, optim.SGDConfig{LR: 0.01})
	require.NoError(t, err)
	assert.Equal(t, 0.01, optimizer.LR())

	require.NoError(t, optimizer.SetLR(0.003))
	assert.Equal(t, 0.003, optimizer.LR())

	require.ErrorIs(t, optimizer.SetLR(-1), optim.ErrInvalidConfig)
	require.ErrorIs(t, optimizer.SetLR(math.NaN()), optim.ErrInvalidConfig)
	assert.Equal(t, 0.003, optimizer.LR(), "rejected SetLR must not change the rate")
}

func TestSGD_RejectsInvalidConfig(t *testing.T) {
	_, err := optim.NewSGD(nil, optim.SGDConfig{LR: -0.1})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)

	_, err = optim.NewSGD(nil, optim.SGDConfig{LR: 0.1, Momentum: 1})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)

	_, err = optim.NewSGD(nil, optim.SGDConfig{LR: math.Inf(1)})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)
}

func TestAdam_SimpleUpdate(t *testing.T) {
	param := scalarParam(1.0, 1.0)
	optimizer, err := optim.NewAdam([]*autodiff.Parameter{param}, optim.AdamConfig{
		LR:    0.001,
		Betas: [2]float64{0.9, 0.999},
		Eps:   1e-8,
	})
	require.NoError(t, err)

	require.NoError(t, optimizer.Step())

	// m_hat = v_hat = 1.0 after bias correction, so x moves by ~lr.
	assert.InDelta(t, 0.999, param.Value().At(0, 0), 1e-6)
}

func TestAdam_Defaults(t *testing.T) {
	param := scalarParam(1.0, -2.0)
	optimizer, err := optim.NewAdam([]*autodiff.Parameter{param}, optim.AdamConfig{LR: 0.01})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, optimizer.Step())
	}

	// A constant gradient gives m_hat/sqrt(v_hat) = sign(grad) each step.
	assert.InDelta(t, 1.03, param.Value().At(0, 0), 1e-6)
	assert.Equal(t, 0.01, optimizer.LR())
}

func TestAdam_RejectsInvalidBetas(t *testing.T) {
	_, err := optim.NewAdam(nil, optim.AdamConfig{LR: 0.01, Betas: [2]float64{1.2, 0.999}})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)
}

func TestNew_ByName(t *testing.T) {
	params := []*autodiff.Parameter{scalarParam(1, 0)}

	sgd, err := optim.New(params, optim.Config{Name: "sgd", LR: 0.01, Momentum: 0.5})
	require.NoError(t, err)
	assert.IsType(t, &optim.SGD{}, sgd)
	assert.Len(t, sgd.Parameters(), 1)

	adam, err := optim.New(params, optim.Config{Name: "Adam", LR: 0.003})
	require.NoError(t, err)
	assert.IsType(t, &optim.Adam{}, adam)

	_, err = optim.New(params, optim.Config{Name: "rmsprop", LR: 0.01})
	require.ErrorIs(t, err, optim.ErrInvalidConfig)
}
