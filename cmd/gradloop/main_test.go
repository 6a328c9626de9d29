package main

import (
	"errors"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradloop/internal/config"
	"github.com/born-ml/gradloop/internal/trainer"
)

func TestOverrides_OnlyExplicitFlags(t *testing.T) {
	f, err := parseFlags("gradloop", []string{"-lr", "0", "-seed", "0", "-allow-zero-lr", "-optimizer", "adam"})
	require.NoError(t, err)
	o := f.overrides()

	require.NotNil(t, o.LR)
	assert.Zero(t, *o.LR)
	require.NotNil(t, o.Seed)
	assert.Zero(t, *o.Seed)
	require.NotNil(t, o.AllowZeroLR)
	assert.True(t, *o.AllowZeroLR)
	require.NotNil(t, o.Optimizer)
	assert.Equal(t, "adam", *o.Optimizer)
	assert.Nil(t, o.Epochs)
	assert.Nil(t, o.BatchSize)
	assert.Nil(t, o.HistoryPath)

	cfg := config.Default()
	cfg.ApplyOverrides(o)
	assert.Zero(t, cfg.Optimizer.LR)
	assert.Zero(t, cfg.Training.Seed)
	assert.Equal(t, 5, cfg.Training.Epochs)
	require.NoError(t, cfg.Validate())
}

func TestOverrides_NoFlags(t *testing.T) {
	f, err := parseFlags("gradloop", nil)
	require.NoError(t, err)

	assert.Equal(t, config.Overrides{}, f.overrides())
}

func TestParseFlags_Help(t *testing.T) {
	_, err := parseFlags("gradloop", []string{"-h"})
	require.ErrorIs(t, err, flag.ErrHelp)
}

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			"batch failure",
			&trainer.RunError{Epoch: 1, Batch: 2, Err: trainer.ErrNumerical},
			"training failed at epoch=2 batch=3: " + trainer.ErrNumerical.Error(),
		},
		{
			"epoch failure",
			&trainer.RunError{Epoch: 0, Batch: -1, Err: trainer.ErrEmptyData},
			"training failed at epoch=1: " + trainer.ErrEmptyData.Error(),
		},
		{
			"other error",
			errors.New("listen :80: permission denied"),
			"training failed: listen :80: permission denied",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, failureMessage(tt.err))
		})
	}
}

func TestHostDescription(t *testing.T) {
	host := hostDescription()

	assert.Contains(t, host, "cpu=")
	assert.Contains(t, host, "cores=")
	assert.NotContains(t, host, `cpu=""`)
}
