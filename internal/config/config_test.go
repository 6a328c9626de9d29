package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/gradloop/internal/nn"
	"github.com/born-ml/gradloop/internal/optim"
	"github.com/born-ml/gradloop/internal/trainer"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func smallConfig() *Config {
	cfg := Default()
	cfg.Model.Layers = []int{4, 6, 3}
	cfg.Data.Features = 4
	cfg.Data.Classes = 3
	cfg.Data.Samples = 60
	cfg.Data.BatchSize = 8
	cfg.Training.Epochs = 2
	return cfg
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 0.01, cfg.Optimizer.LR)
	assert.Equal(t, []int{784, 128, 10}, cfg.Model.Layers)
}

func TestLoad_MergesOverDefaults(t *testing.T) {
	path := writeConfig(t, `
model:
  layers: [784, 64, 10]
  activation: tanh
optimizer:
  name: adam
  lr: 0.003
training:
  epochs: 10
  label: notebook
history:
  path: runs.sqlite3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []int{784, 64, 10}, cfg.Model.Layers)
	assert.Equal(t, "tanh", cfg.Model.Activation)
	assert.Equal(t, "cross_entropy", cfg.Model.Loss, "unset keys keep defaults")
	assert.Equal(t, "adam", cfg.Optimizer.Name)
	assert.Equal(t, 0.003, cfg.Optimizer.LR)
	assert.Equal(t, 10, cfg.Training.Epochs)
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Equal(t, "notebook", cfg.Training.Label)
	assert.Equal(t, "runs.sqlite3", cfg.History.Path)
	assert.Equal(t, 32, cfg.Data.BatchSize)
}

func TestLoad_EmptyFileIsDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "open config")

	_, err = Load(writeConfig(t, "training:\n  epochz: 3\n"))
	assert.ErrorContains(t, err, "parse config")

	_, err = Load(writeConfig(t, "training:\n  epochs: 0\n"))
	assert.ErrorContains(t, err, "training.epochs")
}

func TestApplyOverrides(t *testing.T) {
	cfg := Default()
	epochs, lr, name, listen := 3, 0.003, "adam", ":8080"
	cfg.ApplyOverrides(Overrides{Epochs: &epochs, LR: &lr, Optimizer: &name, Listen: &listen})

	assert.Equal(t, 3, cfg.Training.Epochs)
	assert.Equal(t, 0.003, cfg.Optimizer.LR)
	assert.Equal(t, "adam", cfg.Optimizer.Name)
	assert.Equal(t, ":8080", cfg.Progress.Listen)
	assert.Equal(t, 32, cfg.Data.BatchSize, "unset overrides leave values alone")
	assert.Equal(t, int64(42), cfg.Training.Seed)
	assert.Empty(t, cfg.History.Path)
}

func TestApplyOverrides_ExplicitZeros(t *testing.T) {
	cfg := Default()
	lr, seed := 0.0, int64(0)
	cfg.ApplyOverrides(Overrides{LR: &lr, Seed: &seed})

	assert.Zero(t, cfg.Optimizer.LR)
	assert.Zero(t, cfg.Training.Seed)
	require.ErrorContains(t, cfg.Validate(), "allow_zero_lr")

	allow := true
	cfg.ApplyOverrides(Overrides{AllowZeroLR: &allow})
	require.NoError(t, cfg.Validate())

	built, err := Build(cfg)
	require.NoError(t, err)
	assert.True(t, built.Trainer.AllowZeroLearningRate)
	assert.Zero(t, built.Trainer.LearningRate)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"one layer", func(c *Config) { c.Model.Layers = []int{784} }, "model.layers"},
		{"zero width", func(c *Config) { c.Model.Layers = []int{784, 0, 10} }, "model.layers[1]"},
		{"input mismatch", func(c *Config) { c.Data.Features = 100 }, "data.features"},
		{"output mismatch", func(c *Config) { c.Data.Classes = 5 }, "data.classes"},
		{"activation", func(c *Config) { c.Model.Activation = "gelu" }, "model.activation"},
		{"loss", func(c *Config) { c.Model.Loss = "hinge" }, "model.loss"},
		{"optimizer", func(c *Config) { c.Optimizer.Name = "rmsprop" }, "optimizer.name"},
		{"negative lr", func(c *Config) { c.Optimizer.LR = -1 }, "optimizer.lr"},
		{"zero lr", func(c *Config) { c.Optimizer.LR = 0 }, "allow_zero_lr"},
		{"epochs", func(c *Config) { c.Training.Epochs = -1 }, "training.epochs"},
		{"samples", func(c *Config) { c.Data.Samples = 0 }, "data.samples"},
		{"batch size", func(c *Config) { c.Data.BatchSize = 0 }, "data.batch_size"},
		{"noise", func(c *Config) { c.Data.Noise = -0.1 }, "data.noise"},
		{"split", func(c *Config) { c.Data.ValidationSplit = 1 }, "validation_split"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())

	zero := Default()
	zero.Optimizer.LR = 0
	zero.Training.AllowZeroLR = true
	assert.NoError(t, zero.Validate())
}

func TestBuild_Components(t *testing.T) {
	cfg := smallConfig()
	cfg.Optimizer.Name = "adam"
	cfg.Data.ValidationSplit = 0.25

	run, err := Build(cfg)
	require.NoError(t, err)

	assert.Equal(t, 45, run.TrainSize)
	assert.Equal(t, 15, run.ValSize)
	assert.NotNil(t, run.Components.Validation)
	assert.IsType(t, &optim.Adam{}, run.Components.Optimizer)
	assert.Equal(t, 4*6+6+6*3+3, nn.CountParameters(run.Model))
	assert.Equal(t, trainer.Config{Epochs: 2, LearningRate: 0.01}, run.Trainer)
}

func TestBuild_NoValidationSplit(t *testing.T) {
	cfg := smallConfig()
	cfg.Data.ValidationSplit = 0

	run, err := Build(cfg)
	require.NoError(t, err)
	assert.Nil(t, run.Components.Validation)
	assert.Equal(t, 60, run.TrainSize)
}

func TestBuild_Trains(t *testing.T) {
	run, err := Build(smallConfig())
	require.NoError(t, err)

	d, err := trainer.New(run.Trainer, run.Components)
	require.NoError(t, err)
	history, err := d.Run()
	require.NoError(t, err)

	require.Len(t, history, 2)
	assert.True(t, history[0].Validated)
}

func TestBuild_RejectsInvalid(t *testing.T) {
	cfg := smallConfig()
	cfg.Training.Epochs = 0

	_, err := Build(cfg)
	assert.Error(t, err)
}

func TestLoad_SampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "mnist-mlp.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "mnist-mlp", cfg.Training.Label)
	assert.Equal(t, 0.9, cfg.Optimizer.Momentum)
}
