// Package config loads the YAML run description and turns it into trainer
// components.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/gradloop/internal/nn"
)

// Config captures the runtime knobs for a training run.
type Config struct {
	Model      ModelConfig      `yaml:"model"`
	Optimizer  OptimizerConfig  `yaml:"optimizer"`
	Training   TrainingConfig   `yaml:"training"`
	Data       DataConfig       `yaml:"data"`
	History    HistoryConfig    `yaml:"history"`
	Progress   ProgressConfig   `yaml:"progress"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
}

// ModelConfig describes a multi-layer perceptron.
type ModelConfig struct {
	Layers     []int  `yaml:"layers"`     // widths, input first, classes last
	Activation string `yaml:"activation"` // relu, sigmoid, tanh
	Loss       string `yaml:"loss"`       // cross_entropy, mse
}

// OptimizerConfig selects and tunes the optimizer.
type OptimizerConfig struct {
	Name     string  `yaml:"name"` // sgd, adam
	LR       float64 `yaml:"lr"`
	Momentum float64 `yaml:"momentum"`
	Beta1    float64 `yaml:"beta1"`
	Beta2    float64 `yaml:"beta2"`
	Eps      float64 `yaml:"eps"`
}

// TrainingConfig holds loop settings.
type TrainingConfig struct {
	Epochs      int    `yaml:"epochs"`
	Seed        int64  `yaml:"seed"`
	AllowZeroLR bool   `yaml:"allow_zero_lr"`
	Label       string `yaml:"label"`
}

// DataConfig describes the synthetic dataset and its batching.
type DataConfig struct {
	Samples         int     `yaml:"samples"`
	Features        int     `yaml:"features"`
	Classes         int     `yaml:"classes"`
	Noise           float64 `yaml:"noise"`
	BatchSize       int     `yaml:"batch_size"`
	Shuffle         bool    `yaml:"shuffle"`
	ValidationSplit float64 `yaml:"validation_split"`
}

// HistoryConfig enables the SQLite run history when Path is set.
type HistoryConfig struct {
	Path string `yaml:"path"`
}

// ProgressConfig enables the websocket progress stream when Listen is set.
type ProgressConfig struct {
	Listen string `yaml:"listen"`
}

// CheckpointConfig names parameter files to resume from and save to.
type CheckpointConfig struct {
	Resume string `yaml:"resume"`
	Save   string `yaml:"save"`
}

// Overrides captures CLI supplied values. A nil field leaves the config
// value untouched; a non-nil one replaces it, zero included.
type Overrides struct {
	Epochs      *int
	LR          *float64
	AllowZeroLR *bool
	BatchSize   *int
	Seed        *int64
	Optimizer   *string
	HistoryPath *string
	Listen      *string
	Resume      *string
	Save        *string
}

// Default returns an MNIST-shaped configuration: 784 features, 10 classes.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Layers:     []int{784, 128, 10},
			Activation: "relu",
			Loss:       "cross_entropy",
		},
		Optimizer: OptimizerConfig{
			Name: "sgd",
			LR:   0.01,
		},
		Training: TrainingConfig{
			Epochs: 5,
			Seed:   42,
		},
		Data: DataConfig{
			Samples:         2000,
			Features:        784,
			Classes:         10,
			Noise:           0.15,
			BatchSize:       32,
			Shuffle:         true,
			ValidationSplit: 0.1,
		},
	}
}

// Load reads a YAML file on top of Default and validates the result.
// Unknown keys are rejected.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := Default()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyOverrides updates cfg with every override that is set.
func (c *Config) ApplyOverrides(o Overrides) {
	if o.Epochs != nil {
		c.Training.Epochs = *o.Epochs
	}
	if o.LR != nil {
		c.Optimizer.LR = *o.LR
	}
	if o.AllowZeroLR != nil {
		c.Training.AllowZeroLR = *o.AllowZeroLR
	}
	if o.BatchSize != nil {
		c.Data.BatchSize = *o.BatchSize
	}
	if o.Seed != nil {
		c.Training.Seed = *o.Seed
	}
	if o.Optimizer != nil {
		c.Optimizer.Name = *o.Optimizer
	}
	if o.HistoryPath != nil {
		c.History.Path = *o.HistoryPath
	}
	if o.Listen != nil {
		c.Progress.Listen = *o.Listen
	}
	if o.Resume != nil {
		c.Checkpoint.Resume = *o.Resume
	}
	if o.Save != nil {
		c.Checkpoint.Save = *o.Save
	}
}

// Validate verifies the config is runnable.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	layers := c.Model.Layers
	if len(layers) < 2 {
		return fmt.Errorf("model.layers needs at least input and output widths (got %v)", layers)
	}
	for i, w := range layers {
		if w <= 0 {
			return fmt.Errorf("model.layers[%d] must be > 0 (got %d)", i, w)
		}
	}
	if layers[0] != c.Data.Features {
		return fmt.Errorf("model.layers[0] = %d does not match data.features = %d", layers[0], c.Data.Features)
	}
	if last := layers[len(layers)-1]; last != c.Data.Classes {
		return fmt.Errorf("model.layers[last] = %d does not match data.classes = %d", last, c.Data.Classes)
	}
	if _, err := nn.ParseActivation(c.Model.Activation); err != nil {
		return fmt.Errorf("model.activation: %w", err)
	}
	if _, err := nn.ParseLoss(c.Model.Loss); err != nil {
		return fmt.Errorf("model.loss: %w", err)
	}

	switch strings.ToLower(c.Optimizer.Name) {
	case "sgd", "adam":
	default:
		return fmt.Errorf("optimizer.name must be sgd or adam (got %q)", c.Optimizer.Name)
	}
	lr := c.Optimizer.LR
	if math.IsNaN(lr) || math.IsInf(lr, 0) || lr < 0 {
		return fmt.Errorf("optimizer.lr must be finite and > 0 (got %v)", lr)
	}
	if lr == 0 && !c.Training.AllowZeroLR {
		return errors.New("optimizer.lr is 0; set training.allow_zero_lr to run without updates")
	}

	if c.Training.Epochs <= 0 {
		return fmt.Errorf("training.epochs must be > 0 (got %d)", c.Training.Epochs)
	}
	if c.Data.Samples <= 0 {
		return fmt.Errorf("data.samples must be > 0 (got %d)", c.Data.Samples)
	}
	if c.Data.BatchSize <= 0 {
		return fmt.Errorf("data.batch_size must be > 0 (got %d)", c.Data.BatchSize)
	}
	if c.Data.Noise < 0 {
		return fmt.Errorf("data.noise must be >= 0 (got %v)", c.Data.Noise)
	}
	if s := c.Data.ValidationSplit; s < 0 || s >= 1 {
		return fmt.Errorf("data.validation_split must be in [0, 1) (got %v)", s)
	}
	return nil
}
