package config

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/gradloop/internal/data"
	"github.com/born-ml/gradloop/internal/nn"
	"github.com/born-ml/gradloop/internal/optim"
	"github.com/born-ml/gradloop/internal/trainer"
)

// Run is a config turned into ready-to-train parts.
type Run struct {
	Trainer    trainer.Config
	Components trainer.Components
	Model      *nn.Sequential
	TrainSize  int
	ValSize    int
}

// Build validates cfg and constructs the model, loss, optimizer and data
// sources it describes. Everything random derives from Training.Seed.
func Build(cfg *Config) (*Run, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Training.Seed

	model, err := nn.NewMLP(cfg.Model.Layers, cfg.Model.Activation, rand.New(rand.NewSource(seed)))
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	loss, err := nn.ParseLoss(cfg.Model.Loss)
	if err != nil {
		return nil, fmt.Errorf("build loss: %w", err)
	}
	opt, err := optim.New(model.Parameters(), optim.Config{
		Name:     cfg.Optimizer.Name,
		LR:       cfg.Optimizer.LR,
		Momentum: cfg.Optimizer.Momentum,
		Betas:    [2]float64{cfg.Optimizer.Beta1, cfg.Optimizer.Beta2},
		Eps:      cfg.Optimizer.Eps,
	})
	if err != nil {
		return nil, fmt.Errorf("build optimizer: %w", err)
	}

	inputs, targets, err := data.Synthetic(data.SyntheticConfig{
		Samples:  cfg.Data.Samples,
		Features: cfg.Data.Features,
		Classes:  cfg.Data.Classes,
		Noise:    cfg.Data.Noise,
		Seed:     seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build dataset: %w", err)
	}
	trainX, trainY, valX, valY, err := data.Split(inputs, targets, cfg.Data.ValidationSplit)
	if err != nil {
		return nil, fmt.Errorf("split dataset: %w", err)
	}
	train, err := data.NewInMemory(trainX, trainY, data.InMemoryConfig{
		BatchSize: cfg.Data.BatchSize,
		Shuffle:   cfg.Data.Shuffle,
		Seed:      seed,
	})
	if err != nil {
		return nil, fmt.Errorf("build train source: %w", err)
	}

	run := &Run{
		Trainer: trainer.Config{
			Epochs:                cfg.Training.Epochs,
			LearningRate:          cfg.Optimizer.LR,
			AllowZeroLearningRate: cfg.Training.AllowZeroLR,
			Label:                 cfg.Training.Label,
		},
		Components: trainer.Components{
			Model:     model,
			Loss:      loss,
			Optimizer: opt,
			Data:      train,
		},
		Model:     model,
		TrainSize: len(trainX),
		ValSize:   len(valX),
	}
	if len(valX) > 0 {
		val, err := data.NewInMemory(valX, valY, data.InMemoryConfig{BatchSize: cfg.Data.BatchSize})
		if err != nil {
			return nil, fmt.Errorf("build validation source: %w", err)
		}
		run.Components.Validation = val
	}
	return run, nil
}
