package data

import (
	"fmt"
	"math/rand"
)

// SyntheticConfig describes a Gaussian-cluster classification dataset.
type SyntheticConfig struct {
	Samples  int     // Number of examples
	Features int     // Width of every input (784 for MNIST-shaped data)
	Classes  int     // Number of classes
	Noise    float64 // Standard deviation around each class centroid
	Seed     int64
}

// Synthetic generates a labelled dataset of Gaussian clusters.
//
// Every class gets a random centroid in [0, 1)^Features; examples are the
// centroid plus N(0, Noise^2) noise, clamped to [0, 1] like normalized pixel
// intensities. Labels cycle through the classes so each class is balanced.
func Synthetic(cfg SyntheticConfig) ([][]float64, []int, error) {
	if cfg.Samples < 0 || cfg.Features <= 0 || cfg.Classes <= 0 || cfg.Noise < 0 {
		return nil, nil, fmt.Errorf("%w: synthetic config %+v", ErrInvalidDataset, cfg)
	}
	rng := rand.New(rand.NewSource(cfg.Seed))

	centroids := make([][]float64, cfg.Classes)
	for c := range centroids {
		centroids[c] = make([]float64, cfg.Features)
		for j := range centroids[c] {
			centroids[c][j] = rng.Float64()
		}
	}

	inputs := make([][]float64, cfg.Samples)
	targets := make([]int, cfg.Samples)
	for i := range inputs {
		label := i % cfg.Classes
		x := make([]float64, cfg.Features)
		for j := range x {
			v := centroids[label][j] + rng.NormFloat64()*cfg.Noise
			x[j] = min(max(v, 0), 1)
		}
		inputs[i] = x
		targets[i] = label
	}

	// Interleave classes randomly so a non-shuffled split stays balanced.
	rng.Shuffle(len(inputs), func(a, b int) {
		inputs[a], inputs[b] = inputs[b], inputs[a]
		targets[a], targets[b] = targets[b], targets[a]
	})
	return inputs, targets, nil
}
