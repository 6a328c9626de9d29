package nn

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Xavier (Glorot) initialization for weights.
//
// Initializes weights with values drawn from a uniform distribution:
// U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
//
// Values are drawn from rng so a fixed seed reproduces the same model.
func Xavier(fanIn, fanOut, rows, cols int, rng *rand.Rand) *mat.Dense {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	data := make([]float64, rows*cols)
	for i := range data {
		//nolint:gosec // Using math/rand for weight initialization (not security-critical)
		data[i] = (rng.Float64()*2.0 - 1.0) * bound
	}
	return mat.NewDense(rows, cols, data)
}

// Zeros returns a zero-filled rows x cols matrix.
//
// This is commonly used for bias initialization.
func Zeros(rows, cols int) *mat.Dense {
	return mat.NewDense(rows, cols, nil)
}
