package data

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// InMemoryConfig controls batching of an in-memory dataset.
type InMemoryConfig struct {
	BatchSize int   // Examples per batch; the last batch may be smaller
	Shuffle   bool  // Reshuffle example order every epoch
	Seed      int64 // Base seed for the per-epoch permutation
}

// InMemory serves mini-batches from feature vectors held in memory.
type InMemory struct {
	inputs   [][]float64
	targets  []int
	features int
	cfg      InMemoryConfig
}

// NewInMemory validates the dataset and returns a Source over it.
//
// All inputs must share one width and targets must be non-negative. An empty
// dataset is accepted; it simply yields no batches.
func NewInMemory(inputs [][]float64, targets []int, cfg InMemoryConfig) (*InMemory, error) {
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: batch size must be > 0 (got %d)", ErrInvalidDataset, cfg.BatchSize)
	}
	if len(inputs) != len(targets) {
		return nil, fmt.Errorf("%w: %d inputs but %d targets", ErrInvalidDataset, len(inputs), len(targets))
	}
	features := 0
	if len(inputs) > 0 {
		features = len(inputs[0])
		if features == 0 {
			return nil, fmt.Errorf("%w: inputs have no features", ErrInvalidDataset)
		}
	}
	for i, in := range inputs {
		if len(in) != features {
			return nil, fmt.Errorf("%w: input %d has %d features, want %d", ErrInvalidDataset, i, len(in), features)
		}
		if targets[i] < 0 {
			return nil, fmt.Errorf("%w: target %d is negative (%d)", ErrInvalidDataset, i, targets[i])
		}
	}
	return &InMemory{inputs: inputs, targets: targets, features: features, cfg: cfg}, nil
}

// Len returns the number of examples.
func (m *InMemory) Len() int {
	return len(m.inputs)
}

// Features returns the width of every input.
func (m *InMemory) Features() int {
	return m.features
}

// NumBatches returns the number of batches per epoch.
func (m *InMemory) NumBatches() int {
	return (len(m.inputs) + m.cfg.BatchSize - 1) / m.cfg.BatchSize
}

// Order returns the example order used for epoch.
//
// Without shuffling it is the identity. With shuffling the permutation is
// drawn from a generator seeded with Seed+epoch, so it is reproducible per
// epoch and differs between epochs.
func (m *InMemory) Order(epoch int) []int {
	if !m.cfg.Shuffle {
		order := make([]int, len(m.inputs))
		for i := range order {
			order[i] = i
		}
		return order
	}
	rng := rand.New(rand.NewSource(m.cfg.Seed + int64(epoch)))
	return rng.Perm(len(m.inputs))
}

// Epoch implements Source.
func (m *InMemory) Epoch(epoch int) (Iterator, error) {
	return &memoryIterator{src: m, order: m.Order(epoch)}, nil
}

type memoryIterator struct {
	src   *InMemory
	order []int
	next  int
	cur   Batch
}

func (it *memoryIterator) Next() bool {
	if it.next >= len(it.order) {
		return false
	}
	end := it.next + it.src.cfg.BatchSize
	if end > len(it.order) {
		end = len(it.order)
	}
	idx := it.order[it.next:end]
	it.next = end

	inputs := mat.NewDense(len(idx), it.src.features, nil)
	targets := make([]int, len(idx))
	for row, i := range idx {
		inputs.SetRow(row, it.src.inputs[i])
		targets[row] = it.src.targets[i]
	}
	it.cur = Batch{Inputs: inputs, Targets: targets}
	return true
}

func (it *memoryIterator) Batch() Batch {
	return it.cur
}

func (it *memoryIterator) Err() error {
	return nil
}

// Split splits examples into train and validation parts.
//
// The last ratio fraction of the examples becomes the validation part; ratio
// must be in [0, 1).
func Split(inputs [][]float64, targets []int, ratio float64) (trainX [][]float64, trainY []int, valX [][]float64, valY []int, err error) {
	if ratio < 0 || ratio >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("%w: validation ratio must be in [0, 1), got %v", ErrInvalidDataset, ratio)
	}
	if len(inputs) != len(targets) {
		return nil, nil, nil, nil, fmt.Errorf("%w: %d inputs but %d targets", ErrInvalidDataset, len(inputs), len(targets))
	}
	splitIdx := int(float64(len(inputs)) * (1.0 - ratio))
	return inputs[:splitIdx], targets[:splitIdx], inputs[splitIdx:], targets[splitIdx:], nil
}
