// Package data provides the batch sources consumed by the training loop.
//
// A Source hands out one Iterator per epoch. Iterators yield every batch of
// the epoch exactly once; the order is fixed within an epoch and may change
// between epochs when shuffling is enabled.
package data

import (
	"errors"

	"gonum.org/v1/gonum/mat"
)

// ErrInvalidDataset is returned for malformed in-memory datasets.
var ErrInvalidDataset = errors.New("data: invalid dataset")

// Batch is a group of examples processed in one gradient step.
type Batch struct {
	Inputs  *mat.Dense // [batch_size, features]
	Targets []int      // [batch_size] class indices
}

// Size returns the number of examples in the batch.
func (b Batch) Size() int {
	return len(b.Targets)
}

// Source produces a finite, restartable sequence of batches.
type Source interface {
	// Epoch returns an iterator over every batch of the given epoch.
	Epoch(epoch int) (Iterator, error)
}

// Iterator walks the batches of one epoch.
//
// Usage mirrors bufio.Scanner:
//
//	it, err := src.Epoch(e)
//	for it.Next() {
//	    b := it.Batch()
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator interface {
	Next() bool
	Batch() Batch
	Err() error
}

// SliceSource replays a fixed list of batches every epoch.
type SliceSource []Batch

// Epoch implements Source.
func (s SliceSource) Epoch(int) (Iterator, error) {
	return &sliceIterator{batches: s, pos: -1}, nil
}

type sliceIterator struct {
	batches []Batch
	pos     int
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.batches) {
		it.pos = len(it.batches)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Batch() Batch {
	return it.batches[it.pos]
}

func (it *sliceIterator) Err() error {
	return nil
}
