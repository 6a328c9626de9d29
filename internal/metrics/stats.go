// Package metrics holds the small accumulators used for per-epoch reporting.
package metrics

import (
	"errors"
	"time"
)

// ErrNoObservations is returned when a mean is requested before any value
// was added.
var ErrNoObservations = errors.New("metrics: mean of zero observations")

// RunningMean sums values and reports their arithmetic mean.
type RunningMean struct {
	sum   float64
	count int
}

// Add records one value.
func (m *RunningMean) Add(v float64) {
	m.sum += v
	m.count++
}

// Mean returns sum/count, or ErrNoObservations when nothing was added.
func (m *RunningMean) Mean() (float64, error) {
	if m.count == 0 {
		return 0, ErrNoObservations
	}
	return m.sum / float64(m.count), nil
}

// Sum returns the running total.
func (m *RunningMean) Sum() float64 {
	return m.sum
}

// Count returns how many values were added.
func (m *RunningMean) Count() int {
	return m.count
}

// Reset clears the accumulator.
func (m *RunningMean) Reset() {
	m.sum = 0
	m.count = 0
}

// Tally counts correct predictions.
type Tally struct {
	correct int
	total   int
}

// Add records correct hits out of total examples.
func (t *Tally) Add(correct, total int) {
	t.correct += correct
	t.total += total
}

// Accuracy returns correct/total, or 0 when empty.
func (t *Tally) Accuracy() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.correct) / float64(t.total)
}

// Total returns the number of examples seen.
func (t *Tally) Total() int {
	return t.total
}

// Window accumulates timing stats across multiple steps.
type Window struct {
	samples int
	compute time.Duration
	steps   int
}

// Record adds a new measurement to the window.
func (w *Window) Record(batchSize int, computeTime time.Duration) {
	w.samples += batchSize
	w.compute += computeTime
	w.steps++
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Samples: w.samples, Steps: w.steps}
	if w.compute > 0 {
		snap.SamplesPerSec = float64(w.samples) / w.compute.Seconds()
	}
	if w.steps > 0 {
		snap.AvgStepMS = (w.compute.Seconds() * 1000) / float64(w.steps)
	}

	w.samples = 0
	w.compute = 0
	w.steps = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Samples       int
	Steps         int
	SamplesPerSec float64
	AvgStepMS     float64
}
