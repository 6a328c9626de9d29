package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunningMean(t *testing.T) {
	var m RunningMean
	_, err := m.Mean()
	require.ErrorIs(t, err, ErrNoObservations)

	for _, v := range []float64{1.5, 2.5, 4} {
		m.Add(v)
	}
	mean, err := m.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 8.0/3.0, mean, 1e-12)
	assert.Equal(t, 3, m.Count())
	assert.Equal(t, 8.0, m.Sum())

	m.Reset()
	_, err = m.Mean()
	assert.ErrorIs(t, err, ErrNoObservations)
}

func TestTally(t *testing.T) {
	var tally Tally
	assert.Equal(t, 0.0, tally.Accuracy())

	tally.Add(3, 4)
	tally.Add(1, 4)
	assert.Equal(t, 0.5, tally.Accuracy())
	assert.Equal(t, 8, tally.Total())
}

func TestWindowSnapshot(t *testing.T) {
	var w Window
	w.Record(64, 20*time.Millisecond)
	w.Record(64, 12*time.Millisecond)
	snap := w.Snapshot()

	assert.InDelta(t, 4000, snap.SamplesPerSec, 1e-6)
	assert.InDelta(t, 16, snap.AvgStepMS, 1e-9)
	assert.Equal(t, 128, snap.Samples)
	if w.samples != 0 || w.steps != 0 {
		t.Fatalf("window was not reset")
	}

	empty := w.Snapshot()
	assert.Equal(t, 0.0, empty.SamplesPerSec)
}
