package history

import (
	"math/rand"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/gradloop/internal/data"
	"github.com/born-ml/gradloop/internal/nn"
	"github.com/born-ml/gradloop/internal/optim"
	"github.com/born-ml/gradloop/internal/trainer"
)

func tickingClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	s.now = tickingClock()
	return s
}

func components(t *testing.T, src data.Source) trainer.Components {
	t.Helper()
	model, err := nn.NewMLP([]int{2, 3}, "relu", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	opt, err := optim.NewSGD(model.Parameters(), optim.SGDConfig{LR: 0.1})
	require.NoError(t, err)
	return trainer.Components{Model: model, Loss: nn.NewCrossEntropyLoss(), Optimizer: opt, Data: src}
}

func twoBatches() data.SliceSource {
	return data.SliceSource{
		{Inputs: mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Targets: []int{0, 1}},
		{Inputs: mat.NewDense(1, 2, []float64{0.5, 0.5}), Targets: []int{2}},
	}
}

func TestStore_RecordsCompletedRun(t *testing.T) {
	s := openMemory(t)

	d, err := trainer.New(trainer.Config{Epochs: 3, LearningRate: 0.1, Label: "mlp", Host: "cpu=\"test\" cores=4"},
		components(t, twoBatches()), trainer.WithObserver(s))
	require.NoError(t, err)
	history, err := d.Run()
	require.NoError(t, err)

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	run := runs[0]
	assert.Equal(t, s.RunID(), run.ID)
	assert.Equal(t, "mlp", run.Label)
	assert.Equal(t, StatusCompleted, run.Status)
	assert.Empty(t, run.Error)
	assert.Equal(t, 3, run.Epochs)
	assert.Equal(t, 3, run.Info.Epochs)
	assert.Equal(t, 2*3+3, run.Info.Parameters)
	assert.Equal(t, `cpu="test" cores=4`, run.Info.Host)
	assert.InDelta(t, history[2].MeanLoss, run.FinalLoss, 1e-12)
	assert.True(t, run.FinishedAt.After(run.StartedAt))

	epochs, err := s.Epochs(run.ID)
	require.NoError(t, err)
	require.Len(t, epochs, 3)
	for i, e := range epochs {
		assert.Equal(t, i, e.Epoch)
		assert.Equal(t, history[i].MeanLoss, e.MeanLoss)
		assert.Equal(t, 2, e.Batches)
		assert.Equal(t, 3, e.Samples)
		assert.Equal(t, 0.1, e.LR)
		assert.False(t, e.Validated)
	}
}

func TestStore_RecordsFailedRun(t *testing.T) {
	s := openMemory(t)

	d, err := trainer.New(trainer.Config{Epochs: 2, LearningRate: 0.1},
		components(t, data.SliceSource(nil)), trainer.WithObserver(s))
	require.NoError(t, err)
	_, err = d.Run()
	require.ErrorIs(t, err, trainer.ErrEmptyData)

	runs, err := s.Runs(10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "no batches")
	assert.Zero(t, runs[0].Epochs)
}

func TestStore_RunsNewestFirstWithLimit(t *testing.T) {
	s := openMemory(t)

	var ids []string
	for i := 0; i < 3; i++ {
		require.NoError(t, s.OnRunStart(trainer.RunInfo{Epochs: 1}))
		require.NoError(t, s.OnRunEnd(nil, nil))
		ids = append(ids, s.RunID())
	}

	runs, err := s.Runs(2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[1], runs[1].ID)
}

func TestStore_EpochOutsideRun(t *testing.T) {
	s := openMemory(t)

	assert.ErrorIs(t, s.OnEpoch(trainer.EpochReport{}), ErrNoActiveRun)
	assert.ErrorIs(t, s.OnRunEnd(nil, nil), ErrNoActiveRun)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.sqlite3")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.OnRunStart(trainer.RunInfo{Epochs: 2, LearningRate: 0.01}))
	require.NoError(t, s.OnEpoch(trainer.EpochReport{
		Epoch: 0, MeanLoss: 1.25, Batches: 4, Samples: 100, Duration: 2 * time.Second,
		Validated: true, ValLoss: 1.5, ValAccuracy: 0.4, LearningRate: 0.01,
	}))
	id := s.RunID()
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	epochs, err := reopened.Epochs(id)
	require.NoError(t, err)
	require.Len(t, epochs, 1)
	assert.Equal(t, Epoch{
		RunID: id, Epoch: 0, MeanLoss: 1.25, Batches: 4, Samples: 100, Duration: 2 * time.Second,
		LR: 0.01, Validated: true, ValLoss: 1.5, ValAccuracy: 0.4,
	}, epochs[0])

	runs, err := reopened.Runs(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, StatusRunning, runs[0].Status)
	assert.True(t, runs[0].FinishedAt.IsZero())
}
