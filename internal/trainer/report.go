package trainer

import "time"

// BatchReport describes one completed gradient step.
type BatchReport struct {
	Epoch int
	Batch int
	Loss  float64
	Size  int
}

// EpochReport summarises one pass over the training source.
type EpochReport struct {
	Epoch        int           `json:"epoch"`  // zero-based
	Epochs       int           `json:"epochs"` // total epochs in the run
	MeanLoss     float64       `json:"mean_loss"`
	Batches      int           `json:"batches"`
	Samples      int           `json:"samples"`
	BatchLosses  []float64     `json:"batch_losses,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Throughput   float64       `json:"samples_per_sec"`
	LearningRate float64       `json:"learning_rate"`

	Validated   bool    `json:"validated"`
	ValLoss     float64 `json:"val_loss,omitempty"`
	ValAccuracy float64 `json:"val_accuracy,omitempty"`
}

// History is the ordered list of epoch reports of a run.
type History []EpochReport

// MeanLosses returns the mean training loss of every epoch.
func (h History) MeanLosses() []float64 {
	out := make([]float64, len(h))
	for i, r := range h {
		out[i] = r.MeanLoss
	}
	return out
}

// Last returns the final epoch report, if any.
func (h History) Last() (EpochReport, bool) {
	if len(h) == 0 {
		return EpochReport{}, false
	}
	return h[len(h)-1], true
}

// RunInfo describes a run to observers before the first epoch.
type RunInfo struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Parameters   int     `json:"parameters"`
	Label        string  `json:"label,omitempty"`
	Host         string  `json:"host,omitempty"`
}
