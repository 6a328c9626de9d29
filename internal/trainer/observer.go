package trainer

import (
	"fmt"
	"log"
	"strings"
	"time"
)

// Observer receives one report per completed epoch, in epoch order.
// Returning an error aborts the run.
type Observer interface {
	OnEpoch(report EpochReport) error
}

// RunObserver is an Observer that also wants the run boundaries.
//
// OnRunEnd is called exactly once after OnRunStart succeeded, with the
// error that ended the run (nil on success).
type RunObserver interface {
	Observer
	OnRunStart(info RunInfo) error
	OnRunEnd(history History, runErr error) error
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(report EpochReport) error

// OnEpoch calls f(report).
func (f ObserverFunc) OnEpoch(report EpochReport) error {
	return f(report)
}

// LogObserver writes one key=value line per epoch.
type LogObserver struct {
	logger *log.Logger
}

// NewLogObserver returns an observer logging to l, or to the standard
// logger when l is nil.
func NewLogObserver(l *log.Logger) *LogObserver {
	if l == nil {
		l = log.Default()
	}
	return &LogObserver{logger: l}
}

// OnEpoch implements Observer.
func (o *LogObserver) OnEpoch(r EpochReport) error {
	o.logger.Print(FormatEpoch(r))
	return nil
}

// FormatEpoch renders a report as a single log line.
func FormatEpoch(r EpochReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "epoch=%d/%d loss=%.4f batches=%d samples=%d",
		r.Epoch+1, r.Epochs, r.MeanLoss, r.Batches, r.Samples)
	if r.Validated {
		fmt.Fprintf(&b, " val_loss=%.4f val_acc=%.2f%%", r.ValLoss, r.ValAccuracy*100)
	}
	fmt.Fprintf(&b, " samples_per_sec=%.1f dur=%s", r.Throughput, r.Duration.Round(time.Millisecond))
	return b.String()
}
