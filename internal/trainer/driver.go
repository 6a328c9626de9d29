// Package trainer implements the gradient-descent training loop.
//
// A Driver owns nothing global: the model, loss, optimizer and data sources
// are handed to it in a Components value. For every batch of every epoch it
// performs, strictly in this order:
//
//  1. zero every gradient accumulator
//  2. forward pass on the batch inputs
//  3. loss against the batch targets
//  4. backward pass (gradients accumulate into the parameters)
//  5. optimizer step
//  6. add the batch loss to the epoch's running mean
//
// After the last batch the epoch's mean loss is computed, an optional
// validation pass runs with the tape stopped, and an EpochReport is handed to
// every observer.
//
// Example:
//
//	d, err := trainer.New(trainer.Config{Epochs: 5, LearningRate: 0.01}, trainer.Components{
//	    Model:     model,
//	    Loss:      nn.NewCrossEntropyLoss(),
//	    Optimizer: opt,
//	    Data:      train,
//	}, trainer.WithObserver(trainer.NewLogObserver(nil)))
//	if err != nil {
//	    return err
//	}
//	history, err := d.Run()
package trainer

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/born-ml/gradloop/internal/autodiff"
	"github.com/born-ml/gradloop/internal/data"
	"github.com/born-ml/gradloop/internal/metrics"
	"github.com/born-ml/gradloop/internal/nn"
	"github.com/born-ml/gradloop/internal/optim"
)

// Config holds the knobs of a run.
type Config struct {
	Epochs       int
	LearningRate float64

	// AllowZeroLearningRate accepts LearningRate == 0. Such a run computes
	// and reports losses without moving any parameter.
	AllowZeroLearningRate bool

	// Label and Host are passed to run observers (e.g. the history store).
	Label string
	Host  string
}

// Components is the explicit context a run operates on.
type Components struct {
	Model      nn.Module
	Loss       nn.Loss
	Optimizer  optim.Optimizer
	Data       data.Source
	Validation data.Source // optional
}

// Option customizes a Driver.
type Option func(*Driver)

// WithObserver registers an observer. Observers are notified in
// registration order.
func WithObserver(o Observer) Option {
	return func(d *Driver) {
		d.observers = append(d.observers, o)
	}
}

// WithTape makes the driver record on tape instead of a private one.
func WithTape(tape *autodiff.GradientTape) Option {
	return func(d *Driver) {
		d.tape = tape
	}
}

// WithClock replaces time.Now for duration and throughput measurements.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) {
		d.now = now
	}
}

// WithBatchHook registers a function called after every completed batch.
func WithBatchHook(hook func(BatchReport)) Option {
	return func(d *Driver) {
		d.batchHook = hook
	}
}

// Driver runs the training loop.
type Driver struct {
	cfg       Config
	c         Components
	tape      *autodiff.GradientTape
	observers []Observer
	now       func() time.Time
	batchHook func(BatchReport)
	names     map[*autodiff.Parameter]string
}

// namedModel is implemented by models that qualify parameter names by
// position, such as nn.Sequential.
type namedModel interface {
	NamedParameters() []nn.NamedParameter
}

// New validates cfg and c and returns a ready Driver.
//
// All failures wrap ErrConfiguration and are reported before any epoch runs.
// The learning rate is applied to the optimizer here.
func New(cfg Config, c Components, opts ...Option) (*Driver, error) {
	if cfg.Epochs <= 0 {
		return nil, fmt.Errorf("%w: epochs must be > 0 (got %d)", ErrConfiguration, cfg.Epochs)
	}
	lr := cfg.LearningRate
	switch {
	case math.IsNaN(lr) || math.IsInf(lr, 0):
		return nil, fmt.Errorf("%w: learning rate must be finite (got %v)", ErrConfiguration, lr)
	case lr < 0:
		return nil, fmt.Errorf("%w: learning rate must be > 0 (got %v)", ErrConfiguration, lr)
	case lr == 0 && !cfg.AllowZeroLearningRate:
		return nil, fmt.Errorf("%w: learning rate is 0 (set AllowZeroLearningRate to permit it)", ErrConfiguration)
	}
	switch {
	case c.Model == nil:
		return nil, fmt.Errorf("%w: model is nil", ErrConfiguration)
	case c.Loss == nil:
		return nil, fmt.Errorf("%w: loss is nil", ErrConfiguration)
	case c.Optimizer == nil:
		return nil, fmt.Errorf("%w: optimizer is nil", ErrConfiguration)
	case c.Data == nil:
		return nil, fmt.Errorf("%w: data source is nil", ErrConfiguration)
	}

	d := &Driver{cfg: cfg, c: c, now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	if d.tape == nil {
		d.tape = autodiff.NewGradientTape()
	}
	if m, ok := c.Model.(namedModel); ok {
		d.names = make(map[*autodiff.Parameter]string)
		for _, np := range m.NamedParameters() {
			d.names[np.Parameter] = np.Name
		}
	}
	if err := c.Optimizer.SetLR(lr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return d, nil
}

// Run trains for cfg.Epochs epochs and returns one report per completed
// epoch.
//
// On failure the history holds the epochs completed before the error, and
// the error is a *RunError naming the failing epoch and batch.
func (d *Driver) Run() (History, error) {
	history := make(History, 0, d.cfg.Epochs)

	info := RunInfo{
		Epochs:       d.cfg.Epochs,
		LearningRate: d.c.Optimizer.LR(),
		Parameters:   nn.CountParameters(d.c.Model),
		Label:        d.cfg.Label,
		Host:         d.cfg.Host,
	}
	var started []RunObserver
	for _, o := range d.observers {
		ro, ok := o.(RunObserver)
		if !ok {
			continue
		}
		if err := ro.OnRunStart(info); err != nil {
			err = fmt.Errorf("trainer: run start: %w", err)
			return history, d.finish(started, history, err)
		}
		started = append(started, ro)
	}

	d.tape.Clear()
	d.tape.StartRecording()
	defer d.tape.StopRecording()

	var runErr error
	for epoch := 0; epoch < d.cfg.Epochs; epoch++ {
		report, err := d.runEpoch(epoch)
		if err != nil {
			runErr = err
			break
		}
		history = append(history, report)
		if err := d.notify(report); err != nil {
			runErr = &RunError{Epoch: epoch, Batch: -1, Err: err}
			break
		}
	}
	return history, d.finish(started, history, runErr)
}

func (d *Driver) finish(started []RunObserver, history History, runErr error) error {
	for _, ro := range started {
		if err := ro.OnRunEnd(history, runErr); err != nil && runErr == nil {
			runErr = fmt.Errorf("trainer: run end: %w", err)
		}
	}
	return runErr
}

func (d *Driver) notify(report EpochReport) error {
	for _, o := range d.observers {
		if err := o.OnEpoch(report); err != nil {
			return fmt.Errorf("trainer: observer: %w", err)
		}
	}
	return nil
}

func (d *Driver) runEpoch(epoch int) (EpochReport, error) {
	start := d.now()

	it, err := d.c.Data.Epoch(epoch)
	if err != nil {
		return EpochReport{}, &RunError{Epoch: epoch, Batch: -1, Err: fmt.Errorf("trainer: open epoch: %w", err)}
	}

	var (
		running metrics.RunningMean
		window  metrics.Window
		losses  []float64
		samples int
		batch   int
	)
	for ; it.Next(); batch++ {
		b := it.Batch()
		stepStart := d.now()

		loss, err := d.step(b)
		if err != nil {
			return EpochReport{}, &RunError{Epoch: epoch, Batch: batch, Err: err}
		}

		running.Add(loss)
		losses = append(losses, loss)
		samples += b.Size()
		window.Record(b.Size(), d.now().Sub(stepStart))
		if d.batchHook != nil {
			d.batchHook(BatchReport{Epoch: epoch, Batch: batch, Loss: loss, Size: b.Size()})
		}
	}
	if err := it.Err(); err != nil {
		return EpochReport{}, &RunError{Epoch: epoch, Batch: batch, Err: fmt.Errorf("trainer: data source: %w", err)}
	}

	mean, err := running.Mean()
	if errors.Is(err, metrics.ErrNoObservations) {
		return EpochReport{}, &RunError{Epoch: epoch, Batch: -1, Err: ErrEmptyData}
	}

	report := EpochReport{
		Epoch:        epoch,
		Epochs:       d.cfg.Epochs,
		MeanLoss:     mean,
		Batches:      running.Count(),
		Samples:      samples,
		BatchLosses:  losses,
		Throughput:   window.Snapshot().SamplesPerSec,
		LearningRate: d.c.Optimizer.LR(),
	}

	if d.c.Validation != nil {
		valLoss, valAcc, err := d.validate(epoch)
		if err != nil {
			return EpochReport{}, &RunError{Epoch: epoch, Batch: -1, Err: err}
		}
		report.Validated = true
		report.ValLoss = valLoss
		report.ValAccuracy = valAcc
	}

	report.Duration = d.now().Sub(start)
	return report, nil
}

// step performs the ordered zero-grad, forward, loss, backward, update chain
// for one batch and returns the batch loss.
func (d *Driver) step(b data.Batch) (float64, error) {
	d.c.Optimizer.ZeroGrad()

	output := d.c.Model.Forward(d.tape, d.tape.Constant(b.Inputs))
	lossNode := d.c.Loss.Forward(d.tape, output, b.Targets)
	if r, c := lossNode.Dims(); r != 1 || c != 1 {
		d.tape.Clear()
		return 0, fmt.Errorf("trainer: loss: %w: got %dx%d", autodiff.ErrNotScalar, r, c)
	}

	loss := lossNode.Scalar()
	if !isFinite(loss) {
		d.tape.Clear()
		return loss, fmt.Errorf("%w: loss is %v", ErrNumerical, loss)
	}

	if err := d.tape.Backward(lossNode); err != nil {
		d.tape.Clear()
		return loss, fmt.Errorf("trainer: backward: %w", err)
	}
	for i, p := range d.c.Optimizer.Parameters() {
		if !allFinite(p.Grad().RawMatrix().Data) {
			return loss, fmt.Errorf("%w: gradient of %s", ErrNumerical, d.paramName(i, p))
		}
	}

	if err := d.c.Optimizer.Step(); err != nil {
		return loss, fmt.Errorf("trainer: optimizer step: %w", err)
	}
	return loss, nil
}

// validate runs a forward-only pass over the validation source.
func (d *Driver) validate(epoch int) (loss, accuracy float64, err error) {
	d.tape.StopRecording()
	defer d.tape.StartRecording()

	it, err := d.c.Validation.Epoch(epoch)
	if err != nil {
		return 0, 0, fmt.Errorf("trainer: open validation: %w", err)
	}

	var (
		running metrics.RunningMean
		tally   metrics.Tally
	)
	for it.Next() {
		b := it.Batch()
		output := d.c.Model.Forward(d.tape, d.tape.Constant(b.Inputs))
		running.Add(d.c.Loss.Forward(d.tape, output, b.Targets).Scalar())
		tally.Add(nn.Correct(output.Value(), b.Targets), b.Size())
	}
	if err := it.Err(); err != nil {
		return 0, 0, fmt.Errorf("trainer: validation source: %w", err)
	}

	mean, err := running.Mean()
	if err != nil {
		return 0, 0, fmt.Errorf("%w: validation source is empty", ErrEmptyData)
	}
	return mean, tally.Accuracy(), nil
}

// paramName identifies the i-th optimizer parameter in error messages.
func (d *Driver) paramName(i int, p *autodiff.Parameter) string {
	if name, ok := d.names[p]; ok {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("parameter %d (%q)", i, p.Name())
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !isFinite(v) {
			return false
		}
	}
	return true
}
