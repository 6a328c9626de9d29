// Package history persists training runs and their epoch reports in SQLite.
//
// A Store is a trainer.RunObserver: register it with trainer.WithObserver and
// every run gets a row in runs plus one row per completed epoch.
package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/born-ml/gradloop/internal/trainer"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNoActiveRun is returned when an epoch arrives outside a run.
var ErrNoActiveRun = errors.New("history: no active run")

// Run is one row of the runs table.
type Run struct {
	ID         string
	Label      string
	Info       trainer.RunInfo
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
	Epochs     int       // completed epochs
	FinalLoss  float64
}

// Epoch is one row of the epochs table.
type Epoch struct {
	RunID       string
	Epoch       int
	MeanLoss    float64
	Batches     int
	Samples     int
	Duration    time.Duration
	Throughput  float64
	LR          float64
	Validated   bool
	ValLoss     float64
	ValAccuracy float64
}

// Store writes run history to a SQLite database.
type Store struct {
	db    *sql.DB
	now   func() time.Time
	runID string
}

// Open opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs(
			id TEXT PRIMARY KEY,
			label TEXT NOT NULL,
			info TEXT NOT NULL,
			status TEXT NOT NULL,
			error TEXT,
			started_at INTEGER NOT NULL,
			finished_at INTEGER
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create runs: %w", err)
	}
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS epochs(
			run_id TEXT NOT NULL REFERENCES runs(id),
			epoch INTEGER NOT NULL,
			mean_loss REAL NOT NULL,
			batches INTEGER NOT NULL,
			samples INTEGER NOT NULL,
			duration_ns INTEGER NOT NULL,
			throughput REAL NOT NULL,
			lr REAL NOT NULL,
			validated INTEGER NOT NULL,
			val_loss REAL,
			val_accuracy REAL,
			PRIMARY KEY (run_id, epoch)
		)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create epochs: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunID returns the id of the run in progress (or the last one started).
func (s *Store) RunID() string {
	return s.runID
}

// OnRunStart implements trainer.RunObserver.
func (s *Store) OnRunStart(info trainer.RunInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("history: encode run info: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.Exec(`INSERT INTO runs(id, label, info, status, started_at) VALUES(?,?,?,?,?)`,
		id, info.Label, string(raw), StatusRunning, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("history: insert run: %w", err)
	}
	s.runID = id
	return nil
}

// OnEpoch implements trainer.Observer.
func (s *Store) OnEpoch(r trainer.EpochReport) error {
	if s.runID == "" {
		return ErrNoActiveRun
	}
	_, err := s.db.Exec(`INSERT INTO epochs(run_id, epoch, mean_loss, batches, samples, duration_ns, throughput, lr, validated, val_loss, val_accuracy)
		VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		s.runID, r.Epoch, r.MeanLoss, r.Batches, r.Samples, int64(r.Duration), r.Throughput,
		r.LearningRate, r.Validated, r.ValLoss, r.ValAccuracy)
	if err != nil {
		return fmt.Errorf("history: insert epoch %d: %w", r.Epoch, err)
	}
	return nil
}

// OnRunEnd implements trainer.RunObserver.
func (s *Store) OnRunEnd(_ trainer.History, runErr error) error {
	if s.runID == "" {
		return ErrNoActiveRun
	}
	status, msg := StatusCompleted, sql.NullString{}
	if runErr != nil {
		status = StatusFailed
		msg = sql.NullString{String: runErr.Error(), Valid: true}
	}
	_, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, s.now().UnixNano(), s.runID)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	return nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(limit int) ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT r.id, r.label, r.info, r.status, r.error, r.started_at, r.finished_at,
			COUNT(e.epoch),
			COALESCE((SELECT mean_loss FROM epochs WHERE run_id = r.id ORDER BY epoch DESC LIMIT 1), 0)
		FROM runs r LEFT JOIN epochs e ON e.run_id = r.id
		GROUP BY r.id
		ORDER BY r.started_at DESC, r.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			run      Run
			info     string
			errText  sql.NullString
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&run.ID, &run.Label, &info, &run.Status, &errText, &started, &finished,
			&run.Epochs, &run.FinalLoss); err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		if err := json.Unmarshal([]byte(info), &run.Info); err != nil {
			return nil, fmt.Errorf("history: decode run %s: %w", run.ID, err)
		}
		run.Error = errText.String
		run.StartedAt = time.Unix(0, started)
		if finished.Valid {
			run.FinishedAt = time.Unix(0, finished.Int64)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Epochs returns the stored epochs of a run in order.
func (s *Store) Epochs(runID string) ([]Epoch, error) {
	rows, err := s.db.Query(`
		SELECT epoch, mean_loss, batches, samples, duration_ns, throughput, lr, validated, val_loss, val_accuracy
		FROM epochs WHERE run_id = ? ORDER BY epoch`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: query epochs: %w", err)
	}
	defer rows.Close()

	var epochs []Epoch
	for rows.Next() {
		e := Epoch{RunID: runID}
		var (
			dur            int64
			valLoss, valAc sql.NullFloat64
		)
		if err := rows.Scan(&e.Epoch, &e.MeanLoss, &e.Batches, &e.Samples, &dur, &e.Throughput,
			&e.LR, &e.Validated, &valLoss, &valAc); err != nil {
			return nil, fmt.Errorf("history: scan epoch: %w", err)
		}
		e.Duration = time.Duration(dur)
		// SQLite stores NaN as NULL.
		e.ValLoss = nullAsNaN(valLoss)
		e.ValAccuracy = nullAsNaN(valAc)
		epochs = append(epochs, e)
	}
	return epochs, rows.Err()
}

func nullAsNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
