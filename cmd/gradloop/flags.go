package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/born-ml/gradloop/internal/config"
	"github.com/born-ml/gradloop/internal/trainer"
)

type cliFlags struct {
	fs *flag.FlagSet

	config      string
	epochs      int
	lr          float64
	allowZeroLR bool
	batchSize   int
	seed        int64
	optimizer   string
	history     string
	listen      string
	resume      string
	save        string
	listRuns    int
}

func parseFlags(name string, args []string) (*cliFlags, error) {
	f := &cliFlags{fs: flag.NewFlagSet(name, flag.ContinueOnError)}
	fs := f.fs
	fs.StringVar(&f.config, "config", "", "Path to YAML config (defaults are MNIST-shaped)")
	fs.IntVar(&f.epochs, "epochs", 0, "Number of training epochs")
	fs.Float64Var(&f.lr, "lr", 0, "Learning rate")
	fs.BoolVar(&f.allowZeroLR, "allow-zero-lr", false, "Accept -lr 0 (losses are computed, parameters never move)")
	fs.IntVar(&f.batchSize, "batch-size", 0, "Batch size")
	fs.Int64Var(&f.seed, "seed", 0, "PRNG seed")
	fs.StringVar(&f.optimizer, "optimizer", "", "Optimizer: sgd or adam")
	fs.StringVar(&f.history, "history", "", "SQLite file recording run history")
	fs.StringVar(&f.listen, "listen", "", "Address serving the progress websocket on /ws")
	fs.StringVar(&f.resume, "resume", "", "Checkpoint to load parameters from before training")
	fs.StringVar(&f.save, "save", "", "Checkpoint file written after training")
	fs.IntVar(&f.listRuns, "list-runs", 0, "Print the N most recent runs from -history and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// overrides returns only the flags given on the command line, so an
// explicit zero (-lr 0, -seed 0) still replaces the config value.
func (f *cliFlags) overrides() config.Overrides {
	var o config.Overrides
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "epochs":
			o.Epochs = &f.epochs
		case "lr":
			o.LR = &f.lr
		case "allow-zero-lr":
			o.AllowZeroLR = &f.allowZeroLR
		case "batch-size":
			o.BatchSize = &f.batchSize
		case "seed":
			o.Seed = &f.seed
		case "optimizer":
			o.Optimizer = &f.optimizer
		case "history":
			o.HistoryPath = &f.history
		case "listen":
			o.Listen = &f.listen
		case "resume":
			o.Resume = &f.resume
		case "save":
			o.Save = &f.save
		}
	})
	return o
}

// failureMessage renders a run error with one-based epoch and batch
// numbers. Failures outside any batch omit the batch.
func failureMessage(err error) string {
	var runErr *trainer.RunError
	if !errors.As(err, &runErr) {
		return fmt.Sprintf("training failed: %v", err)
	}
	if runErr.Batch < 0 {
		return fmt.Sprintf("training failed at epoch=%d: %v", runErr.Epoch+1, runErr.Err)
	}
	return fmt.Sprintf("training failed at epoch=%d batch=%d: %v", runErr.Epoch+1, runErr.Batch+1, runErr.Err)
}
