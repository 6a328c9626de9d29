// Package main provides the gradloop training CLI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/gradloop/internal/checkpoint"
	"github.com/born-ml/gradloop/internal/config"
	"github.com/born-ml/gradloop/internal/history"
	"github.com/born-ml/gradloop/internal/nn"
	"github.com/born-ml/gradloop/internal/progress"
	"github.com/born-ml/gradloop/internal/trainer"
)

const version = "v0.1.0-dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("gradloop %s\n", version)
		return
	}

	flags, err := parseFlags(os.Args[0], os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	cfg := config.Default()
	if flags.config != "" {
		loaded, err := config.Load(flags.config)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(flags.overrides())

	if flags.listRuns > 0 {
		if err := printRuns(cfg.History.Path, flags.listRuns); err != nil {
			log.Fatalf("list runs: %v", err)
		}
		return
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := run(cfg); err != nil {
		log.Fatal(failureMessage(err))
	}
}

func run(cfg *config.Config) error {
	host := hostDescription()
	log.Printf("host %s", host)

	built, err := config.Build(cfg)
	if err != nil {
		return err
	}
	built.Trainer.Host = host
	if cfg.Checkpoint.Resume != "" {
		meta, err := checkpoint.Load(cfg.Checkpoint.Resume, built.Model.NamedParameters())
		if err != nil {
			return err
		}
		log.Printf("resumed=%s meta=%v", cfg.Checkpoint.Resume, meta)
	}
	log.Printf("model layers=%v activation=%s params=%d", cfg.Model.Layers, cfg.Model.Activation, nn.CountParameters(built.Model))
	log.Printf("data train=%d val=%d batch_size=%d optimizer=%s lr=%g epochs=%d",
		built.TrainSize, built.ValSize, cfg.Data.BatchSize, cfg.Optimizer.Name, cfg.Optimizer.LR, cfg.Training.Epochs)

	opts := []trainer.Option{trainer.WithObserver(trainer.NewLogObserver(nil))}

	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, trainer.WithObserver(store))
		log.Printf("history=%s", cfg.History.Path)
	}

	if cfg.Progress.Listen != "" {
		hub := progress.NewHub(nil)
		srv, addr, err := serveProgress(cfg.Progress.Listen, hub)
		if err != nil {
			return err
		}
		defer srv.Close()
		opts = append(opts, trainer.WithObserver(hub))
		log.Printf("progress=ws://%s/ws", addr)
	}

	driver, err := trainer.New(built.Trainer, built.Components, opts...)
	if err != nil {
		return err
	}

	start := time.Now()
	hist, err := driver.Run()
	if err != nil {
		return err
	}

	last, _ := hist.Last()
	summary := fmt.Sprintf("done epochs=%d final_loss=%.4f", len(hist), last.MeanLoss)
	if last.Validated {
		summary += fmt.Sprintf(" val_acc=%.2f%%", last.ValAccuracy*100)
	}
	log.Printf("%s elapsed=%s", summary, time.Since(start).Round(time.Millisecond))

	if cfg.Checkpoint.Save != "" {
		meta := map[string]string{
			"layers":     fmt.Sprint(cfg.Model.Layers),
			"activation": cfg.Model.Activation,
			"epochs":     strconv.Itoa(len(hist)),
			"final_loss": strconv.FormatFloat(last.MeanLoss, 'g', -1, 64),
		}
		if err := checkpoint.Save(cfg.Checkpoint.Save, built.Model.NamedParameters(), meta); err != nil {
			return err
		}
		log.Printf("saved=%s", cfg.Checkpoint.Save)
	}
	return nil
}

// hostDescription summarizes the CPU a run trained on. It is stored with
// every run so histories from different machines can be told apart.
func hostDescription() string {
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = "unknown"
	}
	return fmt.Sprintf("cpu=%q cores=%d avx2=%t avx512=%t",
		brand, cpuid.CPU.PhysicalCores,
		cpuid.CPU.Supports(cpuid.AVX2), cpuid.CPU.Supports(cpuid.AVX512F, cpuid.AVX512DQ))
}

func serveProgress(addr string, hub *progress.Hub) (*http.Server, string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("listen %s: %w", addr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/ws", hub.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("progress server: %v", err)
		}
	}()
	return srv, ln.Addr().String(), nil
}

func printRuns(path string, limit int) error {
	if path == "" {
		return errors.New("-list-runs needs -history or history.path")
	}
	store, err := history.Open(path)
	if err != nil {
		return err
	}
	defer store.Close()

	runs, err := store.Runs(limit)
	if err != nil {
		return err
	}
	for _, r := range runs {
		line := fmt.Sprintf("%s %s status=%s epochs=%d/%d final_loss=%.4f lr=%g",
			r.StartedAt.Format(time.RFC3339), r.ID, r.Status, r.Epochs, r.Info.Epochs, r.FinalLoss, r.Info.LearningRate)
		if r.Label != "" {
			line += " label=" + r.Label
		}
		if r.Info.Host != "" {
			line += fmt.Sprintf(" host=%q", r.Info.Host)
		}
		if r.Error != "" {
			line += fmt.Sprintf(" error=%q", r.Error)
		}
		fmt.Println(line)
	}
	return nil
}
