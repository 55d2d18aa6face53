package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doctext/internal/async"
	"github.com/joseph-ayodele/doctext/internal/ingest"
	"github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/server"
)

var (
	watchOutDir      string
	watchLedger      bool
	watchInitialScan bool
	watchDebounce    time.Duration
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir> [dir...]",
	Short: "Extract files as they appear under one or more directories",
	Long: `Watches directories recursively and extracts every supported file that is
created or modified, writing <name>.txt under --out-dir. Runs until
interrupted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runWatch,
}

func init() {
	f := watchCmd.Flags()
	f.StringVar(&watchOutDir, "out-dir", "", "directory for .txt outputs (required)")
	f.BoolVar(&watchLedger, "ledger", false, "record attempts in DB_URL and skip finished content")
	f.BoolVar(&watchInitialScan, "initial-scan", false, "also extract files already present")
	f.DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "coalesce bursts of file events")
	_ = watchCmd.MarkFlagRequired("out-dir")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := cmd.Context()

	roots := make([]string, 0, len(args))
	for _, arg := range args {
		abs, err := filepath.Abs(arg)
		if err != nil {
			return err
		}
		roots = append(roots, abs)
	}

	var attempts repository.AttemptRepository
	if watchLedger {
		db, err := server.ConnectDB(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer db.Close()
		attempts = repository.NewAttemptRepository(db, a.logger)
	}

	out := cmd.ErrOrStderr()
	handle := func(r async.Result) {
		if err := writeText(rootOf(roots, r.Job.Path), watchOutDir, r.Job.Path, r.Outcome.Text); err != nil {
			a.logger.Error("write output failed", "path", r.Job.Path, "error", err)
		}
		printSummary(out, r.Job.Path, r.Outcome)
	}
	opts := []async.Option{
		async.WithWorkers(a.cfg.Extract.Workers),
		async.WithProcessTimeout(a.cfg.Extract.DeadlineMax + time.Minute),
		async.WithResultHandler(handle),
	}
	if attempts != nil {
		opts = append(opts, async.WithLedger(attempts))
	}
	queue := async.NewDocumentQueue(a.cfg.NewExtractService(a.logger), a.logger, opts...)
	defer func() {
		// ctx is already cancelled here; give queued documents a bounded drain
		sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		queue.Shutdown(sctx)
	}()

	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       roots,
		InitialScan: watchInitialScan,
		SkipHidden:  true,
		Debounce:    watchDebounce,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	uc := ingest.NewUsecase(ingest.NewFSIngestor(a.cfg.Server.MaxUploadBytes, a.logger), attempts, a.logger)
	a.logger.Info("watching", "roots", roots, "out_dir", watchOutDir)

	for {
		select {
		case p, ok := <-events:
			if !ok {
				return nil
			}
			lf, dedup, err := uc.Prepare(ctx, p)
			if err != nil {
				a.logger.Warn("skipping file", "path", p, "error", err)
				continue
			}
			if dedup {
				continue
			}
			if err := queue.Enqueue(ctx, async.Job{Path: lf.Path, File: lf.File, HashHex: lf.HashHex}); err != nil {
				a.logger.Warn("enqueue failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			a.logger.Warn("watch error", "error", err)
		}
	}
}

// rootOf returns the watched root containing path.
func rootOf(roots []string, path string) string {
	for _, r := range roots {
		if rel, err := filepath.Rel(r, path); err == nil && !strings.HasPrefix(rel, "..") {
			return r
		}
	}
	return filepath.Dir(path)
}
