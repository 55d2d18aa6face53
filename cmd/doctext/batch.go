package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doctext/internal/async"
	"github.com/joseph-ayodele/doctext/internal/export"
	"github.com/joseph-ayodele/doctext/internal/ingest"
	"github.com/joseph-ayodele/doctext/internal/repository"
	"github.com/joseph-ayodele/doctext/internal/server"
)

var (
	batchOutDir        string
	batchReport        string
	batchLedger        bool
	batchForce         bool
	batchWorkers       int
	batchIncludeHidden bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported file under a directory",
	Long: `Walks a directory, extracts each supported file on a pool of workers and
writes <name>.txt next to a mirrored path under --out-dir.

With --ledger every document is recorded in the attempt ledger (DB_URL) and
content that already produced a result is skipped unless --force is given.
--report writes an XLSX summary of the run.`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.StringVar(&batchOutDir, "out-dir", "", "directory for .txt outputs (default: none)")
	f.StringVar(&batchReport, "report", "", "write an XLSX report to this path")
	f.BoolVar(&batchLedger, "ledger", false, "record attempts in DB_URL and skip finished content")
	f.BoolVar(&batchForce, "force", false, "extract even when the ledger has a result")
	f.IntVar(&batchWorkers, "workers", 0, "concurrent documents (default EXTRACT_WORKERS)")
	f.BoolVar(&batchIncludeHidden, "include-hidden", false, "also walk hidden files and directories")
	rootCmd.AddCommand(batchCmd)
}

// resultSink collects queue results and writes text outputs.
type resultSink struct {
	root   string
	outDir string

	mu        sync.Mutex
	rows      []export.Row
	writeErrs []error
}

func (s *resultSink) handle(r async.Result) {
	var werr error
	if s.outDir != "" {
		werr = writeText(s.root, s.outDir, r.Job.Path, r.Outcome.Text)
	}
	row := export.RowFromOutcome(r.Job.Path, r.Outcome)
	if r.Err != nil {
		row.Notes = r.Err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	if werr != nil {
		s.writeErrs = append(s.writeErrs, werr)
	}
}

// writeText mirrors path's position under root into outDir as <name>.txt.
func writeText(root, outDir, path, text string) error {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(path)
	}
	dst := filepath.Join(outDir, rel+".txt")
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, []byte(text), 0o644)
}

func runBatch(cmd *cobra.Command, args []string) error {
	a, err := loadApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	root, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	var attempts repository.AttemptRepository
	if batchLedger {
		db, err := server.ConnectDB(ctx, a.cfg.Database, a.logger)
		if err != nil {
			return fmt.Errorf("open ledger: %w", err)
		}
		defer db.Close()
		attempts = repository.NewAttemptRepository(db, a.logger)
	}

	workers := batchWorkers
	if workers <= 0 {
		workers = a.cfg.Extract.Workers
	}
	sink := &resultSink{root: root, outDir: batchOutDir}
	queueOpts := []async.Option{
		async.WithWorkers(workers),
		async.WithQueueSize(workers * 4),
		async.WithProcessTimeout(a.cfg.Extract.DeadlineMax + time.Minute),
		async.WithResultHandler(sink.handle),
	}
	if attempts != nil {
		queueOpts = append(queueOpts, async.WithLedger(attempts))
	}
	queue := async.NewDocumentQueue(a.cfg.NewExtractService(a.logger), a.logger, queueOpts...)

	uc := ingest.NewUsecase(ingest.NewFSIngestor(a.cfg.Server.MaxUploadBytes, a.logger), attempts, a.logger)
	uc.Force = batchForce

	start := time.Now()
	results, stats, walkErr := uc.IngestDirectory(ctx, root, !batchIncludeHidden, func(lf ingest.LoadedFile) error {
		return queue.Enqueue(ctx, async.Job{Path: lf.Path, File: lf.File, HashHex: lf.HashHex})
	})
	queue.Shutdown(context.Background())
	if walkErr != nil {
		return walkErr
	}

	sort.Slice(sink.rows, func(i, j int) bool { return sink.rows[i].Path < sink.rows[j].Path })
	if batchReport != "" {
		data, err := export.ReportXLSX(sink.rows)
		if err != nil {
			return fmt.Errorf("build report: %w", err)
		}
		if err := os.WriteFile(batchReport, data, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	w := cmd.ErrOrStderr()
	for _, r := range results {
		if r.Err != "" {
			color.New(color.FgRed).Fprintf(w, "%-7s", "FAILED")
			fmt.Fprintf(w, " %s: %s\n", r.SourcePath, r.Err)
		}
	}
	var textOK, empty int
	for _, row := range sink.rows {
		if row.Chars > 0 {
			textOK++
		} else {
			empty++
		}
	}
	for _, werr := range sink.writeErrs {
		color.New(color.FgRed).Fprintf(w, "write: %v\n", werr)
	}

	color.New(color.FgCyan, color.Bold).Fprintf(w, "\n%d files matched under %s\n", stats.Matched, root)
	color.New(color.FgGreen).Fprintf(w, "  text:         %d\n", textOK)
	color.New(color.FgYellow).Fprintf(w, "  empty:        %d\n", empty)
	color.New(color.FgHiBlack).Fprintf(w, "  deduplicated: %d\n", stats.Deduplicated)
	clr := color.New(color.FgHiBlack)
	if stats.Failed > 0 {
		clr = color.New(color.FgRed)
	}
	clr.Fprintf(w, "  failed:       %d\n", stats.Failed)
	color.New(color.FgHiBlack).Fprintf(w, "  elapsed:      %s\n", time.Since(start).Round(time.Millisecond))
	if batchReport != "" {
		fmt.Fprintf(w, "report written to %s\n", batchReport)
	}
	return nil
}
