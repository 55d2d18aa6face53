package ingest

import (
	"context"
	"log/slog"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

// Usecase pairs an Ingestor with the attempt ledger so content that was
// already extracted is not extracted again.
type Usecase struct {
	Ingestor Ingestor
	Attempts repository.AttemptRepository // nil disables deduplication
	Force    bool
	Logger   *slog.Logger
}

func NewUsecase(in Ingestor, attempts repository.AttemptRepository, logger *slog.Logger) *Usecase {
	if logger == nil {
		logger = slog.Default()
	}
	return &Usecase{Ingestor: in, Attempts: attempts, Logger: logger}
}

// Prepare loads path and reports whether a finished attempt already covers
// the same content.
func (u *Usecase) Prepare(ctx context.Context, path string) (LoadedFile, bool, error) {
	lf, err := u.Ingestor.LoadFile(ctx, path)
	if err != nil {
		return lf, false, err
	}
	if u.Attempts == nil || u.Force {
		return lf, false, nil
	}
	prev, err := u.Attempts.LatestByHash(ctx, lf.HashHex)
	if repository.IsNotFound(err) {
		return lf, false, nil
	}
	if err != nil {
		return lf, false, err
	}
	done := prev.Status == constants.AttemptStatusTextOK || prev.Status == constants.AttemptStatusEmpty
	if done {
		u.Logger.Debug("content already extracted", "path", lf.Path, "hash", lf.HashHex, "attempt_id", prev.ID, "status", prev.Status)
	}
	return lf, done, nil
}

// IngestDirectory walks root and hands every new file to fn. Per-file
// failures are collected, not returned.
func (u *Usecase) IngestDirectory(ctx context.Context, root string, skipHidden bool, fn func(LoadedFile) error) ([]IngestionResult, DirStats, error) {
	paths, stats, err := u.Ingestor.WalkDirectory(ctx, root, skipHidden)
	if err != nil {
		return nil, stats, err
	}

	results := make([]IngestionResult, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return results, stats, err
		}
		lf, dedup, err := u.Prepare(ctx, p)
		if err == nil && !dedup {
			err = fn(lf)
		}
		if err != nil {
			u.Logger.Warn("ingest failed", "path", p, "error", err)
			results = append(results, IngestionResult{SourcePath: p, HashHex: lf.HashHex, Err: err.Error()})
			stats.Failed++
			continue
		}
		results = append(results, IngestionResult{SourcePath: lf.Path, HashHex: lf.HashHex, Deduplicated: dedup})
		stats.Succeeded++
		if dedup {
			stats.Deduplicated++
		}
	}
	return results, stats, nil
}
