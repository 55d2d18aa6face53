// Package ingest discovers documents on disk and loads them for extraction.
package ingest

import (
	"context"
	"time"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// LoadedFile is a file read from disk, ready for extraction.
type LoadedFile struct {
	Path    string
	File    extract.SourceFile
	HashHex string
	ModTime time.Time
}

// IngestionResult is the per-file ingest outcome.
type IngestionResult struct {
	SourcePath   string
	HashHex      string
	Deduplicated bool
	Err          string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Succeeded    uint32
	Deduplicated uint32
	Failed       uint32
}

// Ingestor is the behavior the batch and watch flows depend on.
type Ingestor interface {
	// LoadFile reads and hashes a single path.
	LoadFile(ctx context.Context, path string) (LoadedFile, error)
	// WalkDirectory lists all extractable files under root.
	WalkDirectory(ctx context.Context, root string, skipHidden bool) ([]string, DirStats, error)
}
