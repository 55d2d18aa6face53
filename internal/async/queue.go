// Package async runs extractions on a bounded pool of workers.
package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/internal/extract"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("queue is shutting down")

// Job is one document waiting for extraction.
type Job struct {
	ID          uuid.UUID
	Path        string // informational; may be empty for uploads
	File        extract.SourceFile
	HashHex     string
	SubmittedAt time.Time
	TraceID     string
}

// Result is delivered once per accepted Job.
type Result struct {
	Job       Job
	Outcome   extract.Outcome
	AttemptID uuid.UUID // uuid.Nil when no ledger is configured
	Err       error     // ledger errors only; extraction never fails
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Extractor is the part of extract.Service the workers call.
type Extractor interface {
	Extract(ctx context.Context, f extract.SourceFile) extract.Outcome
}
