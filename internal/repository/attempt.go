package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// Attempt is one row of the extraction ledger.
type Attempt struct {
	ID             uuid.UUID               `json:"id" yaml:"id"`
	ContentHash    string                  `json:"content_hash" yaml:"content_hash"`
	Name           string                  `json:"name" yaml:"name"`
	Format         constants.Format        `json:"format" yaml:"format"`
	Method         constants.Method        `json:"method" yaml:"method"`
	Status         constants.AttemptStatus `json:"status" yaml:"status"`
	Pages          int                     `json:"pages" yaml:"pages"`
	AttemptedUnits int                     `json:"attempted_units" yaml:"attempted_units"`
	SucceededUnits int                     `json:"succeeded_units" yaml:"succeeded_units"`
	Chars          int                     `json:"chars" yaml:"chars"`
	Scanned        bool                    `json:"scanned" yaml:"scanned"`
	OCRFallback    bool                    `json:"ocr_fallback" yaml:"ocr_fallback"`
	TimedOut       bool                    `json:"timed_out" yaml:"timed_out"`
	DurationMS     int64                   `json:"duration_ms" yaml:"duration_ms"`
	ErrorMessage   *string                 `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	StartedAt      time.Time               `json:"started_at" yaml:"started_at"`
	FinishedAt     *time.Time              `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
}

// Outcome is what Finish records about a completed extraction.
type Outcome struct {
	Method         constants.Method
	Status         constants.AttemptStatus
	Pages          int
	AttemptedUnits int
	SucceededUnits int
	Chars          int
	Scanned        bool
	OCRFallback    bool
	TimedOut       bool
	Duration       time.Duration
}

// NewOutcome maps an extraction outcome onto a ledger outcome.
func NewOutcome(o extract.Outcome) Outcome {
	d := o.Diagnostics
	return Outcome{
		Method:         d.Method,
		Status:         o.Status(),
		Pages:          d.Pages,
		AttemptedUnits: d.Attempted,
		SucceededUnits: d.Succeeded,
		Chars:          d.Chars,
		Scanned:        d.Scanned,
		OCRFallback:    d.OCRFallback,
		TimedOut:       d.TimedOut,
		Duration:       d.Duration,
	}
}

// ListFilter narrows List; zero values mean no filter.
type ListFilter struct {
	Status constants.AttemptStatus
	Format constants.Format
	Limit  int
	Offset int
}

type AttemptRepository interface {
	Start(ctx context.Context, contentHash, name string, format constants.Format) (*Attempt, error)
	Finish(ctx context.Context, id uuid.UUID, out Outcome) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	LatestByHash(ctx context.Context, contentHash string) (*Attempt, error)
	Get(ctx context.Context, id uuid.UUID) (*Attempt, error)
	List(ctx context.Context, f ListFilter) ([]Attempt, error)
}

type attemptRepo struct {
	db  *DB
	log *slog.Logger
}

func NewAttemptRepository(db *DB, log *slog.Logger) AttemptRepository {
	if log == nil {
		log = slog.Default()
	}
	return &attemptRepo{db: db, log: log}
}

var attemptColumns = []string{
	"id", "content_hash", "name", "format", "method", "status",
	"pages", "attempted_units", "succeeded_units", "chars",
	"scanned", "ocr_fallback", "timed_out", "duration_ms",
	"error_message", "started_at", "finished_at",
}

func (r *attemptRepo) dialect() *sql.DialectBuilder { return sql.Dialect(r.db.dialect) }

func (r *attemptRepo) Start(ctx context.Context, contentHash, name string, format constants.Format) (*Attempt, error) {
	a := &Attempt{
		ID:          uuid.New(),
		ContentHash: contentHash,
		Name:        name,
		Format:      format,
		Method:      constants.MethodNone,
		Status:      constants.AttemptStatusRunning,
		StartedAt:   time.Now().UTC(),
	}
	for field, value := range map[string]string{"content_hash": contentHash, "format": string(format)} {
		if err := attemptTable.validate(field, value); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
		}
	}

	q, args := r.dialect().Insert(attemptTable.name).
		Columns("id", "content_hash", "name", "format", "method", "status",
			"pages", "attempted_units", "succeeded_units", "chars",
			"scanned", "ocr_fallback", "timed_out", "duration_ms", "started_at").
		Values(a.ID.String(), a.ContentHash, a.Name, string(a.Format), string(a.Method), string(a.Status),
			0, 0, 0, 0, false, false, false, int64(0), a.StartedAt).
		Query()
	if _, err := r.db.drv.ExecContext(ctx, q, args...); err != nil {
		r.log.Error("extraction_attempt start failed", "content_hash", contentHash, "err", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	r.log.Info("extraction_attempt started", "attempt_id", a.ID, "name", name, "format", format)
	return a, nil
}

func (r *attemptRepo) Finish(ctx context.Context, id uuid.UUID, out Outcome) error {
	if err := attemptTable.validate("status", string(out.Status)); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	q, args := r.dialect().Update(attemptTable.name).
		Set("method", string(out.Method)).
		Set("status", string(out.Status)).
		Set("pages", out.Pages).
		Set("attempted_units", out.AttemptedUnits).
		Set("succeeded_units", out.SucceededUnits).
		Set("chars", out.Chars).
		Set("scanned", out.Scanned).
		Set("ocr_fallback", out.OCRFallback).
		Set("timed_out", out.TimedOut).
		Set("duration_ms", out.Duration.Milliseconds()).
		Set("finished_at", time.Now().UTC()).
		Where(sql.EQ("id", id.String())).
		Query()
	if err := r.exec(ctx, id, q, args); err != nil {
		r.log.Error("extraction_attempt finish failed", "attempt_id", id, "err", err)
		return err
	}
	r.log.Info("extraction_attempt finished", "attempt_id", id, "status", out.Status, "method", out.Method, "chars", out.Chars)
	return nil
}

func (r *attemptRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	q, args := r.dialect().Update(attemptTable.name).
		Set("status", string(constants.AttemptStatusFailed)).
		Set("error_message", message).
		Set("finished_at", time.Now().UTC()).
		Where(sql.EQ("id", id.String())).
		Query()
	if err := r.exec(ctx, id, q, args); err != nil {
		r.log.Error("extraction_attempt finish(FAILED) failed", "attempt_id", id, "err", err)
		return err
	}
	r.log.Warn("extraction_attempt finished (FAILED)", "attempt_id", id, "error", message)
	return nil
}

func (r *attemptRepo) exec(ctx context.Context, id uuid.UUID, q string, args []any) error {
	res, err := r.db.drv.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("attempt %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *attemptRepo) LatestByHash(ctx context.Context, contentHash string) (*Attempt, error) {
	sel := r.dialect().Select(attemptColumns...).
		From(r.dialect().Table(attemptTable.name)).
		Where(sql.EQ("content_hash", contentHash)).
		OrderBy(sql.Desc("started_at")).
		Limit(1)
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("attempt for %s: %w", contentHash, common.ErrNotFound)
	}
	return &rows[0], nil
}

func (r *attemptRepo) Get(ctx context.Context, id uuid.UUID) (*Attempt, error) {
	sel := r.dialect().Select(attemptColumns...).
		From(r.dialect().Table(attemptTable.name)).
		Where(sql.EQ("id", id.String()))
	rows, err := r.query(ctx, sel)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("attempt %s: %w", id, common.ErrNotFound)
	}
	return &rows[0], nil
}

func (r *attemptRepo) List(ctx context.Context, f ListFilter) ([]Attempt, error) {
	sel := r.dialect().Select(attemptColumns...).
		From(r.dialect().Table(attemptTable.name)).
		OrderBy(sql.Desc("started_at"))
	var preds []*sql.Predicate
	if f.Status != "" {
		preds = append(preds, sql.EQ("status", string(f.Status)))
	}
	if f.Format != "" {
		preds = append(preds, sql.EQ("format", string(f.Format)))
	}
	if len(preds) > 0 {
		sel.Where(sql.And(preds...))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	sel.Limit(limit)
	if f.Offset > 0 {
		sel.Offset(f.Offset)
	}
	return r.query(ctx, sel)
}

func (r *attemptRepo) query(ctx context.Context, sel *sql.Selector) ([]Attempt, error) {
	q, args := sel.Query()
	rows, err := r.db.drv.DB().QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func scanAttempt(rows *stdsql.Rows) (Attempt, error) {
	var (
		a                      Attempt
		id                     string
		format, method, status string
		errMsg                 stdsql.NullString
		finished               stdsql.NullTime
	)
	err := rows.Scan(&id, &a.ContentHash, &a.Name, &format, &method, &status,
		&a.Pages, &a.AttemptedUnits, &a.SucceededUnits, &a.Chars,
		&a.Scanned, &a.OCRFallback, &a.TimedOut, &a.DurationMS,
		&errMsg, &a.StartedAt, &finished)
	if err != nil {
		return a, err
	}
	if a.ID, err = uuid.Parse(id); err != nil {
		return a, err
	}
	a.Format = constants.Format(format)
	a.Method = constants.Method(method)
	a.Status = constants.AttemptStatus(status)
	if errMsg.Valid {
		a.ErrorMessage = &errMsg.String
	}
	if finished.Valid {
		t := finished.Time
		a.FinishedAt = &t
	}
	return a, nil
}

// IsNotFound reports whether err means no matching attempt.
func IsNotFound(err error) bool { return errors.Is(err, common.ErrNotFound) }
