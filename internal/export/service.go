package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

const sheet = "Extractions"

// Row is one line of an extraction report.
type Row struct {
	Path        string
	Name        string
	Format      constants.Format
	Method      constants.Method
	Status      constants.AttemptStatus
	Pages       int
	Attempted   int
	Succeeded   int
	Chars       int
	Scanned     bool
	OCRFallback bool
	TimedOut    bool
	Duration    time.Duration
	StartedAt   time.Time
	Notes       string // error message, or a preview of the text
}

// RowFromOutcome builds a report row straight from an extraction.
func RowFromOutcome(path string, o extract.Outcome) Row {
	d := o.Diagnostics
	return Row{
		Path:        path,
		Name:        d.Name,
		Format:      d.Format,
		Method:      d.Method,
		Status:      o.Status(),
		Pages:       d.Pages,
		Attempted:   d.Attempted,
		Succeeded:   d.Succeeded,
		Chars:       d.Chars,
		Scanned:     d.Scanned,
		OCRFallback: d.OCRFallback,
		TimedOut:    d.TimedOut,
		Duration:    d.Duration,
		StartedAt:   time.Now().Add(-d.Duration),
		Notes:       truncate(o.Text, 140),
	}
}

// RowFromAttempt builds a report row from a ledger entry.
func RowFromAttempt(a repository.Attempt) Row {
	r := Row{
		Name:        a.Name,
		Format:      a.Format,
		Method:      a.Method,
		Status:      a.Status,
		Pages:       a.Pages,
		Attempted:   a.AttemptedUnits,
		Succeeded:   a.SucceededUnits,
		Chars:       a.Chars,
		Scanned:     a.Scanned,
		OCRFallback: a.OCRFallback,
		TimedOut:    a.TimedOut,
		Duration:    time.Duration(a.DurationMS) * time.Millisecond,
		StartedAt:   a.StartedAt,
	}
	if a.ErrorMessage != nil {
		r.Notes = truncate(*a.ErrorMessage, 140)
	}
	return r
}

var headers = []string{
	"Started",
	"File",
	"Path",
	"Format",
	"Method",
	"Status",
	"Pages",
	"Units Attempted",
	"Units Succeeded",
	"Chars",
	"Scanned",
	"OCR Fallback",
	"Timed Out",
	"Duration (ms)",
	"Notes",
}

// ReportXLSX renders rows as a single-sheet workbook.
func ReportXLSX(rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	for i, r := range rows {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		if !r.StartedAt.IsZero() {
			write(1, r.StartedAt.UTC().Format(time.RFC3339))
		}
		write(2, r.Name)
		write(3, r.Path)
		write(4, string(r.Format))
		write(5, string(r.Method))
		write(6, string(r.Status))
		write(7, r.Pages)
		write(8, r.Attempted)
		write(9, r.Succeeded)
		write(10, r.Chars)
		write(11, r.Scanned)
		write(12, r.OCRFallback)
		write(13, r.TimedOut)
		write(14, r.Duration.Milliseconds())
		write(15, r.Notes)
	}

	_ = f.SetColWidth(sheet, "A", "A", 22) // started
	_ = f.SetColWidth(sheet, "B", "B", 28) // file
	_ = f.SetColWidth(sheet, "C", "C", 60) // path
	_ = f.SetColWidth(sheet, "D", "F", 14)
	_ = f.SetColWidth(sheet, "O", "O", 60) // notes
	_ = f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// Service exports the attempt ledger as XLSX.
type Service struct {
	attempts repository.AttemptRepository
	logger   *slog.Logger
}

func NewService(attempts repository.AttemptRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{attempts: attempts, logger: logger}
}

// ExportAttemptsXLSX returns a workbook of ledger rows matching filter.
// A zero since means no lower bound on started_at.
func (s *Service) ExportAttemptsXLSX(ctx context.Context, filter repository.ListFilter, since time.Time) ([]byte, error) {
	start := time.Now()
	attempts, err := s.attempts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	rows := make([]Row, 0, len(attempts))
	for _, a := range attempts {
		if !since.IsZero() && a.StartedAt.Before(since) {
			continue
		}
		rows = append(rows, RowFromAttempt(a))
	}
	out, err := ReportXLSX(rows)
	if err != nil {
		return nil, err
	}
	s.logger.Info("export.xlsx.ok",
		"rows", len(rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
