package office

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doctext/internal/arbiter"
)

// SheetResult carries one unit per sheet that produced text.
type SheetResult struct {
	Units    []arbiter.Unit
	Sheets   int
	Failures []arbiter.Failure
}

// Text assembles the sheet units into the final string.
func (r SheetResult) Text() string { return arbiter.Assemble(r.Units) }

// SheetExtractor serializes every sheet of a workbook, hidden ones included,
// to comma-delimited text.
type SheetExtractor struct {
	logger *slog.Logger
}

func NewSheetExtractor(logger *slog.Logger) *SheetExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SheetExtractor{logger: logger}
}

// Extract opens the workbook from data. A workbook that cannot be opened is
// an error; sheets that fail or hold no text are skipped.
func (s *SheetExtractor) Extract(ctx context.Context, data []byte) (res SheetResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("workbook parser panic: %v", r)
		}
	}()
	start := time.Now()

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			s.logger.Warn("failed to close workbook", "error", cerr)
		}
	}()

	sheets := f.GetSheetList()
	res.Sheets = len(sheets)
	for i, name := range sheets {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("workbook extraction interrupted", "sheet", name, "error", err)
			break
		}
		visible, _ := f.GetSheetVisible(name)
		rows, err := f.GetRows(name)
		if err != nil {
			s.logger.Warn("sheet read failed", "sheet", name, "error", err)
			res.Failures = append(res.Failures, arbiter.Failure{Unit: i + 1, Reason: err.Error()})
			continue
		}
		text, err := rowsToCSV(rows)
		if err != nil {
			res.Failures = append(res.Failures, arbiter.Failure{Unit: i + 1, Reason: err.Error()})
			continue
		}
		if text == "" {
			s.logger.Debug("sheet has no text", "sheet", name, "visible", visible)
			continue
		}
		s.logger.Debug("sheet extracted", "sheet", name, "visible", visible, "rows", len(rows))
		res.Units = append(res.Units, arbiter.Unit{Index: i + 1, Header: arbiter.SheetHeader(name), Text: text, Label: "csv"})
	}

	s.logger.Info("spreadsheet.done",
		"sheets", res.Sheets,
		"succeeded", len(res.Units),
		"failed", len(res.Failures),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func rowsToCSV(rows [][]string) (string, error) {
	var b strings.Builder
	w := csv.NewWriter(&b)
	for _, row := range rows {
		if blankRow(row) {
			continue
		}
		if err := w.Write(row); err != nil {
			return "", err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}
	return strings.TrimSpace(b.String()), nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
