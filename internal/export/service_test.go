package export

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

func readRows(t *testing.T, data []byte) [][]string {
	t.Helper()
	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{sheet}, f.GetSheetList())
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestReportXLSX(t *testing.T) {
	out := extract.Outcome{
		Text: strings.Repeat("é", 200),
		Diagnostics: extract.Diagnostics{
			Name: "scan.pdf", Format: constants.PDF, Method: constants.MethodPDFOCR,
			Pages: 3, Attempted: 3, Succeeded: 2, Chars: 200, OCRFallback: true,
			Duration: 1500 * time.Millisecond,
		},
	}
	data, err := ReportXLSX([]Row{RowFromOutcome("/in/scan.pdf", out)})
	require.NoError(t, err)

	rows := readRows(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, headers, rows[0])
	got := rows[1]
	assert.Equal(t, "scan.pdf", got[1])
	assert.Equal(t, "/in/scan.pdf", got[2])
	assert.Equal(t, "PDF", got[3])
	assert.Equal(t, "pdf-ocr", got[4])
	assert.Equal(t, "TEXT_OK", got[5])
	assert.Equal(t, "3", got[6])
	assert.Equal(t, "1500", got[13])
	assert.Len(t, []rune(got[14]), 140)
	assert.True(t, strings.HasSuffix(got[14], "…"))
}

func TestReportXLSX_Empty(t *testing.T) {
	data, err := ReportXLSX(nil)
	require.NoError(t, err)
	assert.Len(t, readRows(t, data), 1)
}

func TestService_ExportAttemptsXLSX(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := repository.Open(ctx, repository.Config{DSN: "file::memory:"}, logger)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))
	attempts := repository.NewAttemptRepository(db, logger)

	ok, err := attempts.Start(ctx, "h1", "a.docx", constants.WORD)
	require.NoError(t, err)
	require.NoError(t, attempts.Finish(ctx, ok.ID, repository.Outcome{Method: constants.MethodWord, Status: constants.AttemptStatusTextOK, Chars: 12}))
	bad, err := attempts.Start(ctx, "h2", "b.png", constants.IMAGE)
	require.NoError(t, err)
	require.NoError(t, attempts.Fail(ctx, bad.ID, "read failed"))

	svc := NewService(attempts, logger)
	data, err := svc.ExportAttemptsXLSX(ctx, repository.ListFilter{}, time.Time{})
	require.NoError(t, err)
	rows := readRows(t, data)
	require.Len(t, rows, 3)

	data, err = svc.ExportAttemptsXLSX(ctx, repository.ListFilter{Status: constants.AttemptStatusFailed}, time.Time{})
	require.NoError(t, err)
	rows = readRows(t, data)
	require.Len(t, rows, 2)
	assert.Equal(t, "b.png", rows[1][1])
	assert.Equal(t, "read failed", rows[1][14])

	data, err = svc.ExportAttemptsXLSX(ctx, repository.ListFilter{}, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, readRows(t, data), 1)
}
