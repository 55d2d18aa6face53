package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
	"github.com/joseph-ayodele/doctext/internal/repository"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "Report.PDF")
	writeFile(t, p, "%PDF-1.4 body")

	lf, err := NewFSIngestor(0, quietLogger()).LoadFile(context.Background(), p)
	require.NoError(t, err)
	sum := sha256.Sum256([]byte("%PDF-1.4 body"))
	assert.Equal(t, hex.EncodeToString(sum[:]), lf.HashHex)
	assert.Equal(t, "Report.PDF", lf.File.Name)
	assert.Equal(t, []byte("%PDF-1.4 body"), lf.File.Data)
	assert.Equal(t, constants.PDF, extract.Classify(lf.File))
}

func TestLoadFile_Rejects(t *testing.T) {
	dir := t.TempDir()
	txt := filepath.Join(dir, "notes.txt")
	writeFile(t, txt, "plain")
	big := filepath.Join(dir, "big.png")
	writeFile(t, big, "0123456789")

	in := NewFSIngestor(5, quietLogger())
	_, err := in.LoadFile(context.Background(), txt)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
	_, err = in.LoadFile(context.Background(), big)
	assert.ErrorIs(t, err, common.ErrTooLarge)
	_, err = in.LoadFile(context.Background(), filepath.Join(dir, "missing.pdf"))
	assert.Error(t, err)
}

func TestWalkDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.pdf"), "a")
	writeFile(t, filepath.Join(root, "sub", "b.xlsx"), "b")
	writeFile(t, filepath.Join(root, "sub", "c.txt"), "c")
	writeFile(t, filepath.Join(root, ".cache", "d.png"), "d")
	writeFile(t, filepath.Join(root, ".e.docx"), "e")

	in := NewFSIngestor(0, quietLogger())
	paths, stats, err := in.WalkDirectory(context.Background(), root, true)
	require.NoError(t, err)
	sort.Strings(paths)
	assert.Equal(t, []string{filepath.Join(root, "a.pdf"), filepath.Join(root, "sub", "b.xlsx")}, paths)
	assert.Equal(t, uint32(2), stats.Matched)

	paths, _, err = in.WalkDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, paths, 4)

	_, _, err = in.WalkDirectory(context.Background(), " ", true)
	assert.Error(t, err)
}

func TestUsecase_DeduplicatesFinishedContent(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{DSN: "file::memory:"}, quietLogger())
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))
	attempts := repository.NewAttemptRepository(db, quietLogger())

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.pdf"), "same bytes")
	writeFile(t, filepath.Join(root, "two.pdf"), "other bytes")

	uc := NewUsecase(NewFSIngestor(0, quietLogger()), attempts, quietLogger())
	var seen []string
	handle := func(lf LoadedFile) error {
		seen = append(seen, lf.File.Name)
		a, err := attempts.Start(ctx, lf.HashHex, lf.File.Name, extract.Classify(lf.File))
		if err != nil {
			return err
		}
		return attempts.Finish(ctx, a.ID, repository.Outcome{Status: constants.AttemptStatusEmpty})
	}

	_, stats, err := uc.IngestDirectory(ctx, root, true, handle)
	require.NoError(t, err)
	assert.Len(t, seen, 2)
	assert.Equal(t, uint32(0), stats.Deduplicated)

	writeFile(t, filepath.Join(root, "copy.pdf"), "same bytes")
	seen = nil
	results, stats, err := uc.IngestDirectory(ctx, root, true, handle)
	require.NoError(t, err)
	assert.Empty(t, seen)
	assert.Equal(t, uint32(3), stats.Deduplicated)
	assert.Len(t, results, 3)

	uc.Force = true
	_, _, err = uc.IngestDirectory(ctx, root, true, handle)
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestStartWatcher(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "existing.pdf"), "x")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _, err := StartWatcher(ctx, WatchConfig{
		Roots: []string{root}, InitialScan: true, SkipHidden: true,
		Debounce: 20 * time.Millisecond, Logger: quietLogger(),
	})
	require.NoError(t, err)

	next := func() string {
		select {
		case p := <-events:
			return p
		case <-time.After(5 * time.Second):
			t.Fatal("no watcher event")
			return ""
		}
	}
	assert.Equal(t, filepath.Join(root, "existing.pdf"), next())

	writeFile(t, filepath.Join(root, "ignored.txt"), "x")
	writeFile(t, filepath.Join(root, "new.png"), "x")
	assert.Equal(t, filepath.Join(root, "new.png"), next())

	cancel()
	for range events {
	}
}

func TestStartWatcher_NoRoots(t *testing.T) {
	_, _, err := StartWatcher(context.Background(), WatchConfig{})
	assert.Error(t, err)
}
