package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/common"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

// FSIngestor reads from the local filesystem.
type FSIngestor struct {
	MaxBytes int64 // 0 = no limit
	Logger   *slog.Logger
}

func NewFSIngestor(maxBytes int64, logger *slog.Logger) *FSIngestor {
	if logger == nil {
		logger = slog.Default()
	}
	return &FSIngestor{MaxBytes: maxBytes, Logger: logger}
}

func (i *FSIngestor) LoadFile(ctx context.Context, path string) (LoadedFile, error) {
	var out LoadedFile
	if err := ctx.Err(); err != nil {
		return out, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		i.Logger.Error("abs path error", "path", path, "error", err)
		return out, err
	}

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !AllowedExt(ext) {
		i.Logger.Warn("unsupported or missing extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("%w: unsupported or missing extension %q", common.ErrInvalidInput, ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		i.Logger.Error("open error", "path", abs, "error", err)
		return out, err
	}
	defer func(f *os.File) {
		if err := f.Close(); err != nil {
			i.Logger.Warn("close file error", "path", abs, "error", err)
		}
	}(f)

	st, err := f.Stat()
	if err != nil {
		return out, err
	}
	if i.MaxBytes > 0 && st.Size() > i.MaxBytes {
		return out, fmt.Errorf("%w: %s is %d bytes", common.ErrTooLarge, abs, st.Size())
	}

	h := sha256.New()
	data, err := io.ReadAll(io.TeeReader(f, h))
	if err != nil {
		i.Logger.Error("read error", "path", abs, "error", err)
		return out, err
	}

	out = LoadedFile{
		Path: abs,
		File: extract.SourceFile{
			Name:      filepath.Base(abs),
			MediaType: mediaTypeFor(abs),
			Data:      data,
		},
		HashHex: hex.EncodeToString(h.Sum(nil)),
		ModTime: st.ModTime(),
	}
	return out, nil
}

// WalkDirectory walks root, skips hidden entries if requested, and returns
// every path the classifier would route to an extractor.
func (i *FSIngestor) WalkDirectory(ctx context.Context, root string, skipHidden bool) ([]string, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root_path is required")
	}

	var paths []string
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			i.Logger.Warn("walk error", "path", path, "error", walkErr)
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}
		if !AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})

	if err != nil {
		return paths, stats, fmt.Errorf("walk: %w", err)
	}
	i.Logger.Debug("directory walked", "root", root, "scanned", stats.Scanned, "matched", stats.Matched)
	return paths, stats, nil
}
