package ocr

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// convertHEICtoPNG converts HEIC/HEIF bytes to PNG bytes using the chosen
// converter: "heif-convert" | "magick" | "sips".
// If cacheDir is non-empty, the PNG is persisted (and reused) at
//
//	{cacheDir}/{sha256(data)}.png
func convertHEICtoPNG(ctx context.Context, r Runner, logger *slog.Logger, converter string, data []byte, cacheDir string) ([]byte, error) {
	var cached string
	if cacheDir != "" {
		sum := sha256.Sum256(data)
		cached = filepath.Join(cacheDir, hex.EncodeToString(sum[:])+".png")
		if b, err := os.ReadFile(cached); err == nil && len(b) > 0 {
			logger.Debug("using cached heic->png", "cache", cached)
			return b, nil
		}
	}

	tmpDir, err := os.MkdirTemp("", "dt-heic-*")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	in := filepath.Join(tmpDir, "in.heic")
	out := filepath.Join(tmpDir, "page.png")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		return nil, err
	}

	switch converter {
	case "heif-convert":
		if _, errb, err := r.Run(ctx, "heif-convert", logger, in, out); err != nil {
			return nil, fmt.Errorf("heif-convert failed: %w: %s", err, truncate(string(errb), 512))
		}
	case "magick":
		if _, errb, err := r.Run(ctx, "magick", logger, in, out); err != nil {
			return nil, fmt.Errorf("magick convert failed: %w: %s", err, truncate(string(errb), 512))
		}
	case "sips":
		if _, errb, err := r.Run(ctx, "sips", logger, "-s", "format", "png", in, "--out", out); err != nil {
			return nil, fmt.Errorf("sips convert failed: %w: %s", err, truncate(string(errb), 512))
		}
	default:
		return nil, fmt.Errorf("HEIC not supported: set HEIC_CONVERTER to one of: heif-convert | magick | sips")
	}

	b, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("HEIC conversion produced no output: %w", err)
	}

	if cached != "" {
		if err := os.MkdirAll(cacheDir, 0o755); err != nil {
			logger.Warn("heic cache dir unavailable", "dir", cacheDir, "error", err)
		} else if err := os.WriteFile(cached, b, 0o644); err != nil {
			logger.Warn("failed to cache heic->png", "cache", cached, "error", err)
		} else {
			logger.Debug("cached heic->png", "cache", cached)
		}
	}
	return b, nil
}
