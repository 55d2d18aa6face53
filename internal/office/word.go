// Package office extracts text from word-processing and spreadsheet containers.
package office

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"code.sajari.com/docconv/v2"

	"github.com/joseph-ayodele/doctext/constants"
)

// ConvertFunc matches docconv.Convert.
type ConvertFunc func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)

// WordExtractor pulls raw text out of doc, docx, odt and rtf files in one pass.
type WordExtractor struct {
	convert ConvertFunc
	logger  *slog.Logger
}

func NewWordExtractor(logger *slog.Logger) *WordExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &WordExtractor{convert: docconv.Convert, logger: logger}
}

// WithConverter swaps the conversion backend.
func (w *WordExtractor) WithConverter(fn ConvertFunc) *WordExtractor {
	if fn != nil {
		w.convert = fn
	}
	return w
}

// Extract returns the document body. Parser warnings and metadata go to the log.
func (w *WordExtractor) Extract(ctx context.Context, name, mediaType string, data []byte) (text string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("word parser panic: %v", r)
		}
	}()

	mt := wordMediaType(name, mediaType)
	start := time.Now()
	res, err := w.convert(bytes.NewReader(data), mt, false)
	if err != nil {
		return "", fmt.Errorf("convert %s: %w", mt, err)
	}
	if res == nil {
		return "", errors.New("convert returned no response")
	}
	if res.Error != "" {
		w.logger.Warn("word parser reported a problem", "name", name, "media_type", mt, "parser_error", res.Error)
	}
	w.logger.Debug("word converted",
		"name", name,
		"media_type", mt,
		"meta", res.Meta,
		"chars", len(res.Body),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return strings.TrimSpace(res.Body), nil
}

// wordMediaType prefers the declared type when it is a word type and falls
// back to the suffix.
func wordMediaType(name, declared string) string {
	if mt := constants.NormalizeMediaType(declared); constants.MapMediaTypeToFormat(mt) == constants.WORD {
		if mt == "text/rtf" {
			return "application/rtf"
		}
		return mt
	}
	return docconv.MimeTypeByExtension(name)
}
