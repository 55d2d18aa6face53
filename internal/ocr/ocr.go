// Package ocr rasterizes documents and recovers text with tesseract.
package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/doctext/internal/arbiter"
)

const (
	// DefaultScale renders pages at 3x the nominal 72 dpi.
	DefaultScale = 3.0
	// DefaultMaxPixels caps the bitmap handed to tesseract.
	DefaultMaxPixels = 40_000_000
)

type Config struct {
	Tesseract     string // binary name or absolute path; if empty -> "tesseract"
	TesseractLang string // default "eng"
	TessdataDir   string

	Scale     float64 // render scale over 72 dpi; default DefaultScale
	MaxPages  int     // 0 = no limit
	MaxPixels int     // default DefaultMaxPixels; <0 disables downscaling

	HeicConverter    string
	ArtifactCacheDir string

	// DisableConfusionFixes skips the |->I, 0->O, 1->l rewrites.
	DisableConfusionFixes bool
}

// Result is the outcome of recognizing one document or image.
type Result struct {
	Units     []arbiter.Unit
	Pages     int
	Attempted int
	Failures  []arbiter.Failure
	Canceled  bool
}

// Text assembles the recognized units into the final string.
func (r Result) Text() string { return arbiter.Assemble(r.Units) }

// Chars is the trimmed character total across units.
func (r Result) Chars() int { return arbiter.Total(r.Units) }

type Engine struct {
	cfg      Config
	runner   Runner
	renderer Renderer
	limiter  *semaphore.Weighted
	capacity int64
	logger   *slog.Logger
}

type Option func(*Engine)

// WithRunner replaces the command runner (tests stub tesseract with it).
func WithRunner(r Runner) Option {
	return func(e *Engine) {
		if r != nil {
			e.runner = r
		}
	}
}

// WithRenderer replaces the page renderer. The default is MuPDF.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) {
		if r != nil {
			e.renderer = r
		}
	}
}

// WithRenderLimit bounds the bitmap bytes held at once. Engines given the
// same limiter share one ceiling.
func WithRenderLimit(l *RenderLimiter) Option {
	return func(e *Engine) {
		if l != nil {
			e.limiter, e.capacity = l.sem, l.capacity
		}
	}
}

// RenderLimiter is a shared ceiling on simultaneously held bitmap bytes.
type RenderLimiter struct {
	sem      *semaphore.Weighted
	capacity int64
}

// NewRenderLimiter returns nil when bytes <= 0, meaning no limit.
func NewRenderLimiter(bytes int64) *RenderLimiter {
	if bytes <= 0 {
		return nil
	}
	return &RenderLimiter{sem: semaphore.NewWeighted(bytes), capacity: bytes}
}

func NewEngine(cfg Config, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.Scale <= 0 {
		cfg.Scale = DefaultScale
	}
	if cfg.MaxPixels == 0 {
		cfg.MaxPixels = DefaultMaxPixels
	}
	e := &Engine{cfg: cfg, runner: execRunner{}, renderer: FitzRenderer{}, logger: logger}
	for _, o := range opts {
		o(e)
	}
	return e
}

func (e *Engine) clean(s string) string {
	if e.cfg.DisableConfusionFixes {
		return arbiter.Clean(s)
	}
	return arbiter.CleanOCR(s)
}

// RecognizePDF renders every page and keeps the best of four passes per page.
// Pages are processed one at a time; the render document is closed on return.
func (e *Engine) RecognizePDF(ctx context.Context, data []byte) Result {
	start := time.Now()
	var res Result

	doc, err := e.renderer.Open(ctx, data)
	if err != nil {
		e.logger.Warn("ocr render open failed", "error", err)
		res.Failures = append(res.Failures, arbiter.Failure{Unit: 0, Reason: err.Error()})
		return res
	}
	defer func() {
		if cerr := doc.Close(); cerr != nil {
			e.logger.Warn("failed to close render document", "error", cerr)
		}
	}()

	tmpDir, err := os.MkdirTemp("", "dt-ocr-*")
	if err != nil {
		res.Failures = append(res.Failures, arbiter.Failure{Unit: 0, Reason: err.Error()})
		return res
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()

	res.Pages = doc.NumPage()
	n := res.Pages
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		n = e.cfg.MaxPages
	}
	dpi := 72 * e.cfg.Scale
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("ocr interrupted", "page", p, "error", err)
			res.Canceled = true
			break
		}
		res.Attempted++
		c, err := e.page(ctx, doc, p, dpi, tmpDir)
		if err != nil {
			e.logger.Warn("ocr page failed", "page", p, "error", err)
			res.Failures = append(res.Failures, arbiter.Failure{Unit: p, Reason: err.Error()})
			continue
		}
		text := e.clean(c.Text)
		if text == "" {
			res.Failures = append(res.Failures, arbiter.Failure{Unit: p, Reason: "no text"})
			continue
		}
		res.Units = append(res.Units, arbiter.Unit{Index: p, Header: arbiter.OCRPageHeader(p), Text: text, Label: c.Label})
	}

	e.logger.Info("pdf.ocr.done",
		"pages", res.Pages,
		"succeeded", len(res.Units),
		"failed", len(res.Failures),
		"chars", res.Chars(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (e *Engine) page(ctx context.Context, doc RenderDoc, page int, dpi float64, dir string) (arbiter.Candidate, error) {
	bound, err := doc.Bound(page)
	if err != nil || bound.Empty() {
		bound = letter
	}
	release, err := e.acquire(ctx, bitmapBytes(bound, dpi))
	if err != nil {
		return arbiter.Candidate{}, err
	}
	defer release()

	img, err := doc.Render(ctx, page, dpi)
	if err != nil {
		return arbiter.Candidate{}, err
	}
	path, err := e.writeBitmap(img, dir, page)
	if err != nil {
		return arbiter.Candidate{}, err
	}
	defer func() { _ = os.Remove(path) }()

	cands := make([]arbiter.Candidate, 0, len(PagePasses))
	var errs []error
	for _, pass := range PagePasses {
		txt, err := e.recognize(ctx, path, pass)
		if err != nil {
			errs = append(errs, err)
		}
		cands = append(cands, arbiter.Candidate{Text: txt, Label: pass.Name})
	}
	if len(errs) == len(PagePasses) {
		return arbiter.Candidate{}, errors.Join(errs...)
	}
	best := arbiter.PickBest(cands)
	e.logger.Debug("ocr page passes scored", "page", page, "winner", best.Label, "score", best.Score(), "failed_passes", len(errs))
	return best, nil
}

func (e *Engine) writeBitmap(img image.Image, dir string, page int) (string, error) {
	b, err := encodePNG(fitPixels(img, e.cfg.MaxPixels))
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, fmt.Sprintf("page-%d.png", page))
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (e *Engine) acquire(ctx context.Context, n int64) (func(), error) {
	if e.limiter == nil {
		return func() {}, nil
	}
	if n > e.capacity {
		n = e.capacity
	}
	if err := e.limiter.Acquire(ctx, n); err != nil {
		return nil, fmt.Errorf("render memory wait: %w", err)
	}
	return func() { e.limiter.Release(n) }, nil
}

// RecognizeImage runs a single automatic-segmentation pass over a raster
// image. HEIC input is converted to PNG first.
func (e *Engine) RecognizeImage(ctx context.Context, data []byte, heic bool) Result {
	start := time.Now()
	res := Result{Pages: 1, Attempted: 1}
	fail := func(err error) Result {
		e.logger.Warn("image ocr failed", "error", err)
		res.Failures = append(res.Failures, arbiter.Failure{Unit: 1, Reason: err.Error()})
		return res
	}

	if heic {
		png, err := convertHEICtoPNG(ctx, e.runner, e.logger, e.cfg.HeicConverter, data, e.cfg.ArtifactCacheDir)
		if err != nil {
			return fail(err)
		}
		data = png
	}
	prepared, format, err := prepareImage(data, e.cfg.MaxPixels)
	if err != nil {
		e.logger.Debug("image not decodable, passing through", "format", format, "error", err)
	}

	tmpDir, err := os.MkdirTemp("", "dt-img-*")
	if err != nil {
		return fail(err)
	}
	defer func() { _ = os.RemoveAll(tmpDir) }()
	path := filepath.Join(tmpDir, "image")
	if err := os.WriteFile(path, prepared, 0o600); err != nil {
		return fail(err)
	}

	txt, err := e.recognize(ctx, path, ImagePass)
	if err != nil {
		return fail(err)
	}
	if text := e.clean(txt); text != "" {
		res.Units = append(res.Units, arbiter.Unit{Index: 1, Text: text, Label: ImagePass.Name})
	} else {
		res.Failures = append(res.Failures, arbiter.Failure{Unit: 1, Reason: "no text"})
	}
	e.logger.Info("image.ocr.done",
		"format", format,
		"chars", res.Chars(),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}
