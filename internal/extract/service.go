package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/arbiter"
	"github.com/joseph-ayodele/doctext/internal/ocr"
	"github.com/joseph-ayodele/doctext/internal/office"
	"github.com/joseph-ayodele/doctext/internal/pdftext"
)

// DefaultOCRThreshold is the text-layer total below which OCR runs.
const DefaultOCRThreshold = 50

const (
	DefaultDeadlineBase    = 30 * time.Second
	DefaultDeadlinePerPage = 20 * time.Second
	DefaultDeadlineMax     = 15 * time.Minute
)

type Config struct {
	ScanSizeThreshold int64 // default pdftext.DefaultScanSizeThreshold
	OCRThreshold      int   // default DefaultOCRThreshold

	PDF pdftext.Config
	OCR ocr.Config

	// Per-document wall-clock budget: base + perPage*pages, capped at max.
	DeadlineBase    time.Duration
	DeadlinePerPage time.Duration
	DeadlineMax     time.Duration
}

// PDFOpener opens the text layer of a PDF; pdftext.Open by default.
type PDFOpener func(data []byte, logger *slog.Logger) (pdftext.Document, error)

// Recognizer is the OCR fallback.
type Recognizer interface {
	RecognizePDF(ctx context.Context, data []byte) ocr.Result
	RecognizeImage(ctx context.Context, data []byte, heic bool) ocr.Result
}

type WordReader interface {
	Extract(ctx context.Context, name, mediaType string, data []byte) (string, error)
}

type SheetReader interface {
	Extract(ctx context.Context, data []byte) (office.SheetResult, error)
}

// Service is the extraction entry point. It holds no per-call state and is
// safe for concurrent use.
type Service struct {
	cfg     Config
	openPDF PDFOpener
	pdf     *pdftext.Extractor
	ocr     Recognizer
	word    WordReader
	sheet   SheetReader
	logger  *slog.Logger
}

type Option func(*Service)

func WithPDFOpener(fn PDFOpener) Option {
	return func(s *Service) {
		if fn != nil {
			s.openPDF = fn
		}
	}
}

func WithRecognizer(r Recognizer) Option {
	return func(s *Service) {
		if r != nil {
			s.ocr = r
		}
	}
}

func WithWordReader(r WordReader) Option {
	return func(s *Service) {
		if r != nil {
			s.word = r
		}
	}
}

func WithSheetReader(r SheetReader) Option {
	return func(s *Service) {
		if r != nil {
			s.sheet = r
		}
	}
}

// NewService wires the default extractors. A zero Config gives the default
// behaviour.
func NewService(cfg Config, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ScanSizeThreshold <= 0 {
		cfg.ScanSizeThreshold = pdftext.DefaultScanSizeThreshold
	}
	if cfg.OCRThreshold <= 0 {
		cfg.OCRThreshold = DefaultOCRThreshold
	}
	if cfg.DeadlineBase <= 0 {
		cfg.DeadlineBase = DefaultDeadlineBase
	}
	if cfg.DeadlinePerPage <= 0 {
		cfg.DeadlinePerPage = DefaultDeadlinePerPage
	}
	if cfg.DeadlineMax <= 0 {
		cfg.DeadlineMax = DefaultDeadlineMax
	}
	s := &Service{
		cfg:     cfg,
		openPDF: pdftext.Open,
		pdf:     pdftext.NewExtractor(cfg.PDF, logger),
		word:    office.NewWordExtractor(logger),
		sheet:   office.NewSheetExtractor(logger),
		logger:  logger,
	}
	for _, o := range opts {
		o(s)
	}
	if s.ocr == nil {
		s.ocr = ocr.NewEngine(cfg.OCR, logger)
	}
	return s
}

// Diagnostics describes how a result was obtained. It never changes the text.
type Diagnostics struct {
	Name        string            `json:"name" yaml:"name"`
	Format      constants.Format  `json:"format" yaml:"format"`
	Method      constants.Method  `json:"method" yaml:"method"`
	Pages       int               `json:"pages" yaml:"pages"`
	Attempted   int               `json:"attempted_units" yaml:"attempted_units"`
	Succeeded   int               `json:"succeeded_units" yaml:"succeeded_units"`
	Chars       int               `json:"chars" yaml:"chars"`
	Failures    []arbiter.Failure `json:"failures,omitempty" yaml:"failures,omitempty"`
	Scanned     bool              `json:"scanned_short_circuit" yaml:"scanned_short_circuit"`
	OCRFallback bool              `json:"ocr_fallback" yaml:"ocr_fallback"`
	TimedOut    bool              `json:"timed_out" yaml:"timed_out"`
	Duration    time.Duration     `json:"duration" yaml:"duration"`
}

type Outcome struct {
	Text        string      `json:"text" yaml:"text"`
	Diagnostics Diagnostics `json:"diagnostics" yaml:"diagnostics"`
}

// Status is TEXT_OK when any text came out and EMPTY otherwise.
func (o Outcome) Status() constants.AttemptStatus {
	if o.Text == "" {
		return constants.AttemptStatusEmpty
	}
	return constants.AttemptStatusTextOK
}

// IsExtractable reports whether f would be routed to an extractor.
func (s *Service) IsExtractable(f SourceFile) bool { return IsExtractable(f) }

// ExtractText returns the best-effort text of f. It never panics and never
// fails; an empty string means nothing could be extracted.
func (s *Service) ExtractText(ctx context.Context, f SourceFile) string {
	return s.Extract(ctx, f).Text
}

// Extract is ExtractText plus diagnostics.
func (s *Service) Extract(ctx context.Context, f SourceFile) (out Outcome) {
	start := time.Now()
	d := &out.Diagnostics
	d.Name = f.Name
	d.Format = Classify(f)
	d.Method = constants.MethodNone
	logger := s.logger.With("name", f.Name, "format", d.Format, "bytes", f.Size())

	defer func() {
		if r := recover(); r != nil {
			logger.Warn("extraction panicked", "panic", r)
			out.Text = ""
			d.Method = constants.MethodNone
			d.Failures = append(d.Failures, arbiter.Failure{Reason: fmt.Sprintf("panic: %v", r)})
		}
		d.Chars = utf8.RuneCountInString(out.Text)
		d.Duration = time.Since(start)
		logger.Info("extract.done",
			"method", d.Method,
			"pages", d.Pages,
			"attempted", d.Attempted,
			"succeeded", d.Succeeded,
			"failed", len(d.Failures),
			"chars", d.Chars,
			"scanned", d.Scanned,
			"ocr_fallback", d.OCRFallback,
			"timed_out", d.TimedOut,
			"duration_ms", d.Duration.Milliseconds(),
		)
	}()

	switch d.Format {
	case constants.WORD:
		out.Text = s.extractWord(ctx, f, d, logger)
	case constants.SPREADSHEET:
		out.Text = s.extractSheet(ctx, f, d, logger)
	case constants.IMAGE:
		out.Text = s.extractImage(ctx, f, d)
	case constants.PDF:
		out.Text = s.extractPDF(ctx, f, d, logger)
	default:
		logger.Warn("unsupported file type, skipping", "media_type", f.MediaType)
	}
	if out.Text == "" {
		d.Method = constants.MethodNone
	}
	return out
}

// budget is the wall-clock allowance for a document of n pages. An unknown
// page count gets the cap.
func (s *Service) budget(pages int) time.Duration {
	if pages <= 0 {
		return s.cfg.DeadlineMax
	}
	b := s.cfg.DeadlineBase + time.Duration(pages)*s.cfg.DeadlinePerPage
	return min(b, s.cfg.DeadlineMax)
}

func (s *Service) withBudget(ctx context.Context, pages int) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.budget(pages))
}

func noteTimeout(ctx context.Context, d *Diagnostics) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		d.TimedOut = true
	}
}

func (s *Service) extractWord(ctx context.Context, f SourceFile, d *Diagnostics, logger *slog.Logger) string {
	ctx, cancel := s.withBudget(ctx, 1)
	defer cancel()
	defer noteTimeout(ctx, d)

	d.Pages, d.Attempted = 1, 1
	text, err := s.word.Extract(ctx, f.Name, f.MediaType, f.Data)
	if err != nil {
		logger.Warn("word extraction failed", "error", err)
		d.Failures = append(d.Failures, arbiter.Failure{Unit: 1, Reason: err.Error()})
		return ""
	}
	if text != "" {
		d.Succeeded = 1
		d.Method = constants.MethodWord
	}
	return text
}

func (s *Service) extractSheet(ctx context.Context, f SourceFile, d *Diagnostics, logger *slog.Logger) string {
	ctx, cancel := s.withBudget(ctx, 1)
	defer cancel()
	defer noteTimeout(ctx, d)

	res, err := s.sheet.Extract(ctx, f.Data)
	if err != nil {
		logger.Warn("workbook extraction failed", "error", err)
		d.Failures = append(d.Failures, arbiter.Failure{Reason: err.Error()})
		return ""
	}
	d.Pages, d.Attempted, d.Succeeded = res.Sheets, res.Sheets, len(res.Units)
	d.Failures = append(d.Failures, res.Failures...)
	d.Method = constants.MethodSpreadsheet
	return res.Text()
}

func (s *Service) extractImage(ctx context.Context, f SourceFile, d *Diagnostics) string {
	ctx, cancel := s.withBudget(ctx, 1)
	defer cancel()
	defer noteTimeout(ctx, d)

	res := s.ocr.RecognizeImage(ctx, f.Data, f.IsHEIC())
	d.Pages, d.Attempted, d.Succeeded = res.Pages, res.Attempted, len(res.Units)
	d.Failures = append(d.Failures, res.Failures...)
	d.Method = constants.MethodImageOCR
	return res.Text()
}

func (s *Service) extractPDF(ctx context.Context, f SourceFile, d *Diagnostics, logger *slog.Logger) string {
	var openFailures []arbiter.Failure
	doc, err := s.openPDF(f.Data, logger)
	if err != nil {
		logger.Warn("pdf text layer unavailable", "error", err)
		openFailures = append(openFailures, arbiter.Failure{Reason: err.Error()})
	} else {
		d.Pages = doc.NumPage()
	}

	ctx, cancel := s.withBudget(ctx, d.Pages)
	defer cancel()
	defer noteTimeout(ctx, d)

	var tl pdftext.Result
	if doc != nil {
		tl, d.Scanned = s.textLayer(ctx, f.Size(), doc, logger)
	}
	method := constants.MethodPDFText
	if tl.Alternative {
		method = constants.MethodPDFTextAlt
	}
	text := tl.Text()
	d.Method, d.Attempted, d.Succeeded = method, tl.Attempted, len(tl.Units)
	d.Failures = append(openFailures, tl.Failures...)

	if !d.Scanned && tl.Chars() >= s.cfg.OCRThreshold {
		return text
	}

	d.OCRFallback = true
	logger.Info("falling back to ocr", "text_layer_chars", tl.Chars(), "scanned", d.Scanned)
	o := s.ocr.RecognizePDF(ctx, f.Data)
	d.Pages = max(d.Pages, o.Pages)

	best := arbiter.PickBest([]arbiter.Candidate{
		{Text: text, Label: string(method)},
		{Text: o.Text(), Label: string(constants.MethodPDFOCR)},
	})
	switch {
	case best.Score() == 0:
		d.Failures = append(d.Failures, o.Failures...)
		return ""
	case best.Label == string(constants.MethodPDFOCR):
		d.Method, d.Attempted, d.Succeeded = constants.MethodPDFOCR, o.Attempted, len(o.Units)
		d.Failures = o.Failures
	}
	return best.Text
}

// textLayer runs the scanned probe and the text-layer pass, closing doc on
// every path.
func (s *Service) textLayer(ctx context.Context, size int64, doc pdftext.Document, logger *slog.Logger) (res pdftext.Result, scanned bool) {
	defer func() {
		if err := doc.Close(); err != nil {
			logger.Warn("failed to close pdf", "error", err)
		}
	}()
	if size > s.cfg.ScanSizeThreshold {
		n, err := pdftext.FirstPageRunCount(doc)
		switch {
		case err != nil:
			logger.Debug("first page probe failed, running text pass", "error", err)
		case n == 0:
			logger.Info("first page has no text runs, treating as scanned")
			return res, true
		}
	}
	return s.pdf.Extract(ctx, doc), false
}
