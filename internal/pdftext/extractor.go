// Package pdftext recovers the embedded text layer of PDF documents.
package pdftext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/doctext/internal/arbiter"
)

// DefaultAltThreshold is the total below which the alternative pass runs.
const DefaultAltThreshold = 100

type Config struct {
	LineTolerance float64 // default DefaultLineTolerance
	AltThreshold  int     // default DefaultAltThreshold
	MaxPages      int     // 0 = no limit
}

// Result is the outcome of a text-layer pass over a whole document.
type Result struct {
	Units       []arbiter.Unit
	Pages       int
	Attempted   int
	Failures    []arbiter.Failure
	Alternative bool // the alternative pass replaced the primary one
	Canceled    bool
}

// Text assembles the page units into the final string.
func (r Result) Text() string { return arbiter.Assemble(r.Units) }

// Chars is the trimmed character total across pages.
func (r Result) Chars() int { return arbiter.Total(r.Units) }

type Extractor struct {
	cfg    Config
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.LineTolerance <= 0 {
		cfg.LineTolerance = DefaultLineTolerance
	}
	if cfg.AltThreshold <= 0 {
		cfg.AltThreshold = DefaultAltThreshold
	}
	return &Extractor{cfg: cfg, logger: logger}
}

type pageFunc func(doc Document, page int) (arbiter.Candidate, error)

// Extract runs the primary pass and, when it yields too little text, the
// alternative pass. The longer whole-document result wins. The caller owns
// doc and must close it.
func (e *Extractor) Extract(ctx context.Context, doc Document) Result {
	start := time.Now()
	primary := e.pass(ctx, doc, "primary", e.primaryPage)
	res := primary
	if !primary.Canceled && primary.Chars() < e.cfg.AltThreshold {
		alt := e.pass(ctx, doc, "alternative", e.alternativePage)
		e.logger.Debug("pdf alternative pass done",
			"primary_chars", primary.Chars(),
			"alternative_chars", alt.Chars(),
		)
		if alt.Chars() > primary.Chars() {
			alt.Alternative = true
			res = alt
		}
	}
	e.logger.Info("pdf.text.done",
		"pages", res.Pages,
		"succeeded", len(res.Units),
		"failed", len(res.Failures),
		"chars", res.Chars(),
		"alternative", res.Alternative,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return res
}

func (e *Extractor) pass(ctx context.Context, doc Document, name string, fn pageFunc) Result {
	res := Result{Pages: doc.NumPage()}
	n := res.Pages
	if e.cfg.MaxPages > 0 && n > e.cfg.MaxPages {
		n = e.cfg.MaxPages
	}
	for p := 1; p <= n; p++ {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("pdf text pass interrupted", "pass", name, "page", p, "error", err)
			res.Canceled = true
			break
		}
		res.Attempted++
		c, err := fn(doc, p)
		if err != nil {
			e.logger.Debug("pdf page failed, retrying", "pass", name, "page", p, "error", err)
			c, err = fn(doc, p)
		}
		if err != nil {
			e.logger.Warn("pdf page extraction failed", "pass", name, "page", p, "error", err)
			res.Failures = append(res.Failures, arbiter.Failure{Unit: p, Reason: err.Error()})
			continue
		}
		text := arbiter.Clean(c.Text)
		if text == "" {
			res.Failures = append(res.Failures, arbiter.Failure{Unit: p, Reason: "no text"})
			continue
		}
		res.Units = append(res.Units, arbiter.Unit{Index: p, Header: arbiter.PageHeader(p), Text: text, Label: c.Label})
	}
	return res
}

// primaryPage builds three joins for each of the two run sets and keeps the
// longest. A page errors only when neither run set could be read.
func (e *Extractor) primaryPage(doc Document, page int) (arbiter.Candidate, error) {
	var (
		cands []arbiter.Candidate
		errs  []error
	)
	for _, set := range []RunSet{GlyphRuns, RowRuns} {
		runs, err := doc.Runs(page, set)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s runs: %w", set, err))
			continue
		}
		cands = append(cands,
			arbiter.Candidate{Text: JoinPlain(runs), Label: set.String() + "/plain"},
			arbiter.Candidate{Text: JoinSorted(runs, e.cfg.LineTolerance), Label: set.String() + "/sorted"},
			arbiter.Candidate{Text: JoinRaw(runs), Label: set.String() + "/raw"},
		)
	}
	if len(cands) == 0 {
		return arbiter.Candidate{}, joinErrs(errs)
	}
	return arbiter.PickBest(cands), nil
}

// alternativePage samples the parser's own plain text, the row layout, and
// an exact-position ordering with no line band.
func (e *Extractor) alternativePage(doc Document, page int) (arbiter.Candidate, error) {
	var (
		cands []arbiter.Candidate
		errs  []error
	)
	if s, err := doc.PlainText(page); err != nil {
		errs = append(errs, fmt.Errorf("plain text: %w", err))
	} else {
		cands = append(cands, arbiter.Candidate{Text: s, Label: "alt/plain"})
	}
	if runs, err := doc.Runs(page, RowRuns); err != nil {
		errs = append(errs, fmt.Errorf("row runs: %w", err))
	} else {
		cands = append(cands, arbiter.Candidate{Text: JoinRows(runs), Label: "alt/rows"})
	}
	if runs, err := doc.Runs(page, GlyphRuns); err != nil {
		errs = append(errs, fmt.Errorf("glyph runs: %w", err))
	} else {
		cands = append(cands, arbiter.Candidate{Text: JoinStrict(runs), Label: "alt/strict"})
	}
	if len(cands) == 0 {
		return arbiter.Candidate{}, joinErrs(errs)
	}
	return arbiter.PickBest(cands), nil
}

func joinErrs(errs []error) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	}
	return fmt.Errorf("%w; %w", errs[0], errs[1])
}
