package pdftext

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNoPages = errors.New("pdf has no pages")
	ErrNoPage  = errors.New("page not found")
)

// Run is a positioned piece of text on a page. Y grows towards the top.
type Run struct {
	S        string
	X, Y     float64
	FontSize float64
}

// RunSet selects which text representation of a page is requested.
type RunSet int

const (
	// GlyphRuns are built from every glyph shown by the content stream.
	GlyphRuns RunSet = iota
	// RowRuns are the show-text blocks grouped into rows by the parser.
	RowRuns
)

func (s RunSet) String() string {
	switch s {
	case GlyphRuns:
		return "glyph"
	case RowRuns:
		return "row"
	}
	return fmt.Sprintf("runset(%d)", int(s))
}

// Document is an open paginated document. Pages are 1-based.
type Document interface {
	NumPage() int
	Runs(page int, set RunSet) ([]Run, error)
	PlainText(page int) (string, error)
	Close() error
}

type ledongDoc struct {
	r      *pdf.Reader
	logger *slog.Logger
}

// Open parses data as a PDF. When the parser rejects the file, a repair pass
// rewrites it and parsing is retried once.
func Open(data []byte, logger *slog.Logger) (Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r, err := newReader(data)
	if err == nil {
		return &ledongDoc{r: r, logger: logger}, nil
	}
	logger.Debug("pdf open failed, attempting repair", "bytes", len(data), "error", err)

	fixed, rerr := Repair(data)
	if rerr != nil {
		return nil, fmt.Errorf("open pdf: %w", errors.Join(err, rerr))
	}
	r, err2 := newReader(fixed)
	if err2 != nil {
		return nil, fmt.Errorf("open repaired pdf: %w", err2)
	}
	logger.Info("pdf repaired", "bytes_in", len(data), "bytes_out", len(fixed))
	return &ledongDoc{r: r, logger: logger}, nil
}

func newReader(data []byte) (r *pdf.Reader, err error) {
	defer recoverInto(&err)
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	if r.NumPage() == 0 {
		return nil, ErrNoPages
	}
	return r, nil
}

func (d *ledongDoc) NumPage() int {
	if d.r == nil {
		return 0
	}
	return d.r.NumPage()
}

func (d *ledongDoc) page(n int) (pdf.Page, error) {
	if d.r == nil || n < 1 || n > d.r.NumPage() {
		return pdf.Page{}, fmt.Errorf("page %d: %w", n, ErrNoPage)
	}
	p := d.r.Page(n)
	if p.V.IsNull() {
		return p, fmt.Errorf("page %d: %w", n, ErrNoPage)
	}
	return p, nil
}

func (d *ledongDoc) Runs(n int, set RunSet) (runs []Run, err error) {
	defer recoverInto(&err)
	p, err := d.page(n)
	if err != nil {
		return nil, err
	}
	switch set {
	case GlyphRuns:
		return coalesce(p.Content().Text), nil
	case RowRuns:
		rows, err := p.GetTextByRow()
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			for _, t := range row.Content {
				if t.S == "" {
					continue
				}
				runs = append(runs, Run{S: norm.NFKC.String(t.S), X: t.X, Y: float64(row.Position), FontSize: t.FontSize})
			}
		}
		return runs, nil
	}
	return nil, fmt.Errorf("unknown run set %d", int(set))
}

func (d *ledongDoc) PlainText(n int) (s string, err error) {
	defer recoverInto(&err)
	p, err := d.page(n)
	if err != nil {
		return "", err
	}
	s, err = p.GetPlainText(nil)
	return norm.NFKC.String(s), err
}

// Close drops the parser state so the document bytes can be collected.
func (d *ledongDoc) Close() error {
	d.r = nil
	return nil
}

// coalesce merges per-glyph texts into runs: consecutive glyphs on the same
// baseline with no visible gap belong to one run.
func coalesce(glyphs []pdf.Text) []Run {
	var (
		runs []Run
		cur  *Run
		end  float64
		b    strings.Builder
	)
	flush := func() {
		if cur != nil {
			cur.S = norm.NFKC.String(b.String())
			if strings.TrimSpace(cur.S) != "" {
				runs = append(runs, *cur)
			}
		}
		cur = nil
		b.Reset()
	}
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		tol := math.Max(g.FontSize*0.15, 0.5)
		if cur != nil && math.Abs(g.Y-cur.Y) < 0.5 && g.X >= end-tol && g.X-end <= tol {
			b.WriteString(g.S)
			end = g.X + g.W
			continue
		}
		flush()
		cur = &Run{X: g.X, Y: g.Y, FontSize: g.FontSize}
		b.WriteString(g.S)
		end = g.X + g.W
	}
	flush()
	return runs
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("pdf parser panic: %v", r)
	}
}
