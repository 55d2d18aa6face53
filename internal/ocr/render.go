package ocr

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Renderer opens paginated documents for rasterization.
type Renderer interface {
	Open(ctx context.Context, data []byte) (RenderDoc, error)
}

// RenderDoc is an open document owned by one extraction call. Pages are 1-based.
type RenderDoc interface {
	NumPage() int
	// Bound is the page size in points (72 per inch).
	Bound(page int) (image.Rectangle, error)
	Render(ctx context.Context, page int, dpi float64) (image.Image, error)
	Close() error
}

// letter is used when a renderer cannot report page size.
var letter = image.Rect(0, 0, 612, 792)

// FitzRenderer renders in-process with MuPDF.
type FitzRenderer struct{}

func (FitzRenderer) Open(_ context.Context, data []byte) (rd RenderDoc, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("mupdf panic: %v", r)
		}
	}()
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("mupdf open: %w", err)
	}
	return &fitzDoc{doc: doc}, nil
}

type fitzDoc struct {
	doc *fitz.Document
}

func (d *fitzDoc) NumPage() int { return d.doc.NumPage() }

func (d *fitzDoc) Bound(page int) (image.Rectangle, error) {
	return d.doc.Bound(page - 1)
}

func (d *fitzDoc) Render(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	img, err := d.doc.ImageDPI(page-1, dpi)
	if err != nil {
		return nil, fmt.Errorf("mupdf render page %d: %w", page, err)
	}
	return img, nil
}

func (d *fitzDoc) Close() error { return d.doc.Close() }

// PopplerRenderer shells out to pdftoppm, one page per call.
type PopplerRenderer struct {
	Pdftoppm string // binary name or absolute path; if empty -> "pdftoppm"
	Runner   Runner
	Logger   *slog.Logger
}

func (r PopplerRenderer) Open(_ context.Context, data []byte) (RenderDoc, error) {
	if r.Pdftoppm == "" {
		r.Pdftoppm = "pdftoppm"
	}
	if r.Runner == nil {
		r.Runner = execRunner{}
	}
	if r.Logger == nil {
		r.Logger = slog.Default()
	}
	tmpDir, err := os.MkdirTemp("", "dt-pp-*")
	if err != nil {
		return nil, err
	}
	in := filepath.Join(tmpDir, "in.pdf")
	if err := os.WriteFile(in, data, 0o600); err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, err
	}
	n, err := api.PageCountFile(in)
	if err != nil {
		_ = os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("page count: %w", err)
	}
	return &popplerDoc{r: r, dir: tmpDir, in: in, pages: n}, nil
}

type popplerDoc struct {
	r     PopplerRenderer
	dir   string
	in    string
	pages int
}

func (d *popplerDoc) NumPage() int { return d.pages }

func (d *popplerDoc) Bound(int) (image.Rectangle, error) { return letter, nil }

func (d *popplerDoc) Render(ctx context.Context, page int, dpi float64) (image.Image, error) {
	if page < 1 || page > d.pages {
		return nil, fmt.Errorf("page %d out of range", page)
	}
	prefix := filepath.Join(d.dir, "page")
	p := strconv.Itoa(page)
	// pdftoppm -f N -l N -r DPI -png -singlefile <in.pdf> <tmp/page>
	_, errb, err := d.r.Runner.Run(ctx, d.r.Pdftoppm, d.r.Logger,
		"-f", p, "-l", p, "-r", strconv.Itoa(int(dpi)), "-png", "-singlefile", d.in, prefix)
	if err != nil {
		return nil, fmt.Errorf("pdftoppm page %d: %w: %s", page, err, truncate(string(errb), 512))
	}
	out := prefix + ".png"
	defer func() { _ = os.Remove(out) }()
	f, err := os.Open(out)
	if err != nil {
		return nil, errors.New("pdftoppm produced no image")
	}
	defer f.Close()
	return png.Decode(f)
}

func (d *popplerDoc) Close() error { return os.RemoveAll(d.dir) }
