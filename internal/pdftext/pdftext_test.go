package pdftext

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/doctext/internal/arbiter"
)

type fakeDoc struct {
	glyphs [][]Run
	rows   map[int][]Run
	plain  map[int]string
	fail   map[int]int // page -> failing Runs calls before success, -1 = always
	calls  map[int]int
	closed bool
}

func newFakeDoc(pages ...[]Run) *fakeDoc {
	return &fakeDoc{glyphs: pages, rows: map[int][]Run{}, plain: map[int]string{}, fail: map[int]int{}, calls: map[int]int{}}
}

func (d *fakeDoc) NumPage() int { return len(d.glyphs) }

func (d *fakeDoc) Runs(page int, set RunSet) ([]Run, error) {
	d.calls[page]++
	if f, ok := d.fail[page]; ok && (f < 0 || d.calls[page] <= f) {
		return nil, errors.New("content stream error")
	}
	if page < 1 || page > len(d.glyphs) {
		return nil, ErrNoPage
	}
	if set == RowRuns {
		if r, ok := d.rows[page]; ok {
			return r, nil
		}
	}
	return d.glyphs[page-1], nil
}

func (d *fakeDoc) PlainText(page int) (string, error) {
	if s, ok := d.plain[page]; ok {
		return s, nil
	}
	return "", nil
}

func (d *fakeDoc) Close() error { d.closed = true; return nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func runAt(s string, y float64) Run { return Run{S: s, X: 72, Y: y, FontSize: 12} }

func TestJoins(t *testing.T) {
	runs := []Run{
		{S: "world", X: 120, Y: 700, FontSize: 12},
		{S: "Hello", X: 72, Y: 698, FontSize: 12},
		{S: "  ", X: 200, Y: 700},
		{S: "second", X: 72, Y: 686, FontSize: 12},
	}
	assert.Equal(t, "world Hello second", JoinPlain(runs))
	assert.Equal(t, "worldHello  second", JoinRaw(runs))
	assert.Equal(t, "Hello world\nsecond", JoinSorted(runs, DefaultLineTolerance))
	assert.Equal(t, "world\nHello\nsecond", JoinStrict(runs))
}

func TestJoinSorted_ParagraphGap(t *testing.T) {
	runs := []Run{runAt("Body text here", 600), runAt("Title", 700)}
	assert.Equal(t, "Title\n\nBody text here", JoinSorted(runs, DefaultLineTolerance))
}

func TestJoinRows(t *testing.T) {
	runs := []Run{{S: "a", Y: 10}, {S: "b", Y: 10}, {S: " ", Y: 10}, {S: "c", Y: 5}}
	assert.Equal(t, "a b\nc", JoinRows(runs))
	assert.Equal(t, "", JoinRows(nil))
}

func TestExtractor_PageOrder(t *testing.T) {
	doc := newFakeDoc(
		[]Run{runAt("PAGE1MARKER", 700)},
		[]Run{runAt("PAGE2MARKER", 700)},
		[]Run{runAt("PAGE3MARKER", 700)},
	)
	res := NewExtractor(Config{AltThreshold: 1}, quietLogger()).Extract(context.Background(), doc)

	out := res.Text()
	last := -1
	for i := 1; i <= 3; i++ {
		marker := arbiter.Clean(fmt.Sprintf("PAGE%dMARKER", i))
		idx := strings.Index(out, marker)
		require.GreaterOrEqual(t, idx, 0, "missing %q", marker)
		assert.Greater(t, idx, last)
		last = idx
	}
	assert.True(t, strings.HasPrefix(out, "--- Page 1 ---\n"))
	assert.Equal(t, 3, res.Attempted)
	assert.Empty(t, res.Failures)
}

func TestExtractor_PicksLongestCandidate(t *testing.T) {
	// Content stream draws the body before the title.
	doc := newFakeDoc([]Run{runAt("Body text here", 600), runAt("Title", 700)})
	res := NewExtractor(Config{}, quietLogger()).Extract(context.Background(), doc)

	require.Len(t, res.Units, 1)
	sorted := JoinSorted(doc.glyphs[0], DefaultLineTolerance)
	require.Greater(t, len(sorted), len(JoinPlain(doc.glyphs[0])))
	assert.Equal(t, arbiter.Clean(sorted), res.Units[0].Text)
	assert.Equal(t, "glyph/sorted", res.Units[0].Label)
	assert.False(t, res.Alternative)
}

func TestExtractor_RetriesOnceThenSucceeds(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("first", 700)}, []Run{runAt("second", 700)})
	doc.fail[2] = 2 // both run sets fail on the first attempt
	res := NewExtractor(Config{AltThreshold: 1}, quietLogger()).Extract(context.Background(), doc)

	require.Len(t, res.Units, 2)
	assert.Equal(t, 2, res.Units[1].Index)
	assert.Equal(t, 4, doc.calls[2])
}

func TestExtractor_FailedPageOmitted(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("first", 700)}, []Run{runAt("second", 700)}, []Run{runAt("third", 700)})
	doc.fail[2] = -1
	res := NewExtractor(Config{AltThreshold: 1}, quietLogger()).Extract(context.Background(), doc)

	assert.Equal(t, "--- Page 1 ---\nfirst\n\n--- Page 3 ---\nthird", res.Text())
	require.Len(t, res.Failures, 1)
	assert.Equal(t, 2, res.Failures[0].Unit)
	assert.Equal(t, 4, doc.calls[2], "one attempt plus one retry, two run sets each")
}

func TestExtractor_EmptyPageNotRetried(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("first", 700)}, nil)
	res := NewExtractor(Config{AltThreshold: 1}, quietLogger()).Extract(context.Background(), doc)

	assert.Equal(t, 2, doc.calls[2])
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "no text", res.Failures[0].Reason)
}

func TestExtractor_AlternativePassReplacesPrimary(t *testing.T) {
	doc := newFakeDoc(nil, nil)
	doc.plain[1] = "Recovered by the parser"
	doc.plain[2] = "on both pages"
	res := NewExtractor(Config{}, quietLogger()).Extract(context.Background(), doc)

	assert.True(t, res.Alternative)
	assert.Equal(t, "--- Page 1 ---\nRecovered by the parser\n\n--- Page 2 ---\non both pages", res.Text())
	assert.Equal(t, "alt/plain", res.Units[0].Label)
}

func TestExtractor_AlternativePassKeepsLongerPrimary(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("short but present", 700)})
	doc.plain[1] = "tiny"
	res := NewExtractor(Config{}, quietLogger()).Extract(context.Background(), doc)

	assert.False(t, res.Alternative)
	assert.Equal(t, "--- Page 1 ---\nshort but present", res.Text())
}

func TestExtractor_MaxPages(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("one", 700)}, []Run{runAt("two", 700)}, []Run{runAt("three", 700)})
	res := NewExtractor(Config{AltThreshold: 1, MaxPages: 2}, quietLogger()).Extract(context.Background(), doc)

	assert.Equal(t, 3, res.Pages)
	assert.Equal(t, 2, res.Attempted)
	assert.NotContains(t, res.Text(), "three")
}

func TestExtractor_CanceledKeepsPartial(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	doc := newFakeDoc([]Run{runAt("one", 700)})
	res := NewExtractor(Config{}, quietLogger()).Extract(ctx, doc)

	assert.True(t, res.Canceled)
	assert.Empty(t, res.Units)
	assert.Zero(t, doc.calls[1])
}

func TestExtractor_Idempotent(t *testing.T) {
	doc := newFakeDoc([]Run{runAt("Body text here", 600), runAt("Title", 700)}, []Run{runAt("PAGE2MARKER", 700)})
	x := NewExtractor(Config{}, quietLogger())
	assert.Equal(t, x.Extract(context.Background(), doc).Text(), x.Extract(context.Background(), doc).Text())
}

func TestFirstPageRunCount(t *testing.T) {
	n, err := FirstPageRunCount(newFakeDoc([]Run{runAt("a", 1), runAt("b", 2)}))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = FirstPageRunCount(newFakeDoc(nil))
	require.NoError(t, err)
	assert.Zero(t, n)

	doc := newFakeDoc(nil)
	doc.rows[1] = []Run{runAt("row only", 1)}
	n, err = FirstPageRunCount(doc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = FirstPageRunCount(newFakeDoc())
	assert.ErrorIs(t, err, ErrNoPages)

	failing := newFakeDoc(nil)
	failing.fail[1] = -1
	_, err = FirstPageRunCount(failing)
	assert.Error(t, err)
}

func TestOpen_RejectsGarbage(t *testing.T) {
	for name, data := range map[string][]byte{
		"empty":     nil,
		"garbage":   []byte("this is not a pdf at all"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"),
	} {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				doc, err := Open(data, quietLogger())
				assert.Error(t, err)
				assert.Nil(t, doc)
			})
		})
	}
}
