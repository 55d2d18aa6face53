package pdftext

import (
	"math"
	"sort"
	"strings"
)

const (
	// DefaultLineTolerance is the vertical band, in user-space units, within
	// which runs are treated as one line.
	DefaultLineTolerance = 5.0

	defaultFontSize = 12.0
)

// JoinPlain concatenates runs in content-stream order with single spaces.
func JoinPlain(runs []Run) string {
	parts := make([]string, 0, len(runs))
	for _, r := range runs {
		if s := strings.TrimSpace(r.S); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// JoinRaw concatenates non-empty runs with no reordering and no separators.
func JoinRaw(runs []Run) string {
	var b strings.Builder
	for _, r := range runs {
		if r.S != "" {
			b.WriteString(r.S)
		}
	}
	return b.String()
}

// JoinSorted rebuilds reading order: top of page first, left to right, runs
// within tol of a line's first baseline share the line. A vertical gap wider
// than roughly two line heights becomes a paragraph break.
func JoinSorted(runs []Run, tol float64) string {
	lines := groupLines(runs, tol)
	var b strings.Builder
	for i, ln := range lines {
		if i > 0 {
			b.WriteByte('\n')
			if lines[i-1].y-ln.y > 1.8*lines[i-1].height() {
				b.WriteByte('\n')
			}
		}
		b.WriteString(JoinPlain(ln.runs))
	}
	return b.String()
}

// JoinStrict orders runs by exact position with no line band: every distinct
// baseline starts a new line.
func JoinStrict(runs []Run) string {
	return JoinSorted(runs, 0)
}

// JoinRows joins row-grouped runs, one output line per baseline, keeping the
// parser's order within a row.
func JoinRows(runs []Run) string {
	var (
		b     strings.Builder
		lastY = math.NaN()
	)
	for _, r := range runs {
		s := strings.TrimSpace(r.S)
		if s == "" {
			continue
		}
		switch {
		case math.IsNaN(lastY):
		case r.Y != lastY:
			b.WriteByte('\n')
		default:
			b.WriteByte(' ')
		}
		b.WriteString(s)
		lastY = r.Y
	}
	return b.String()
}

type line struct {
	y    float64
	size float64
	runs []Run
}

func (l line) height() float64 {
	if l.size <= 0 {
		return defaultFontSize
	}
	return l.size
}

func groupLines(runs []Run, tol float64) []line {
	sorted := make([]Run, 0, len(runs))
	for _, r := range runs {
		if strings.TrimSpace(r.S) != "" {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Y != sorted[j].Y {
			return sorted[i].Y > sorted[j].Y
		}
		return sorted[i].X < sorted[j].X
	})

	var lines []line
	for _, r := range sorted {
		n := len(lines)
		if n > 0 && math.Abs(lines[n-1].y-r.Y) <= tol {
			lines[n-1].runs = append(lines[n-1].runs, r)
			lines[n-1].size = math.Max(lines[n-1].size, r.FontSize)
			continue
		}
		lines = append(lines, line{y: r.Y, size: r.FontSize, runs: []Run{r}})
	}
	for i := range lines {
		rs := lines[i].runs
		sort.SliceStable(rs, func(a, b int) bool { return rs[a].X < rs[b].X })
	}
	return lines
}
