package pdftext

// DefaultScanSizeThreshold is the file size above which the first-page
// probe runs before the full text-layer pass.
const DefaultScanSizeThreshold int64 = 10 << 20

// FirstPageRunCount counts the text runs on page 1 across both run sets.
// Zero means the document is almost certainly image-only.
func FirstPageRunCount(doc Document) (int, error) {
	if doc.NumPage() < 1 {
		return 0, ErrNoPages
	}
	var (
		best    int
		lastErr error
		ok      bool
	)
	for _, set := range []RunSet{GlyphRuns, RowRuns} {
		runs, err := doc.Runs(1, set)
		if err != nil {
			lastErr = err
			continue
		}
		ok = true
		if len(runs) > best {
			best = len(runs)
		}
	}
	if !ok {
		return 0, lastErr
	}
	return best, nil
}
