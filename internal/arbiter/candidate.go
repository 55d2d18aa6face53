// Package arbiter scores competing extraction outputs, cleans the winner and
// assembles per-unit text into the final document string.
package arbiter

import (
	"strings"
	"unicode/utf8"
)

// Candidate is one strategy's output for one unit (page, pass or document).
type Candidate struct {
	Text  string
	Label string
}

// Score is the trimmed length of the candidate in runes.
func (c Candidate) Score() int {
	return utf8.RuneCountInString(strings.TrimSpace(c.Text))
}

// PickBest returns the highest scoring candidate. Ties keep the earliest one.
// An empty slice yields the zero Candidate.
func PickBest(cands []Candidate) Candidate {
	var best Candidate
	bestScore := -1
	for _, c := range cands {
		if s := c.Score(); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// Total sums the trimmed length of every unit's text.
func Total(units []Unit) int {
	n := 0
	for _, u := range units {
		n += utf8.RuneCountInString(strings.TrimSpace(u.Text))
	}
	return n
}
