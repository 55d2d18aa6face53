package arbiter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPickBest(t *testing.T) {
	tests := []struct {
		name  string
		cands []Candidate
		want  string
	}{
		{name: "empty", cands: nil, want: ""},
		{
			name:  "longest wins",
			cands: []Candidate{{Text: "ab", Label: "plain"}, {Text: "abcd", Label: "sorted"}, {Text: "abc", Label: "raw"}},
			want:  "sorted",
		},
		{
			name:  "tie keeps earliest",
			cands: []Candidate{{Text: "abc", Label: "first"}, {Text: "xyz", Label: "second"}},
			want:  "first",
		},
		{
			name:  "scored on trimmed length",
			cands: []Candidate{{Text: "abc", Label: "short"}, {Text: "   ab   \n\n", Label: "padded"}},
			want:  "short",
		},
		{
			name:  "all empty keeps first",
			cands: []Candidate{{Text: "", Label: "a"}, {Text: "  ", Label: "b"}},
			want:  "a",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PickBest(tt.cands).Label)
		})
	}
}

func TestCandidateScore_CountsRunes(t *testing.T) {
	assert.Equal(t, 3, Candidate{Text: " äöü "}.Score())
}

func TestClean(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "crlf", in: "a\r\nb\rc", want: "a\nb\nc"},
		{name: "horizontal whitespace", in: "  one \t\t two   three  ", want: "one two three"},
		{name: "camel boundary", in: "helloWorld", want: "hello World"},
		{name: "sentence boundary", in: "End.Next!Again?Yes", want: "End. Next! Again? Yes"},
		{name: "letter digit", in: "abc123def", want: "abc 123 def"},
		{name: "blank lines capped", in: "a\n\n\n\n\nb", want: "a\n\nb"},
		{name: "trailing spaces per line", in: "a   \nb  \n\n   \n\nc", want: "a\nb\n\nc"},
		{name: "unicode lower upper", in: "straßeÄpfel", want: "straße Äpfel"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Clean(tt.in))
		})
	}
}

func TestClean_Idempotent(t *testing.T) {
	in := "PAGE1MARKER  totalAmount:42units\r\n\n\n\nNext.Line"
	once := Clean(in)
	assert.Equal(t, once, Clean(once))
}

func TestCleanOCR(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "pipe adjacent to letter", in: "H|", want: "HI"},
		{name: "pipe inside word", in: "W|NDOW", want: "WINDOW"},
		{name: "word initial zero", in: "0pen the door", want: "Open the door"},
		{name: "word internal zeros", in: "C00L", want: "COOL"},
		{name: "word initial one", in: "1ater", want: "later"},
		{name: "word internal one", in: "he1lo", want: "hello"},
		{name: "numbers untouched", in: "total 100 and 2011", want: "total 100 and 2011"},
		{name: "trailing zero untouched", in: "HELL0", want: "HELL 0"},
		{name: "digit before run", in: "20ab", want: "20 ab"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanOCR(tt.in))
		})
	}
}

func TestAssemble(t *testing.T) {
	units := []Unit{
		{Index: 1, Header: PageHeader(1), Text: "PAGE1MARKER"},
		{Index: 2, Header: PageHeader(2), Text: "   "},
		{Index: 3, Header: PageHeader(3), Text: "PAGE3MARKER\n"},
	}
	assert.Equal(t, "--- Page 1 ---\nPAGE1MARKER\n\n--- Page 3 ---\nPAGE3MARKER", Assemble(units))
	assert.Equal(t, "", Assemble(nil))
	assert.Equal(t, "plain body", Assemble([]Unit{{Text: " plain body "}}))
}

func TestHeaders(t *testing.T) {
	assert.Equal(t, "--- Page 4 (OCR) ---", OCRPageHeader(4))
	assert.Equal(t, "--- Sheet: Q1 ---", SheetHeader("Q1"))
}

func TestTotal(t *testing.T) {
	assert.Equal(t, 5, Total([]Unit{{Text: " ab "}, {Text: "cde"}}))
}
