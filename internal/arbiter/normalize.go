package arbiter

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	reCRLF        = regexp.MustCompile(`\r\n?`)
	reHSpace      = regexp.MustCompile(`[^\S\n]+`)
	reMultiBlank  = regexp.MustCompile(`\n{3,}`)
	reLowerUpper  = regexp.MustCompile(`(\p{Ll})(\p{Lu})`)
	rePunctUpper  = regexp.MustCompile(`([.!?])(\p{Lu})`)
	reLetterDigit = regexp.MustCompile(`(\pL)(\p{Nd})`)
	reDigitLetter = regexp.MustCompile(`(\p{Nd})(\pL)`)
)

// Clean normalizes text-layer output: whitespace is collapsed, glued word,
// sentence and letter/digit boundaries get a space, and blank-line runs are
// capped at one empty line.
func Clean(s string) string {
	if s == "" {
		return s
	}
	s = reCRLF.ReplaceAllString(s, "\n")
	s = reHSpace.ReplaceAllString(s, " ")
	s = reLowerUpper.ReplaceAllString(s, "$1 $2")
	s = rePunctUpper.ReplaceAllString(s, "$1 $2")
	s = reLetterDigit.ReplaceAllString(s, "$1 $2")
	s = reDigitLetter.ReplaceAllString(s, "$1 $2")

	lines := strings.Split(s, "\n")
	for i := range lines {
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	s = strings.Join(lines, "\n")
	s = reMultiBlank.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// CleanOCR applies the OCR character-confusion fixes and then Clean.
func CleanOCR(s string) string {
	return Clean(FixConfusions(s))
}

// FixConfusions rewrites characters tesseract commonly misreads inside words:
// '|' becomes 'I', and runs of '0' or '1' that start a word or sit between
// letters become 'O' or 'l'.
func FixConfusions(s string) string {
	if s == "" {
		return s
	}
	s = strings.ReplaceAll(s, "|", "I")
	rs := []rune(s)
	for i := 0; i < len(rs); {
		var repl rune
		switch rs[i] {
		case '0':
			repl = 'O'
		case '1':
			repl = 'l'
		default:
			i++
			continue
		}
		j := i
		for j < len(rs) && rs[j] == rs[i] {
			j++
		}
		if j < len(rs) && unicode.IsLetter(rs[j]) && (i == 0 || unicode.IsLetter(rs[i-1]) || !isWordRune(rs[i-1])) {
			for k := i; k < j; k++ {
				rs[k] = repl
			}
		}
		i = j
	}
	return string(rs)
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
