package arbiter

import (
	"fmt"
	"strings"
)

// Unit is one page's or sheet's winning text with its delimiter header.
type Unit struct {
	Index  int // 1-based page or sheet position
	Header string
	Text   string
	Label  string // strategy that produced Text
}

// Failure records why a unit contributed no text.
type Failure struct {
	Unit   int    `json:"unit" yaml:"unit"`
	Reason string `json:"reason" yaml:"reason"`
}

func PageHeader(n int) string        { return fmt.Sprintf("--- Page %d ---", n) }
func OCRPageHeader(n int) string     { return fmt.Sprintf("--- Page %d (OCR) ---", n) }
func SheetHeader(name string) string { return fmt.Sprintf("--- Sheet: %s ---", name) }

// Assemble joins units in the given order, each prefixed by its header,
// separated by a blank line. Units without text are dropped.
func Assemble(units []Unit) string {
	var b strings.Builder
	for _, u := range units {
		txt := strings.TrimSpace(u.Text)
		if txt == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		if u.Header != "" {
			b.WriteString(u.Header)
			b.WriteByte('\n')
		}
		b.WriteString(txt)
	}
	return strings.TrimSpace(b.String())
}
