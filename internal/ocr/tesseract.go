package ocr

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// CharWhitelist restricts recognition to letters, digits and common punctuation.
const CharWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789.,;:!?'\"()[]-/&%$@#+=*"

// Pass is one tesseract invocation over a prepared bitmap.
type Pass struct {
	Name      string
	PSM       int
	Whitelist string
}

// PagePasses run, in order, over every rendered PDF page.
var PagePasses = []Pass{
	{Name: "auto-osd", PSM: 1},
	{Name: "block", PSM: 6},
	{Name: "line", PSM: 7},
	{Name: "auto-whitelist", PSM: 3, Whitelist: CharWhitelist},
}

// ImagePass is the single pass used for standalone images.
var ImagePass = Pass{Name: "auto", PSM: 3}

// lstmOnly selects the neural-network recognizer exclusively.
const lstmOnly = 1

func (e *Engine) tesseractArgs(path string, p Pass) []string {
	args := []string{path, "stdout",
		"-l", e.cfg.TesseractLang,
		"--oem", strconv.Itoa(lstmOnly),
		"--psm", strconv.Itoa(p.PSM),
		"-c", "preserve_interword_spaces=1",
	}
	if p.Whitelist != "" {
		args = append(args, "-c", "tessedit_char_whitelist="+p.Whitelist)
	}
	if e.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", e.cfg.TessdataDir)
	}
	return args
}

// recognize runs one pass over the image at path and returns raw text.
func (e *Engine) recognize(ctx context.Context, path string, p Pass) (string, error) {
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, e.logger, e.tesseractArgs(path, p)...)
	if err != nil {
		return "", fmt.Errorf("tesseract %s: %w: %s", p.Name, err, truncate(strings.TrimSpace(string(errb)), 512))
	}
	return string(out), nil
}
