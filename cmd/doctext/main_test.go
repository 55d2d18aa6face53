package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/doctext/constants"
	"github.com/joseph-ayodele/doctext/internal/extract"
)

func TestWriteTextMirrorsLayout(t *testing.T) {
	root := filepath.Join(t.TempDir(), "in")
	out := filepath.Join(t.TempDir(), "out")

	require.NoError(t, writeText(root, out, filepath.Join(root, "a", "b.pdf"), "hello"))
	got, err := os.ReadFile(filepath.Join(out, "a", "b.pdf.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	// outside root falls back to the base name
	require.NoError(t, writeText(root, out, "/elsewhere/c.png", ""))
	_, err = os.Stat(filepath.Join(out, "c.png.txt"))
	assert.NoError(t, err)
}

func TestRootOf(t *testing.T) {
	roots := []string{"/data/a", "/data/b"}
	assert.Equal(t, "/data/b", rootOf(roots, "/data/b/x/y.pdf"))
	assert.Equal(t, "/other", rootOf(roots, "/other/z.pdf"))
}

func TestEncodeOutcome(t *testing.T) {
	out := extract.Outcome{Text: "x", Diagnostics: extract.Diagnostics{Name: "a.pdf", Format: constants.PDF, Method: constants.MethodPDFText, Chars: 1}}

	var buf bytes.Buffer
	require.NoError(t, encodeOutcome(&buf, "yaml", out))
	var m map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "x", m["text"])
	assert.Equal(t, "pdf-text", m["diagnostics"].(map[string]any)["method"])

	buf.Reset()
	require.NoError(t, encodeOutcome(&buf, "json", out))
	assert.Contains(t, buf.String(), `"format": "PDF"`)
}

func TestSubcommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"extract", "batch", "watch", "ledger", "version"} {
		assert.True(t, names[want], want)
	}
}
