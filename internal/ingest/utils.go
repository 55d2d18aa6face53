package ingest

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/doctext/constants"
)

// AllowedExt checks if a file extension routes to an extractor.
func AllowedExt(ext string) bool {
	return constants.MapExtToFormat(ext) != constants.UNSUPPORTED
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}

// mediaTypeFor guesses the declared media type from the suffix; the
// classifier falls back to the suffix anyway when this is empty.
func mediaTypeFor(path string) string {
	return constants.NormalizeMediaType(mime.TypeByExtension(filepath.Ext(path)))
}
