package extract

import "github.com/joseph-ayodele/doctext/constants"

// Classify routes f by declared media type, falling back to the name suffix
// when the media type is missing or unrecognised.
func Classify(f SourceFile) constants.Format {
	if format := constants.MapMediaTypeToFormat(f.MediaType); format != constants.UNSUPPORTED {
		return format
	}
	return constants.MapExtToFormat(f.Ext())
}

// IsExtractable reports whether Classify routes f to an extractor.
func IsExtractable(f SourceFile) bool { return Classify(f) != constants.UNSUPPORTED }
