package constants

import "strings"

// Format is the extraction route chosen for a file.
type Format string

const (
	PDF         Format = "PDF"
	WORD        Format = "WORD"
	SPREADSHEET Format = "SPREADSHEET"
	IMAGE       Format = "IMAGE"
	UNSUPPORTED Format = "UNSUPPORTED"
)

// Formats lists the routable formats in classification order.
var Formats = []Format{PDF, WORD, SPREADSHEET, IMAGE}

// mediaTypes holds the declared media types accepted per format.
var mediaTypes = map[string]Format{
	"application/pdf":   PDF,
	"application/x-pdf": PDF,

	"application/msword": WORD,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": WORD,
	"application/vnd.oasis.opendocument.text":                                 WORD,
	"application/rtf": WORD,
	"text/rtf":        WORD,

	"application/vnd.ms-excel": SPREADSHEET,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": SPREADSHEET,
	"application/vnd.ms-excel.sheet.macroenabled.12":                    SPREADSHEET,

	"image/png":  IMAGE,
	"image/jpeg": IMAGE,
	"image/jpg":  IMAGE,
	"image/tiff": IMAGE,
	"image/bmp":  IMAGE,
	"image/gif":  IMAGE,
	"image/webp": IMAGE,
	"image/heic": IMAGE,
	"image/heif": IMAGE,
}

// AllowedExtensions holds the file suffixes accepted per format (lowercase, without '.').
var AllowedExtensions = map[string]Format{
	"pdf": PDF,

	"doc":  WORD,
	"docx": WORD,
	"odt":  WORD,
	"rtf":  WORD,

	"xlsx": SPREADSHEET,
	"xlsm": SPREADSHEET,
	"xltx": SPREADSHEET,
	"xltm": SPREADSHEET,

	"png":  IMAGE,
	"jpg":  IMAGE,
	"jpeg": IMAGE,
	"tif":  IMAGE,
	"tiff": IMAGE,
	"bmp":  IMAGE,
	"gif":  IMAGE,
	"webp": IMAGE,
	"heic": IMAGE,
	"heif": IMAGE,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

// NormalizeMediaType lowercases a media type and drops any parameters.
func NormalizeMediaType(mt string) string {
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = mt[:i]
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// MapExtToFormat maps a file extension (with or without '.') to its format.
func MapExtToFormat(ext string) Format {
	if f, ok := AllowedExtensions[NormalizeExt(ext)]; ok {
		return f
	}
	return UNSUPPORTED
}

// MapMediaTypeToFormat maps a declared media type to its format.
func MapMediaTypeToFormat(mt string) Format {
	if f, ok := mediaTypes[NormalizeMediaType(mt)]; ok {
		return f
	}
	return UNSUPPORTED
}

// IsHEICExt reports whether ext names a HEIC/HEIF image.
func IsHEICExt(ext string) bool {
	switch NormalizeExt(ext) {
	case "heic", "heif":
		return true
	}
	return false
}

// IsHEICMediaType reports whether mt is a HEIC/HEIF media type.
func IsHEICMediaType(mt string) bool {
	switch NormalizeMediaType(mt) {
	case "image/heic", "image/heif":
		return true
	}
	return false
}

// ExtensionsFor returns the suffixes routed to f.
func ExtensionsFor(f Format) []string {
	var out []string
	for ext, ff := range AllowedExtensions {
		if ff == f {
			out = append(out, ext)
		}
	}
	return out
}
