// Package extract turns an uploaded file of unknown quality into plain text.
package extract

import (
	"path/filepath"

	"github.com/joseph-ayodele/doctext/constants"
)

// SourceFile is the immutable input of one extraction call.
type SourceFile struct {
	Name      string
	MediaType string
	Data      []byte
}

// Size is the byte length of the content.
func (f SourceFile) Size() int64 { return int64(len(f.Data)) }

// Ext is the lowercased suffix of Name without the dot.
func (f SourceFile) Ext() string { return constants.NormalizeExt(filepath.Ext(f.Name)) }

// IsHEIC reports whether the file is a HEIC/HEIF image by type or suffix.
func (f SourceFile) IsHEIC() bool {
	return constants.IsHEICMediaType(f.MediaType) || constants.IsHEICExt(f.Ext())
}
