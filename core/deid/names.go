package deid

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// GenerateName returns the de-identified file name for original and the
// name recorded inside the slide, which is the same without extension:
//
//	W<uuid>T<YYYY-MM-DD><HHMMSS><microseconds><ext>
func GenerateName(original string, now time.Time, id uuid.UUID) (fileName, metadataName string) {
	metadataName = fmt.Sprintf("W%sT%s%06d", id, now.Format("2006-01-02150405"), now.Nanosecond()/1000)
	return metadataName + filepath.Ext(original), metadataName
}
