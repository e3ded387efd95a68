package core

import (
	"bytes"
	"io"
	"os"
	"strings"
)

// FormatID enumerates every recognised format.
type FormatID string

const (
	FmtSVS     FormatID = "svs"
	FmtTIFF    FormatID = "tiff"
	FmtBigTIFF FormatID = "bigtiff"

	FmtUnknown FormatID = "unknown"
)

// extMap maps lowercase extensions to format IDs.
var extMap = map[string]FormatID{
	".svs":  FmtSVS,
	".tiff": FmtTIFF,
	".tif":  FmtTIFF,
	".btf":  FmtBigTIFF,
	".tf8":  FmtBigTIFF,
}

// DetectFormat returns the FormatID for the given file, first by reading
// magic bytes and then refining by extension. Aperio slides are plain
// TIFF or BigTIFF on disk, so .svs is only recognised by extension.
func DetectFormat(path string) (FormatID, error) {
	f, err := os.Open(path)
	if err != nil {
		return FmtUnknown, err
	}
	defer f.Close()

	buf := make([]byte, 16)
	n, err := io.ReadFull(f, buf)
	if err != nil && n == 0 {
		return FmtUnknown, err
	}
	buf = buf[:n]

	id := detectMagic(buf)
	if id == FmtUnknown {
		return FmtUnknown, nil
	}

	dot := strings.LastIndex(path, ".")
	if dot >= 0 {
		if ext, ok := extMap[strings.ToLower(path[dot:])]; ok && ext == FmtSVS {
			return FmtSVS, nil
		}
	}
	return id, nil
}

func detectMagic(b []byte) FormatID {
	if len(b) < 4 {
		return FmtUnknown
	}
	switch {
	// TIFF: 49 49 2A 00 (little-endian) or 4D 4D 00 2A (big-endian)
	case bytes.HasPrefix(b, []byte{0x49, 0x49, 0x2A, 0x00}) ||
		bytes.HasPrefix(b, []byte{0x4D, 0x4D, 0x00, 0x2A}):
		return FmtTIFF
	// BigTIFF: 49 49 2B 00 or 4D 4D 00 2B
	case bytes.HasPrefix(b, []byte{0x49, 0x49, 0x2B, 0x00}) ||
		bytes.HasPrefix(b, []byte{0x4D, 0x4D, 0x00, 0x2B}):
		return FmtBigTIFF
	}
	return FmtUnknown
}

// MediaTypeFor returns the broad media category for a format.
func MediaTypeFor(id FormatID) string {
	switch id {
	case FmtSVS:
		return "slide"
	case FmtTIFF, FmtBigTIFF:
		return "image"
	default:
		return "unknown"
	}
}
