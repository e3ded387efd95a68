package redact

import "strings"

// Variant is the SVS flavour, decided from the description of page 0.
type Variant int

const (
	// OldStyle files name their label and macro pages in the description.
	// Unrecognised scanners fall here too.
	OldStyle Variant = iota
	// ClassicAperio files are written by the Aperio Image Library and also
	// name their associated images in the description.
	ClassicAperio
	// GT450 files keep the label and macro as the last two pages, with no
	// telling description.
	GT450
)

const (
	classicMarker = "Aperio Image Library"
	gt450Marker   = "Aperio Leica Biosystems GT450"
)

func (v Variant) String() string {
	switch v {
	case OldStyle:
		return "old-style"
	case ClassicAperio:
		return "Aperio Image Library"
	case GT450:
		return "Aperio Leica Biosystems GT450"
	}
	return "unknown"
}

// Classify picks the variant from the description text of page 0.
func Classify(description string) Variant {
	switch {
	case strings.Contains(description, classicMarker):
		return ClassicAperio
	case strings.Contains(description, gt450Marker):
		return GT450
	default:
		return OldStyle
	}
}
