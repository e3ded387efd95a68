// Package core defines the shared types, interfaces, and format registry
// for SVS Surgery.
package core

// MetaField represents a single metadata key-value pair.
type MetaField struct {
	Key      string `json:"key"`           // Canonical field name (e.g. "ImageDescription", "Offset")
	Value    string `json:"value"`         // String representation of the value
	Category string `json:"category"`      // Category label (e.g. "Slide", "Page 2", "EXIF")
	Editable bool   `json:"editable"`      // Whether this field can be written back by surgery
	Raw      string `json:"raw,omitempty"` // Hex representation of offsets and sizes, shown with --verbose
}

// Metadata holds all metadata extracted from a single file.
type Metadata struct {
	FilePath  string      `json:"file"`
	Format    string      `json:"format"`     // Human-readable format name (e.g. "SVS", "BigTIFF")
	MediaType string      `json:"media_type"` // Broad category from MediaTypeFor
	Fields    []MetaField `json:"fields"`
}

// Summary returns a short string of key fields for quick display.
func (m *Metadata) Summary() string {
	for _, f := range m.Fields {
		if f.Key == "Variant" || f.Key == "Filename" {
			return f.Key + ": " + f.Value
		}
	}
	return m.Format
}

// StripOptions controls which associated images are removed.
type StripOptions struct {
	// Kinds lists the associated images to remove, in order
	// (e.g. "label", "macro"). Empty means label only.
	Kinds []string
}

// EditOptions holds field changes for an edit operation.
type EditOptions struct {
	// Set maps a description key (e.g. "Filename") to its new value.
	Set map[string]string
	// Tag is the text tag holding the key/value segments.
	// Empty means ImageDescription.
	Tag string
	// Pages is the number of leading pages to rewrite. Zero means 2.
	Pages int
	// DryRun previews changes without writing.
	DryRun bool
}

// RemovedPage reports what a strip operation did for one kind.
type RemovedPage struct {
	Kind    string `json:"kind"`
	Variant string `json:"variant"`
	Removed bool   `json:"removed"`
	Page    int    `json:"page"`
	Offset  int64  `json:"offset"`
	Bytes   int64  `json:"bytes_zeroed"`
}

// FormatInfo describes what a format handler supports.
type FormatInfo struct {
	Name           string   // "SVS"
	Extensions     []string // [".svs"]
	MediaType      string   // "slide" | "image"
	MIMETypes      []string
	CanView        bool
	CanEdit        bool
	CanStrip       bool
	EditableFields []string // Names of fields the handler can write
	Notes          string   // Any caveats or notes
}

// Handler is the interface every format must implement.
type Handler interface {
	// View reads and returns all discoverable metadata from path.
	View(path string) (*Metadata, error)
	// Edit writes new/updated fields into path, saving to outPath.
	// outPath == "" means in-place edit.
	Edit(path string, outPath string, opts EditOptions) error
	// Strip removes associated images from path, saving to outPath.
	// outPath == "" means in-place.
	Strip(path string, outPath string, opts StripOptions) ([]RemovedPage, error)
	// Info returns format capabilities.
	Info() FormatInfo
}
