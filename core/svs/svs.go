// Package svs handles whole-slide images stored as TIFF or BigTIFF:
// Aperio SVS slides and plain pyramidal TIFFs.
package svs

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
	"golang.org/x/exp/mmap"

	"github.com/ankit-chaubey/svs-surgery/core"
	"github.com/ankit-chaubey/svs-surgery/core/redact"
	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

// ──────────────────────────────────────────────────────────────────────────────
// Handler
// ──────────────────────────────────────────────────────────────────────────────

// exifMaxBytes caps the EXIF listing: goexif buffers the whole file.
const exifMaxBytes = 64 << 20

// maxFieldLen is the longest value listed by View, except for descriptions.
const maxFieldLen = 200

// Handler implements core.Handler for slide formats.
type Handler struct {
	format core.FormatID
	log    *slog.Logger
	engine *redact.Engine
}

// New returns a Handler for the given format.
func New(format core.FormatID, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{format: format, log: logger, engine: redact.New(logger)}
}

func (h *Handler) Info() core.FormatInfo {
	return formatInfo[h.format]
}

var formatInfo = map[core.FormatID]core.FormatInfo{
	core.FmtSVS: {
		Name:           "SVS",
		Extensions:     []string{".svs"},
		MediaType:      core.MediaTypeFor(core.FmtSVS),
		MIMETypes:      []string{"image/tiff"},
		CanView:        true,
		CanEdit:        true,
		CanStrip:       true,
		EditableFields: []string{"Filename"},
		Notes:          "Aperio whole-slide image. Strip removes label/macro pages in place; edit rewrites ImageDescription segments in place.",
	},
	core.FmtTIFF: {
		Name:           "TIFF",
		Extensions:     []string{".tiff", ".tif"},
		MediaType:      core.MediaTypeFor(core.FmtTIFF),
		MIMETypes:      []string{"image/tiff"},
		CanView:        true,
		CanEdit:        true,
		CanStrip:       true,
		EditableFields: []string{"Filename"},
		Notes:          "Multi-page TIFF. Associated images are found by page description.",
	},
	core.FmtBigTIFF: {
		Name:           "BigTIFF",
		Extensions:     []string{".btf", ".tf8", ".svs"},
		MediaType:      core.MediaTypeFor(core.FmtBigTIFF),
		MIMETypes:      []string{"image/tiff"},
		CanView:        true,
		CanEdit:        true,
		CanStrip:       true,
		EditableFields: []string{"Filename"},
		Notes:          "64-bit offset TIFF. EXIF listing is not available.",
	},
}

// Formats returns every format this package handles.
func Formats() []core.FormatID {
	return []core.FormatID{core.FmtSVS, core.FmtTIFF, core.FmtBigTIFF}
}

// ──────────────────────────────────────────────────────────────────────────────
// View
// ──────────────────────────────────────────────────────────────────────────────

func (h *Handler) View(path string) (*core.Metadata, error) {
	m := &core.Metadata{
		FilePath:  path,
		Format:    formatInfo[h.format].Name,
		MediaType: core.MediaTypeFor(h.format),
	}

	r, err := mmap.Open(path)
	if err != nil {
		return m, err
	}
	defer r.Close()

	size := int64(r.Len())
	s, err := tiffio.Read(r, size)
	if err != nil {
		return m, fmt.Errorf("could not parse TIFF IFDs: %w", err)
	}

	add := func(cat, k, v string, editable bool) {
		if len(v) > maxFieldLen && k != "ImageDescription" {
			return
		}
		m.Fields = append(m.Fields, core.MetaField{Key: k, Value: v, Category: cat, Editable: editable})
	}
	addOffset := func(cat, k string, v int64) {
		m.Fields = append(m.Fields, core.MetaField{Key: k, Value: fmt.Sprint(v), Category: cat, Raw: fmt.Sprintf("0x%x", v)})
	}

	layout := "classic TIFF"
	if s.Layout.BigTIFF {
		layout = "BigTIFF"
	}
	add("Slide", "Container", fmt.Sprintf("%s, %v", layout, s.Layout.ByteOrder), false)
	add("Slide", "Pages", fmt.Sprint(len(s.Pages)), false)
	if len(s.Pages) > 0 {
		add("Slide", "Variant", redact.Classify(s.Pages[0].Description).String(), false)
		if name, ok := redact.KeyValue(s.Pages[0].Description, "Filename"); ok {
			add("Slide", "Filename", name, true)
		}
	}

	for _, p := range s.Pages {
		cat := fmt.Sprintf("Page %d", p.Index)
		addOffset(cat, "Offset", p.Offset)
		add(cat, "Tags", fmt.Sprint(p.TagCount), false)
		if dims := dimensions(r, s.Layout, p); dims != "" {
			add(cat, "Dimensions", dims, false)
		}
		switch {
		case p.Striped():
			t, _ := p.Tag(tiffio.TagStripOffsets)
			add(cat, "Layout", fmt.Sprintf("%d strips", t.Count), false)
		case p.Tiled():
			t, _ := p.Tag(tiffio.TagTileOffsets)
			add(cat, "Layout", fmt.Sprintf("%d tiles", t.Count), false)
		}
		if p.Description != "" {
			add(cat, "ImageDescription", p.Description, p.Index < 2)
		}
	}

	if !s.Layout.BigTIFF && size <= exifMaxBytes {
		x, err := exif.Decode(io.NewSectionReader(r, 0, size))
		if err != nil {
			h.log.Debug("no EXIF fields", "path", path, "error", err)
		} else {
			x.Walk(exifWalker{m: m})
		}
	}
	return m, nil
}

func dimensions(r io.ReaderAt, l tiffio.Layout, p tiffio.Page) string {
	wt, ok1 := p.Tag(tiffio.TagImageWidth)
	ht, ok2 := p.Tag(tiffio.TagImageLength)
	if !ok1 || !ok2 {
		return ""
	}
	w, err1 := tiffio.Values(r, l, wt)
	ht2, err2 := tiffio.Values(r, l, ht)
	if err1 != nil || err2 != nil || len(w) == 0 || len(ht2) == 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", w[0], ht2[0])
}

type exifWalker struct {
	m *core.Metadata
}

func (w exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	val := tag.String()
	// Remove surrounding quotes from string values
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		val = val[1 : len(val)-1]
	}
	if len(val) > maxFieldLen && name != exif.ImageDescription {
		return nil
	}
	w.m.Fields = append(w.m.Fields, core.MetaField{
		Key:      string(name),
		Value:    val,
		Category: "EXIF",
	})
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Edit
// ──────────────────────────────────────────────────────────────────────────────

// Edit rewrites "|key = value" segments of a text tag on the leading pages.
func (h *Handler) Edit(path string, outPath string, opts core.EditOptions) (err error) {
	if len(opts.Set) == 0 {
		return fmt.Errorf("nothing to edit; supported keys: %s", strings.Join(formatInfo[h.format].EditableFields, ", "))
	}
	tag := opts.Tag
	if tag == "" {
		tag = "ImageDescription"
	}
	n := opts.Pages
	if n <= 0 {
		n = 2
	}
	keys := make([]string, 0, len(opts.Set))
	for k := range opts.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if opts.DryRun {
		for _, k := range keys {
			h.log.Info("dry run: would rewrite", "path", path, "tag", tag, "key", k, "value", opts.Set[k], "pages", n)
		}
		return nil
	}

	out := core.ResolveOutPath(path, outPath)
	if out != path {
		if err := core.CopyFile(path, out); err != nil {
			return err
		}
	}

	f, s, err := openStructure(out)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	pages := make([]int, 0, n)
	for i := 0; i < n && i < len(s.Pages); i++ {
		pages = append(pages, i)
	}
	for _, k := range keys {
		if err := h.engine.RewriteTagText(f, s, pages, tag, k, opts.Set[k]); err != nil {
			return fmt.Errorf("%s: rewrite %s: %w", out, k, err)
		}
	}
	return f.Sync()
}

// ──────────────────────────────────────────────────────────────────────────────
// Strip
// ──────────────────────────────────────────────────────────────────────────────

// Strip removes the requested associated images one kind at a time,
// re-reading the structure after each removal.
func (h *Handler) Strip(path string, outPath string, opts core.StripOptions) (removed []core.RemovedPage, err error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = []string{redact.KindLabel}
	}

	out := core.ResolveOutPath(path, outPath)
	if out != path {
		if err := core.CopyFile(path, out); err != nil {
			return nil, err
		}
	}

	f, s, err := openStructure(out)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	for i, kind := range kinds {
		if i > 0 {
			if s, err = readStructure(f); err != nil {
				return removed, err
			}
		}
		res, err := h.engine.RemovePage(f, s, kind)
		if err != nil {
			return removed, fmt.Errorf("%s: remove %s: %w", out, kind, err)
		}
		removed = append(removed, core.RemovedPage{
			Kind:    res.Kind,
			Variant: res.Variant.String(),
			Removed: res.Removed,
			Page:    res.PageIndex,
			Offset:  res.Offset,
			Bytes:   res.Scrubbed,
		})
	}
	return removed, f.Sync()
}

// openStructure opens path for reading and writing and parses it. The
// returned handle is the only one used for the whole operation.
func openStructure(path string) (*os.File, *tiffio.Structure, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, nil, err
	}
	s, err := readStructure(f)
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, s, nil
}

func readStructure(f *os.File) (*tiffio.Structure, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s, err := tiffio.Read(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name(), err)
	}
	return s, nil
}
