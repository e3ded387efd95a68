package deid

import (
	"fmt"
	"os"
	"strings"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

// maxValueLen is the longest value kept by ReadMetadata, except for
// ImageDescription.
const maxValueLen = 200

// PageMetadata maps tag names to printable values for one page.
type PageMetadata map[string]string

// ReadMetadata lists the tags of every page of the file at path. Long
// values other than ImageDescription are left out, and so are values of
// types that are not text or unsigned integers.
func ReadMetadata(path string) ([]PageMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	s, err := tiffio.Read(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	out := make([]PageMetadata, 0, len(s.Pages))
	for _, p := range s.Pages {
		m := PageMetadata{}
		for _, t := range p.Tags {
			name := tiffio.TagName(t.ID)
			value, ok := tagValue(f, s.Layout, t)
			if !ok {
				continue
			}
			if len(value) > maxValueLen && t.ID != tiffio.TagImageDescription {
				continue
			}
			m[name] = value
		}
		out = append(out, m)
	}
	return out, nil
}

func tagValue(f *os.File, l tiffio.Layout, t tiffio.Tag) (string, bool) {
	if t.Type == tiffio.TypeASCII {
		text, err := tiffio.ReadText(f, t)
		return text, err == nil
	}
	values, err := tiffio.Values(f, l, t)
	if err != nil {
		return "", false
	}
	if len(values) == 1 {
		return fmt.Sprint(values[0]), true
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return "(" + strings.Join(parts, ", ") + ")", true
}
