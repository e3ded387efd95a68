package redact

import (
	"fmt"
	"strings"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

type textEdit struct {
	page tiffio.Page
	tag  tiffio.Tag
	text string
}

// RewriteTagText replaces the value of the "|key = value" segment inside a
// text tag on the given pages, e.g. the Filename inside an Aperio
// ImageDescription.
//
// The old value is taken from the first listed page that carries the key;
// pages whose segment is missing or holds a different value are left
// alone. The new text, with its NUL terminator, must fit in the bytes the
// old value occupied. Any leftover storage is zeroed and the tag count is kept. All
// pages are checked before any is written.
func (e *Engine) RewriteTagText(f File, s *tiffio.Structure, pages []int, tagName, key, value string) error {
	id, ok := tiffio.TagID(tagName)
	if !ok {
		return fmt.Errorf("unknown text tag %q", tagName)
	}
	if strings.Contains(value, "|") {
		return fmt.Errorf("value %q contains the segment separator", value)
	}
	marker := "|" + key + " = "

	var edits []textEdit
	for _, i := range pages {
		if i < 0 || i >= len(s.Pages) {
			return fmt.Errorf("page %d out of range, file has %d pages", i, len(s.Pages))
		}
		page := s.Pages[i]
		tag, ok := page.Tag(id)
		if !ok {
			e.log.Debug("page has no such tag", "page", i, "tag", tagName)
			continue
		}
		if tag.Type != tiffio.TypeASCII {
			return fmt.Errorf("page %d: tag %d has type %d, not ASCII", i, id, tag.Type)
		}
		text, err := tiffio.ReadText(f, tag)
		if err != nil {
			return fmt.Errorf("page %d: %w", i, err)
		}
		edits = append(edits, textEdit{page: page, tag: tag, text: text})
	}

	var old string
	found := false
	for _, ed := range edits {
		if v, ok := segmentValue(ed.text, marker); ok {
			old, found = v, true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: %q in tag %s", ErrTokenNotFound, key, tagName)
	}

	var writes []textEdit
	for _, ed := range edits {
		text, n := replaceSegment(ed.text, marker, old, value)
		if n == 0 {
			if v, ok := segmentValue(ed.text, marker); ok {
				e.log.Warn("page carries a different value; skipped", "page", ed.page.Index, "key", key, "value", v)
			} else {
				e.log.Debug("page does not carry the value; skipped", "page", ed.page.Index, "key", key)
			}
			continue
		}
		if need := int64(len(text)) + 1; need > ed.tag.ByteLength {
			return fmt.Errorf("%w: page %d tag %d needs %d bytes, has %d: %s is rewritten in place and %q (%d bytes) does not fit where %q (%d bytes) was",
				ErrValueLengthMismatch, ed.page.Index, id, need, ed.tag.ByteLength, key, value, len(value), old, len(old))
		}
		if !s.Layout.Contains(ed.tag.ValueOffset, ed.tag.ByteLength) {
			return fmt.Errorf("%w: page %d tag %d at %d", ErrOutOfBounds, ed.page.Index, id, ed.tag.ValueOffset)
		}
		writes = append(writes, textEdit{page: ed.page, tag: ed.tag, text: text})
	}

	for _, w := range writes {
		buf := make([]byte, w.tag.ByteLength)
		copy(buf, w.text)
		if _, err := f.WriteAt(buf, w.tag.ValueOffset); err != nil {
			return fmt.Errorf("page %d: write tag %d at %d: %w", w.page.Index, id, w.tag.ValueOffset, err)
		}
		e.log.Info("rewrote tag value", "page", w.page.Index, "tag", tagName, "key", key)
	}
	return nil
}

// segmentValue returns the value that follows marker, up to the next '|'.
func segmentValue(text, marker string) (string, bool) {
	_, rest, ok := strings.Cut(text, marker)
	if !ok {
		return "", false
	}
	value, _, _ := strings.Cut(rest, "|")
	if value == "" {
		return "", false
	}
	return value, true
}

// replaceSegment replaces every whole "marker+old" segment of text, one
// that ends at '|' or at the end of the text, with marker+value.
func replaceSegment(text, marker, old, value string) (string, int) {
	var b strings.Builder
	n := 0
	for {
		i := strings.Index(text, marker)
		if i < 0 {
			b.WriteString(text)
			return b.String(), n
		}
		start := i + len(marker)
		end := start + strings.IndexByte(text[start:]+"|", '|')
		b.WriteString(text[:start])
		if text[start:end] == old {
			b.WriteString(value)
			n++
		} else {
			b.WriteString(text[start:end])
		}
		text = text[end:]
	}
}

// KeyValue returns the value of the "|key = value" segment of a text.
func KeyValue(text, key string) (string, bool) {
	return segmentValue(text, "|"+key+" = ")
}
