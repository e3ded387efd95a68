package tiffio_test

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
	"github.com/ankit-chaubey/svs-surgery/core/tiffio/tifftest"
)

func TestReadLayouts(t *testing.T) {
	cases := []struct {
		name       string
		order      binary.ByteOrder
		big        bool
		countWidth int
		record     int
		pointer    int
	}{
		{"classic little endian", binary.LittleEndian, false, 2, 12, 4},
		{"classic big endian", binary.BigEndian, false, 2, 12, 4},
		{"bigtiff little endian", binary.LittleEndian, true, 8, 20, 8},
		{"bigtiff big endian", binary.BigEndian, true, 8, 20, 8},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := tifftest.Build(c.order, c.big,
				tifftest.Page{Description: "Aperio Image Library v12.0.5\r\nbase", Strips: [][]byte{tifftest.Strip(40, 1), tifftest.Strip(24, 2)}},
				tifftest.Page{Description: "label 387x463", Strips: [][]byte{tifftest.Strip(30, 3)}},
			)

			s, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data)))
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			l := s.Layout
			if l.BigTIFF != c.big || l.CountWidth != c.countWidth || l.RecordWidth != c.record || l.PointerWidth != c.pointer {
				t.Fatalf("unexpected layout %+v", l)
			}
			if len(s.Pages) != 2 {
				t.Fatalf("expected 2 pages, got %d", len(s.Pages))
			}
			for i, p := range s.Pages {
				if p.Offset != f.Pages[i].Offset {
					t.Errorf("page %d: offset %d, want %d", i, p.Offset, f.Pages[i].Offset)
				}
				if p.Index != i {
					t.Errorf("page %d: index %d", i, p.Index)
				}
			}
			if s.Pages[1].Description != "label 387x463" {
				t.Errorf("description = %q", s.Pages[1].Description)
			}
			if s.Pages[0].Next != uint64(f.Pages[1].Offset) || s.Pages[1].Next != tiffio.TerminalPointer {
				t.Errorf("unexpected next pointers %d, %d", s.Pages[0].Next, s.Pages[1].Next)
			}
		})
	}
}

func TestStripValues(t *testing.T) {
	for _, big := range []bool{false, true} {
		f := tifftest.Build(binary.LittleEndian, big,
			tifftest.Page{Description: "base", Strips: [][]byte{tifftest.Strip(10, 1), tifftest.Strip(20, 2), tifftest.Strip(30, 3)}},
		)
		r := bytes.NewReader(f.Data)
		s, err := tiffio.Read(r, int64(len(f.Data)))
		if err != nil {
			t.Fatalf("big=%v: Read: %v", big, err)
		}
		p := s.Pages[0]
		if !p.Striped() || p.Tiled() {
			t.Fatalf("big=%v: expected striped page", big)
		}

		offTag, _ := p.Tag(tiffio.TagStripOffsets)
		cntTag, _ := p.Tag(tiffio.TagStripByteCounts)
		offsets, err := tiffio.Values(r, s.Layout, offTag)
		if err != nil {
			t.Fatalf("big=%v: offsets: %v", big, err)
		}
		counts, err := tiffio.Values(r, s.Layout, cntTag)
		if err != nil {
			t.Fatalf("big=%v: counts: %v", big, err)
		}
		for i, span := range f.Pages[0].Strips {
			if offsets[i] != uint64(span.Offset) || counts[i] != uint64(span.Length) {
				t.Errorf("big=%v strip %d: got (%d,%d), want (%d,%d)", big, i, offsets[i], counts[i], span.Offset, span.Length)
			}
		}
	}
}

func TestInlineValueLocation(t *testing.T) {
	// "label\x00" fits in the 8-byte BigTIFF value field but not in the
	// 4-byte classic one.
	for _, big := range []bool{false, true} {
		f := tifftest.Build(binary.LittleEndian, big, tifftest.Page{Description: "label", NoPixels: true})
		s, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data)))
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		tag, ok := s.Pages[0].Tag(tiffio.TagImageDescription)
		if !ok {
			t.Fatal("missing ImageDescription")
		}
		if tag.Inline != big {
			t.Errorf("big=%v: inline=%v", big, tag.Inline)
		}
		header := f.Pages[0].Header
		inHeader := tag.ValueOffset >= header.Offset && tag.ValueOffset+tag.ByteLength <= header.Offset+header.Length
		if inHeader != big {
			t.Errorf("big=%v: value at %d, header %+v", big, tag.ValueOffset, header)
		}
		if got := string(f.Data[tag.ValueOffset : tag.ValueOffset+5]); got != "label" {
			t.Errorf("big=%v: value bytes %q", big, got)
		}
	}
}

func TestReadRejectsBadInput(t *testing.T) {
	t.Run("not a tiff", func(t *testing.T) {
		data := []byte("\x89PNG\r\n\x1a\n0000000000")
		if _, err := tiffio.Read(bytes.NewReader(data), int64(len(data))); !errors.Is(err, tiffio.ErrInvalidHeader) {
			t.Fatalf("expected ErrInvalidHeader, got %v", err)
		}
	})

	t.Run("loop", func(t *testing.T) {
		f := tifftest.Build(binary.LittleEndian, false,
			tifftest.Page{Description: "a", NoPixels: true},
			tifftest.Page{Description: "b", NoPixels: true},
		)
		binary.LittleEndian.PutUint32(f.Data[f.Pages[1].NextField:], uint32(f.Pages[0].Offset))
		if _, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data))); !errors.Is(err, tiffio.ErrLoop) {
			t.Fatalf("expected ErrLoop, got %v", err)
		}
	})

	t.Run("pointer past end", func(t *testing.T) {
		f := tifftest.Build(binary.LittleEndian, false, tifftest.Page{Description: "a", NoPixels: true})
		binary.LittleEndian.PutUint32(f.Data[f.Pages[0].NextField:], uint32(len(f.Data)+100))
		if _, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data))); !errors.Is(err, tiffio.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("value offset near int64 limit", func(t *testing.T) {
		f := tifftest.Build(binary.LittleEndian, true, tifftest.Page{Description: "a", NoPixels: true})
		// First record is ImageWidth; widen it to LONG[100] stored out of line.
		rec := f.Pages[0].Offset + 8
		binary.LittleEndian.PutUint64(f.Data[rec+4:], 100)
		binary.LittleEndian.PutUint64(f.Data[rec+12:], math.MaxInt64-100)
		if _, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data))); !errors.Is(err, tiffio.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt, got %v", err)
		}
	})

	t.Run("tag table past end", func(t *testing.T) {
		f := tifftest.Build(binary.LittleEndian, false, tifftest.Page{Description: "a", NoPixels: true})
		binary.LittleEndian.PutUint16(f.Data[f.Pages[0].Offset:], 5000)
		if _, err := tiffio.Read(bytes.NewReader(f.Data), int64(len(f.Data))); !errors.Is(err, tiffio.ErrCorrupt) {
			t.Fatalf("expected ErrCorrupt, got %v", err)
		}
	})
}

func TestLayoutContains(t *testing.T) {
	l := tiffio.Layout{Size: 1000}
	cases := []struct {
		off, n int64
		want   bool
	}{
		{0, 1000, true},
		{999, 1, true},
		{1000, 0, true},
		{999, 2, false},
		{-1, 1, false},
		{10, -1, false},
		{math.MaxInt64 - 100, 400, false},
		{400, math.MaxInt64, false},
	}
	for _, c := range cases {
		if got := l.Contains(c.off, c.n); got != c.want {
			t.Errorf("Contains(%d, %d) = %v, want %v", c.off, c.n, got, c.want)
		}
	}
}

func TestTagNames(t *testing.T) {
	id, ok := tiffio.TagID("ImageDescription")
	if !ok || id != tiffio.TagImageDescription {
		t.Fatalf("TagID(ImageDescription) = %d, %v", id, ok)
	}
	if _, ok := tiffio.TagID("StripOffsets"); ok {
		t.Error("StripOffsets should not be addressable as a text tag")
	}
	if got := tiffio.TagName(tiffio.TagStripByteCounts); got != "StripByteCounts" {
		t.Errorf("TagName = %q", got)
	}
	if got := tiffio.TagName(65000); got != "Tag65000" {
		t.Errorf("TagName = %q", got)
	}
}
