// Package tifftest builds small synthetic TIFF and BigTIFF files in memory
// and records where every structure was placed, so tests can assert on
// exact byte ranges after a file is modified.
package tifftest

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
)

// Page describes one page to build.
type Page struct {
	Description string
	// Strips holds the pixel runs of the page. With Tiled set they are
	// written as tiles instead.
	Strips [][]byte
	Tiled  bool
	// NoPixels omits both strip and tile tags.
	NoPixels bool
}

// Span is a byte range of the built file.
type Span struct {
	Offset int64
	Length int64
}

// PageInfo records where the builder placed one page.
type PageInfo struct {
	Offset    int64
	NextField int64
	// Header spans the tag-count field, the tag records and the next pointer.
	Header Span
	Strips []Span
	// Values holds the out-of-line tag value blocks.
	Values []Span
}

// File is a built file together with its placement records.
type File struct {
	Data  []byte
	Order binary.ByteOrder
	Big   bool
	Pages []PageInfo
}

type entry struct {
	id    uint16
	typ   uint16
	count uint64
	value []byte
}

type builder struct {
	order binary.ByteOrder
	big   bool
	buf   []byte
}

func (b *builder) pw() int {
	if b.big {
		return 8
	}
	return 4
}

func (b *builder) align() {
	if len(b.buf)%2 == 1 {
		b.buf = append(b.buf, 0)
	}
}

func (b *builder) putUint(v uint64, width int) []byte {
	out := make([]byte, width)
	switch width {
	case 2:
		b.order.PutUint16(out, uint16(v))
	case 4:
		b.order.PutUint32(out, uint32(v))
	case 8:
		b.order.PutUint64(out, v)
	}
	return out
}

func (b *builder) offsets(vals []uint64) (uint16, []byte) {
	typ, width := uint16(4), 4
	if b.big {
		typ, width = 16, 8
	}
	var out []byte
	for _, v := range vals {
		out = append(out, b.putUint(v, width)...)
	}
	return typ, out
}

// Build lays out a file with the given pages chained in order.
func Build(order binary.ByteOrder, big bool, pages ...Page) *File {
	b := &builder{order: order, big: big}
	if order == binary.BigEndian {
		b.buf = append(b.buf, 'M', 'M')
	} else {
		b.buf = append(b.buf, 'I', 'I')
	}

	var prevNext int64
	if big {
		b.buf = append(b.buf, b.putUint(43, 2)...)
		b.buf = append(b.buf, b.putUint(8, 2)...)
		b.buf = append(b.buf, b.putUint(0, 2)...)
		prevNext = int64(len(b.buf))
		b.buf = append(b.buf, make([]byte, 8)...)
	} else {
		b.buf = append(b.buf, b.putUint(42, 2)...)
		prevNext = int64(len(b.buf))
		b.buf = append(b.buf, make([]byte, 4)...)
	}

	f := &File{Order: order, Big: big}
	for i, p := range pages {
		var info PageInfo

		var stripOffsets, stripCounts []uint64
		for _, s := range p.Strips {
			b.align()
			stripOffsets = append(stripOffsets, uint64(len(b.buf)))
			stripCounts = append(stripCounts, uint64(len(s)))
			info.Strips = append(info.Strips, Span{int64(len(b.buf)), int64(len(s))})
			b.buf = append(b.buf, s...)
		}

		entries := []entry{
			{id: 256, typ: 4, count: 1, value: b.putUint(uint64(64+i), 4)},
			{id: 257, typ: 4, count: 1, value: b.putUint(uint64(32+i), 4)},
		}
		if p.Description != "" {
			text := append([]byte(p.Description), 0)
			entries = append(entries, entry{id: 270, typ: 2, count: uint64(len(text)), value: text})
		}
		if !p.NoPixels {
			offID, cntID := uint16(273), uint16(279)
			if p.Tiled {
				offID, cntID = 324, 325
				entries = append(entries,
					entry{id: 322, typ: 3, count: 1, value: b.putUint(16, 2)},
					entry{id: 323, typ: 3, count: 1, value: b.putUint(16, 2)},
				)
			}
			typ, raw := b.offsets(stripOffsets)
			entries = append(entries, entry{id: offID, typ: typ, count: uint64(len(stripOffsets)), value: raw})
			typ, raw = b.offsets(stripCounts)
			entries = append(entries, entry{id: cntID, typ: typ, count: uint64(len(stripCounts)), value: raw})
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })

		// Out-of-line values go before the IFD.
		fields := make([][]byte, len(entries))
		for j, e := range entries {
			if len(e.value) <= b.pw() {
				field := make([]byte, b.pw())
				copy(field, e.value)
				fields[j] = field
				continue
			}
			b.align()
			at := int64(len(b.buf))
			info.Values = append(info.Values, Span{at, int64(len(e.value))})
			b.buf = append(b.buf, e.value...)
			fields[j] = b.putUint(uint64(at), b.pw())
		}

		b.align()
		info.Offset = int64(len(b.buf))
		copy(b.buf[prevNext:], b.putUint(uint64(info.Offset), b.pw()))

		countWidth := 2
		if big {
			countWidth = 8
		}
		b.buf = append(b.buf, b.putUint(uint64(len(entries)), countWidth)...)
		for j, e := range entries {
			b.buf = append(b.buf, b.putUint(uint64(e.id), 2)...)
			b.buf = append(b.buf, b.putUint(uint64(e.typ), 2)...)
			b.buf = append(b.buf, b.putUint(e.count, b.pw())...)
			b.buf = append(b.buf, fields[j]...)
		}
		info.NextField = int64(len(b.buf))
		prevNext = info.NextField
		b.buf = append(b.buf, make([]byte, b.pw())...)
		info.Header = Span{info.Offset, int64(len(b.buf)) - info.Offset}

		f.Pages = append(f.Pages, info)
	}
	f.Data = b.buf
	return f
}

// Pointer decodes the next-IFD pointer stored at the given position.
func (f *File) Pointer(data []byte, at int64) uint64 {
	if f.Big {
		return f.Order.Uint64(data[at : at+8])
	}
	return uint64(f.Order.Uint32(data[at : at+4]))
}

// Strip returns n bytes of a recognizable non-zero pattern.
func Strip(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = seed + byte(i%13) + 1
		if out[i] == 0 {
			out[i] = 1
		}
	}
	return out
}

// Buffer is an in-memory read/write file. Writes past the end grow it, as
// they would on disk, so tests can detect any change of length.
type Buffer struct {
	Data []byte
}

// NewBuffer returns a Buffer over a copy of data.
func NewBuffer(data []byte) *Buffer {
	return &Buffer{Data: append([]byte(nil), data...)}
}

func (b *Buffer) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("tifftest: negative offset %d", off)
	}
	if off >= int64(len(b.Data)) {
		return 0, io.EOF
	}
	n := copy(p, b.Data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, fmt.Errorf("tifftest: negative offset %d", off)
	}
	if end := off + int64(len(p)); end > int64(len(b.Data)) {
		b.Data = append(b.Data, make([]byte, end-int64(len(b.Data)))...)
	}
	return copy(b.Data[off:], p), nil
}

// Size reports the current length of the buffer.
func (b *Buffer) Size() int64 { return int64(len(b.Data)) }

// AllZero reports whether every byte in s is zero.
func AllZero(data []byte, s Span) bool {
	for _, c := range data[s.Offset : s.Offset+s.Length] {
		if c != 0 {
			return false
		}
	}
	return true
}
