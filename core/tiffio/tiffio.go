// Package tiffio reads the directory structure of classic TIFF and BigTIFF
// containers (including Aperio SVS slides) without decoding any pixels.
//
// It reports, for every page in the IFD chain, the page offset, its tag
// table with the file location and byte length of every tag value, and the
// decoded ImageDescription. The Layout it returns carries the field widths
// that differ between classic and BigTIFF files.
package tiffio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// https://www.loc.gov/preservation/digital/formats/content/tiff_tags.shtml
const (
	TagNewSubfileType            = 254
	TagImageWidth                = 256
	TagImageLength               = 257
	TagBitsPerSample             = 258
	TagCompression               = 259
	TagPhotometricInterpretation = 262
	TagDocumentName              = 269
	TagImageDescription          = 270
	TagMake                      = 271
	TagModel                     = 272
	TagStripOffsets              = 273
	TagSamplesPerPixel           = 277
	TagRowsPerStrip              = 278
	TagStripByteCounts           = 279
	TagPageName                  = 285
	TagSoftware                  = 305
	TagDateTime                  = 306
	TagArtist                    = 315
	TagHostComputer              = 316
	TagTileWidth                 = 322
	TagTileLength                = 323
	TagTileOffsets               = 324
	TagTileByteCounts            = 325
	TagCopyright                 = 33432
)

// Field types. 16-18 only occur in BigTIFF files.
const (
	TypeByte      = 1
	TypeASCII     = 2
	TypeShort     = 3
	TypeLong      = 4
	TypeRational  = 5
	TypeSByte     = 6
	TypeUndefined = 7
	TypeSShort    = 8
	TypeSLong     = 9
	TypeSRational = 10
	TypeFloat     = 11
	TypeDouble    = 12
	TypeIFD       = 13
	TypeLong8     = 16
	TypeSLong8    = 17
	TypeIFD8      = 18
)

const (
	versionClassic = 42
	versionBig     = 43

	// MaxPages bounds the chain walk so a corrupt file cannot make it run forever.
	MaxPages = 1 << 16
)

var (
	ErrInvalidHeader   = errors.New("invalid TIFF header")
	ErrLoop            = errors.New("IFD chain loops back on itself")
	ErrCorrupt         = errors.New("corrupt TIFF structure")
	ErrUnsupportedType = errors.New("unsupported field type")
)

// Layout resolves the format-dependent widths of a file.
type Layout struct {
	ByteOrder binary.ByteOrder
	BigTIFF   bool

	// CountWidth is the width of the tag-count field that opens every IFD.
	CountWidth int
	// RecordWidth is the width of one tag record.
	RecordWidth int
	// PointerWidth is the width of offsets, of the next-IFD pointer and of
	// the value field inside a tag record.
	PointerWidth int

	FirstIFD int64
	Size     int64
}

// TerminalPointer marks the last IFD in the chain.
const TerminalPointer = 0

// Uint decodes an unsigned integer of len(b) bytes (2, 4 or 8).
func (l Layout) Uint(b []byte) uint64 {
	switch len(b) {
	case 2:
		return uint64(l.ByteOrder.Uint16(b))
	case 4:
		return uint64(l.ByteOrder.Uint32(b))
	case 8:
		return l.ByteOrder.Uint64(b)
	}
	panic(fmt.Sprintf("tiffio: unsupported integer width %d", len(b)))
}

// PutUint encodes v into len(b) bytes (2, 4 or 8).
func (l Layout) PutUint(b []byte, v uint64) {
	switch len(b) {
	case 2:
		l.ByteOrder.PutUint16(b, uint16(v))
	case 4:
		l.ByteOrder.PutUint32(b, uint32(v))
	case 8:
		l.ByteOrder.PutUint64(b, v)
	default:
		panic(fmt.Sprintf("tiffio: unsupported integer width %d", len(b)))
	}
}

// HeaderSpan returns the number of bytes an IFD with n tags occupies,
// from its count field through the end of its next pointer.
func (l Layout) HeaderSpan(n uint64) int64 {
	return int64(l.CountWidth) + int64(n)*int64(l.RecordWidth) + int64(l.PointerWidth)
}

// Contains reports whether the n bytes at off lie inside the file. It
// never adds off and n, so offsets near the int64 limit cannot wrap.
func (l Layout) Contains(off, n int64) bool {
	return off >= 0 && n >= 0 && off <= l.Size && n <= l.Size-off
}

// Tag is one entry of a page's tag table.
type Tag struct {
	ID    uint16
	Type  uint16
	Count uint64

	// ValueOffset is where the value bytes live: inside the tag record
	// when they fit in PointerWidth bytes, otherwise the out-of-line block.
	ValueOffset int64
	// ByteLength is Count times the size of Type, or 0 for unknown types.
	ByteLength int64
	// Inline reports whether the value is stored inside the tag record.
	Inline bool
}

// Page is one IFD in the chain.
type Page struct {
	Index       int
	Offset      int64
	TagCount    uint64
	Tags        []Tag
	Next        uint64
	Description string
}

// Tag returns the tag with the given id.
func (p Page) Tag(id uint16) (Tag, bool) {
	for _, t := range p.Tags {
		if t.ID == id {
			return t, true
		}
	}
	return Tag{}, false
}

// Striped reports whether the page stores its pixels in strips.
func (p Page) Striped() bool {
	_, off := p.Tag(TagStripOffsets)
	_, cnt := p.Tag(TagStripByteCounts)
	return off && cnt
}

// Tiled reports whether the page stores its pixels in tiles.
func (p Page) Tiled() bool {
	_, off := p.Tag(TagTileOffsets)
	return off
}

// Structure is the parsed directory structure of a file.
type Structure struct {
	Layout Layout
	Pages  []Page
}

// Read parses the header and walks the whole IFD chain of a file of the
// given size.
func Read(r io.ReaderAt, size int64) (*Structure, error) {
	layout, err := readHeader(r, size)
	if err != nil {
		return nil, err
	}

	s := &Structure{Layout: layout}
	seen := make(map[int64]bool)
	off := layout.FirstIFD
	for off != TerminalPointer {
		if seen[off] {
			return nil, fmt.Errorf("%w: page %d at offset %d", ErrLoop, len(s.Pages), off)
		}
		if len(s.Pages) >= MaxPages {
			return nil, fmt.Errorf("%w: more than %d pages", ErrCorrupt, MaxPages)
		}
		seen[off] = true

		page, err := readPage(r, layout, off, len(s.Pages))
		if err != nil {
			return nil, err
		}
		s.Pages = append(s.Pages, page)
		if page.Next > uint64(size) {
			return nil, fmt.Errorf("%w: page %d points past end of file (%d)", ErrCorrupt, page.Index, page.Next)
		}
		off = int64(page.Next)
	}
	return s, nil
}

func readHeader(r io.ReaderAt, size int64) (Layout, error) {
	if size < 8 {
		return Layout{}, ErrInvalidHeader
	}
	header := make([]byte, 16)
	n, err := r.ReadAt(header, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return Layout{}, err
	}
	header = header[:n]
	if len(header) < 8 {
		return Layout{}, ErrInvalidHeader
	}

	var bo binary.ByteOrder
	switch string(header[0:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return Layout{}, ErrInvalidHeader
	}

	l := Layout{ByteOrder: bo, Size: size}
	switch bo.Uint16(header[2:4]) {
	case versionClassic:
		l.CountWidth, l.RecordWidth, l.PointerWidth = 2, 12, 4
		l.FirstIFD = int64(bo.Uint32(header[4:8]))
	case versionBig:
		if len(header) < 16 || bo.Uint16(header[4:6]) != 8 || bo.Uint16(header[6:8]) != 0 {
			return Layout{}, ErrInvalidHeader
		}
		l.BigTIFF = true
		l.CountWidth, l.RecordWidth, l.PointerWidth = 8, 20, 8
		first := bo.Uint64(header[8:16])
		if first > uint64(size) {
			return Layout{}, fmt.Errorf("%w: first IFD offset %d past end of file", ErrCorrupt, first)
		}
		l.FirstIFD = int64(first)
	default:
		return Layout{}, ErrInvalidHeader
	}
	if l.FirstIFD > size {
		return Layout{}, fmt.Errorf("%w: first IFD offset %d past end of file", ErrCorrupt, l.FirstIFD)
	}
	return l, nil
}

func readPage(r io.ReaderAt, l Layout, off int64, index int) (Page, error) {
	countRaw := make([]byte, l.CountWidth)
	if _, err := r.ReadAt(countRaw, off); err != nil {
		return Page{}, fmt.Errorf("page %d: read tag count at %d: %w", index, off, err)
	}
	numTags := l.Uint(countRaw)
	if numTags > uint64(l.Size) || !l.Contains(off, l.HeaderSpan(numTags)) {
		return Page{}, fmt.Errorf("%w: page %d at %d declares %d tags beyond end of file", ErrCorrupt, index, off, numTags)
	}

	table := make([]byte, int64(numTags)*int64(l.RecordWidth)+int64(l.PointerWidth))
	tableOff := off + int64(l.CountWidth)
	if _, err := r.ReadAt(table, tableOff); err != nil {
		return Page{}, fmt.Errorf("page %d: read tag table at %d: %w", index, tableOff, err)
	}

	page := Page{
		Index:    index,
		Offset:   off,
		TagCount: numTags,
		Tags:     make([]Tag, 0, numTags),
	}
	pw := l.PointerWidth
	for i := 0; i < int(numTags); i++ {
		entry := table[i*l.RecordWidth : (i+1)*l.RecordWidth]
		t := Tag{
			ID:    l.ByteOrder.Uint16(entry[0:2]),
			Type:  l.ByteOrder.Uint16(entry[2:4]),
			Count: l.Uint(entry[4 : 4+pw]),
		}
		if size, ok := TypeSize(t.Type); ok {
			if t.Count > uint64(l.Size) {
				return Page{}, fmt.Errorf("%w: page %d tag %d count %d", ErrCorrupt, index, t.ID, t.Count)
			}
			t.ByteLength = int64(t.Count) * int64(size)
		}
		if t.ByteLength <= int64(pw) {
			t.Inline = true
			t.ValueOffset = tableOff + int64(i*l.RecordWidth) + 4 + int64(pw)
		} else {
			t.ValueOffset = int64(l.Uint(entry[4+pw : 4+2*pw]))
			if !l.Contains(t.ValueOffset, t.ByteLength) {
				return Page{}, fmt.Errorf("%w: page %d tag %d value at %d+%d outside file",
					ErrCorrupt, index, t.ID, t.ValueOffset, t.ByteLength)
			}
		}
		page.Tags = append(page.Tags, t)
	}
	page.Next = l.Uint(table[len(table)-pw:])

	if t, ok := page.Tag(TagImageDescription); ok {
		text, err := ReadText(r, t)
		if err != nil {
			return Page{}, fmt.Errorf("page %d: %w", index, err)
		}
		page.Description = text
	}
	return page, nil
}

// TypeSize returns the byte size of one value of the given field type.
func TypeSize(typ uint16) (int, bool) {
	switch typ {
	case TypeByte, TypeASCII, TypeSByte, TypeUndefined:
		return 1, true
	case TypeShort, TypeSShort:
		return 2, true
	case TypeLong, TypeSLong, TypeFloat, TypeIFD:
		return 4, true
	case TypeRational, TypeSRational, TypeDouble, TypeLong8, TypeSLong8, TypeIFD8:
		return 8, true
	}
	return 0, false
}

// ReadText returns an ASCII tag value up to its first NUL.
func ReadText(r io.ReaderAt, t Tag) (string, error) {
	raw, err := ReadRaw(r, t)
	if err != nil {
		return "", err
	}
	for i, b := range raw {
		if b == 0 {
			return string(raw[:i]), nil
		}
	}
	return string(raw), nil
}

// ReadRaw returns the stored value bytes of a tag.
func ReadRaw(r io.ReaderAt, t Tag) ([]byte, error) {
	buf := make([]byte, t.ByteLength)
	if len(buf) == 0 {
		return buf, nil
	}
	if _, err := r.ReadAt(buf, t.ValueOffset); err != nil {
		return nil, fmt.Errorf("read tag %d value at %d: %w", t.ID, t.ValueOffset, err)
	}
	return buf, nil
}

// Values decodes an unsigned integer array tag such as StripOffsets.
func Values(r io.ReaderAt, l Layout, t Tag) ([]uint64, error) {
	var width int
	switch t.Type {
	case TypeByte:
		width = 1
	case TypeShort:
		width = 2
	case TypeLong, TypeIFD:
		width = 4
	case TypeLong8, TypeIFD8:
		width = 8
	default:
		return nil, fmt.Errorf("%w: tag %d has type %d", ErrUnsupportedType, t.ID, t.Type)
	}

	buf, err := ReadRaw(r, t)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, t.Count)
	for i := range out {
		b := buf[i*width : (i+1)*width]
		if width == 1 {
			out[i] = uint64(b[0])
			continue
		}
		out[i] = l.Uint(b)
	}
	return out, nil
}
