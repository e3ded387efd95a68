package redact

import (
	"fmt"
	"io"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

type span struct {
	off  int64
	n    int64
	what string
}

// plan collects every write of a removal so the whole set can be checked
// before the first byte changes. Writes never move data; they only zero
// existing ranges and rewrite one pointer.
type plan struct {
	spans      []span
	patchAt    int64
	patchValue uint64
}

func (p *plan) zero(s span) {
	if s.n > 0 {
		p.spans = append(p.spans, s)
	}
}

// bytes returns the number of bytes the plan zeroes.
func (p *plan) bytes() int64 {
	var n int64
	for _, s := range p.spans {
		n += s.n
	}
	return n
}

func (p *plan) check(l tiffio.Layout) error {
	for _, s := range p.spans {
		if !l.Contains(s.off, s.n) {
			return fmt.Errorf("%w: %s at %d+%d, file size %d", ErrOutOfBounds, s.what, s.off, s.n, l.Size)
		}
	}
	if !l.Contains(p.patchAt, int64(l.PointerWidth)) {
		return fmt.Errorf("%w: next pointer at %d, file size %d", ErrOutOfBounds, p.patchAt, l.Size)
	}
	return nil
}

// apply zeroes every span in order, then rewrites the predecessor pointer.
func (p *plan) apply(w io.WriterAt, l tiffio.Layout) error {
	for _, s := range p.spans {
		if err := zeroFill(w, s.off, s.n); err != nil {
			return fmt.Errorf("zero %s at %d: %w", s.what, s.off, err)
		}
	}
	raw := make([]byte, l.PointerWidth)
	l.PutUint(raw, p.patchValue)
	if _, err := w.WriteAt(raw, p.patchAt); err != nil {
		return fmt.Errorf("rewrite next pointer at %d: %w", p.patchAt, err)
	}
	return nil
}

// scrub plans zeroing the pixel strips and every tag value of a page. The
// strip table is read here, before anything is written, because zeroing
// the tag values destroys it.
func scrub(p *plan, r io.ReaderAt, l tiffio.Layout, page tiffio.Page) error {
	offTag, hasOff := page.Tag(tiffio.TagStripOffsets)
	cntTag, hasCnt := page.Tag(tiffio.TagStripByteCounts)
	if !hasOff || !hasCnt {
		layout := "no pixel data"
		if page.Tiled() {
			layout = "tiled"
		}
		return fmt.Errorf("%w: page %d at %d is %s, expected strips", ErrUnsupportedLayout, page.Index, page.Offset, layout)
	}

	offsets, err := tiffio.Values(r, l, offTag)
	if err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrUnsupportedLayout, page.Index, err)
	}
	counts, err := tiffio.Values(r, l, cntTag)
	if err != nil {
		return fmt.Errorf("%w: page %d: %v", ErrUnsupportedLayout, page.Index, err)
	}
	if len(offsets) != len(counts) {
		return fmt.Errorf("%w: page %d has %d strip offsets and %d byte counts",
			ErrUnsupportedLayout, page.Index, len(offsets), len(counts))
	}

	for i := range offsets {
		if offsets[i] > uint64(l.Size) || counts[i] > uint64(l.Size) {
			return fmt.Errorf("%w: page %d strip %d at %d+%d, file size %d",
				ErrOutOfBounds, page.Index, i, offsets[i], counts[i], l.Size)
		}
		p.zero(span{off: int64(offsets[i]), n: int64(counts[i]), what: fmt.Sprintf("strip %d", i)})
	}
	for _, t := range page.Tags {
		p.zero(span{off: t.ValueOffset, n: t.ByteLength, what: "value of " + tiffio.TagName(t.ID)})
	}
	return nil
}

var zeros [64 << 10]byte

func zeroFill(w io.WriterAt, off, n int64) error {
	for n > 0 {
		k := min(n, int64(len(zeros)))
		if _, err := w.WriteAt(zeros[:k], off); err != nil {
			return err
		}
		off += k
		n -= k
	}
	return nil
}
