package redact

import (
	"fmt"
	"io"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

// ChainEntry locates the next pointer of one IFD.
type ChainEntry struct {
	Offset    int64
	NextField int64
	Next      uint64
}

// ChainIndex holds one entry per page, in chain order.
type ChainIndex []ChainEntry

// WalkChain rebuilds the chain index straight from the file bytes. For
// every page it reads the tag count, skips the tag records and records
// where the next pointer sits and what it holds.
func WalkChain(r io.ReaderAt, l tiffio.Layout, pages []tiffio.Page) (ChainIndex, error) {
	idx := make(ChainIndex, 0, len(pages))
	countRaw := make([]byte, l.CountWidth)
	pointerRaw := make([]byte, l.PointerWidth)
	for _, p := range pages {
		if _, err := r.ReadAt(countRaw, p.Offset); err != nil {
			return nil, fmt.Errorf("page %d: read tag count at %d: %w", p.Index, p.Offset, err)
		}
		numTags := l.Uint(countRaw)
		if numTags > uint64(l.Size) {
			return nil, fmt.Errorf("%w: page %d at %d declares %d tags", ErrBrokenChain, p.Index, p.Offset, numTags)
		}
		nextField := p.Offset + int64(l.CountWidth) + int64(numTags)*int64(l.RecordWidth)
		if _, err := r.ReadAt(pointerRaw, nextField); err != nil {
			return nil, fmt.Errorf("page %d: read next pointer at %d: %w", p.Index, nextField, err)
		}
		idx = append(idx, ChainEntry{
			Offset:    p.Offset,
			NextField: nextField,
			Next:      l.Uint(pointerRaw),
		})
	}
	return idx, nil
}

// Validate checks that the chain starts at the first IFD and that every
// non-terminal pointer lands on a page.
func (c ChainIndex) Validate(l tiffio.Layout) error {
	if len(c) == 0 {
		return nil
	}
	if c[0].Offset != l.FirstIFD {
		return fmt.Errorf("%w: first page at %d, header points to %d", ErrBrokenChain, c[0].Offset, l.FirstIFD)
	}
	known := make(map[int64]bool, len(c))
	for _, e := range c {
		known[e.Offset] = true
	}
	for i, e := range c {
		if e.Next != tiffio.TerminalPointer && !known[int64(e.Next)] {
			return fmt.Errorf("%w: page %d at %d points to %d", ErrBrokenChain, i, e.Offset, e.Next)
		}
	}
	return nil
}

// Find returns the entry of the IFD at offset.
func (c ChainIndex) Find(offset int64) (ChainEntry, bool) {
	for _, e := range c {
		if e.Offset == offset {
			return e, true
		}
	}
	return ChainEntry{}, false
}

// Predecessor returns the entry whose next pointer holds offset.
func (c ChainIndex) Predecessor(offset int64) (ChainEntry, bool) {
	for _, e := range c {
		if e.Next == uint64(offset) {
			return e, true
		}
	}
	return ChainEntry{}, false
}

// splice plans the removal of the IFD at target from the chain: its whole
// header block is zeroed and its predecessor takes over its next pointer.
func (c ChainIndex) splice(p *plan, l tiffio.Layout, target int64, page int) error {
	self, ok := c.Find(target)
	if !ok {
		return fmt.Errorf("%w: page %d at %d is not in the chain", ErrBrokenChain, page, target)
	}
	prev, ok := c.Predecessor(target)
	if !ok {
		return fmt.Errorf("%w: page %d at %d", ErrNoPredecessor, page, target)
	}

	end := self.NextField + int64(l.PointerWidth)
	p.zero(span{off: self.Offset, n: end - self.Offset, what: "page header"})
	p.patchAt = prev.NextField
	p.patchValue = self.Next
	return nil
}
