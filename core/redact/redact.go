// Package redact removes associated images (label, macro) from SVS and
// other TIFF-family slides in place, and rewrites text tag values in place.
//
// Every change is an overwrite of bytes that already exist: a removed page
// is unlinked from the IFD chain and its header, tag values and pixel
// strips are zero-filled, but the file never grows or shrinks. Offsets held
// by untouched pages therefore stay valid.
//
// All checks run before the first write. Once writing has started there is
// no rollback; an error or crash part way through leaves a file that must be
// discarded and recreated from the original.
//
// The caller owns the file handle and must not let anything else write to
// the file during a call.
package redact

import (
	"io"
	"log/slog"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

// File is the random-access handle every operation reads and writes through.
type File interface {
	io.ReaderAt
	io.WriterAt
}

// Result describes the outcome of RemovePage. Removed is false when no
// page matched, in which case nothing was written.
type Result struct {
	Kind      string
	Variant   Variant
	Removed   bool
	PageIndex int
	Offset    int64
	// Scrubbed is the number of bytes zero-filled.
	Scrubbed int64
}

// Engine runs redaction operations.
type Engine struct {
	log *slog.Logger
}

// New returns an Engine logging to logger, or to slog.Default when nil.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{log: logger}
}

// RemovePage removes the single page of the given kind from f.
func (e *Engine) RemovePage(f File, s *tiffio.Structure, kind string) (Result, error) {
	res := Result{Kind: kind, PageIndex: -1}
	if len(s.Pages) == 0 {
		e.log.Info("file has no pages; nothing to remove", "kind", kind)
		return res, nil
	}

	res.Variant = Classify(s.Pages[0].Description)
	e.log.Debug("classified slide", "variant", res.Variant.String())

	target, err := validateSelection(kind, SelectPages(kind, res.Variant, s.Pages))
	if err != nil {
		return res, err
	}
	if target == nil {
		e.log.Info("no page of this kind; nothing to remove", "kind", kind)
		return res, nil
	}
	e.log.Info("identified page to remove", "kind", kind, "page", target.Index, "offset", target.Offset)

	e.log.Debug("finding next IFD offsets", "pages", len(s.Pages))
	idx, err := WalkChain(f, s.Layout, s.Pages)
	if err != nil {
		return res, err
	}
	if err := idx.Validate(s.Layout); err != nil {
		return res, err
	}

	var p plan
	if err := scrub(&p, f, s.Layout, *target); err != nil {
		return res, err
	}
	if err := idx.splice(&p, s.Layout, target.Offset, target.Index); err != nil {
		return res, err
	}
	if err := p.check(s.Layout); err != nil {
		return res, err
	}

	e.log.Debug("zeroing page", "page", target.Index, "spans", len(p.spans), "bytes", p.bytes())
	if err := p.apply(f, s.Layout); err != nil {
		return res, err
	}
	e.log.Debug("relinked previous page", "field", p.patchAt, "next", p.patchValue)

	res.Removed = true
	res.PageIndex = target.Index
	res.Offset = target.Offset
	res.Scrubbed = p.bytes()
	return res, nil
}
