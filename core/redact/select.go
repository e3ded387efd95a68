package redact

import (
	"fmt"
	"strings"

	"github.com/ankit-chaubey/svs-surgery/core/tiffio"
)

// Associated image kinds.
const (
	KindLabel = "label"
	KindMacro = "macro"
)

// SelectPages returns the pages of the given kind under the variant's rule.
func SelectPages(kind string, v Variant, pages []tiffio.Page) []tiffio.Page {
	switch v {
	case ClassicAperio, OldStyle:
		var out []tiffio.Page
		for _, p := range pages {
			if strings.Contains(p.Description, kind) {
				out = append(out, p)
			}
		}
		return out
	case GT450:
		// The label is second to last, everything else is the last page.
		pos := len(pages) - 1
		if kind == KindLabel {
			pos = len(pages) - 2
		}
		if pos < 0 {
			return nil
		}
		return []tiffio.Page{pages[pos]}
	}
	panic(fmt.Sprintf("redact: unhandled variant %d", int(v)))
}

// validateSelection returns the single candidate, nil when there is none,
// or ErrDuplicateMatch.
func validateSelection(kind string, candidates []tiffio.Page) (*tiffio.Page, error) {
	switch len(candidates) {
	case 0:
		return nil, nil
	case 1:
		return &candidates[0], nil
	}
	indexes := make([]int, len(candidates))
	for i, p := range candidates {
		indexes[i] = p.Index
	}
	return nil, fmt.Errorf("%w: %d %s pages (pages %v)", ErrDuplicateMatch, len(candidates), kind, indexes)
}
