package redact

import "errors"

var (
	// ErrDuplicateMatch means more than one page qualifies for removal.
	// The file has not been touched.
	ErrDuplicateMatch = errors.New("duplicate pages match")
	// ErrNoPredecessor means no page in the chain points at the target,
	// either because the file is corrupt or because the target is page 0.
	ErrNoPredecessor = errors.New("no page points to the target page")
	// ErrUnsupportedLayout means the target page has no strip descriptor.
	ErrUnsupportedLayout = errors.New("unsupported page layout")
	// ErrValueLengthMismatch means a replacement tag value does not fit the
	// storage of the value it replaces.
	ErrValueLengthMismatch = errors.New("replacement value does not fit existing storage")
	// ErrBrokenChain means a next pointer does not land on any known page.
	ErrBrokenChain = errors.New("broken IFD chain")
	// ErrOutOfBounds means a planned write would extend the file.
	ErrOutOfBounds = errors.New("write outside file")
	// ErrTokenNotFound means none of the target pages carries the key.
	ErrTokenNotFound = errors.New("key not found in tag text")
)
