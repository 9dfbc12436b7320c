package livepager

import "errors"

// Sentinel errors returned by the library.
var (
	// ErrClosed is returned when attempting to use a closed [Converter] or
	// [Preview].
	ErrClosed = errors.New("livepager: closed")

	// ErrInvalidPadding is returned when a negative page padding is supplied.
	ErrInvalidPadding = errors.New("livepager: padding must not be negative")

	// ErrDegeneratePage is returned when the padding leaves no usable page
	// height. The calculator clamps such pages to [MinPageHeightPx].
	ErrDegeneratePage = errors.New("livepager: degenerate page height")

	// ErrContainerNotFound is returned when the content container selector
	// matches nothing in the previewed document.
	ErrContainerNotFound = errors.New("livepager: content container not found")
)
