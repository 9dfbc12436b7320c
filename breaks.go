package livepager

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// MaxBreakLines bounds the number of markers rendered for pathologically
// tall content. Breaks beyond it are silently dropped.
const MaxBreakLines = 20

// Class names used by the overlay markup.
const (
	OverlayClass   = "livepager-breaks"
	BreakLineClass = "livepager-break"
)

// BreakLine marks where printed output paginates.
type BreakLine struct {
	PageNumber  int     `json:"page_number"`
	TopOffsetPx float64 `json:"top_offset_px"`
}

// Label returns the human-readable marker text.
func (b BreakLine) Label() string {
	return fmt.Sprintf("page %d end", b.PageNumber)
}

// BreakLines returns one marker per page boundary that lies within the
// measured content height. Boundaries past the content (possible while a
// shrinking height has not been observed yet) are skipped.
func BreakLines(contentHeight float64, g Geometry) []BreakLine {
	if contentHeight <= 0 || g.PageHeightPx <= 0 {
		return nil
	}
	n := min(g.BreakCount, MaxBreakLines)
	lines := make([]BreakLine, 0, n)
	for page := 1; page <= n; page++ {
		top := g.PageHeightPx * float64(page)
		if top > contentHeight {
			continue
		}
		lines = append(lines, BreakLine{PageNumber: page, TopOffsetPx: top})
	}
	return lines
}

// Overlay is the renderable set of break-line markers for one content
// height and page height. The host mounts it inside (or over) the measured container; it is
// absolutely positioned and has no height, so it never changes the height it
// was derived from.
type Overlay struct {
	// Key identifies the exact content height and page height the overlay
	// was rendered for. A host replaces the whole overlay whenever the key
	// changes.
	Key   string
	Lines []BreakLine
}

// NewOverlay derives the overlay for contentHeight.
func NewOverlay(contentHeight float64, g Geometry) Overlay {
	return Overlay{
		Key:   overlayKey(contentHeight, g.PageHeightPx),
		Lines: BreakLines(contentHeight, g),
	}
}

// Node builds the overlay as an HTML node tree.
func (o Overlay) Node() *html.Node {
	root := element(atom.Div,
		attr("class", OverlayClass),
		attr("data-key", o.Key),
		attr("aria-hidden", "true"),
		attr("style", "position:absolute;top:0;left:0;right:0;height:0;overflow:visible;pointer-events:none;z-index:10;"),
	)
	for _, l := range o.Lines {
		marker := element(atom.Div,
			attr("class", BreakLineClass),
			attr("data-page", strconv.Itoa(l.PageNumber)),
			attr("style", "position:absolute;left:0;right:0;height:0;border-top:1px dashed #9ca3af;top:"+formatPx(l.TopOffsetPx)+"px;"),
		)
		label := element(atom.Span,
			attr("style", "position:absolute;right:4px;top:2px;font:10px/1 sans-serif;color:#6b7280;background:#fff;padding:0 2px;"),
		)
		label.AppendChild(&html.Node{Type: html.TextNode, Data: l.Label()})
		marker.AppendChild(label)
		root.AppendChild(marker)
	}
	return root
}

// Render writes the overlay markup to w.
func (o Overlay) Render(w io.Writer) error {
	return html.Render(w, o.Node())
}

// HTML returns the overlay markup as a string.
func (o Overlay) HTML() (string, error) {
	var buf bytes.Buffer
	if err := o.Render(&buf); err != nil {
		return "", fmt.Errorf("livepager: rendering overlay: %w", err)
	}
	return buf.String(), nil
}

func element(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String(), Attr: attrs}
}

func attr(key, val string) html.Attribute {
	return html.Attribute{Key: key, Val: val}
}

// overlayKey is unrounded so that any change in either height changes it.
func overlayKey(contentHeight, pageHeight float64) string {
	return strconv.FormatFloat(contentHeight, 'f', -1, 64) + "/" + strconv.FormatFloat(pageHeight, 'f', -1, 64)
}

func formatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
