package livepager

import (
	"strings"
	"testing"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

func TestBreakLines_TwoPages(t *testing.T) {
	g := ComputeGeometry(2000, &PageConfig{PaddingPx: 40})
	lines := BreakLines(2000, g)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	if lines[0].PageNumber != 1 {
		t.Errorf("PageNumber = %d, want 1", lines[0].PageNumber)
	}
	if !almostEqual(lines[0].TopOffsetPx, 1082.66, 0.01) {
		t.Errorf("TopOffsetPx = %v, want ~1082.66", lines[0].TopOffsetPx)
	}
	if got := lines[0].Label(); got != "page 1 end" {
		t.Errorf("Label() = %q, want %q", got, "page 1 end")
	}
}

func TestBreakLines_FivePages(t *testing.T) {
	g := ComputeGeometry(5000, &PageConfig{})
	lines := BreakLines(5000, g)
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4", len(lines))
	}
	for i, l := range lines {
		want := g.PageHeightPx * float64(i+1)
		if l.PageNumber != i+1 || !almostEqual(l.TopOffsetPx, want, 1e-9) {
			t.Errorf("line %d = %+v, want page %d at %v", i, l, i+1, want)
		}
		if l.TopOffsetPx > 5000 {
			t.Errorf("line %d at %v is past the content", i, l.TopOffsetPx)
		}
	}
}

func TestBreakLines_None(t *testing.T) {
	pc := &PageConfig{PaddingPx: 40}
	tests := []struct {
		name   string
		height float64
	}{
		{"zero height", 0},
		{"negative height", -1},
		{"exactly one page", 1082.66},
		{"less than one page", 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if lines := BreakLines(tt.height, ComputeGeometry(tt.height, pc)); len(lines) != 0 {
				t.Errorf("got %d lines, want none", len(lines))
			}
		})
	}
}

func TestBreakLines_Cap(t *testing.T) {
	pc := &PageConfig{}
	h := pc.PageHeightPx() * 100
	g := ComputeGeometry(h, pc)
	if g.BreakCount != 99 {
		t.Fatalf("BreakCount = %d, want 99", g.BreakCount)
	}
	lines := BreakLines(h, g)
	if len(lines) != MaxBreakLines {
		t.Errorf("got %d lines, want cap of %d", len(lines), MaxBreakLines)
	}
	if last := lines[len(lines)-1]; last.PageNumber != MaxBreakLines {
		t.Errorf("last line page = %d, want %d", last.PageNumber, MaxBreakLines)
	}
}

func TestBreakLines_SkipsStaleBoundaries(t *testing.T) {
	// Geometry computed for a taller document than the one now measured.
	g := ComputeGeometry(5000, &PageConfig{})
	lines := BreakLines(2500, g)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	for _, l := range lines {
		if l.TopOffsetPx > 2500 {
			t.Errorf("line %+v past content height", l)
		}
	}
}

func TestOverlay_Render(t *testing.T) {
	g := ComputeGeometry(5000, &PageConfig{})
	o := NewOverlay(5000, g)
	if !strings.HasPrefix(o.Key, "5000/") {
		t.Errorf("Key = %q, want 5000/<page height>", o.Key)
	}

	markup, err := o.HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	frag, err := html.ParseFragment(strings.NewReader(markup), &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"})
	if err != nil {
		t.Fatalf("parsing overlay: %v", err)
	}
	if len(frag) != 1 {
		t.Fatalf("overlay has %d roots, want 1", len(frag))
	}
	root := frag[0]
	if got := attrOf(root, "class"); got != OverlayClass {
		t.Errorf("root class = %q", got)
	}
	if got := attrOf(root, "aria-hidden"); got != "true" {
		t.Errorf("aria-hidden = %q, want true", got)
	}
	style := attrOf(root, "style")
	for _, want := range []string{"position:absolute", "height:0", "pointer-events:none"} {
		if !strings.Contains(style, want) {
			t.Errorf("root style %q lacks %q", style, want)
		}
	}

	var markers []*html.Node
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		markers = append(markers, c)
	}
	if len(markers) != 4 {
		t.Fatalf("got %d markers, want 4", len(markers))
	}
	if got := attrOf(markers[1], "data-page"); got != "2" {
		t.Errorf("second marker data-page = %q", got)
	}
	if !strings.Contains(attrOf(markers[1], "style"), "top:2245.32px") {
		t.Errorf("second marker style = %q", attrOf(markers[1], "style"))
	}
	if got := markers[3].FirstChild.FirstChild.Data; got != "page 4 end" {
		t.Errorf("last label = %q", got)
	}
}

func TestOverlay_Empty(t *testing.T) {
	markup, err := NewOverlay(0, ComputeGeometry(0, nil)).HTML()
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if strings.Contains(markup, BreakLineClass) {
		t.Errorf("empty overlay contains markers: %s", markup)
	}
	if !strings.Contains(markup, `data-key="0/`) {
		t.Errorf("empty overlay lacks key: %s", markup)
	}
}

func TestOverlay_KeyChanges(t *testing.T) {
	base := NewOverlay(2000, ComputeGeometry(2000, &PageConfig{}))

	padded := NewOverlay(2000, ComputeGeometry(2000, &PageConfig{PaddingPx: 40}))
	if padded.Key == base.Key {
		t.Errorf("padding change kept key %q", base.Key)
	}
	nudged := NewOverlay(2000.001, ComputeGeometry(2000.001, &PageConfig{}))
	if nudged.Key == base.Key {
		t.Errorf("sub-pixel height change kept key %q", base.Key)
	}
	same := NewOverlay(2000, ComputeGeometry(2000, &PageConfig{}))
	if same.Key != base.Key {
		t.Errorf("same input produced keys %q and %q", base.Key, same.Key)
	}
}

func attrOf(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
