package livepager

import "fmt"

// PageSize represents paper dimensions in millimeters.
type PageSize struct {
	Width  float64 `json:"width_mm" yaml:"width_mm"`   // Width in millimeters.
	Height float64 `json:"height_mm" yaml:"height_mm"` // Height in millimeters.
}

// Standard paper sizes.
var (
	A3     = PageSize{Width: 297, Height: 420}
	A4     = PageSize{Width: 210, Height: 297}
	A5     = PageSize{Width: 148, Height: 210}
	Letter = PageSize{Width: 215.9, Height: 279.4}
	Legal  = PageSize{Width: 215.9, Height: 355.6}
)

// PageSizeByName returns the preset registered under name (A3, A4, A5,
// Letter, Legal).
func PageSizeByName(name string) (PageSize, error) {
	switch name {
	case "A3":
		return A3, nil
	case "A4", "":
		return A4, nil
	case "A5":
		return A5, nil
	case "Letter":
		return Letter, nil
	case "Legal":
		return Legal, nil
	}
	return PageSize{}, fmt.Errorf("livepager: unknown page size %q", name)
}

// Orientation represents the page orientation.
type Orientation int

const (
	// Portrait is the default vertical orientation.
	Portrait Orientation = iota
	// Landscape rotates the page to horizontal orientation.
	Landscape
)

// DefaultPixelsPerMM is the CSS pixel density used to convert physical page
// dimensions to screen pixels (96 dpi / 25.4, rounded the way browsers
// report it).
const DefaultPixelsPerMM = 3.78

// PageConfig describes the physical page the live preview is paginated
// against, plus the parameters used when the document is exported.
//
// A nil PageConfig or zero-value fields resolve to A4 portrait at
// [DefaultPixelsPerMM] with no padding.
type PageConfig struct {
	// Size specifies the paper size. Defaults to A4.
	Size PageSize `json:"size"`

	// Orientation specifies portrait or landscape. Defaults to Portrait.
	Orientation Orientation `json:"orientation"`

	// PaddingPx is the inner page margin in CSS pixels. Only its total is
	// subtracted from the usable page height; see [PageConfig.PageHeightPx].
	PaddingPx float64 `json:"padding_px"`

	// PixelsPerMM converts millimeters to CSS pixels. Defaults to 3.78.
	PixelsPerMM float64 `json:"pixels_per_mm"`

	// Scale of the webpage rendering on export. Must be between 0.1 and 2.0.
	// Defaults to 1.0.
	Scale float64 `json:"-"`

	// PrintBackground enables printing of background colors and images on
	// export.
	PrintBackground bool `json:"-"`

	// HeaderTemplate and FooterTemplate are Chrome print templates. Setting
	// either enables header/footer rendering on export.
	HeaderTemplate string `json:"-"`
	FooterTemplate string `json:"-"`
}

// DefaultPageConfig returns an A4 portrait PageConfig with no padding.
func DefaultPageConfig() PageConfig {
	return PageConfig{
		Size:            A4,
		Orientation:     Portrait,
		PixelsPerMM:     DefaultPixelsPerMM,
		Scale:           1.0,
		PrintBackground: true,
	}
}

// resolved returns a PageConfig with all zero values replaced by defaults.
// Negative padding is treated as zero.
func (p *PageConfig) resolved() PageConfig {
	d := DefaultPageConfig()
	if p == nil {
		return d
	}
	r := *p
	if r.Size == (PageSize{}) {
		r.Size = d.Size
	}
	if r.PixelsPerMM <= 0 {
		r.PixelsPerMM = d.PixelsPerMM
	}
	if r.Scale <= 0 {
		r.Scale = d.Scale
	}
	if r.PaddingPx < 0 {
		r.PaddingPx = 0
	}
	return r
}

// Validate reports configuration errors that the calculator would otherwise
// silently clamp.
func (p *PageConfig) Validate() error {
	if p == nil {
		return nil
	}
	if p.PaddingPx < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPadding, p.PaddingPx)
	}
	if p.Scale != 0 && (p.Scale < 0.1 || p.Scale > 2.0) {
		return fmt.Errorf("livepager: scale %v out of range [0.1, 2.0]", p.Scale)
	}
	if p.usableHeightPx() < MinPageHeightPx {
		return fmt.Errorf("%w: padding %vpx leaves no usable height", ErrDegeneratePage, p.PaddingPx)
	}
	return nil
}

// PageHeightMM returns the physical page height in millimeters, accounting
// for orientation.
func (p *PageConfig) PageHeightMM() float64 {
	_, h := p.paperSizeMM()
	return h
}

// PageHeightPx returns the usable per-page height in pixels: the physical
// page height minus the padding, converted once. Degenerate configurations
// are clamped to [MinPageHeightPx].
func (p *PageConfig) PageHeightPx() float64 {
	if h := p.usableHeightPx(); h > MinPageHeightPx {
		return h
	}
	return MinPageHeightPx
}

func (p *PageConfig) usableHeightPx() float64 {
	r := p.resolved()
	paddingMM := r.PaddingPx / r.PixelsPerMM
	contentHeightMM := r.PageHeightMM() - paddingMM
	return contentHeightMM * r.PixelsPerMM
}

func (p *PageConfig) paperSizeMM() (width, height float64) {
	r := p.resolved()
	if r.Orientation == Landscape {
		return r.Size.Height, r.Size.Width
	}
	return r.Size.Width, r.Size.Height
}

// mmToInches converts millimeters to inches.
func mmToInches(mm float64) float64 {
	return mm / 25.4
}

// paperDimensions returns the paper width and height in inches,
// accounting for orientation.
func (p *PageConfig) paperDimensions() (width, height float64) {
	w, h := p.paperSizeMM()
	return mmToInches(w), mmToInches(h)
}

// marginInches returns print margins in inches. Half of the padding goes to
// each edge so that the printed content area per page equals
// [PageConfig.PageHeightPx].
func (p *PageConfig) marginInches() (top, right, bottom, left float64) {
	r := p.resolved()
	half := mmToInches(r.PaddingPx / r.PixelsPerMM / 2)
	return half, half, half, half
}
