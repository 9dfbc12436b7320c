package livepager

import (
	"math"
	"sync"
)

// MinPageHeightPx is the smallest usable page height the calculator will
// divide by.
const MinPageHeightPx = 1.0

// ratioEpsilon absorbs float noise from the mm/px round trip so that a
// content height equal to k pages does not spill into page k+1.
const ratioEpsilon = 1e-9

// Geometry is the pagination derived from a content height and a
// [PageConfig].
type Geometry struct {
	PageHeightPx float64 `json:"page_height_px"`
	PageCount    int     `json:"page_count"`
	BreakCount   int     `json:"break_count"`
}

// ComputeGeometry maps a rendered content height to page and break counts.
// It is total: non-positive heights yield a single page with no breaks.
func ComputeGeometry(contentHeight float64, pg *PageConfig) Geometry {
	pageHeight := pg.PageHeightPx()
	if contentHeight <= 0 || math.IsNaN(contentHeight) {
		return Geometry{PageHeightPx: pageHeight, PageCount: 1}
	}

	pages := int(math.Ceil(contentHeight/pageHeight - ratioEpsilon))
	if pages < 1 {
		pages = 1
	}
	return Geometry{
		PageHeightPx: pageHeight,
		PageCount:    pages,
		BreakCount:   max(0, pages-1),
	}
}

// Calculator memoizes [ComputeGeometry] on its two inputs. It is safe for
// concurrent use.
type Calculator struct {
	mu     sync.Mutex
	valid  bool
	height float64
	config PageConfig
	last   Geometry
}

// Geometry returns the cached geometry when neither input changed since the
// previous call.
func (c *Calculator) Geometry(contentHeight float64, pg PageConfig) Geometry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && c.height == contentHeight && c.config == pg {
		return c.last
	}
	c.last = ComputeGeometry(contentHeight, &pg)
	c.height, c.config, c.valid = contentHeight, pg, true
	return c.last
}
