// Package report renders a one-page PDF summary of how a document paginates:
// the page parameters, the derived geometry and a scaled strip of the content
// with every page break marked.
package report

import (
	"fmt"
	"io"

	"codeberg.org/go-pdf/fpdf"

	livepager "github.com/porticus-lab/go-live-pager"
)

// Options contains options for the report.
type Options struct {
	Title   string
	Source  string // document the snapshot was taken from
	Creator string
}

// strip layout in millimeters
const (
	stripX      = 130.0
	stripY      = 30.0
	stripWidth  = 40.0
	stripHeight = 240.0
)

// Write renders the report for snap to w.
func Write(w io.Writer, snap livepager.Snapshot, opts Options) error {
	pdf := build(snap, opts)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

func build(snap livepager.Snapshot, opts Options) *fpdf.Fpdf {
	if opts.Title == "" {
		opts.Title = "Pagination report"
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(opts.Title, true)
	pdf.SetSubject(opts.Source, true)
	pdf.SetCreator(opts.Creator, true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(15, 20, opts.Title)

	summary(pdf, snap, opts.Source)
	strip(pdf, snap)
	return pdf
}

func summary(pdf *fpdf.Fpdf, snap livepager.Snapshot, source string) {
	pg := snap.Config
	orientation := "portrait"
	if pg.Orientation == livepager.Landscape {
		orientation = "landscape"
	}

	rows := [][2]string{
		{"Page size", fmt.Sprintf("%s (%.1f x %.1f mm)", sizeName(pg.Size), pg.Size.Width, pg.Size.Height)},
		{"Orientation", orientation},
		{"Padding", fmt.Sprintf("%.2f px", pg.PaddingPx)},
		{"Pixels per mm", fmt.Sprintf("%.2f", pg.PixelsPerMM)},
		{"Content height", fmt.Sprintf("%.2f px", snap.ContentHeight)},
		{"Page height", fmt.Sprintf("%.2f px", snap.Geometry.PageHeightPx)},
		{"Pages", fmt.Sprintf("%d", snap.Geometry.PageCount)},
		{"Page breaks", fmt.Sprintf("%d", snap.Geometry.BreakCount)},
	}
	if source != "" {
		rows = append([][2]string{{"Document", source}}, rows...)
	}

	pdf.SetXY(15, stripY)
	for _, row := range rows {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(35, 7, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(70, 7, row[1], "", 1, "L", false, 0, "")
		pdf.SetX(15)
	}

	if len(snap.Breaks) == 0 {
		return
	}
	pdf.Ln(4)
	pdf.SetX(15)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(105, 7, "Break lines", "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	for _, b := range snap.Breaks {
		pdf.SetX(15)
		pdf.CellFormat(35, 5.5, b.Label(), "", 0, "L", false, 0, "")
		pdf.CellFormat(70, 5.5, fmt.Sprintf("%.2f px", b.TopOffsetPx), "", 1, "L", false, 0, "")
	}
	if snap.Geometry.BreakCount > len(snap.Breaks) {
		pdf.SetX(15)
		pdf.CellFormat(105, 5.5, fmt.Sprintf("%d more not drawn", snap.Geometry.BreakCount-len(snap.Breaks)),
			"", 1, "L", false, 0, "")
	}
}

// strip draws the content height to scale with alternating page bands and a
// dashed line at every break.
func strip(pdf *fpdf.Fpdf, snap livepager.Snapshot) {
	height := snap.ContentHeight
	if height <= 0 {
		height = snap.Geometry.PageHeightPx
	}
	scale := stripHeight / height

	pageH := snap.Geometry.PageHeightPx * scale
	pdf.SetFillColor(240, 240, 240)
	for i := 0; i < snap.Geometry.PageCount; i += 2 {
		top := float64(i) * pageH
		if top >= stripHeight {
			break
		}
		pdf.Rect(stripX, stripY+top, stripWidth, min(pageH, stripHeight-top), "F")
	}

	pdf.SetDrawColor(0, 0, 0)
	pdf.SetLineWidth(0.3)
	pdf.Rect(stripX, stripY, stripWidth, stripHeight, "D")

	pdf.SetDrawColor(200, 0, 0)
	pdf.SetTextColor(200, 0, 0)
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetDashPattern([]float64{1.5, 1}, 0)
	for _, b := range snap.Breaks {
		y := stripY + b.TopOffsetPx*scale
		pdf.Line(stripX-3, y, stripX+stripWidth+3, y)
		pdf.Text(stripX+stripWidth+5, y+1, b.Label())
	}
	pdf.SetDashPattern([]float64{}, 0)
	pdf.SetTextColor(0, 0, 0)

	pdf.SetFont("Helvetica", "", 8)
	pdf.Text(stripX, stripY+stripHeight+6, fmt.Sprintf("0 - %.0f px", height))
}

func sizeName(ps livepager.PageSize) string {
	for _, name := range []string{"A3", "A4", "A5", "Letter", "Legal"} {
		if preset, _ := livepager.PageSizeByName(name); preset == ps {
			return name
		}
	}
	return "custom"
}
