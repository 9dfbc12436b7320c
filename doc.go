// Package livepager paginates a live HTML document against physical pages.
//
// It answers two questions about a continuously reflowing document such as a
// resume preview: how many pages does it span, and where must the page-break
// guide lines be drawn. Both are derived purely from the rendered height of a
// content container and the configured page padding.
//
// # Geometry
//
// The calculator is a pure function:
//
//	pg := &livepager.PageConfig{PaddingPx: 40} // A4, 3.78 px/mm
//	g := livepager.ComputeGeometry(2000, pg)   // {PageHeightPx:1082.66 PageCount:2 BreakCount:1}
//	lines := livepager.BreakLines(2000, g)     // [{PageNumber:1 TopOffsetPx:1082.66}]
//
// The usable page height is the physical height minus the padding, counted
// once. At most [MaxBreakLines] markers are produced.
//
// # Live previews
//
// A [Converter] owns a headless Chrome. [Converter.OpenPreview] loads a
// document in a tab, watches the content container for mutations and resizes,
// and mounts the break-line overlay after every change:
//
//	c, err := livepager.NewConverter()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	p, err := c.OpenPreview(ctx, html, "#resume", &livepager.PageConfig{PaddingPx: 40})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer p.Close()
//
//	stop := p.Subscribe(func(s livepager.Snapshot) {
//	    fmt.Println(s.Geometry.PageCount, len(s.Breaks))
//	})
//	defer stop()
//
//	p.SetContent(ctx, edited) // re-measured after the debounce window
//	p.SetPadding(24)          // re-paginated immediately
//	res, err := p.ExportPDF(ctx)
//
// Any other source of rendered heights can drive the same machinery by
// implementing [SizeSource] and attaching a [HeightObserver] to a [Store].
//
// Chrome or Chromium must be available in PATH, or use [WithAutoDownload]:
//
//	c, err := livepager.NewConverter(livepager.WithAutoDownload())
package livepager
