package livepager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Converter owns a headless browser used to render documents, both for live
// previews and for PDF export.
//
// The browser instance is reused across previews and exports. A Converter is
// safe for concurrent use.
//
// Call [Converter.Close] when the Converter is no longer needed to release
// browser resources.
type Converter struct {
	cfg           config
	log           *zap.Logger
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu       sync.Mutex
	closed   bool
	previews map[*Preview]struct{}
}

// NewConverter creates a Converter with the given options.
//
// It starts a headless browser in the background. The caller must call
// [Converter.Close] when finished.
func NewConverter(opts ...Option) (*Converter, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	execPath, err := cfg.browserPath()
	if err != nil {
		return nil, err
	}

	allocOpts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-translate", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("headless", cfg.headless),
	)
	if execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(execPath))
	}
	if cfg.noSandbox {
		allocOpts = append(allocOpts, chromedp.Flag("no-sandbox", true))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// Start the browser eagerly so errors surface at creation time.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("livepager: starting browser: %w", err)
	}

	log := cfg.logger.Named("converter")
	log.Debug("Browser started", zap.String("exec", execPath), zap.Bool("sandbox", !cfg.noSandbox))

	return &Converter{
		cfg:           cfg,
		log:           log,
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		previews:      make(map[*Preview]struct{}),
	}, nil
}

// Close releases all resources held by the Converter, including the
// browser process and any open previews. Close is idempotent.
func (c *Converter) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	previews := make([]*Preview, 0, len(c.previews))
	for p := range c.previews {
		previews = append(previews, p)
	}
	c.mu.Unlock()

	for _, p := range previews {
		p.Close()
	}
	c.browserCancel()
	c.allocCancel()
	c.log.Debug("Browser stopped")
	return nil
}

func (c *Converter) track(p *Preview) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.previews[p] = struct{}{}
	return nil
}

func (c *Converter) untrack(p *Preview) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.previews, p)
}

// ConvertHTML exports an HTML string to a PDF document.
// If pg is nil, [DefaultPageConfig] values are used.
func (c *Converter) ConvertHTML(ctx context.Context, html string, pg *PageConfig) (*Result, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	name, err := writeTempHTML(html)
	if err != nil {
		return nil, err
	}
	defer os.Remove(name)

	return c.convert(ctx, "file://"+name, pg)
}

// ConvertFile exports a local HTML file to a PDF document.
// If pg is nil, [DefaultPageConfig] values are used.
func (c *Converter) ConvertFile(ctx context.Context, path string, pg *PageConfig) (*Result, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("livepager: resolving path: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("livepager: %w", err)
	}
	return c.convert(ctx, "file://"+abs, pg)
}

// convert loads targetURL in a fresh tab, measures the document and prints it.
func (c *Converter) convert(ctx context.Context, targetURL string, pg *PageConfig) (*Result, error) {
	if err := pg.Validate(); err != nil {
		return nil, err
	}
	resolved := pg.resolved()

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	tabCtx, tabCancel, err := c.newTab()
	if err != nil {
		return nil, err
	}
	defer tabCancel()

	var (
		height float64
		buf    []byte
	)
	if err := runIn(ctx, tabCtx,
		chromedp.Navigate(targetURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(bodyHeightScript, &height),
		printPDF(&resolved, &buf),
	); err != nil {
		return nil, fmt.Errorf("livepager: conversion failed: %w", err)
	}

	g := ComputeGeometry(height, &resolved)
	c.log.Debug("Document exported",
		zap.String("url", targetURL),
		zap.Float64("height", height),
		zap.Int("pages", g.PageCount),
		zap.Int("bytes", len(buf)))
	return &Result{data: buf, geometry: g}, nil
}

// newTab opens a browser tab. The first Run binds the tab to tabCtx, so later
// actions may use shorter-lived derived contexts without closing it.
func (c *Converter) newTab() (context.Context, context.CancelFunc, error) {
	tabCtx, tabCancel := chromedp.NewContext(c.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		return nil, nil, fmt.Errorf("livepager: opening tab: %w", err)
	}
	return tabCtx, tabCancel, nil
}

func (c *Converter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.timeout > 0 {
		return context.WithTimeout(ctx, c.cfg.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *Converter) checkClosed() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// runIn runs actions against the tab in tabCtx, aborting them when ctx is
// done. Cancelling ctx does not close the tab.
func runIn(ctx, tabCtx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// printPDF prints the current tab with the paper and margins of pg.
func printPDF(pg *PageConfig, buf *[]byte) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		width, height := pg.paperDimensions()
		marginTop, marginRight, marginBottom, marginLeft := pg.marginInches()

		params := page.PrintToPDF().
			WithPaperWidth(width).
			WithPaperHeight(height).
			WithMarginTop(marginTop).
			WithMarginRight(marginRight).
			WithMarginBottom(marginBottom).
			WithMarginLeft(marginLeft).
			WithScale(pg.Scale).
			WithPrintBackground(pg.PrintBackground).
			WithDisplayHeaderFooter(pg.HeaderTemplate != "" || pg.FooterTemplate != "")

		if pg.HeaderTemplate != "" {
			params = params.WithHeaderTemplate(pg.HeaderTemplate)
		}
		if pg.FooterTemplate != "" {
			params = params.WithFooterTemplate(pg.FooterTemplate)
		}

		var err error
		*buf, _, err = params.Do(ctx)
		return err
	})
}

func writeTempHTML(html string) (string, error) {
	f, err := os.CreateTemp("", "livepager-*.html")
	if err != nil {
		return "", fmt.Errorf("livepager: creating temp file: %w", err)
	}
	name := f.Name()

	if _, err := f.WriteString(html); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("livepager: writing temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("livepager: closing temp file: %w", err)
	}

	abs, err := filepath.Abs(name)
	if err != nil {
		os.Remove(name)
		return "", fmt.Errorf("livepager: resolving path: %w", err)
	}
	return abs, nil
}

// ConvertHTML exports an HTML string to PDF using a temporary [Converter].
// This is convenient for one-off conversions. For repeated use, create a
// [Converter] with [NewConverter] to reuse the browser instance.
func ConvertHTML(ctx context.Context, html string, pg *PageConfig, opts ...Option) (*Result, error) {
	conv, err := NewConverter(opts...)
	if err != nil {
		return nil, err
	}
	defer conv.Close()
	return conv.ConvertHTML(ctx, html, pg)
}
