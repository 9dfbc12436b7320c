package livepager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// DefaultSelector addresses the content container when none is given.
const DefaultSelector = "body"

// Preview is a live, paginated document open in a browser tab. It watches
// the content container, keeps a [Store] up to date and mounts the
// break-line overlay inside the container after every change.
//
// Preview implements [SizeSource] for its own [HeightObserver].
type Preview struct {
	conv      *Converter
	cfg       config
	log       *zap.Logger
	selector  string
	tabCtx    context.Context
	tabCancel context.CancelFunc

	store            *Store
	observer         *HeightObserver
	unsubscribeStore func()

	mu     sync.Mutex
	notify func()
	closed bool
}

// OpenPreview loads html in a new tab and starts paginating the element
// matched by selector (a CSS selector, [DefaultSelector] when empty).
// If pg is nil, [DefaultPageConfig] values are used.
//
// The caller must call [Preview.Close] when finished.
func (c *Converter) OpenPreview(ctx context.Context, html, selector string, pg *PageConfig) (*Preview, error) {
	if err := c.checkClosed(); err != nil {
		return nil, err
	}
	if err := pg.Validate(); err != nil {
		return nil, err
	}
	if selector == "" {
		selector = DefaultSelector
	}

	name, err := writeTempHTML(html)
	if err != nil {
		return nil, err
	}
	defer os.Remove(name)

	tabCtx, tabCancel, err := c.newTab()
	if err != nil {
		return nil, err
	}

	p := &Preview{
		conv:      c,
		cfg:       c.cfg,
		log:       c.cfg.logger.Named("preview").With(zap.String("selector", selector)),
		selector:  selector,
		tabCtx:    tabCtx,
		tabCancel: tabCancel,
		store:     NewStore(pg),
	}
	chromedp.ListenTarget(tabCtx, p.onEvent)

	loadCtx, cancel := c.withTimeout(ctx)
	defer cancel()
	if err := runIn(loadCtx, tabCtx,
		runtime.AddBinding(bindingName),
		chromedp.Navigate("file://"+name),
	); err != nil {
		tabCancel()
		return nil, loadError(err, selector, false)
	}
	if err := runIn(loadCtx, tabCtx, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		tabCancel()
		return nil, loadError(err, selector, true)
	}

	if err := c.track(p); err != nil {
		tabCancel()
		return nil, err
	}
	p.observer = NewHeightObserver(p, p.store, withConfig(c.cfg))
	p.unsubscribeStore = p.store.Subscribe(p.mount)
	if err := p.observer.Start(); err != nil {
		p.Close()
		return nil, err
	}
	p.log.Debug("Preview opened")
	return p, nil
}

// loadError describes a failed preview load. Only a wait for the container
// that runs out of time means the selector matched nothing.
func loadError(err error, selector string, waitingForContainer bool) error {
	if waitingForContainer && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %q", ErrContainerNotFound, selector)
	}
	return fmt.Errorf("livepager: loading preview: %w", err)
}

// withConfig carries a Converter's resolved configuration into the objects
// it creates.
func withConfig(cfg config) Option {
	return func(c *config) {
		*c = cfg
	}
}

// OnSizeChange installs the in-page mutation and resize watchers on the
// container. It implements [SizeSource].
func (p *Preview) OnSizeChange(notify func()) (func(), error) {
	p.mu.Lock()
	p.notify = notify
	p.mu.Unlock()

	ctx, cancel := p.timeoutCtx()
	defer cancel()

	var found bool
	if err := runIn(ctx, p.tabCtx,
		chromedp.Evaluate(script(installScript, p.selector, bindingName, OverlayClass), &found),
	); err != nil {
		return nil, fmt.Errorf("livepager: installing watchers: %w", err)
	}
	if !found {
		return nil, fmt.Errorf("%w: %q", ErrContainerNotFound, p.selector)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.notify = nil
			p.mu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			var done bool
			// the tab may already be gone; nothing is left to detach then
			_ = runIn(ctx, p.tabCtx, chromedp.Evaluate(uninstallScript, &done))
		})
	}, nil
}

// MeasureHeight reads the container's clientHeight inside an animation
// frame. It implements [SizeSource].
func (p *Preview) MeasureHeight(ctx context.Context) (float64, error) {
	var h float64
	err := runIn(ctx, p.tabCtx,
		chromedp.Evaluate(script(measureScript, p.selector), &h,
			func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
				return ep.WithAwaitPromise(true)
			}),
	)
	if err != nil {
		return 0, fmt.Errorf("livepager: measuring: %w", err)
	}
	return h, nil
}

func (p *Preview) onEvent(ev any) {
	e, ok := ev.(*runtime.EventBindingCalled)
	if !ok || e.Name != bindingName {
		return
	}
	p.mu.Lock()
	notify := p.notify
	p.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// mount replaces the overlay in the container with the one for snap.
func (p *Preview) mount(snap Snapshot) {
	if p.isClosed() {
		return
	}
	markup, err := snap.Overlay().HTML()
	if err != nil {
		p.log.Warn("Unable to render overlay", zap.Error(err))
		return
	}

	ctx, cancel := p.timeoutCtx()
	defer cancel()
	var ok bool
	if err := runIn(ctx, p.tabCtx,
		chromedp.Evaluate(script(mountScript, p.selector, OverlayClass, markup), &ok),
	); err != nil {
		p.log.Debug("Unable to mount overlay", zap.Error(err))
		return
	}
	p.log.Debug("Overlay mounted",
		zap.Float64("height", snap.ContentHeight),
		zap.Int("pages", snap.Geometry.PageCount),
		zap.Int("lines", len(snap.Breaks)))
}

// SetContent replaces the content of the container. The watchers pick up
// the mutation; an extra delayed measurement catches late image and font
// loads.
func (p *Preview) SetContent(ctx context.Context, html string) error {
	if p.isClosed() {
		return ErrClosed
	}
	var ok bool
	if err := runIn(ctx, p.tabCtx,
		chromedp.Evaluate(script(setContentScript, p.selector, OverlayClass, html), &ok),
	); err != nil {
		return fmt.Errorf("livepager: replacing content: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrContainerNotFound, p.selector)
	}
	p.observer.ContentChanged()
	return nil
}

// SetPadding changes the page padding and re-renders the overlay.
func (p *Preview) SetPadding(px float64) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.store.SetPadding(px)
}

// Snapshot returns the current pagination state.
func (p *Preview) Snapshot() Snapshot {
	return p.store.Snapshot()
}

// Subscribe registers fn for every pagination change. See [Store.Subscribe].
func (p *Preview) Subscribe(fn func(Snapshot)) func() {
	return p.store.Subscribe(fn)
}

// WaitForHeight blocks until a positive content height has been measured
// and returns the snapshot at that point.
func (p *Preview) WaitForHeight(ctx context.Context) (Snapshot, error) {
	ready := make(chan Snapshot, 1)
	unsubscribe := p.store.Subscribe(func(s Snapshot) {
		if s.ContentHeight > 0 {
			select {
			case ready <- s:
			default:
			}
		}
	})
	defer unsubscribe()

	if s := p.store.Snapshot(); s.ContentHeight > 0 {
		return s, nil
	}
	select {
	case s := <-ready:
		return s, nil
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// ExportPDF prints the previewed document with the preview's page
// configuration. The break-line overlay is hidden in print.
func (p *Preview) ExportPDF(ctx context.Context) (*Result, error) {
	if p.isClosed() {
		return nil, ErrClosed
	}
	snap := p.store.Snapshot()

	var buf []byte
	if err := runIn(ctx, p.tabCtx, printPDF(&snap.Config, &buf)); err != nil {
		return nil, fmt.Errorf("livepager: export failed: %w", err)
	}
	return &Result{data: buf, geometry: snap.Geometry}, nil
}

// Close stops observing, detaches the watchers and closes the tab.
// Close is idempotent.
func (p *Preview) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.Close()
	}
	if p.unsubscribeStore != nil {
		p.unsubscribeStore()
	}
	p.tabCancel()
	p.conv.untrack(p)
	p.log.Debug("Preview closed")
	return nil
}

func (p *Preview) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Preview) timeoutCtx() (context.Context, context.CancelFunc) {
	if p.cfg.timeout > 0 {
		return context.WithTimeout(context.Background(), p.cfg.timeout)
	}
	return context.WithCancel(context.Background())
}
