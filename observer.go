package livepager

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// SizeSource is a live content container whose rendered height can change.
//
// OnSizeChange registers notify to be called whenever the container may have
// changed size, for whatever reason (DOM mutation, attribute or text change,
// layout-driven resize). notify must be cheap; it is called from event
// dispatch. The returned function detaches every underlying watcher.
//
// MeasureHeight reads the container's current rendered height after layout.
type SizeSource interface {
	OnSizeChange(notify func()) (unsubscribe func(), err error)
	MeasureHeight(ctx context.Context) (float64, error)
}

// HeightObserver keeps a [Store]'s content height in sync with a
// [SizeSource]. Bursts of change notifications collapse into a single
// measurement per debounce window, and only positive heights that differ from
// the last published one reach the store.
type HeightObserver struct {
	src   SizeSource
	store *Store
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	debounce  *debouncer
	remeasure *debouncer

	// measureMu serializes measurements and their publishing; Close waits on
	// it so that no height reaches the store once Close returns. pubMu guards
	// the fields below and is never held while the store notifies.
	measureMu   sync.Mutex
	pubMu       sync.Mutex
	last        float64
	started     bool
	closed      bool
	unsubscribe func()
}

// NewHeightObserver creates an observer publishing into store. Call
// [HeightObserver.Start] to attach it and [HeightObserver.Close] to release it.
func NewHeightObserver(src SizeSource, store *Store, opts ...Option) *HeightObserver {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	ctx, cancel := context.WithCancel(context.Background())
	o := &HeightObserver{
		src:    src,
		store:  store,
		log:    cfg.logger.Named("observer"),
		ctx:    ctx,
		cancel: cancel,
	}
	o.debounce = newDebouncer(cfg.debounce, o.measure)
	o.remeasure = newDebouncer(cfg.remeasureDelay, o.measure)
	return o
}

// Start attaches the change watchers and schedules an initial measurement.
// Start is idempotent.
func (o *HeightObserver) Start() error {
	o.pubMu.Lock()
	if o.closed {
		o.pubMu.Unlock()
		return ErrClosed
	}
	if o.started {
		o.pubMu.Unlock()
		return nil
	}
	unsubscribe, err := o.src.OnSizeChange(o.debounce.Trigger)
	if err != nil {
		o.pubMu.Unlock()
		return err
	}
	o.unsubscribe = unsubscribe
	o.started = true
	o.pubMu.Unlock()

	o.debounce.Trigger()
	return nil
}

// ContentChanged schedules a one-shot delayed re-measurement. Call it when
// the document's underlying data is replaced, so that images and fonts that
// load asynchronously, without mutating the DOM, are still accounted for.
func (o *HeightObserver) ContentChanged() {
	o.remeasure.Trigger()
}

// Height returns the last published height, 0 if none yet. It is safe to
// call from a store subscriber.
func (o *HeightObserver) Height() float64 {
	o.pubMu.Lock()
	defer o.pubMu.Unlock()
	return o.last
}

func (o *HeightObserver) measure() {
	o.measureMu.Lock()
	defer o.measureMu.Unlock()

	if o.ctx.Err() != nil {
		return
	}
	h, err := o.src.MeasureHeight(o.ctx)
	if err != nil {
		if o.ctx.Err() == nil {
			o.log.Debug("Measurement failed", zap.Error(err))
		}
		return
	}
	o.publish(h)
}

func (o *HeightObserver) publish(h float64) {
	o.pubMu.Lock()
	if o.closed || h <= 0 || h == o.last {
		o.pubMu.Unlock()
		return
	}
	from := o.last
	o.last = h
	o.pubMu.Unlock()

	o.log.Debug("Content height changed", zap.Float64("from", from), zap.Float64("to", h))
	o.store.SetContentHeight(h)
}

// Close detaches the watchers, cancels pending measurements and aborts one in
// flight. No height is published after Close returns. Close must not be
// called from a store subscriber. Close is idempotent.
func (o *HeightObserver) Close() error {
	o.debounce.Stop()
	o.remeasure.Stop()
	o.cancel()

	o.pubMu.Lock()
	if o.closed {
		o.pubMu.Unlock()
		return nil
	}
	o.closed = true
	unsubscribe := o.unsubscribe
	o.unsubscribe = nil
	o.pubMu.Unlock()

	// a measurement that already passed the closed check finishes first
	o.measureMu.Lock()
	defer o.measureMu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	return nil
}
