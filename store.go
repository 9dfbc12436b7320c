package livepager

import (
	"fmt"
	"sync"
)

// Snapshot is the pagination state at one point in time.
type Snapshot struct {
	ContentHeight float64     `json:"content_height"`
	Config        PageConfig  `json:"config"`
	Geometry      Geometry    `json:"geometry"`
	Breaks        []BreakLine `json:"breaks"`
}

// Overlay returns the break-line overlay for the snapshot.
func (s Snapshot) Overlay() Overlay {
	return Overlay{Key: overlayKey(s.ContentHeight, s.Geometry.PageHeightPx), Lines: s.Breaks}
}

type subscriber struct {
	id int
	fn func(Snapshot)
}

// Store holds the content height and page configuration of one document and
// notifies subscribers whenever the derived pagination changes. The content
// height is written by a [HeightObserver]; the page configuration by the
// hosting editor.
type Store struct {
	calc Calculator

	mu     sync.Mutex
	height float64
	config PageConfig
	subs   []subscriber
	nextID int

	// rev counts changes, sent is the last rev handed to subscribers.
	rev        uint64
	sent       uint64
	delivering bool
}

// NewStore creates a Store for the given page configuration.
// If pg is nil, [DefaultPageConfig] values are used.
func NewStore(pg *PageConfig) *Store {
	return &Store{config: pg.resolved()}
}

// SetContentHeight records a newly measured content height. Negative values
// are stored as zero.
func (s *Store) SetContentHeight(h float64) {
	s.update(func() bool {
		h = max(h, 0)
		if h == s.height {
			return false
		}
		s.height = h
		return true
	})
}

// SetPadding changes the page padding.
func (s *Store) SetPadding(px float64) error {
	if px < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidPadding, px)
	}
	s.update(func() bool {
		if px == s.config.PaddingPx {
			return false
		}
		s.config.PaddingPx = px
		return true
	})
	return nil
}

// SetConfig replaces the page configuration.
func (s *Store) SetConfig(pg PageConfig) error {
	if err := pg.Validate(); err != nil {
		return err
	}
	pg = pg.resolved()
	s.update(func() bool {
		if pg == s.config {
			return false
		}
		s.config = pg
		return true
	})
	return nil
}

// ContentHeight returns the last recorded content height.
func (s *Store) ContentHeight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.height
}

// Snapshot returns the current pagination state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	g := s.calc.Geometry(s.height, s.config)
	return Snapshot{
		ContentHeight: s.height,
		Config:        s.config,
		Geometry:      g,
		Breaks:        BreakLines(s.height, g),
	}
}

// Subscribe registers fn to be called with the new snapshot after every
// change. Subscribers run in subscription order, outside the store lock, and
// never concurrently with each other. Deliveries are ordered: a subscriber
// always finishes on the store's latest state. A change made while another
// one is being delivered is handed over to the delivering goroutine, which
// sends the newest snapshot once the current round is done; changes in
// between may be coalesced. The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (s *Store) update(apply func() bool) {
	s.mu.Lock()
	if !apply() {
		s.mu.Unlock()
		return
	}
	s.rev++
	if s.delivering {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	locked := true
	// a panicking subscriber must not leave the store undeliverable
	defer func() {
		if !locked {
			s.mu.Lock()
		}
		s.delivering = false
		s.mu.Unlock()
	}()

	for s.sent != s.rev {
		s.sent = s.rev
		snap := s.snapshotLocked()
		subs := append([]subscriber(nil), s.subs...)
		s.mu.Unlock()
		locked = false

		for _, sub := range subs {
			sub.fn(snap)
		}
		s.mu.Lock()
		locked = true
	}
}
