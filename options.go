package livepager

import (
	"time"

	"go.uber.org/zap"
)

// Observer timing defaults.
const (
	DefaultDebounce       = 100 * time.Millisecond
	DefaultRemeasureDelay = 300 * time.Millisecond
)

// config holds internal configuration shared by Converter, Preview and
// HeightObserver.
type config struct {
	chromePath     string
	timeout        time.Duration
	noSandbox      bool
	autoDownload   bool
	headless       string
	logger         *zap.Logger
	debounce       time.Duration
	remeasureDelay time.Duration
}

func defaultConfig() config {
	return config{
		timeout:        30 * time.Second,
		headless:       "new",
		logger:         zap.NewNop(),
		debounce:       DefaultDebounce,
		remeasureDelay: DefaultRemeasureDelay,
	}
}

// Option configures a [Converter], its previews, or a [HeightObserver].
type Option func(*config)

// WithChromePath sets the path to the Chrome or Chromium executable.
// By default the library searches standard locations automatically.
func WithChromePath(path string) Option {
	return func(c *config) {
		c.chromePath = path
	}
}

// WithTimeout sets the maximum duration for a single export or preview load.
// Defaults to 30 seconds. A zero or negative value disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithNoSandbox disables the Chrome sandbox. This is required when
// running as root, for example inside Docker containers.
func WithNoSandbox() Option {
	return func(c *config) {
		c.noSandbox = true
	}
}

// WithAutoDownload fetches a compatible Chromium build when no explicit
// Chrome path is configured.
func WithAutoDownload() Option {
	return func(c *config) {
		c.autoDownload = true
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithDebounce sets the quiet period after the last size change before the
// content is measured. Defaults to 100ms.
func WithDebounce(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.debounce = d
		}
	}
}

// WithRemeasureDelay sets the delay of the extra measurement scheduled when
// the document content is replaced. Defaults to 300ms.
func WithRemeasureDelay(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.remeasureDelay = d
		}
	}
}
