// Package server exposes live previews over HTTP and websockets.
//
// Every preview is a session addressed by a random id. Clients push content
// and padding changes with plain requests and follow the resulting
// pagination over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	livepager "github.com/porticus-lab/go-live-pager"
)

// Previewer is the part of [livepager.Preview] the server drives.
type Previewer interface {
	SetContent(ctx context.Context, html string) error
	SetPadding(px float64) error
	Snapshot() livepager.Snapshot
	Subscribe(fn func(livepager.Snapshot)) func()
	Close() error
}

// Opener starts a new preview of html paginated with pg.
type Opener func(ctx context.Context, html, selector string, pg *livepager.PageConfig) (Previewer, error)

// ConverterOpener opens previews in tabs of c.
func ConverterOpener(c *livepager.Converter) Opener {
	return func(ctx context.Context, html, selector string, pg *livepager.PageConfig) (Previewer, error) {
		p, err := c.OpenPreview(ctx, html, selector, pg)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// Options configures a Server.
type Options struct {
	// Page is the page configuration new previews start with.
	Page livepager.PageConfig
	// SessionTTL closes previews nobody touched for this long. Defaults to
	// 30 minutes.
	SessionTTL time.Duration
	// RateLimit is the number of requests per minute allowed per client
	// address. Zero disables limiting.
	RateLimit int
	Logger    *zap.Logger
}

const (
	defaultSessionTTL = 30 * time.Minute
	pingPeriod        = 30 * time.Second
	writeWait         = 10 * time.Second
)

type session struct {
	id   string
	p    Previewer
	done chan struct{}
	once sync.Once
}

func (s *session) close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.p.Close()
	})
	return err
}

// Server routes preview requests to sessions.
type Server struct {
	router   chi.Router
	open     Opener
	page     livepager.PageConfig
	sessions *cache.Cache
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// New creates a Server that starts previews with open.
func New(open Opener, opts Options) *Server {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		router:   chi.NewRouter(),
		open:     open,
		page:     opts.Page,
		sessions: cache.New(opts.SessionTTL, opts.SessionTTL/2),
		log:      opts.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	s.sessions.OnEvicted(func(id string, v any) {
		if err := v.(*session).close(); err != nil {
			s.log.Warn("Unable to close preview", zap.String("id", id), zap.Error(err))
			return
		}
		s.log.Debug("Preview session ended", zap.String("id", id))
	})
	s.setupRoutes(opts.RateLimit)
	return s
}

func (s *Server) setupRoutes(rateLimit int) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger(s.log))
	s.router.Use(middleware.Recoverer)
	if rateLimit > 0 {
		s.router.Use(httprate.LimitByIP(rateLimit, time.Minute))
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/previews", func(r chi.Router) {
		r.Post("/", s.handleCreate)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Delete("/", s.handleDelete)
			r.Put("/content", s.handleContent)
			r.Put("/padding", s.handlePadding)
			r.Get("/overlay", s.handleOverlay)
			r.Get("/ws", s.handleWebSocket)
		})
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Sessions returns the number of live previews.
func (s *Server) Sessions() int {
	return s.sessions.ItemCount()
}

// lookup returns the session and restarts its idle timer. A session deleted
// concurrently is reported missing rather than brought back.
func (s *Server) lookup(id string) (*session, bool) {
	v, ok := s.sessions.Get(id)
	if !ok {
		return nil, false
	}
	sess := v.(*session)
	if err := s.sessions.Replace(id, sess, cache.DefaultExpiration); err != nil {
		return nil, false
	}
	return sess, true
}

// Close ends every session.
func (s *Server) Close() {
	for id := range s.sessions.Items() {
		s.sessions.Delete(id)
	}
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down and
// closes all previews.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info("Preview server listening", zap.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("preview server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("preview server shutdown: %w", err)
	}
	return nil
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Debug("Request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("elapsed", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
