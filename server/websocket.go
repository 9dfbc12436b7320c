package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	livepager "github.com/porticus-lab/go-live-pager"
)

// latest holds the most recent snapshot for a slow reader. Older snapshots
// are overwritten, never queued.
type latest struct {
	mu    sync.Mutex
	snap  livepager.Snapshot
	ready chan struct{}
}

func newLatest() *latest {
	return &latest{ready: make(chan struct{}, 1)}
}

func (l *latest) put(s livepager.Snapshot) {
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *latest) get() livepager.Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snap
}

// handleWebSocket streams the current snapshot followed by every change
// until the client disconnects or the preview ends.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	// subscribe before reading the current state so no change falls between
	updates := newLatest()
	unsubscribe := sess.p.Subscribe(updates.put)
	defer unsubscribe()
	updates.put(sess.p.Snapshot())

	// reader: only control frames are expected, exit on close
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.log.Debug("WebSocket error", zap.String("id", sess.id), zap.Error(err))
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-updates.ready:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(updates.get()); err != nil {
				return
			}
		case <-ticker.C:
			// an open socket keeps the preview alive
			s.lookup(sess.id)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-sess.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "preview closed"),
				time.Now().Add(writeWait))
			return
		case <-gone:
			return
		}
	}
}
