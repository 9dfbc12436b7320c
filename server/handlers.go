package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	livepager "github.com/porticus-lab/go-live-pager"
)

type createRequest struct {
	HTML      string   `json:"html"`
	Selector  string   `json:"selector,omitempty"`
	PaddingPx *float64 `json:"padding_px,omitempty"`
}

type createResponse struct {
	ID       string             `json:"id"`
	Snapshot livepager.Snapshot `json:"snapshot"`
}

type contentRequest struct {
	HTML string `json:"html"`
}

type paddingRequest struct {
	PaddingPx *float64 `json:"padding_px"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// statusFor maps preview errors to response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, livepager.ErrInvalidPadding), errors.Is(err, livepager.ErrDegeneratePage):
		return http.StatusBadRequest
	case errors.Is(err, livepager.ErrClosed):
		return http.StatusNotFound
	default:
		return http.StatusBadGateway
	}
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"previews": s.Sessions(),
	})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}

	pg := s.page
	if req.PaddingPx != nil {
		pg.PaddingPx = *req.PaddingPx
	}
	if err := pg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.open(r.Context(), req.HTML, req.Selector, &pg)
	if err != nil {
		s.log.Warn("Unable to open preview", zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	sess := &session{id: uuid.NewString(), p: p, done: make(chan struct{})}
	s.sessions.Set(sess.id, sess, cache.DefaultExpiration)
	s.log.Info("Preview session started", zap.String("id", sess.id))

	writeJSON(w, http.StatusCreated, createResponse{ID: sess.id, Snapshot: p.Snapshot()})
}

func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) (*session, bool) {
	sess, ok := s.lookup(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown preview")
	}
	return sess, ok
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.p.Snapshot())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Get(id); !ok {
		writeError(w, http.StatusNotFound, "unknown preview")
		return
	}
	s.sessions.Delete(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req contentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request: "+err.Error())
		return
	}
	if err := sess.p.SetContent(r.Context(), req.HTML); err != nil {
		s.log.Warn("Unable to replace content", zap.String("id", sess.id), zap.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePadding(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	var req paddingRequest
	if err := decode(r, &req); err != nil || req.PaddingPx == nil {
		writeError(w, http.StatusBadRequest, "malformed request: padding_px required")
		return
	}
	if err := sess.p.SetPadding(*req.PaddingPx); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sess.p.Snapshot())
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFor(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := sess.p.Snapshot().Overlay().Render(w); err != nil {
		s.log.Debug("Unable to render overlay", zap.String("id", sess.id), zap.Error(err))
	}
}
