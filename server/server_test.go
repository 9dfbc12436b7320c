package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	livepager "github.com/porticus-lab/go-live-pager"
)

// fakePreview renders "documents" whose body is their height in pixels.
type fakePreview struct {
	store *livepager.Store

	mu     sync.Mutex
	closed bool
}

func (f *fakePreview) SetContent(_ context.Context, html string) error {
	h, err := strconv.ParseFloat(html, 64)
	if err != nil {
		return errors.New("render failed")
	}
	f.store.SetContentHeight(h)
	return nil
}

func (f *fakePreview) SetPadding(px float64) error { return f.store.SetPadding(px) }

func (f *fakePreview) Snapshot() livepager.Snapshot { return f.store.Snapshot() }

func (f *fakePreview) Subscribe(fn func(livepager.Snapshot)) func() { return f.store.Subscribe(fn) }

func (f *fakePreview) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakePreview) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeOpener struct {
	mu       sync.Mutex
	previews []*fakePreview
}

func (o *fakeOpener) open(ctx context.Context, html, _ string, pg *livepager.PageConfig) (Previewer, error) {
	p := &fakePreview{store: livepager.NewStore(pg)}
	if err := p.SetContent(ctx, html); err != nil {
		return nil, err
	}
	o.mu.Lock()
	o.previews = append(o.previews, p)
	o.mu.Unlock()
	return p, nil
}

func (o *fakeOpener) last() *fakePreview {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.previews) == 0 {
		return nil
	}
	return o.previews[len(o.previews)-1]
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	s := New(opener.open, opts)
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	return s, ts, opener
}

func do(t *testing.T, method, url, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func createPreview(t *testing.T, base, body string) string {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/previews", body)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("POST /previews status = %d, want 201", resp.StatusCode)
	}
	var cr createResponse
	decodeBody(t, resp, &cr)
	if cr.ID == "" {
		t.Fatal("empty preview id")
	}
	return cr.ID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestCreateAndGet(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})

	resp := do(t, http.MethodPost, ts.URL+"/previews", `{"html":"2000","padding_px":40}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	var cr createResponse
	decodeBody(t, resp, &cr)
	if cr.Snapshot.ContentHeight != 2000 || cr.Snapshot.Geometry.PageCount != 2 {
		t.Errorf("snapshot = %+v", cr.Snapshot)
	}

	resp = do(t, http.MethodGet, ts.URL+"/previews/"+cr.ID, "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET status = %d, want 200", resp.StatusCode)
	}
	var snap livepager.Snapshot
	decodeBody(t, resp, &snap)
	if snap.Config.PaddingPx != 40 || len(snap.Breaks) != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestCreate_BadRequests(t *testing.T) {
	_, ts, opener := newTestServer(t, Options{})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"malformed json", `{"html":`, http.StatusBadRequest},
		{"unknown field", `{"html":"1","margin":3}`, http.StatusBadRequest},
		{"negative padding", `{"html":"1","padding_px":-4}`, http.StatusBadRequest},
		{"padding larger than page", `{"html":"1","padding_px":5000}`, http.StatusBadRequest},
		{"render failure", `{"html":"<p>broken</p>"}`, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := do(t, http.MethodPost, ts.URL+"/previews", tt.body)
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
	if opener.last() != nil {
		t.Error("preview opened for rejected request")
	}
}

func TestUnknownPreview(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/previews/nope", ""},
		{http.MethodPut, "/previews/nope/content", `{"html":"1"}`},
		{http.MethodPut, "/previews/nope/padding", `{"padding_px":1}`},
		{http.MethodGet, "/previews/nope/overlay", ""},
		{http.MethodDelete, "/previews/nope", ""},
	} {
		if resp := do(t, tc.method, ts.URL+tc.path, tc.body); resp.StatusCode != http.StatusNotFound {
			t.Errorf("%s %s status = %d, want 404", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestContentAndPadding(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})
	id := createPreview(t, ts.URL, `{"html":"1000"}`)
	base := ts.URL + "/previews/" + id

	if resp := do(t, http.MethodPut, base+"/content", `{"html":"5000"}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT content status = %d, want 204", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, base+"/content", `{"html":"garbage"}`); resp.StatusCode != http.StatusBadGateway {
		t.Errorf("failed render status = %d, want 502", resp.StatusCode)
	}

	resp := do(t, http.MethodPut, base+"/padding", `{"padding_px":40}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT padding status = %d, want 200", resp.StatusCode)
	}
	var snap livepager.Snapshot
	decodeBody(t, resp, &snap)
	if snap.ContentHeight != 5000 || snap.Config.PaddingPx != 40 || snap.Geometry.PageCount != 5 {
		t.Errorf("snapshot = %+v", snap)
	}

	if resp := do(t, http.MethodPut, base+"/padding", `{"padding_px":-1}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("negative padding status = %d, want 400", resp.StatusCode)
	}
	if resp := do(t, http.MethodPut, base+"/padding", `{}`); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing padding status = %d, want 400", resp.StatusCode)
	}
}

func TestOverlay(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})
	id := createPreview(t, ts.URL, `{"html":"3000"}`)

	resp := do(t, http.MethodGet, ts.URL+"/previews/"+id+"/overlay", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Contains(body, []byte(livepager.OverlayClass)) {
		t.Errorf("overlay markup missing class: %s", body)
	}
	if n := bytes.Count(body, []byte(`data-page=`)); n != 2 {
		t.Errorf("overlay has %d markers, want 2", n)
	}
}

func TestDelete(t *testing.T) {
	s, ts, opener := newTestServer(t, Options{})
	id := createPreview(t, ts.URL, `{"html":"100"}`)

	if resp := do(t, http.MethodDelete, ts.URL+"/previews/"+id, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d, want 204", resp.StatusCode)
	}
	if !opener.last().isClosed() {
		t.Error("preview not closed on delete")
	}
	if s.Sessions() != 0 {
		t.Errorf("Sessions() = %d, want 0", s.Sessions())
	}
	if resp := do(t, http.MethodGet, ts.URL+"/previews/"+id, ""); resp.StatusCode != http.StatusNotFound {
		t.Errorf("GET after delete status = %d, want 404", resp.StatusCode)
	}
}

func TestLookupDoesNotRestoreDeleted(t *testing.T) {
	s, _, _ := newTestServer(t, Options{})

	for i := range 200 {
		id := "race-" + strconv.Itoa(i)
		p := &fakePreview{store: livepager.NewStore(nil)}
		s.sessions.Set(id, &session{id: id, p: p, done: make(chan struct{})}, 0)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 1000 {
				if _, ok := s.lookup(id); !ok {
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			s.sessions.Delete(id)
		}()
		wg.Wait()

		if _, ok := s.lookup(id); ok {
			t.Fatalf("session %s is back after delete", id)
		}
		if !p.isClosed() {
			t.Fatalf("preview %s not closed on delete", id)
		}
	}
	if n := s.Sessions(); n != 0 {
		t.Errorf("Sessions() = %d, want 0", n)
	}
}

func TestSessionExpiry(t *testing.T) {
	_, ts, opener := newTestServer(t, Options{SessionTTL: 50 * time.Millisecond})
	createPreview(t, ts.URL, `{"html":"100"}`)

	p := opener.last()
	waitFor(t, "idle preview to close", p.isClosed)
}

func TestClose(t *testing.T) {
	s, ts, opener := newTestServer(t, Options{})
	createPreview(t, ts.URL, `{"html":"100"}`)
	createPreview(t, ts.URL, `{"html":"200"}`)

	s.Close()
	for i, p := range opener.previews {
		if !p.isClosed() {
			t.Errorf("preview %d not closed", i)
		}
	}
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})
	createPreview(t, ts.URL, `{"html":"100"}`)

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Status   string `json:"status"`
		Previews int    `json:"previews"`
	}
	decodeBody(t, resp, &body)
	if body.Status != "ok" || body.Previews != 1 {
		t.Errorf("health = %+v", body)
	}
}

func TestRateLimit(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{RateLimit: 2})

	var limited bool
	for range 5 {
		if resp := do(t, http.MethodGet, ts.URL+"/healthz", ""); resp.StatusCode == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("no request was rate limited")
	}
}

func TestWebSocket(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})
	id := createPreview(t, ts.URL, `{"html":"1000"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/previews/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap livepager.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
	if snap.ContentHeight != 1000 {
		t.Errorf("initial ContentHeight = %v, want 1000", snap.ContentHeight)
	}

	if resp := do(t, http.MethodPut, ts.URL+"/previews/"+id+"/content", `{"html":"4500"}`); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("PUT content status = %d", resp.StatusCode)
	}
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("reading update: %v", err)
	}
	if snap.ContentHeight != 4500 || snap.Geometry.PageCount != 5 {
		t.Errorf("update = %+v", snap)
	}

	if resp := do(t, http.MethodDelete, ts.URL+"/previews/"+id, ""); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE status = %d", resp.StatusCode)
	}
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage after delete = %v, want normal close", err)
	}
}

// lateChangePreview commits a change while a subscriber is being attached,
// before it is registered.
type lateChangePreview struct {
	*fakePreview
	once sync.Once
}

func (p *lateChangePreview) Subscribe(fn func(livepager.Snapshot)) func() {
	p.once.Do(func() { p.store.SetContentHeight(2500) })
	return p.fakePreview.Subscribe(fn)
}

func TestWebSocket_ChangeWhileAttaching(t *testing.T) {
	p := &lateChangePreview{fakePreview: &fakePreview{store: livepager.NewStore(nil)}}
	p.store.SetContentHeight(1000)

	s := New(func(context.Context, string, string, *livepager.PageConfig) (Previewer, error) {
		return p, nil
	}, Options{})
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.Close()
	})
	id := createPreview(t, ts.URL, `{"html":"1000"}`)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/previews/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var snap livepager.Snapshot
	if err := conn.ReadJSON(&snap); err != nil {
		t.Fatalf("reading initial snapshot: %v", err)
	}
	if snap.ContentHeight != 2500 {
		t.Errorf("initial ContentHeight = %v, want 2500", snap.ContentHeight)
	}
}

func TestWebSocket_UnknownPreview(t *testing.T) {
	_, ts, _ := newTestServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/previews/nope/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("Dial succeeded for unknown preview")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("handshake response = %v, want 404", resp)
	}
}
