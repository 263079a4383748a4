package backendhttp

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamcast/internal/simulator"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestServer() (*Server, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := simulator.NewStore("http://localhost:3001", logger, simulator.WithClock(clock.Now))
	return NewServer(store, WithLogger(logger)), clock
}

func startSession(t *testing.T, srv *Server, body string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/stream/start", strings.NewReader(body))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("start: status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode start response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("empty sessionId")
	}
	return resp.SessionID
}

func getStatus(t *testing.T, srv *Server, id string) (int, statusResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/stream/status/"+id, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var resp statusResponse
	if rec.Code == http.StatusOK {
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode status: %v", err)
		}
	}
	return rec.Code, resp
}

func TestStartToReadyScenario(t *testing.T) {
	srv, clock := newTestServer()
	id := startSession(t, srv, `{"source":"magnet:?xt=urn:btih:deadbeef"}`)

	clock.Advance(5 * time.Second)
	code, status := getStatus(t, srv, id)
	if code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if status.Status != "downloading" || status.Progress != 0.15 || status.Eta != 100 {
		t.Errorf("at t=5: %+v", status)
	}

	clock.Advance(11 * time.Second)
	_, status = getStatus(t, srv, id)
	if status.Status != "converting" || status.Progress != 0.85 || status.Eta != 20 {
		t.Errorf("at t=16: %+v", status)
	}

	clock.Advance(5 * time.Second)
	_, status = getStatus(t, srv, id)
	if status.Status != "ready" || status.Progress != 1.0 || status.Eta != 0 {
		t.Errorf("at t=21: %+v", status)
	}
	if status.StreamURL == "" {
		t.Error("ready status must carry streamUrl")
	}
	if status.Duration != 7200 {
		t.Errorf("duration = %v, want 7200", status.Duration)
	}
}

func TestStartRejectsMissingSource(t *testing.T) {
	srv, _ := newTestServer()

	for _, body := range []string{`{}`, `{"source":""}`, `{"source":"http://nope"}`} {
		req := httptest.NewRequest(http.MethodPost, "/stream/start", strings.NewReader(body))
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestStatusUnknownSession(t *testing.T) {
	srv, _ := newTestServer()
	code, _ := getStatus(t, srv, "does-not-exist")
	if code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", code)
	}
}

func TestDeleteStream(t *testing.T) {
	srv, _ := newTestServer()
	id := startSession(t, srv, `{"source":"magnet:?xt=urn:btih:deadbeef"}`)

	req := httptest.NewRequest(http.MethodDelete, "/stream/"+id, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "stopped" {
		t.Errorf("status = %q, want stopped", resp.Status)
	}

	if code, _ := getStatus(t, srv, id); code != http.StatusNotFound {
		t.Errorf("status after delete = %d, want 404", code)
	}
}

func TestDeleteUnknownSession(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodDelete, "/stream/unknown-id", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestListStreams(t *testing.T) {
	srv, clock := newTestServer()
	startSession(t, srv, `{"source":"magnet:?xt=urn:btih:aa","quality":"1080p"}`)
	clock.Advance(21 * time.Second)
	startSession(t, srv, `{"source":"magnet:?xt=urn:btih:bb"}`)

	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status = %d", rec.Code)
	}
	var resp struct {
		Streams []sessionSummary `json:"streams"`
		Count   int              `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 2 || len(resp.Streams) != 2 {
		t.Fatalf("count = %d, streams = %d", resp.Count, len(resp.Streams))
	}
	if resp.Streams[0].Status != "ready" || resp.Streams[0].Quality != "1080p" {
		t.Errorf("oldest stream = %+v", resp.Streams[0])
	}
	if resp.Streams[1].Status != "downloading" {
		t.Errorf("newest stream = %+v", resp.Streams[1])
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status = %d", rec.Code)
	}
	var resp map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["version"] == "" || resp["timestamp"] == "" {
		t.Error("health must carry version and timestamp")
	}
}

func TestManifestOnlyWhenReady(t *testing.T) {
	srv, clock := newTestServer()
	id := startSession(t, srv, `{"source":"magnet:?xt=urn:btih:deadbeef"}`)

	req := httptest.NewRequest(http.MethodGet, "/streams/"+id+"/master.m3u8", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != http.StatusConflict {
		t.Errorf("manifest before ready: status = %d, want 409", rec.Code)
	}

	clock.Advance(21 * time.Second)
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/streams/"+id+"/master.m3u8", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("manifest when ready: status = %d", rec.Code)
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("#EXTM3U")) {
		t.Errorf("manifest body = %q", rec.Body.String())
	}
}

func TestGCReapedSessionIsGone(t *testing.T) {
	srv, clock := newTestServer()

	id := startSession(t, srv, `{"source":"magnet:?xt=urn:btih:deadbeef"}`)
	clock.Advance(31 * time.Minute)
	if n := srv.store.Sweep(30 * time.Minute); n != 1 {
		t.Fatalf("reaped %d, want 1", n)
	}

	if code, _ := getStatus(t, srv, id); code != http.StatusNotFound {
		t.Errorf("status after reap = %d, want 404", code)
	}
	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var resp struct {
		Count int `json:"count"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Count != 0 {
		t.Errorf("count after reap = %d, want 0", resp.Count)
	}
}
