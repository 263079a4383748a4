package apihttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamcast/internal/domain"
	domainports "streamcast/internal/domain/ports"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSessions struct {
	startErr  error
	retryErr  error
	session   domain.StreamSession
	snapshot  domain.StatusSnapshot
	hasStatus bool
	files     []domain.VideoCandidate
	filesErr  error

	starts  []string
	retries int
	stops   int
	pauses  int
	resumes int
	selects []int
}

func (f *fakeSessions) Start(ctx context.Context, source string, opts domain.StartOptions) (domain.StreamID, error) {
	if f.startErr != nil {
		return "", f.startErr
	}
	f.starts = append(f.starts, source)
	return f.session.ID, nil
}

func (f *fakeSessions) Retry(ctx context.Context) (domain.StreamID, error) {
	f.retries++
	if f.retryErr != nil {
		return "", f.retryErr
	}
	return f.session.ID, nil
}

func (f *fakeSessions) Stop(ctx context.Context) error  { f.stops++; return nil }
func (f *fakeSessions) Pause(ctx context.Context) error { f.pauses++; return nil }

func (f *fakeSessions) Resume(ctx context.Context) error { f.resumes++; return nil }

func (f *fakeSessions) Status() (domain.StreamSession, domain.StatusSnapshot, bool) {
	return f.session, f.snapshot, f.hasStatus
}

func (f *fakeSessions) Active() (domain.StreamSession, bool) {
	return f.session, f.hasStatus && !f.snapshot.Phase.Terminal()
}

func (f *fakeSessions) Subscribe(fn domainports.SnapshotFunc) func() {
	return func() {}
}

func (f *fakeSessions) VideoCandidates(ctx context.Context) ([]domain.VideoCandidate, error) {
	return f.files, f.filesErr
}

func (f *fakeSessions) SelectFile(ctx context.Context, index int) error {
	f.selects = append(f.selects, index)
	return nil
}

type fakeStreamReader struct {
	*bytes.Reader
	readahead  int64
	responsive bool
	closed     bool
}

func (r *fakeStreamReader) Close() error               { r.closed = true; return nil }
func (r *fakeStreamReader) SetContext(context.Context) {}
func (r *fakeStreamReader) SetReadahead(n int64)       { r.readahead = n }
func (r *fakeStreamReader) SetResponsive()             { r.responsive = true }

type fakeVideoSource struct {
	data []byte
	name string
	err  error
	last *fakeStreamReader
}

func (v *fakeVideoSource) OpenVideo(ctx context.Context) (domainports.StreamReader, string, int64, error) {
	if v.err != nil {
		return nil, "", 0, v.err
	}
	v.last = &fakeStreamReader{Reader: bytes.NewReader(v.data)}
	return v.last, v.name, int64(len(v.data)), nil
}

type memPositions struct {
	byID map[string]domain.PlaybackPosition
}

func newMemPositions() *memPositions {
	return &memPositions{byID: make(map[string]domain.PlaybackPosition)}
}

func (m *memPositions) Upsert(ctx context.Context, p domain.PlaybackPosition) error {
	m.byID[p.ContentID] = p
	return nil
}

func (m *memPositions) Get(ctx context.Context, contentID string) (domain.PlaybackPosition, error) {
	p, ok := m.byID[contentID]
	if !ok {
		return domain.PlaybackPosition{}, domain.ErrNotFound
	}
	return p, nil
}

func (m *memPositions) ListRecent(ctx context.Context, limit int) ([]domain.PlaybackPosition, error) {
	out := make([]domain.PlaybackPosition, 0, len(m.byID))
	for _, p := range m.byID {
		out = append(out, p)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memPositions) Delete(ctx context.Context, contentID string) error {
	if _, ok := m.byID[contentID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.byID, contentID)
	return nil
}

type fakeSubtitles struct {
	candidates []domain.SubtitleCandidate
	err        error
	queries    []string
}

func (f *fakeSubtitles) Search(ctx context.Context, contentID, language string) ([]domain.SubtitleCandidate, error) {
	f.queries = append(f.queries, contentID+"/"+language)
	return f.candidates, f.err
}

func doRequest(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode body: %v (%s)", err, rec.Body.String())
	}
	return out
}

func TestStartStream(t *testing.T) {
	eta := 40.0
	sessions := &fakeSessions{
		session: domain.StreamSession{ID: "s1", Source: "magnet:?xt=urn:btih:aa", Transport: domain.TransportNative},
		snapshot: domain.StatusSnapshot{
			Phase:      domain.PhaseConnecting,
			EtaSeconds: eta,
		},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/stream/start", `{"source":"magnet:?xt=urn:btih:aa"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[sessionResponse](t, rec)
	if resp.SessionID != "s1" || resp.Status.Phase != domain.PhaseConnecting {
		t.Errorf("response = %+v", resp)
	}
	if resp.Status.Eta == nil || *resp.Status.Eta != eta {
		t.Errorf("eta = %v, want %v", resp.Status.Eta, eta)
	}
	if len(sessions.starts) != 1 {
		t.Errorf("starts = %v", sessions.starts)
	}
}

func TestStartStreamRejectsMissingSource(t *testing.T) {
	s := NewServer(&fakeSessions{}, WithLogger(testLogger()))
	defer s.Close()

	for _, body := range []string{`{}`, `{"source":""}`, `{"source":"   "}`} {
		rec := doRequest(t, s, http.MethodPost, "/stream/start", body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d", body, rec.Code)
		}
	}
}

func TestStartStreamErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
		code string
	}{
		{"invalid source", domain.ErrInvalidSource, http.StatusBadRequest, "invalid_source"},
		{"transport unavailable", domain.ErrTransportUnavailable, http.StatusServiceUnavailable, "transport_unavailable"},
		{"start failed", domain.ErrStartFailed, http.StatusBadGateway, "start_failed"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := NewServer(&fakeSessions{startErr: tc.err}, WithLogger(testLogger()))
			defer s.Close()

			rec := doRequest(t, s, http.MethodPost, "/stream/start", `{"source":"magnet:?xt=urn:btih:aa"}`)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
			env := decodeBody[errorEnvelope](t, rec)
			if env.Error.Code != tc.code {
				t.Errorf("code = %q, want %q", env.Error.Code, tc.code)
			}
		})
	}
}

func TestRetryStream(t *testing.T) {
	sessions := &fakeSessions{
		session:   domain.StreamSession{ID: "s2"},
		snapshot:  domain.StatusSnapshot{Phase: domain.PhaseConnecting, EtaSeconds: domain.EtaUnknown},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/stream/retry", "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if sessions.retries != 1 {
		t.Errorf("retries = %d", sessions.retries)
	}
	resp := decodeBody[sessionResponse](t, rec)
	if resp.Status.Eta != nil {
		t.Errorf("unknown eta must encode as null, got %v", *resp.Status.Eta)
	}
}

func TestRetryWithoutFailedStart(t *testing.T) {
	s := NewServer(&fakeSessions{retryErr: domain.ErrNotFound}, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPost, "/stream/retry", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestStatusEndpoint(t *testing.T) {
	sessions := &fakeSessions{
		session: domain.StreamSession{ID: "s1", Transport: domain.TransportRemote},
		snapshot: domain.StatusSnapshot{
			Phase:           domain.PhaseReady,
			Progress:        1,
			EtaSeconds:      0,
			StreamURL:       "http://127.0.0.1:8090/streams/s1/master.m3u8",
			DurationSeconds: 7200,
		},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	resp := decodeBody[sessionResponse](t, rec)
	if resp.Status.Phase != domain.PhaseReady || resp.Status.StreamURL == "" || resp.Status.Duration != 7200 {
		t.Errorf("response = %+v", resp)
	}

	sessions.hasStatus = false
	rec = doRequest(t, s, http.MethodGet, "/stream/status", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without session = %d", rec.Code)
	}
}

func TestStopPauseResume(t *testing.T) {
	sessions := &fakeSessions{}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	if rec := doRequest(t, s, http.MethodDelete, "/stream", ""); rec.Code != http.StatusOK {
		t.Errorf("delete /stream = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/stream/stop", ""); rec.Code != http.StatusOK {
		t.Errorf("post /stream/stop = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/stream/pause", ""); rec.Code != http.StatusOK {
		t.Errorf("pause = %d", rec.Code)
	}
	if rec := doRequest(t, s, http.MethodPost, "/stream/resume", ""); rec.Code != http.StatusOK {
		t.Errorf("resume = %d", rec.Code)
	}
	if sessions.stops != 2 || sessions.pauses != 1 || sessions.resumes != 1 {
		t.Errorf("calls = %+v", sessions)
	}
}

func TestFileListingAndSelection(t *testing.T) {
	sessions := &fakeSessions{
		files: []domain.VideoCandidate{
			{Index: 0, Name: "sample.txt", SizeBytes: 10},
			{Index: 1, Name: "movie.mkv", SizeBytes: 1 << 30},
		},
	}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/files", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("files = %d", rec.Code)
	}
	resp := decodeBody[struct {
		Files []domain.VideoCandidate `json:"files"`
		Count int                     `json:"count"`
	}](t, rec)
	if resp.Count != 2 {
		t.Errorf("count = %d", resp.Count)
	}

	rec = doRequest(t, s, http.MethodPost, "/stream/files/select", `{"fileIndex":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("select = %d", rec.Code)
	}
	if len(sessions.selects) != 1 || sessions.selects[0] != 1 {
		t.Errorf("selects = %v", sessions.selects)
	}

	rec = doRequest(t, s, http.MethodPost, "/stream/files/select", `{"fileIndex":-2}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("negative index = %d", rec.Code)
	}
}

func TestFileListingUnsupported(t *testing.T) {
	sessions := &fakeSessions{filesErr: domain.ErrUnsupported}
	s := NewServer(sessions, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/files", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestVideoServing(t *testing.T) {
	data := []byte("fake video payload for range requests")
	video := &fakeVideoSource{data: data, name: "movie.mkv"}
	sessions := &fakeSessions{
		snapshot:  domain.StatusSnapshot{Phase: domain.PhaseReady, Progress: 1},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()), WithVideoSource(video))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/video", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Body.Bytes(); !bytes.Equal(got, data) {
		t.Errorf("body = %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "video/x-matroska" {
		t.Errorf("content type = %q", ct)
	}
	if video.last == nil || !video.last.closed {
		t.Error("reader must be closed after serving")
	}
	if video.last.responsive {
		t.Error("direct streaming must not use the responsive reader")
	}
	if video.last.readahead == 0 {
		t.Error("readahead not configured")
	}

	// Range request.
	req := httptest.NewRequest(http.MethodGet, "/stream/video", nil)
	req.Header.Set("Range", "bytes=5-9")
	rangeRec := httptest.NewRecorder()
	s.ServeHTTP(rangeRec, req)
	if rangeRec.Code != http.StatusPartialContent {
		t.Fatalf("range status = %d", rangeRec.Code)
	}
	if got := rangeRec.Body.String(); got != string(data[5:10]) {
		t.Errorf("range body = %q", got)
	}
}

func TestVideoBeforeReady(t *testing.T) {
	video := &fakeVideoSource{data: []byte("x"), name: "movie.mkv"}
	sessions := &fakeSessions{
		snapshot:  domain.StatusSnapshot{Phase: domain.PhaseDownloading, Progress: 0.4},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()), WithVideoSource(video))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/video", "")
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestWatchHistoryRoundTrip(t *testing.T) {
	store := newMemPositions()
	s := NewServer(&fakeSessions{}, WithLogger(testLogger()), WithPositionStore(store))
	defer s.Close()

	rec := doRequest(t, s, http.MethodPut, "/watch-history/tt0111161", `{"position":95.5,"duration":8520,"title":"Movie"}`)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("put = %d, body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(t, s, http.MethodGet, "/watch-history/tt0111161", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get = %d", rec.Code)
	}
	pos := decodeBody[domain.PlaybackPosition](t, rec)
	if pos.Position != 95.5 || pos.Title != "Movie" {
		t.Errorf("position = %+v", pos)
	}

	rec = doRequest(t, s, http.MethodGet, "/watch-history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list = %d", rec.Code)
	}

	rec = doRequest(t, s, http.MethodDelete, "/watch-history/tt0111161", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete = %d", rec.Code)
	}
	rec = doRequest(t, s, http.MethodGet, "/watch-history/tt0111161", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d", rec.Code)
	}
}

func TestWatchHistoryNotConfigured(t *testing.T) {
	s := NewServer(&fakeSessions{}, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/watch-history", "")
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestSubtitleSearch(t *testing.T) {
	subs := &fakeSubtitles{candidates: []domain.SubtitleCandidate{
		{Language: "en", Name: "Movie.srt", URL: "http://subs.example/1"},
	}}
	sessions := &fakeSessions{
		snapshot:  domain.StatusSnapshot{Phase: domain.PhaseReady, Progress: 1},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()), WithSubtitles(subs))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/subtitles?contentId=tt0111161&lang=en", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(subs.queries) != 1 || subs.queries[0] != "tt0111161/en" {
		t.Errorf("queries = %v", subs.queries)
	}

	rec = doRequest(t, s, http.MethodGet, "/stream/subtitles", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing contentId = %d", rec.Code)
	}

	subs.err = errors.New("upstream down")
	rec = doRequest(t, s, http.MethodGet, "/stream/subtitles?contentId=tt0111161", "")
	if rec.Code != http.StatusBadGateway {
		t.Errorf("provider error = %d", rec.Code)
	}
}

func TestSubtitleSearchBeforeReady(t *testing.T) {
	subs := &fakeSubtitles{}
	sessions := &fakeSessions{
		snapshot:  domain.StatusSnapshot{Phase: domain.PhaseDownloading, Progress: 0.4},
		hasStatus: true,
	}
	s := NewServer(sessions, WithLogger(testLogger()), WithSubtitles(subs))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/stream/subtitles?contentId=tt0111161", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
	if len(subs.queries) != 0 {
		t.Errorf("provider queried before ready: %v", subs.queries)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(&fakeSessions{}, WithLogger(testLogger()))
	defer s.Close()

	rec := doRequest(t, s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decodeBody[map[string]any](t, rec)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := NewServer(&fakeSessions{}, WithLogger(testLogger()))
	defer s.Close()

	cases := []struct{ method, path string }{
		{http.MethodGet, "/stream/start"},
		{http.MethodGet, "/stream/retry"},
		{http.MethodPost, "/stream/status"},
		{http.MethodGet, "/stream"},
	}
	for _, tc := range cases {
		rec := doRequest(t, s, tc.method, tc.path, "")
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s = %d, want 405", tc.method, tc.path, rec.Code)
		}
	}
}
