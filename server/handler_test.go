package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytrelay/internal/retry"
	"github.com/famomatic/ytrelay/internal/types"
)

type fakeFetcher struct {
	meta  *types.VideoMetadata
	err   error
	calls int
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, ref string) (*types.VideoMetadata, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.meta, nil
}

type trackedBody struct {
	io.Reader
	closed bool
}

func (b *trackedBody) Close() error {
	b.closed = true
	return nil
}

type fakeOpener struct {
	mu      sync.Mutex
	payload map[int]string
	err     error
	opened  []int
	bodies  []*trackedBody
}

func (f *fakeOpener) OpenStream(ctx context.Context, r types.Rendition) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.opened = append(f.opened, r.Itag)
	b := &trackedBody{Reader: strings.NewReader(f.payload[r.Itag])}
	f.bodies = append(f.bodies, b)
	return b, nil
}

// fakeMuxer joins both inputs with a '|' to make the path observable.
type fakeMuxer struct {
	called bool
	err    error
}

func (m *fakeMuxer) Mux(ctx context.Context, video, audio io.Reader) (io.ReadCloser, error) {
	m.called = true
	if m.err != nil {
		return nil, m.err
	}
	v, err := io.ReadAll(video)
	if err != nil {
		return nil, err
	}
	a, err := io.ReadAll(audio)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader(string(v) + "|" + string(a))), nil
}

func combinedMeta(title string) *types.VideoMetadata {
	return &types.VideoMetadata{
		ID:    "dQw4w9WgXcQ",
		Title: title,
		Renditions: []types.Rendition{
			{Itag: 22, HasVideo: true, HasAudio: true, Height: 720, URL: "u22"},
			{Itag: 18, HasVideo: true, HasAudio: true, Height: 360, URL: "u18"},
			{Itag: 137, HasVideo: true, Height: 1080, URL: "u137"},
			{Itag: 140, HasAudio: true, URL: "u140"},
		},
	}
}

func newTestHandler(f *fakeFetcher, o *fakeOpener, m *fakeMuxer) *Handler {
	return &Handler{
		Fetcher: f,
		Opener:  o,
		Muxer:   m,
		Retry:   retry.Policy{MaxAttempts: 1},
		Budget:  time.Minute,
	}
}

func doRequest(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestDownload_MissingURLParam(t *testing.T) {
	f := &fakeFetcher{}
	h := newTestHandler(f, &fakeOpener{}, &fakeMuxer{})

	rec := doRequest(t, h, http.MethodGet, "/api/download")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != "Missing URL parameter" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if f.calls != 0 {
		t.Errorf("fetcher called %d times, want 0", f.calls)
	}
}

func TestDownload_PassThroughSuccess(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("My Video: The Sequel!")}
	o := &fakeOpener{payload: map[int]string{22: "combined-payload"}}
	h := newTestHandler(f, o, &fakeMuxer{})

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("Content-Type"); got != "application/octet-stream" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="My_Video_The_Sequel.mp4"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if rec.Body.String() != "combined-payload" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if len(o.opened) != 1 || o.opened[0] != 22 {
		t.Errorf("opened itags = %v, want [22]", o.opened)
	}
	if !o.bodies[0].closed {
		t.Error("source stream not closed")
	}
}

func TestDownload_DualHintsMux(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("t")}
	o := &fakeOpener{payload: map[int]string{137: "VIDEO", 140: "AUDIO"}}
	m := &fakeMuxer{}
	h := newTestHandler(f, o, m)

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ&itag=137&audioItag=140")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if !m.called {
		t.Fatal("muxer not invoked for dual selection")
	}
	if rec.Body.String() != "VIDEO|AUDIO" {
		t.Errorf("body = %q", rec.Body.String())
	}
	for i, b := range o.bodies {
		if !b.closed {
			t.Errorf("input stream %d not closed", i)
		}
	}
}

func TestDownload_SingleHintNoMux(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("t")}
	o := &fakeOpener{payload: map[int]string{18: "low-res"}}
	m := &fakeMuxer{}
	h := newTestHandler(f, o, m)

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ&itag=18")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if m.called {
		t.Error("muxer invoked for single-rendition selection")
	}
	if rec.Body.String() != "low-res" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDownload_HintMissFallsBackToDefault(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("t")}
	o := &fakeOpener{payload: map[int]string{22: "best-combined"}}
	h := newTestHandler(f, o, &fakeMuxer{})

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ&itag=999")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %q", rec.Code, rec.Body.String())
	}
	if len(o.opened) != 1 || o.opened[0] != 22 {
		t.Errorf("opened itags = %v, want default [22]", o.opened)
	}
}

func TestDownload_FetchFailureMessages(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{types.ErrUnavailable, "Video is unavailable or private"},
		{fmt.Errorf("wrapped: %w", types.ErrRejected), "Unable to download video due to YouTube restrictions. Please try again later."},
		{types.ErrRateLimited, "Rate limit exceeded. Please wait a moment and try again."},
		{&types.TransportError{Op: "player", Err: errors.New("dial tcp: timeout")}, "Request timed out. Please try again."},
		{errors.New("mystery"), "Failed to download video"},
	}
	for _, tc := range cases {
		t.Run(tc.want, func(t *testing.T) {
			h := newTestHandler(&fakeFetcher{err: tc.err}, &fakeOpener{}, &fakeMuxer{})
			rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ")
			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("status = %d, want 500", rec.Code)
			}
			var body map[string]string
			json.Unmarshal(rec.Body.Bytes(), &body)
			if body["error"] != tc.want || body["message"] != tc.want {
				t.Errorf("body = %q", rec.Body.String())
			}
		})
	}
}

func TestDownload_RetryHonorsPolicy(t *testing.T) {
	f := &fakeFetcher{err: types.ErrRateLimited}
	h := newTestHandler(f, &fakeOpener{}, &fakeMuxer{})
	h.Retry = retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   1.5,
		Sleep:        func(ctx context.Context, d time.Duration) error { return nil },
	}

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if f.calls != 3 {
		t.Errorf("fetcher called %d times, want 3", f.calls)
	}
}

func TestDownload_OpenFailureMaps(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("t")}
	o := &fakeOpener{err: types.ErrRejected}
	h := newTestHandler(f, o, &fakeMuxer{})

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["error"] != msgRejected {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestDownload_MuxFailureBeforeOutputMaps(t *testing.T) {
	f := &fakeFetcher{meta: combinedMeta("t")}
	o := &fakeOpener{payload: map[int]string{137: "V", 140: "A"}}
	m := &fakeMuxer{err: errors.New("spawn failed")}
	h := newTestHandler(f, o, m)

	rec := doRequest(t, h, http.MethodGet, "/api/download?url=dQw4w9WgXcQ&itag=137&audioItag=140")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	for i, b := range o.bodies {
		if !b.closed {
			t.Errorf("input stream %d leaked after mux failure", i)
		}
	}
}

func TestRouter_MethodGuardAndCORS(t *testing.T) {
	h := newTestHandler(&fakeFetcher{}, &fakeOpener{}, &fakeMuxer{})
	router := New(h, zerolog.Nop())

	rec := doRequest(t, router, http.MethodPost, "/api/download?url=x")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", rec.Code)
	}
	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["message"] != "Method Not Allowed" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q", got)
	}
}

func TestRouter_OptionsPreflight(t *testing.T) {
	h := newTestHandler(&fakeFetcher{}, &fakeOpener{}, &fakeMuxer{})
	router := New(h, zerolog.Nop())

	rec := doRequest(t, router, http.MethodOptions, "/api/download")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Access-Control-Allow-Headers = %q", got)
	}
}

func TestRouter_Health(t *testing.T) {
	h := newTestHandler(&fakeFetcher{}, &fakeOpener{}, &fakeMuxer{})
	router := New(h, zerolog.Nop())

	rec := doRequest(t, router, http.MethodGet, "/api/health")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Plain Title", "Plain_Title.mp4"},
		{"What?! A *title*: yes/no", "What_A_title_yesno.mp4"},
		{"  spaced   out  ", "spaced_out.mp4"},
		{"///", "video.mp4"},
		{"", "video.mp4"},
		{"already-fine_name", "already-fine_name.mp4"},
	}
	for _, tc := range cases {
		if got := sanitizeFilename(tc.in); got != tc.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
