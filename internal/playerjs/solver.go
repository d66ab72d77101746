// Package playerjs resolves the upstream player script and applies its
// signature scramble and n-parameter transform to stream URLs. Without the n
// transform the upstream throttles media transfers to unusable speeds.
package playerjs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"sync"
)

const defaultBaseURL = "https://www.youtube.com"

var playerPathRegexp = regexp.MustCompile(`/s/player/[^"']+?/base\.js`)

// Solver fetches player scripts and caches their parsed programs. The cache
// is process-wide and append-only; a player script is immutable for its URL.
type Solver struct {
	client  *http.Client
	baseURL string

	mu       sync.Mutex
	programs map[string]*program
}

// NewSolver returns a Solver using the given HTTP client.
func NewSolver(client *http.Client) *Solver {
	return NewSolverWithBaseURL(client, defaultBaseURL)
}

// NewSolverWithBaseURL overrides the upstream host, for tests.
func NewSolverWithBaseURL(client *http.Client, baseURL string) *Solver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Solver{
		client:   client,
		baseURL:  baseURL,
		programs: make(map[string]*program),
	}
}

// PlayerURL discovers the player script URL from the watch page of videoID.
func (s *Solver) PlayerURL(ctx context.Context, videoID string) (string, error) {
	body, err := s.get(ctx, s.baseURL+"/watch?v="+videoID)
	if err != nil {
		return "", err
	}
	m := playerPathRegexp.Find(body)
	if m == nil {
		return "", fmt.Errorf("player script URL not found in watch page for %s", videoID)
	}
	return s.baseURL + string(m), nil
}

// DecodeSignature deciphers the 's' cipher parameter using the player script
// at playerURL.
func (s *Solver) DecodeSignature(ctx context.Context, playerURL, sig string) (string, error) {
	p, err := s.load(ctx, playerURL)
	if err != nil {
		return "", err
	}
	return p.decipherSignature(sig)
}

// DecodeN transforms the 'n' throttling parameter using the player script at
// playerURL.
func (s *Solver) DecodeN(ctx context.Context, playerURL, n string) (string, error) {
	p, err := s.load(ctx, playerURL)
	if err != nil {
		return "", err
	}
	return p.decodeN(n)
}

func (s *Solver) load(ctx context.Context, playerURL string) (*program, error) {
	s.mu.Lock()
	if p, ok := s.programs[playerURL]; ok {
		s.mu.Unlock()
		return p, nil
	}
	s.mu.Unlock()

	body, err := s.get(ctx, playerURL)
	if err != nil {
		return nil, err
	}
	p, err := parseProgram(body)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.programs[playerURL] = p
	s.mu.Unlock()
	return p, nil
}

func (s *Solver) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("player js fetch: status=%d url=%s", resp.StatusCode, url)
	}
	return io.ReadAll(resp.Body)
}
