// Package upstream is the facade over the remote video service: it fetches
// metadata for a video reference and opens byte streams for individual
// renditions, hiding the bot-detection accommodations (header spoofing,
// request jitter, session cookies) the upstream demands.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/famomatic/ytrelay/internal/playerjs"
	"github.com/famomatic/ytrelay/internal/types"
	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://www.youtube.com"

// Config holds facade configuration. All fields are optional.
type Config struct {
	// HTTPClient used for all upstream calls. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// BaseURL overrides the upstream host, for tests.
	BaseURL string

	// Cookie is a raw Cookie header value injected into every upstream
	// request. Supplied from server configuration, never hardcoded.
	Cookie string

	// PreCallDelayMin/Max bound the random delay inserted before each
	// metadata call to desynchronize request timing. Defaults to 500ms..1500ms.
	PreCallDelayMin time.Duration
	PreCallDelayMax time.Duration

	// Solver resolves signature ciphers and n throttling parameters for
	// stream URLs. Optional; without it ciphered renditions fail to open.
	Solver *playerjs.Solver

	// Seed fixes the randomness source for deterministic tests. Zero means
	// time-seeded.
	Seed int64

	Logger zerolog.Logger
}

// Client implements the facade.
type Client struct {
	cfg    Config
	http   *http.Client
	base   string
	logger zerolog.Logger

	randMu sync.Mutex
	rng    *rand.Rand
}

// NewClient builds a Client from cfg.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	if cfg.PreCallDelayMin <= 0 {
		cfg.PreCallDelayMin = 500 * time.Millisecond
	}
	if cfg.PreCallDelayMax < cfg.PreCallDelayMin {
		cfg.PreCallDelayMax = 3 * cfg.PreCallDelayMin
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		base:   base,
		logger: cfg.Logger,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// FetchMetadata resolves the video reference and fetches its metadata and
// rendition set. Errors are classified into the package taxonomy so the retry
// controller and the handler can act on them.
func (c *Client) FetchMetadata(ctx context.Context, ref string) (*types.VideoMetadata, error) {
	videoID, err := ExtractVideoID(ref)
	if err != nil {
		return nil, err
	}

	if err := c.preCallDelay(ctx); err != nil {
		return nil, err
	}

	playerURL := c.resolvePlayerURL(ctx, videoID)

	userAgent := c.pickUserAgent()
	body, err := json.Marshal(newPlayerRequest(videoID, userAgent))
	if err != nil {
		return nil, err
	}

	endpoint := c.base + "/youtubei/v1/player?prettyPrint=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	applyRequestHeaders(req, c.browserHeaders(userAgent))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.TransportError{Op: "player", Err: err}
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp.StatusCode, "player"); err != nil {
		return nil, err
	}

	var parsed playerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &types.TransportError{Op: "player decode", Err: err}
	}

	if !parsed.PlayabilityStatus.isOK() {
		if parsed.PlayabilityStatus.isRejected() {
			return nil, fmt.Errorf("%w: %s", types.ErrRejected, parsed.PlayabilityStatus.Reason)
		}
		return nil, fmt.Errorf("%w: %s", types.ErrUnavailable, parsed.PlayabilityStatus.Reason)
	}

	meta := parseMetadata(&parsed, videoID, playerURL)
	if len(meta.Renditions) == 0 {
		return nil, fmt.Errorf("%w: no renditions", types.ErrUnavailable)
	}
	return meta, nil
}

// OpenStream opens the byte stream for one rendition. Safe to call twice
// concurrently against renditions of the same metadata.
func (c *Client) OpenStream(ctx context.Context, r types.Rendition) (io.ReadCloser, error) {
	streamURL, err := c.resolveStreamURL(ctx, r)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return nil, err
	}
	applyRequestHeaders(req, c.mediaHeaders(r.VideoID))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &types.TransportError{Op: "stream", Err: err}
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream status=%d", types.ErrUnavailable, resp.StatusCode)
	}
	if err := classifyStatus(resp.StatusCode, "stream"); err != nil {
		resp.Body.Close()
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) resolveStreamURL(ctx context.Context, r types.Rendition) (string, error) {
	raw := r.URL
	if raw == "" {
		decoded, err := c.decipherStreamURL(ctx, r)
		if err != nil {
			return "", err
		}
		raw = decoded
	}
	return c.rewriteThrottlingParam(ctx, raw, r.PlayerURL), nil
}

// decipherStreamURL rebuilds the direct URL from a signatureCipher blob.
func (c *Client) decipherStreamURL(ctx context.Context, r types.Rendition) (string, error) {
	if r.SignatureCipher == "" {
		return "", fmt.Errorf("%w: rendition itag=%d has no url", types.ErrUnavailable, r.Itag)
	}
	if c.cfg.Solver == nil || r.PlayerURL == "" {
		return "", fmt.Errorf("%w: ciphered rendition itag=%d requires player js solver", types.ErrUnavailable, r.Itag)
	}

	params, err := url.ParseQuery(r.SignatureCipher)
	if err != nil {
		return "", fmt.Errorf("cipher parse: %w", err)
	}
	rawURL := params.Get("url")
	if rawURL == "" {
		return "", fmt.Errorf("cipher missing url for itag=%d", r.Itag)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("cipher url parse: %w", err)
	}

	if s := params.Get("s"); s != "" {
		decSig, err := c.cfg.Solver.DecodeSignature(ctx, r.PlayerURL, s)
		if err != nil {
			return "", fmt.Errorf("signature decode: %w", err)
		}
		sp := params.Get("sp")
		if sp == "" {
			sp = "signature"
		}
		q := u.Query()
		q.Set(sp, decSig)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// rewriteThrottlingParam swaps the n query parameter for its decoded form.
// Failure is non-fatal: the original URL still works, just throttled.
func (c *Client) rewriteThrottlingParam(ctx context.Context, rawURL, playerURL string) string {
	if c.cfg.Solver == nil || playerURL == "" {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	n := q.Get("n")
	if n == "" {
		return rawURL
	}
	decN, err := c.cfg.Solver.DecodeN(ctx, playerURL, n)
	if err != nil {
		c.logger.Warn().Err(err).Msg("n throttling param decode failed; using original url")
		return rawURL
	}
	q.Set("n", decN)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) resolvePlayerURL(ctx context.Context, videoID string) string {
	if c.cfg.Solver == nil {
		return ""
	}
	playerURL, err := c.cfg.Solver.PlayerURL(ctx, videoID)
	if err != nil {
		c.logger.Warn().Err(err).Str("video_id", videoID).Msg("player js url resolution failed")
		return ""
	}
	return playerURL
}

func (c *Client) preCallDelay(ctx context.Context) error {
	span := c.cfg.PreCallDelayMax - c.cfg.PreCallDelayMin
	d := c.cfg.PreCallDelayMin
	if span > 0 {
		c.randMu.Lock()
		d += time.Duration(c.rng.Int63n(int64(span)))
		c.randMu.Unlock()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) pickUserAgent() string {
	c.randMu.Lock()
	defer c.randMu.Unlock()
	return userAgentPool[c.rng.Intn(len(userAgentPool))]
}

func classifyStatus(code int, op string) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusForbidden:
		return fmt.Errorf("%w: status=403", types.ErrRejected)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status=429", types.ErrRateLimited)
	default:
		return &types.TransportError{Op: op, Err: fmt.Errorf("status=%d", code)}
	}
}
