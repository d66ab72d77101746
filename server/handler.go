// Package server is the HTTP surface: request parsing, the download pipeline
// (fetch with retry, select, open, mux), streaming assembly, and error
// mapping. Components below it never touch the response writer.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/famomatic/ytrelay/internal/retry"
	"github.com/famomatic/ytrelay/internal/selector"
	"github.com/famomatic/ytrelay/internal/types"
)

// MetadataFetcher resolves a video reference to its metadata and renditions.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, ref string) (*types.VideoMetadata, error)
}

// StreamOpener opens the byte stream of one rendition.
type StreamOpener interface {
	OpenStream(ctx context.Context, r types.Rendition) (io.ReadCloser, error)
}

// Muxer combines a video and an audio stream into one container stream.
type Muxer interface {
	Mux(ctx context.Context, video, audio io.Reader) (io.ReadCloser, error)
}

// Handler serves GET /api/download.
type Handler struct {
	Fetcher MetadataFetcher
	Opener  StreamOpener
	Muxer   Muxer
	Retry   retry.Policy

	// Budget bounds the whole request. Zero means 60s.
	Budget time.Duration
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	logger := zerolog.Ctx(req.Context())

	ref := req.URL.Query().Get("url")
	if ref == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Missing URL parameter"})
		return
	}

	budget := h.Budget
	if budget <= 0 {
		budget = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(req.Context(), budget)
	defer cancel()

	var meta *types.VideoMetadata
	err := h.Retry.Do(ctx, func(ctx context.Context) error {
		m, ferr := h.Fetcher.FetchMetadata(ctx, ref)
		if ferr != nil {
			return ferr
		}
		meta = m
		return nil
	})
	if err != nil {
		logger.Error().Err(err).Str("url", ref).Msg("metadata fetch failed")
		writeFailure(w, err)
		return
	}

	videoItag := intParam(req, "itag")
	audioItag := intParam(req, "audioItag")
	sel, err := selector.Select(meta.Renditions, videoItag, audioItag)
	if errors.Is(err, types.ErrNoMatchingRendition) && (videoItag != 0 || audioItag != 0) {
		// A hint that matches nothing degrades to the default selection
		// rather than failing the request.
		logger.Warn().Int("itag", videoItag).Int("audio_itag", audioItag).
			Msg("no rendition matched the requested quality; using default")
		sel, err = selector.Default(meta.Renditions)
	}
	if err != nil {
		logger.Error().Err(err).Msg("rendition selection failed")
		writeFailure(w, err)
		return
	}

	src, err := h.openSelection(ctx, logger, sel)
	if err != nil {
		logger.Error().Err(err).Msg("stream open failed")
		writeFailure(w, err)
		return
	}
	defer src.Close()

	if err := streamResponse(w, src, sanitizeFilename(meta.Title), logger); err != nil {
		logger.Error().Err(err).Msg("stream failed before first byte")
		writeFailure(w, err)
	}
}

// openSelection turns the selection into a single readable source, starting
// the mux subprocess when both roles are present.
func (h *Handler) openSelection(ctx context.Context, logger *zerolog.Logger, sel selector.Selection) (io.ReadCloser, error) {
	if sel.NeedsMux() {
		video, audio, err := h.openPair(ctx, *sel.Video, *sel.Audio)
		if err != nil {
			return nil, err
		}
		logger.Debug().Int("video_itag", sel.Video.Itag).Int("audio_itag", sel.Audio.Itag).
			Msg("muxing separate renditions")
		out, err := h.Muxer.Mux(ctx, video, audio)
		if err != nil {
			video.Close()
			audio.Close()
			return nil, err
		}
		return &closeGroup{ReadCloser: out, also: []io.Closer{video, audio}}, nil
	}

	single, ok := sel.Single()
	if !ok {
		return nil, types.ErrNoMatchingRendition
	}
	logger.Debug().Int("itag", single.Itag).Msg("passing through single rendition")
	return h.Opener.OpenStream(ctx, *single)
}

// openPair opens both renditions concurrently; on any failure the surviving
// stream is closed before returning.
func (h *Handler) openPair(ctx context.Context, video, audio types.Rendition) (io.ReadCloser, io.ReadCloser, error) {
	type opened struct {
		body io.ReadCloser
		err  error
	}
	audioCh := make(chan opened, 1)
	go func() {
		b, err := h.Opener.OpenStream(ctx, audio)
		audioCh <- opened{b, err}
	}()

	videoBody, videoErr := h.Opener.OpenStream(ctx, video)
	audioRes := <-audioCh

	if videoErr != nil {
		if audioRes.body != nil {
			audioRes.body.Close()
		}
		return nil, nil, videoErr
	}
	if audioRes.err != nil {
		videoBody.Close()
		return nil, nil, audioRes.err
	}
	return videoBody, audioRes.body, nil
}

// closeGroup closes the primary stream plus the inputs feeding it.
type closeGroup struct {
	io.ReadCloser
	also []io.Closer
}

func (g *closeGroup) Close() error {
	err := g.ReadCloser.Close()
	for _, c := range g.also {
		c.Close()
	}
	return err
}

func intParam(req *http.Request, name string) int {
	v := req.URL.Query().Get(name)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^\w\s-]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

// sanitizeFilename derives the attachment filename from a video title.
func sanitizeFilename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, "")
	name = filenameSpaces.ReplaceAllString(strings.TrimSpace(name), "_")
	if name == "" {
		name = "video"
	}
	return name + ".mp4"
}
