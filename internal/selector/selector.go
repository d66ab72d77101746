// Package selector picks renditions for a download request. Selection is a
// pure function of the rendition set and the caller's itag hints.
package selector

import "github.com/famomatic/ytrelay/internal/types"

// Selection holds the chosen renditions by role. Both populated means the
// caller must mux; exactly one means pass-through.
type Selection struct {
	Video *types.Rendition
	Audio *types.Rendition
}

// NeedsMux reports whether both roles were selected.
func (s Selection) NeedsMux() bool {
	return s.Video != nil && s.Audio != nil
}

// Single returns the lone selected rendition when exactly one role is set.
func (s Selection) Single() (*types.Rendition, bool) {
	if s.Video != nil && s.Audio == nil {
		return s.Video, true
	}
	if s.Audio != nil && s.Video == nil {
		return s.Audio, true
	}
	return nil, false
}

// Select resolves itag hints against the rendition set. videoItag matches
// among video-capable renditions, audioItag among audio-capable ones. With no
// hints it falls back to Default. A hint that matches nothing yields
// ErrNoMatchingRendition; the caller decides whether that is fatal.
func Select(renditions []types.Rendition, videoItag, audioItag int) (Selection, error) {
	if videoItag == 0 && audioItag == 0 {
		return Default(renditions)
	}

	var sel Selection
	if videoItag != 0 {
		r, ok := findByItag(renditions, videoItag, func(r types.Rendition) bool { return r.HasVideo })
		if !ok {
			return Selection{}, types.ErrNoMatchingRendition
		}
		sel.Video = r
	}
	if audioItag != 0 {
		r, ok := findByItag(renditions, audioItag, func(r types.Rendition) bool { return r.HasAudio })
		if !ok {
			return Selection{}, types.ErrNoMatchingRendition
		}
		sel.Audio = r
	}
	return sel, nil
}

// Default picks the highest-quality rendition carrying both audio and video.
func Default(renditions []types.Rendition) (Selection, error) {
	var best *types.Rendition
	for i := range renditions {
		r := &renditions[i]
		if !r.HasVideo || !r.HasAudio {
			continue
		}
		if best == nil || better(*r, *best) {
			best = r
		}
	}
	if best == nil {
		return Selection{}, types.ErrNoMatchingRendition
	}
	return Selection{Video: best}, nil
}

func findByItag(renditions []types.Rendition, itag int, capable func(types.Rendition) bool) (*types.Rendition, bool) {
	for i := range renditions {
		if renditions[i].Itag == itag && capable(renditions[i]) {
			return &renditions[i], true
		}
	}
	return nil, false
}

func better(a, b types.Rendition) bool {
	return compareKeys(
		[]int{a.Height, a.Width, a.FPS, a.Bitrate, -a.Itag},
		[]int{b.Height, b.Width, b.FPS, b.Bitrate, -b.Itag},
	)
}

func compareKeys(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		return a[i] > b[i]
	}
	return false
}
