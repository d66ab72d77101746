package upstream

import (
	"strconv"
	"strings"

	"github.com/famomatic/ytrelay/internal/types"
)

// playerResponse is the innertube /player response, trimmed to the fields the
// service reads.
type playerResponse struct {
	PlayabilityStatus playabilityStatus `json:"playabilityStatus"`
	StreamingData     streamingData     `json:"streamingData"`
	VideoDetails      videoDetails      `json:"videoDetails"`
}

type playabilityStatus struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func (p playabilityStatus) isOK() bool { return p.Status == "OK" }

func (p playabilityStatus) isRejected() bool {
	s := strings.ToUpper(p.Status + " " + p.Reason)
	return strings.Contains(s, "LOGIN") && (strings.Contains(s, "BOT") || strings.Contains(s, "SIGN IN") || strings.Contains(s, "CONFIRM"))
}

type streamingData struct {
	Formats         []wireFormat `json:"formats"`
	AdaptiveFormats []wireFormat `json:"adaptiveFormats"`
}

type wireFormat struct {
	Itag            int    `json:"itag"`
	URL             string `json:"url"`
	MimeType        string `json:"mimeType"`
	Bitrate         int    `json:"bitrate"`
	Width           int    `json:"width"`
	Height          int    `json:"height"`
	FPS             int    `json:"fps"`
	Quality         string `json:"quality"`
	QualityLabel    string `json:"qualityLabel"`
	AudioQuality    string `json:"audioQuality"`
	AudioChannels   int    `json:"audioChannels"`
	ContentLength   string `json:"contentLength"`
	SignatureCipher string `json:"signatureCipher"`
	Cipher          string `json:"cipher"` // legacy field name
}

type videoDetails struct {
	VideoID       string `json:"videoId"`
	Title         string `json:"title"`
	Author        string `json:"author"`
	LengthSeconds string `json:"lengthSeconds"`
}

func parseMetadata(resp *playerResponse, videoID, playerURL string) *types.VideoMetadata {
	meta := &types.VideoMetadata{
		ID:     firstNonEmpty(resp.VideoDetails.VideoID, videoID),
		Title:  resp.VideoDetails.Title,
		Author: resp.VideoDetails.Author,
	}
	if v, err := strconv.ParseInt(resp.VideoDetails.LengthSeconds, 10, 64); err == nil {
		meta.DurationSec = v
	}

	extract := func(raw []wireFormat) {
		for _, f := range raw {
			cipher := f.SignatureCipher
			if cipher == "" {
				cipher = f.Cipher
			}
			r := types.Rendition{
				Itag:            f.Itag,
				VideoID:         meta.ID,
				PlayerURL:       playerURL,
				URL:             f.URL,
				SignatureCipher: cipher,
				MimeType:        f.MimeType,
				HasVideo:        strings.HasPrefix(f.MimeType, "video/"),
				HasAudio:        strings.HasPrefix(f.MimeType, "audio/") || f.AudioQuality != "" || f.AudioChannels > 0,
				Bitrate:         f.Bitrate,
				Width:           f.Width,
				Height:          f.Height,
				FPS:             f.FPS,
				Quality:         f.Quality,
				QualityLabel:    f.QualityLabel,
				AudioQuality:    f.AudioQuality,
			}
			if f.ContentLength != "" {
				r.ContentLength, _ = strconv.ParseInt(f.ContentLength, 10, 64)
			}
			meta.Renditions = append(meta.Renditions, r)
		}
	}
	extract(resp.StreamingData.Formats)
	extract(resp.StreamingData.AdaptiveFormats)

	return meta
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
