package types

// VideoMetadata describes one remote video and its downloadable renditions.
// It is owned by the request that fetched it and never cached across requests.
type VideoMetadata struct {
	ID          string
	Title       string
	Author      string
	DurationSec int64
	Renditions  []Rendition
}

// Rendition is one downloadable encoding of the source video. Read-only once
// parsed from the upstream response. VideoID and PlayerURL carry the request
// context a facade needs to open the stream without the parent metadata.
type Rendition struct {
	Itag            int
	VideoID         string
	PlayerURL       string
	URL             string
	SignatureCipher string
	MimeType        string
	HasAudio        bool
	HasVideo        bool
	Bitrate         int
	Width           int
	Height          int
	FPS             int
	Quality         string
	QualityLabel    string
	AudioQuality    string
	ContentLength   int64
}
