package upstream

// playerRequest is the innertube /player request body, trimmed to the web
// client profile this service speaks.
type playerRequest struct {
	Context        requestContext `json:"context"`
	VideoID        string         `json:"videoId"`
	ContentCheckOk bool           `json:"contentCheckOk,omitempty"`
	RacyCheckOk    bool           `json:"racyCheckOk,omitempty"`
}

type requestContext struct {
	Client clientInfo `json:"client"`
}

type clientInfo struct {
	ClientName       string `json:"clientName"`
	ClientVersion    string `json:"clientVersion"`
	UserAgent        string `json:"userAgent,omitempty"`
	OsName           string `json:"osName,omitempty"`
	OsVersion        string `json:"osVersion,omitempty"`
	AcceptLanguage   string `json:"hl"`
	TimeZone         string `json:"timeZone"`
	UtcOffsetMinutes int    `json:"utcOffsetMinutes"`
}

const (
	webClientName    = "WEB"
	webClientVersion = "2.20240726.00.00"
)

func newPlayerRequest(videoID, userAgent string) *playerRequest {
	return &playerRequest{
		VideoID:        videoID,
		ContentCheckOk: true,
		RacyCheckOk:    true,
		Context: requestContext{
			Client: clientInfo{
				ClientName:     webClientName,
				ClientVersion:  webClientVersion,
				UserAgent:      userAgent,
				OsName:         "Windows",
				OsVersion:      "10.0",
				AcceptLanguage: "en",
				TimeZone:       "UTC",
			},
		},
	}
}
