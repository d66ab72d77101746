package upstream

import "net/http"

// userAgentPool is the fixed set of desktop browser identities the facade
// rotates through. Picking one pseudo-randomly per call, together with the
// pre-call delay, lowers the odds of the upstream's bot detection tripping.
// This is an operational accommodation, not a correctness requirement.
var userAgentPool = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// navigationHeaders are the static browser headers sent alongside the rotated
// User-Agent on metadata calls.
var navigationHeaders = map[string]string{
	"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8",
	"Accept-Language":           "en-US,en;q=0.9",
	"Connection":                "keep-alive",
	"Upgrade-Insecure-Requests": "1",
	"Sec-Fetch-Dest":            "document",
	"Sec-Fetch-Mode":            "navigate",
	"Sec-Fetch-Site":            "none",
	"Sec-Fetch-User":            "?1",
	"Cache-Control":             "max-age=0",
	"DNT":                       "1",
	"Sec-GPC":                   "1",
}

func (c *Client) browserHeaders(userAgent string) http.Header {
	h := make(http.Header, len(navigationHeaders)+2)
	for k, v := range navigationHeaders {
		h.Set(k, v)
	}
	h.Set("User-Agent", userAgent)
	if c.cfg.Cookie != "" {
		h.Set("Cookie", c.cfg.Cookie)
	}
	return h
}

// mediaHeaders are applied to stream-open requests so the media host sees the
// same origin context a browser would send.
func (c *Client) mediaHeaders(videoID string) http.Header {
	h := make(http.Header, 4)
	h.Set("User-Agent", c.pickUserAgent())
	h.Set("Origin", "https://www.youtube.com")
	if videoID != "" {
		h.Set("Referer", "https://www.youtube.com/watch?v="+videoID)
	} else {
		h.Set("Referer", "https://www.youtube.com/")
	}
	if c.cfg.Cookie != "" {
		h.Set("Cookie", c.cfg.Cookie)
	}
	return h
}

func applyRequestHeaders(req *http.Request, headers http.Header) {
	for k, vals := range headers {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}
}
