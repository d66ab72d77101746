package upstream

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/famomatic/ytrelay/internal/types"
)

var videoIDRegexp = regexp.MustCompile(`^[\w-]{11}$`)

// ExtractVideoID accepts a bare 11-character video ID or any of the common
// watch/short/embed URL shapes and returns the ID.
func ExtractVideoID(input string) (string, error) {
	input = strings.TrimSpace(input)
	if videoIDRegexp.MatchString(input) {
		return input, nil
	}

	u, err := url.Parse(input)
	if err != nil {
		return "", types.ErrInvalidInput
	}

	var id string
	switch {
	case strings.HasSuffix(u.Host, "youtu.be"):
		id = strings.Trim(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	default:
		for _, prefix := range []string{"/embed/", "/shorts/", "/live/", "/v/"} {
			if strings.HasPrefix(u.Path, prefix) {
				id = strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
				break
			}
		}
	}

	if !videoIDRegexp.MatchString(id) {
		return "", types.ErrInvalidInput
	}
	return id, nil
}
