package types

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected indicates the upstream refused the request as automated
	// (bot check, sign-in wall, 403).
	ErrRejected = errors.New("upstream rejected request")

	// ErrUnavailable indicates the video is unavailable (deleted, private, etc.).
	ErrUnavailable = errors.New("video unavailable")

	// ErrRateLimited indicates the upstream throttled the request (429).
	ErrRateLimited = errors.New("rate limited")

	// ErrNoMatchingRendition indicates no rendition satisfied the selection.
	ErrNoMatchingRendition = errors.New("no matching rendition")

	// ErrInvalidInput indicates malformed input (not a video ID/url).
	ErrInvalidInput = errors.New("invalid input")
)

// TransportError wraps a network-level failure (dial, TLS, timeout) talking to
// the upstream.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
