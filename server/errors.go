package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/famomatic/ytrelay/internal/types"
)

const (
	msgUnavailable = "Video is unavailable or private"
	msgRejected    = "Unable to download video due to YouTube restrictions. Please try again later."
	msgRateLimited = "Rate limit exceeded. Please wait a moment and try again."
	msgTimedOut    = "Request timed out. Please try again."
	msgGeneric     = "Failed to download video"
)

// userMessage maps an internal error to the human-readable string the client
// sees. No internal detail leaks past this function.
func userMessage(err error) string {
	switch {
	case errors.Is(err, types.ErrUnavailable):
		return msgUnavailable
	case errors.Is(err, types.ErrRejected):
		return msgRejected
	case errors.Is(err, types.ErrRateLimited):
		return msgRateLimited
	case types.IsTransport(err),
		errors.Is(err, context.DeadlineExceeded):
		return msgTimedOut
	default:
		return msgGeneric
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeFailure emits the terminal 500 body. Both fields carry the same string
// for compatibility with existing clients.
func writeFailure(w http.ResponseWriter, err error) {
	msg := userMessage(err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   msg,
		"message": msg,
	})
}
