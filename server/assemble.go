package server

import (
	"io"
	"net/http"

	"github.com/rs/zerolog"
)

// streamResponse copies src to the client. Response headers are held back
// until the first payload chunk so a source that dies early still gets a
// proper JSON failure; an error after bytes have gone out can only be
// surfaced by aborting the connection. Returns a non-nil error only in the
// before-first-byte case, for the caller to map.
func streamResponse(w http.ResponseWriter, src io.Reader, filename string, logger *zerolog.Logger) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 64*1024)
	started := false
	var written int64

	sendHeaders := func() {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
		w.WriteHeader(http.StatusOK)
		started = true
	}

	for {
		n, err := src.Read(buf)
		if n > 0 {
			if !started {
				sendHeaders()
			}
			if _, werr := w.Write(buf[:n]); werr != nil {
				logger.Debug().Err(werr).Int64("bytes", written).Msg("client went away")
				return nil
			}
			written += int64(n)
			if flusher != nil {
				flusher.Flush()
			}
		}
		switch {
		case err == io.EOF:
			if !started {
				sendHeaders()
			}
			logger.Info().Int64("bytes", written).Msg("stream completed")
			return nil
		case err != nil:
			if !started {
				return err
			}
			logger.Error().Err(err).Int64("bytes", written).
				Msg("stream failed mid-response, aborting connection")
			panic(http.ErrAbortHandler)
		}
	}
}
