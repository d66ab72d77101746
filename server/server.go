package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// New assembles the HTTP surface around the download handler: routing, CORS,
// method guard, health check, and per-request logging.
func New(h *Handler, logger zerolog.Logger) http.Handler {
	r := mux.NewRouter()
	r.Handle("/api/download", h).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/api/health", handleHealth).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	// CORS wraps the router, not the routes, so 404/405 responses carry the
	// headers too.
	return withCORS(requestLogger(logger, r))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "Method Not Allowed"})
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(logger zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqLogger := logger.With().
			Str("request_id", uuid.NewString()).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(reqLogger.WithContext(r.Context())))
		reqLogger.Info().Dur("elapsed", time.Since(start)).Msg("request handled")
	})
}
