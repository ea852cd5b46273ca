package api

import (
	"log/slog"
	"net/http"

	"github.com/felixge/httpsnoop"
	"github.com/go-chi/cors"
	"github.com/klauspost/compress/gzhttp"
)

// requestLogger logs one line per request once the handler returns. WebSocket
// sessions are logged when they end, with their full duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		lvl := slog.LevelInfo
		if m.Code >= http.StatusInternalServerError {
			lvl = slog.LevelError
		}
		slog.Log(r.Context(), lvl, "http: handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

func corsFor(origin string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	})
}

// gzipJSON compresses API responses for clients that accept it. Snippets with
// inline images are large; small bodies are passed through unchanged.
func gzipJSON(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
