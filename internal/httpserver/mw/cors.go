package mw

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// CORS lets the editor front-end call the API from the listed origins.
// "*" allows any origin. With no origins it is a passthrough.
func CORS(origins []string, extraHeaders ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		allowed = append(allowed, strings.TrimRight(o, "/"))
	}
	headers := []string{"Content-Type", "X-Request-ID"}
	for _, h := range extraHeaders {
		if h != "" {
			headers = append(headers, h)
		}
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: headers,
		MaxAge:         600,
	})
}
