package mw

import (
	"net/http"

	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
)

// RequireUser resolves the caller with p and rejects anonymous requests
// with 401 before any handler runs.
func RequireUser(p identity.Provider, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := p.CurrentUser(r)
			if err != nil {
				log.Debug("request without identity rejected", logger.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"missing_identity","message":"no authenticated user"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
		})
	}
}
