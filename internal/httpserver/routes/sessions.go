package routes

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/mw"
)

// apiTimeout bounds the editor REST calls. Suggestions are assembled in
// the background, so no handler waits on retrieval or generation.
const apiTimeout = 5 * time.Second

func init() { Register(registerSessions) }

func registerSessions(r chi.Router, d deps.Deps) {
	r.Group(func(r chi.Router) {
		r.Use(mw.EnforceHost(d.AllowedHosts, d.Logger))
		r.Use(mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.RateLimitBurst,
			RefillPerIPPerMin: d.RateLimitPerMin,
			MaxEntries:        d.RateLimitMaxIPs,
			SweepInterval:     d.RateLimitSweepInt,
			IdleTTL:           d.RateLimitIdleTTL,
			TrustProxy:        d.TrustProxy,
			Now:               d.TimeNow,
		}))
		r.Use(mw.RequireUser(d.Identity, d.Logger))

		// The event stream is long lived and must not sit behind the timeout.
		r.Get("/sessions/{id}/events", handlers.Events(d))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(apiTimeout))

			r.Post("/sessions", handlers.StartSession(d))
			r.Get("/sessions", handlers.ListSessions(d))
			r.Get("/sessions/{id}", handlers.GetSession(d))
			r.Delete("/sessions/{id}", handlers.EndSession(d))
			r.Post("/sessions/{id}/text", handlers.UpdateText(d))
			r.Post("/sessions/{id}/continue", handlers.Continue(d))
			r.Post("/sessions/{id}/suggestions/{sid}/accept", handlers.AcceptSuggestion(d))
			r.Post("/sessions/{id}/suggestions/{sid}/dismiss", handlers.DismissSuggestion(d))

			r.Get("/quota", handlers.Quota(d))
			r.Get("/stats", handlers.Stats(d))
		})
	})
}
