package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
)

type quotaResponse struct {
	quota.Record
	Remaining int `json:"remaining"`
}

// Quota reports the caller's budget for the current day.
func Quota(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := identity.FromContext(r.Context())
		rec, err := d.Ledger.Status(r.Context(), user, d.Now())
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:   "ledger_unavailable",
				Message: "quota ledger unavailable",
			})
			d.Logger.Warnf("quota status failed for %s: %v", user, err)
			return
		}
		writeJSON(w, http.StatusOK, quotaResponse{Record: rec, Remaining: rec.Remaining()})
	}
}

// Stats returns suggestion outcome counts for a day (?date=YYYY-MM-DD,
// default today). Only the redis backend keeps them.
func Stats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Store == nil {
			writeJSON(w, http.StatusNotImplemented, errorResponse{
				Error:   "stats_unavailable",
				Message: "outcome stats require the redis store",
			})
			return
		}
		user, _ := identity.FromContext(r.Context())
		date := strings.TrimSpace(r.URL.Query().Get("date"))
		if date == "" {
			date = d.QuotaWindow.Day(d.Now())
		} else if _, err := time.Parse(time.DateOnly, date); err != nil {
			badRequest(w, "date must be YYYY-MM-DD")
			return
		}
		stats, err := d.Store.GetOutcomeStats(r.Context(), user, date)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{
				Error:   "stats_unavailable",
				Message: "outcome stats unavailable",
			})
			d.Logger.Warnf("outcome stats failed for %s: %v", user, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}
