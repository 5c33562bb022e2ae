package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/cowrite/internal/evidence"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
)

type componentStatus struct {
	OK       bool   `json:"ok"`
	Provider string `json:"provider,omitempty"`
	Mode     string `json:"mode,omitempty"`
	Impact   string `json:"impact,omitempty"`
	Error    string `json:"error,omitempty"`
	Sessions *int   `json:"sessions,omitempty"`
}

type policySummary struct {
	MinWordCount        int     `json:"min_word_count"`
	DebounceSeconds     float64 `json:"debounce_seconds"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	DailyQuota          int     `json:"daily_quota"`
	EvidenceK           int     `json:"evidence_k"`
	LoadedAt            string  `json:"loaded_at,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
	Policy     policySummary              `json:"policy"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions := d.Sessions.Len()
		components := map[string]componentStatus{
			"ledger":    checkLedger(r.Context(), d),
			"retriever": checkRetriever(d),
			"generator": {OK: d.Generator != nil, Provider: nameOf(d.Generator)},
			"sessions":  {OK: true, Sessions: &sessions},
		}

		p := d.Policy.Load()
		summary := policySummary{
			MinWordCount:        p.MinWordCount,
			DebounceSeconds:     p.Debounce.Seconds(),
			ConfidenceThreshold: p.ConfidenceThreshold,
			DailyQuota:          p.DailyQuota,
			EvidenceK:           p.EvidenceK,
		}
		if at := d.Policy.LoadedAt(); !at.IsZero() {
			summary.LoadedAt = at.Format(time.RFC3339)
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Status:     overallStatus(components),
			Components: components,
			Policy:     summary,
		})
	}
}

// overallStatus: without a ledger or a generator nothing can be
// suggested; a missing search backend fails every request too but is a
// configuration issue rather than an outage.
func overallStatus(components map[string]componentStatus) string {
	if !components["ledger"].OK || !components["generator"].OK {
		return "critical"
	}
	if !components["retriever"].OK {
		return "degraded"
	}
	return "ok"
}

func checkLedger(ctx context.Context, d deps.Deps) componentStatus {
	if d.Store == nil {
		return componentStatus{OK: true, Provider: d.StoreBackend, Mode: "in-process",
			Impact: "quota resets on restart"}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := d.Store.Ping(ctx); err != nil {
		return componentStatus{OK: false, Provider: d.StoreBackend, Mode: "down",
			Impact: "suggestions-disabled", Error: "timeout"}
	}
	return componentStatus{OK: true, Provider: d.StoreBackend, Mode: "shared"}
}

func checkRetriever(d deps.Deps) componentStatus {
	if d.Retriever == nil || !evidence.Configured(d.Retriever) {
		return componentStatus{OK: false, Provider: nameOf(d.Retriever), Mode: "not_configured",
			Impact: "suggestions-disabled"}
	}
	return componentStatus{OK: true, Provider: d.Retriever.Name()}
}

func nameOf(v interface{ Name() string }) string {
	if v == nil {
		return ""
	}
	return v.Name()
}
