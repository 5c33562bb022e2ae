package events

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
)

var at = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func TestHubRoutesBySession(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("s1")
	defer cancelA()
	b, cancelB := h.Subscribe("s2")
	defer cancelB()

	h.Publish(ModeChanged("s1", domain.ModeManual, at))

	select {
	case e := <-a:
		assert.Equal(t, TypeModeChanged, e.Type)
		assert.Equal(t, domain.ModeManual, e.Mode)
	default:
		t.Fatal("s1 subscriber got nothing")
	}
	select {
	case e := <-b:
		t.Fatalf("s2 subscriber got %v", e)
	default:
	}
}

func TestHubDropsOldest(t *testing.T) {
	h := NewHub(2)
	ch, cancel := h.Subscribe("s1")
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Publish(StatusChanged("s1", string(rune('a'+i)), domain.StatusDismissed, at))
	}

	require.Len(t, ch, 2)
	assert.Equal(t, "d", (<-ch).SuggestionID)
	assert.Equal(t, "e", (<-ch).SuggestionID)
}

func TestHubEndedClosesSubscriptions(t *testing.T) {
	h := NewHub(4)
	ch, cancel := h.Subscribe("s1")

	h.Publish(Ended("s1", at))

	e, ok := <-ch
	require.True(t, ok)
	assert.Equal(t, TypeSessionEnded, e.Type)
	_, ok = <-ch
	assert.False(t, ok)
	assert.Zero(t, h.Subscribers("s1"))

	cancel() // idempotent after close
}

func TestUnavailableReason(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason string
	}{
		{"not configured", &domain.AssemblyError{Kind: domain.KindRetrievalUnavailable, NotConfigured: true}, "not_configured"},
		{"retrieval", &domain.AssemblyError{Kind: domain.KindRetrievalUnavailable}, "retrieval_unavailable"},
		{"generation", &domain.AssemblyError{Kind: domain.KindGenerationUnavailable}, "generation_unavailable"},
		{"raw", errors.New("x"), "generation_unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.reason, Unavailable("s1", tt.err, at).Reason)
		})
	}
}

func TestQuotaExceededEvent(t *testing.T) {
	reset := at.Add(15 * time.Hour)
	e := QuotaExceeded("s1", "u1", reset, at)
	assert.Equal(t, TypeQuotaExceeded, e.Type)
	assert.Equal(t, "u1", e.UserID)
	require.NotNil(t, e.ResetAt)
	assert.Equal(t, reset, *e.ResetAt)
	assert.Equal(t, "Daily suggestion limit reached.", e.Message)
}
