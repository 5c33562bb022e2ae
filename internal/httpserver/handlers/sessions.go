package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/session"
)

type textRequest struct {
	Text   string `json:"text"`
	Cursor *int   `json:"cursor,omitempty"`
}

type sessionList struct {
	Sessions []session.Snapshot `json:"sessions"`
}

type dismissResponse struct {
	Suggestion domain.Suggestion `json:"suggestion"`
}

// lookup resolves {id} for the authenticated caller and writes the error
// response when it cannot.
func lookup(d deps.Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		writeError(w, d.Logger, domain.ErrMissingIdentity)
		return nil, false
	}
	s, err := d.Sessions.Get(chi.URLParam(r, "id"), user)
	if err != nil {
		writeError(w, d.Logger, err)
		return nil, false
	}
	return s, true
}

// StartSession opens an editing session for the caller.
func StartSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := identity.FromContext(r.Context())
		s, err := d.Sessions.Start(user)
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.Header().Set("Location", "/sessions/"+s.ID())
		writeJSON(w, http.StatusCreated, s.Snapshot())
	}
}

func ListSessions(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := identity.FromContext(r.Context())
		list := d.Sessions.List(user)
		if list == nil {
			list = []session.Snapshot{}
		}
		writeJSON(w, http.StatusOK, sessionList{Sessions: list})
	}
}

func GetSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, s.Snapshot())
	}
}

// EndSession closes the session. A pending suggestion expires and any
// in-flight request is cancelled.
func EndSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, _ := identity.FromContext(r.Context())
		if err := d.Sessions.End(chi.URLParam(r, "id"), user); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// UpdateText feeds an editor change into the trigger controller.
func UpdateText(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		var req textRequest
		if !decodeBody(w, r, &req) {
			return
		}
		cursor := len([]rune(req.Text))
		if req.Cursor != nil {
			cursor = *req.Cursor
		}
		if err := s.OnTextChanged(req.Text, cursor); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.Snapshot())
	}
}

// Continue is the user's explicit continuation request.
func Continue(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		if err := s.RequestContinuation(); err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusAccepted, s.Snapshot())
	}
}

func AcceptSuggestion(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		acc, err := s.Accept(chi.URLParam(r, "sid"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, acc)
	}
}

func DismissSuggestion(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		sug, err := s.Dismiss(chi.URLParam(r, "sid"))
		if err != nil {
			writeError(w, d.Logger, err)
			return
		}
		writeJSON(w, http.StatusOK, dismissResponse{Suggestion: sug})
	}
}
