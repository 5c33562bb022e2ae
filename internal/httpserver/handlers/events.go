package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/session"
)

const (
	eventsWSWriteWait = 10 * time.Second
	eventsWSPongWait  = 60 * time.Second
	eventsWSPingEvery = (eventsWSPongWait * 9) / 10
	eventsWSReadLimit = 1 << 20
)

// eventsInbound is a command sent by the editor over the socket. Text
// changes and continuation requests may use the socket instead of the
// REST endpoints.
type eventsInbound struct {
	Type         string `json:"type"`
	Text         string `json:"text,omitempty"`
	Cursor       *int   `json:"cursor,omitempty"`
	SuggestionID string `json:"suggestion_id,omitempty"`
}

// eventsReply answers an inbound command. Session events are written as
// events.Event values on the same socket.
type eventsReply struct {
	Type       string              `json:"type"`
	SessionID  string              `json:"session_id,omitempty"`
	Code       string              `json:"code,omitempty"`
	Message    string              `json:"message,omitempty"`
	Acceptance *session.Acceptance `json:"acceptance,omitempty"`
}

func newUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(origins))
	allowAny := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAny = true
		}
		allowed[strings.ToLower(strings.TrimRight(o, "/"))] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if allowAny || origin == "" {
				return true
			}
			_, ok := allowed[strings.ToLower(origin)]
			return ok
		},
	}
}

// Events streams a session's notifications to the editor over a websocket
// and accepts editor commands on the same connection.
func Events(d deps.Deps) http.HandlerFunc {
	upgrader := newUpgrader(d.CORSOrigins)

	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := lookup(d, w, r)
		if !ok {
			return
		}
		log := d.Logger.With(
			logger.String("session_id", s.ID()),
			logger.String("user_id", s.UserID()))

		// Subscribe before upgrading so nothing published meanwhile is lost.
		sub, unsubscribe := d.Hub.Subscribe(s.ID())
		defer unsubscribe()
		if s.Closed() {
			writeError(w, d.Logger, domain.ErrSessionClosed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Debug("websocket upgrade failed", logger.Error(err))
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		conn.SetReadLimit(eventsWSReadLimit)
		if err := conn.SetReadDeadline(time.Now().Add(eventsWSPongWait)); err != nil {
			return
		}
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(eventsWSPongWait))
		})

		writeCh := make(chan any, 32)
		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			// Closing unblocks the read loop when the stream ends from this side.
			defer conn.Close()
			defer cancel()
			ticker := time.NewTicker(eventsWSPingEvery)
			defer ticker.Stop()

			write := func(v any) bool {
				if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
					return false
				}
				return conn.WriteJSON(v) == nil
			}

			for {
				select {
				case <-ctx.Done():
					return
				case out := <-writeCh:
					if !write(out) {
						return
					}
				case evt, open := <-sub:
					if !open {
						// Session ended: tell the editor and close.
						_ = conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait))
						_ = conn.WriteMessage(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
						return
					}
					if !write(evt) {
						return
					}
					if evt.Type == events.TypeSessionEnded {
						_ = conn.WriteMessage(websocket.CloseMessage,
							websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
						return
					}
				case <-ticker.C:
					if err := conn.SetWriteDeadline(time.Now().Add(eventsWSWriteWait)); err != nil {
						return
					}
					if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
						return
					}
				}
			}
		}()

		push(ctx, writeCh, eventsReply{Type: "subscribed", SessionID: s.ID()})
		log.Debug("event stream opened")

		for {
			var in eventsInbound
			if err := conn.ReadJSON(&in); err != nil {
				cancel()
				<-writerDone
				log.Debug("event stream closed", logger.Error(err))
				return
			}
			if reply, ok := handleInbound(s, in); ok {
				push(ctx, writeCh, reply)
			}
		}
	}
}

func handleInbound(s *session.Session, in eventsInbound) (eventsReply, bool) {
	var err error
	msgType := strings.ToLower(strings.TrimSpace(in.Type))
	switch msgType {
	case "ping":
		return eventsReply{Type: "pong"}, true
	case "text":
		cursor := len([]rune(in.Text))
		if in.Cursor != nil {
			cursor = *in.Cursor
		}
		err = s.OnTextChanged(in.Text, cursor)
	case "continue":
		err = s.RequestContinuation()
	case "accept":
		var acc session.Acceptance
		acc, err = s.Accept(in.SuggestionID)
		if err == nil {
			return eventsReply{Type: "accepted", Acceptance: &acc}, true
		}
	case "dismiss":
		_, err = s.Dismiss(in.SuggestionID)
	case "":
		return eventsReply{Type: "error", Code: "bad_request", Message: "type is required"}, true
	default:
		return eventsReply{Type: "error", Code: "bad_request", Message: "unknown type " + msgType}, true
	}

	if err != nil {
		_, code := errorStatus(err)
		return eventsReply{Type: "error", Code: code, Message: err.Error()}, true
	}
	// Text updates are frequent; only explicit actions are acknowledged.
	if msgType == "text" {
		return eventsReply{}, false
	}
	return eventsReply{Type: "ack", Message: msgType}, true
}

func push(ctx context.Context, ch chan<- any, v any) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}
