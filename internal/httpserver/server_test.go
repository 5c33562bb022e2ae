package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/cowrite/internal/assembler"
	"github.com/MrSnakeDoc/cowrite/internal/clock"
	"github.com/MrSnakeDoc/cowrite/internal/domain"
	"github.com/MrSnakeDoc/cowrite/internal/events"
	"github.com/MrSnakeDoc/cowrite/internal/evidence"
	"github.com/MrSnakeDoc/cowrite/internal/generator"
	"github.com/MrSnakeDoc/cowrite/internal/httpserver/deps"
	"github.com/MrSnakeDoc/cowrite/internal/identity"
	"github.com/MrSnakeDoc/cowrite/internal/logger"
	"github.com/MrSnakeDoc/cowrite/internal/policy"
	"github.com/MrSnakeDoc/cowrite/internal/quota"
	"github.com/MrSnakeDoc/cowrite/internal/session"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

type testServer struct {
	srv      *httptest.Server
	clk      *clock.FakeClock
	sessions *session.Manager
	ledger   *quota.MemoryLedger
}

func newTestServer(t *testing.T, dailyQuota int) *testServer {
	t.Helper()

	clk := clock.Fake(t0)
	log := logger.Nop()
	p := policy.Default()
	p.DailyQuota = dailyQuota
	holder := policy.NewHolder(p)

	window := quota.NewWindow(time.UTC)
	ledger := quota.NewMemoryLedger(window, p.DailyQuota)
	retriever := &evidence.Static{Sources: []domain.Source{
		{Title: "Solar costs fall again", URL: "https://example.org/solar"},
	}}
	gen := &generator.Mock{Text: "and now undercut coal in most markets.", Confidence: 0.9}
	asm := assembler.New(retriever, gen, clk, log, assembler.OptionsFrom(p))
	hub := events.NewHub(16)

	manager := session.NewManager(session.ManagerConfig{
		Policy: holder,
		Ledger: ledger,
		Clock:  clk,
		Sink:   hub,
		Log:    log,
		Assembler: func(p policy.Policy) session.Assembler {
			return asm.With(assembler.OptionsFrom(p))
		},
	})

	d := deps.Deps{
		Logger:       log,
		StartTime:    t0,
		Version:      "test",
		TimeNow:      clk.Now,
		Identity:     identity.NewHeaderProvider(""),
		UserHeader:   identity.DefaultHeader,
		Sessions:     manager,
		Hub:          hub,
		Ledger:       ledger,
		QuotaWindow:  window,
		Policy:       holder,
		StoreBackend: "memory",
		Retriever:    retriever,
		Generator:    gen,
	}

	srv := httptest.NewServer(NewRouter(d))
	t.Cleanup(func() {
		manager.Close()
		srv.Close()
	})
	return &testServer{srv: srv, clk: clk, sessions: manager, ledger: ledger}
}

func (ts *testServer) do(t *testing.T, method, path, user string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(identity.DefaultHeader, user)
	}
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (ts *testServer) startSession(t *testing.T, user string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/sessions", user, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	snap := decode[session.Snapshot](t, resp)
	require.NotEmpty(t, snap.ID)
	assert.Equal(t, domain.ModeAuto, snap.Mode)
	return snap.ID
}

type wsMessage struct {
	Type       string             `json:"type"`
	Code       string             `json:"code"`
	Suggestion *domain.Suggestion `json:"suggestion"`
	ResetAt    *time.Time         `json:"reset_at"`
	Mode       domain.Mode        `json:"mode"`
}

func (ts *testServer) dial(t *testing.T, sessionID, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/sessions/" + sessionID + "/events"
	conn, resp, err := websocket.DefaultDialer.Dial(url, http.Header{identity.DefaultHeader: {user}})
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	msg := readUntil(t, conn, "subscribed")
	require.Equal(t, "subscribed", msg.Type)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, typ string) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg wsMessage
		require.NoError(t, conn.ReadJSON(&msg), "waiting for %q", typ)
		if msg.Type == typ {
			return msg
		}
	}
}

func TestRequiresIdentity(t *testing.T) {
	ts := newTestServer(t, 5)

	for _, user := range []string{"", "anonymous", "  "} {
		resp := ts.do(t, http.MethodPost, "/sessions", user, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "user %q", user)
	}
	assert.Zero(t, ts.sessions.Len())

	resp := ts.do(t, http.MethodGet, "/quota", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSuggestionFlowOverHTTP(t *testing.T) {
	ts := newTestServer(t, 5)
	id := ts.startSession(t, "alice")
	conn := ts.dial(t, id, "alice")

	resp := ts.do(t, http.MethodPost, "/sessions/"+id+"/text", "alice",
		map[string]any{"text": "solar panels keep getting cheaper", "cursor": 33})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	snap := decode[session.Snapshot](t, resp)
	assert.Equal(t, 5, snap.WordCount)
	require.NotNil(t, snap.DebounceDeadline)

	// Manual requests are refused until the first automatic suggestion.
	resp = ts.do(t, http.MethodPost, "/sessions/"+id+"/continue", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	ts.clk.Advance(5 * time.Second)

	msg := readUntil(t, conn, string(events.TypeSuggestion))
	require.NotNil(t, msg.Suggestion)
	sug := *msg.Suggestion
	assert.Equal(t, domain.StatusPending, sug.Status)
	assert.Len(t, sug.Sources, 1)

	mode := readUntil(t, conn, string(events.TypeModeChanged))
	assert.Equal(t, domain.ModeManual, mode.Mode)

	resp = ts.do(t, http.MethodPost, "/sessions/"+id+"/suggestions/"+sug.ID+"/accept", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	acc := decode[session.Acceptance](t, resp)
	assert.Equal(t, sug.Text, acc.Text)
	assert.Equal(t, 33, acc.CursorOffset)
	assert.Equal(t, domain.StatusAccepted, acc.Suggestion.Status)

	// Resolved suggestions cannot be resolved again.
	resp = ts.do(t, http.MethodPost, "/sessions/"+id+"/suggestions/"+sug.ID+"/dismiss", "alice", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/quota", "alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	q := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, q["count"])
	assert.EqualValues(t, 4, q["remaining"])
}

func TestQuotaExceededOverWebsocket(t *testing.T) {
	ts := newTestServer(t, 1)
	id := ts.startSession(t, "bob")
	conn := ts.dial(t, id, "bob")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "text", "text": "one two three four five six"}))
	// The text command is not acknowledged; a ping round-trip orders it.
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	readUntil(t, conn, "pong")

	ts.clk.Advance(5 * time.Second)
	msg := readUntil(t, conn, string(events.TypeSuggestion))
	require.NotNil(t, msg.Suggestion)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dismiss", "suggestion_id": msg.Suggestion.ID}))
	readUntil(t, conn, "ack")

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "continue"}))
	denied := readUntil(t, conn, string(events.TypeQuotaExceeded))
	require.NotNil(t, denied.ResetAt)
	assert.True(t, denied.ResetAt.Equal(t0.Add(15*time.Hour)), "resets at next midnight, got %v", denied.ResetAt)

	rec, err := ts.ledger.Status(t.Context(), "bob", ts.clk.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Count)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	ts := newTestServer(t, 5)
	id := ts.startSession(t, "alice")

	resp := ts.do(t, http.MethodGet, "/sessions/"+id, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/sessions/"+id, "mallory", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/sessions", "alice", nil)
	list := decode[map[string][]session.Snapshot](t, resp)
	assert.Len(t, list["sessions"], 1)

	resp = ts.do(t, http.MethodDelete, "/sessions/"+id, "alice", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/sessions/"+id, "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestEndSessionClosesStream(t *testing.T) {
	ts := newTestServer(t, 5)
	id := ts.startSession(t, "alice")
	conn := ts.dial(t, id, "alice")

	resp := ts.do(t, http.MethodDelete, "/sessions/"+id, "alice", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	readUntil(t, conn, string(events.TypeSessionEnded))
	var msg wsMessage
	err := conn.ReadJSON(&msg)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestBadTextBody(t *testing.T) {
	ts := newTestServer(t, 5)
	id := ts.startSession(t, "alice")

	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+"/sessions/"+id+"/text", strings.NewReader("{nope"))
	require.NoError(t, err)
	req.Header.Set(identity.DefaultHeader, "alice")
	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHealthAndInfra(t *testing.T) {
	ts := newTestServer(t, 5)

	resp := ts.do(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decode[map[string]any](t, resp)["status"])

	resp = ts.do(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/infra", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	infra := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", infra["status"])

	resp = ts.do(t, http.MethodGet, "/stats", "alice", nil)
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/reload", "", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
