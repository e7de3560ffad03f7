package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ayodineji/Agile-Board/internal/broadcast"
	"github.com/ayodineji/Agile-Board/internal/metrics"
	"github.com/ayodineji/Agile-Board/internal/mutation"
	"github.com/ayodineji/Agile-Board/internal/session"
	"github.com/ayodineji/Agile-Board/internal/snapshot"
	"github.com/ayodineji/Agile-Board/pkg/board"
)

// pingFailing wraps a working snapshot but reports the backend as down
type pingFailing struct {
	snapshot.Snapshotter
}

func (pingFailing) Ping(context.Context) error { return errors.New("connection refused") }

type harness struct {
	srv   *Server
	store *session.Store
	ts    *httptest.Server
}

func setupServer(t *testing.T, wrap func(snapshot.Snapshotter) snapshot.Snapshotter, opts ...Option) *harness {
	t.Helper()
	file, err := snapshot.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	var snap snapshot.Snapshotter = file
	if wrap != nil {
		snap = wrap(file)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	store := session.NewStore(snap, nil, session.WithMetrics(m))
	tracker := session.NewTracker(store, m)
	hub := broadcast.NewHub(broadcast.WithMetrics(m))
	engine := mutation.NewEngine(store, tracker, hub, mutation.WithMetrics(m))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		engine.Run(ctx)
	}()

	srv := New(store, hub, engine, snap, append([]Option{WithGatherer(reg)}, opts...)...)
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		srv.closeClients(shutdownCtx)
		ts.Close()
		cancel()
		<-done
	})
	return &harness{srv: srv, store: store, ts: ts}
}

func (h *harness) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.ts.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (h *harness) createSession(t *testing.T) session.Created {
	t.Helper()
	resp := h.post(t, "/api/create-session", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var created session.Created
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func (h *harness) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(board.Envelope{Event: event, Data: raw}))
}

// readUntil reads frames until one named event arrives
func readUntil(t *testing.T, conn *websocket.Conn, event string) board.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var env board.Envelope
		require.NoError(t, conn.ReadJSON(&env), "waiting for %s", event)
		if env.Event == event {
			return env
		}
	}
}

func TestCreateAndJoinSession(t *testing.T) {
	h := setupServer(t, nil)
	created := h.createSession(t)
	assert.NotEmpty(t, created.SessionID)
	assert.Len(t, created.AccessCode, session.AccessCodeLength)

	t.Run("code is case-insensitive", func(t *testing.T) {
		resp := h.post(t, "/api/join-session", `{"code":"`+strings.ToLower(created.AccessCode)+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var joined JoinResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&joined))
		assert.Equal(t, created.SessionID, joined.SessionID)
		require.NotNil(t, joined.BoardState)
		assert.Len(t, joined.BoardState.Features, 12)
	})

	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"missing code", `{}`, http.StatusBadRequest},
		{"blank code", `{"code":"   "}`, http.StatusBadRequest},
		{"empty body", ``, http.StatusBadRequest},
		{"malformed body", `{"code":`, http.StatusBadRequest},
		{"unknown code", `{"code":"ZZZZZZ"}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := h.post(t, "/api/join-session", tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var body errorResponse
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestGetBoard(t *testing.T) {
	h := setupServer(t, nil)
	created := h.createSession(t)

	resp, err := http.Get(h.ts.URL + "/api/board/" + created.SessionID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var b board.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&b))
	assert.Equal(t, 13, b.NextFeatureID)

	missing, err := http.Get(h.ts.URL + "/api/board/does-not-exist")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		h := setupServer(t, nil)
		resp, err := http.Get(h.ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, HealthResponse{Status: "healthy", Storage: "connected"}, body)
	})

	t.Run("storage down", func(t *testing.T) {
		h := setupServer(t, func(s snapshot.Snapshotter) snapshot.Snapshotter { return pingFailing{s} })
		resp, err := http.Get(h.ts.URL + "/healthz")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		var body HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "unhealthy", body.Status)
		assert.Equal(t, "disconnected", body.Storage)
		assert.Equal(t, "connection refused", body.Error)
	})
}

func TestMetricsEndpoint(t *testing.T) {
	h := setupServer(t, nil)
	h.createSession(t)

	resp, err := http.Get(h.ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "agileboard_sessions 1")
}

func TestMiddleware(t *testing.T) {
	t.Run("preflight with open origins", func(t *testing.T) {
		h := setupServer(t, nil)
		req, err := http.NewRequest(http.MethodOptions, h.ts.URL+"/api/create-session", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	})

	t.Run("restricted origins", func(t *testing.T) {
		h := setupServer(t, nil, WithAllowedOrigins([]string{"https://board.example.com"}))
		for origin, want := range map[string]string{
			"https://board.example.com": "https://board.example.com",
			"https://evil.example.com":  "",
		} {
			req, err := http.NewRequest(http.MethodGet, h.ts.URL+"/healthz", nil)
			require.NoError(t, err)
			req.Header.Set("Origin", origin)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, want, resp.Header.Get("Access-Control-Allow-Origin"), origin)
			assert.Len(t, resp.Header.Get("X-Request-ID"), 8)
		}

		header := http.Header{"Origin": []string{"https://evil.example.com"}}
		url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/ws"
		_, resp, err := websocket.DefaultDialer.Dial(url, header)
		require.Error(t, err)
		require.NotNil(t, resp)
		resp.Body.Close()
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("recovery", func(t *testing.T) {
		handler := Recovery(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic("boom")
		}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
	})
}

func TestWebSocketSync(t *testing.T) {
	h := setupServer(t, nil)
	created := h.createSession(t)

	alice := h.dial(t)
	bob := h.dial(t)

	sendFrame(t, alice, "join-session", created.SessionID)
	data := readUntil(t, alice, board.EventBoardData)
	var b board.State
	require.NoError(t, json.Unmarshal(data.Data, &b))
	assert.Len(t, b.Features, 12)
	count := readUntil(t, alice, board.EventParticipantCount)
	assert.JSONEq(t, `1`, string(count.Data))
	readUntil(t, alice, board.EventGlobalParticipantCount)

	sendFrame(t, bob, "join-session", map[string]string{"sessionId": created.SessionID})
	readUntil(t, bob, board.EventBoardData)
	joined := readUntil(t, alice, board.EventUserJoined)
	assert.Contains(t, string(joined.Data), "userId")
	count = readUntil(t, alice, board.EventParticipantCount)
	assert.JSONEq(t, `2`, string(count.Data))

	sendFrame(t, alice, "move-feature", board.Move{FeatureID: 7, TeamID: "qa", SprintID: 3})
	moved := readUntil(t, bob, board.EventFeatureMoved)
	assert.JSONEq(t, `{"featureId":7,"teamId":"qa","sprintId":3}`, string(moved.Data))

	// Persisted before the broadcast went out
	stored, err := h.store.Board(created.SessionID)
	require.NoError(t, err)
	f, ok := stored.Feature(7)
	require.True(t, ok)
	assert.Equal(t, "qa", f.TeamID)

	t.Run("malformed frame is answered with an error", func(t *testing.T) {
		require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte("not json")))
		env := readUntil(t, bob, board.EventError)
		assert.Contains(t, string(env.Data), "frames must be")
	})

	t.Run("disconnect is announced", func(t *testing.T) {
		require.NoError(t, alice.Close())
		left := readUntil(t, bob, board.EventUserLeft)
		assert.Contains(t, string(left.Data), "userId")
		count := readUntil(t, bob, board.EventParticipantCount)
		assert.JSONEq(t, `1`, string(count.Data))
	})
}

func TestServeShutdown(t *testing.T) {
	file, err := snapshot.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	store := session.NewStore(file, nil)
	tracker := session.NewTracker(store, nil)
	hub := broadcast.NewHub()
	engine := mutation.NewEngine(store, tracker, hub)
	srv := New(store, hub, engine, file, WithGatherer(prometheus.NewRegistry()), WithShutdownTimeout(2*time.Second))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx, ln) }()

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)

	resp2, err := http.Post("http://"+ln.Addr().String()+"/api/create-session", "application/json", bytes.NewReader(nil))
	if err == nil {
		resp2.Body.Close()
	}
	assert.Error(t, err)
}

func TestShutdownReleasesParticipants(t *testing.T) {
	ctx := context.Background()
	file, err := snapshot.NewFile(filepath.Join(t.TempDir(), "sessions.json"))
	require.NoError(t, err)
	store := session.NewStore(file, nil)
	tracker := session.NewTracker(store, nil)
	hub := broadcast.NewHub()
	engine := mutation.NewEngine(store, tracker, hub)
	srv := New(store, hub, engine, file, WithGatherer(prometheus.NewRegistry()), WithShutdownTimeout(2*time.Second))

	engineCtx, stopEngine := context.WithCancel(ctx)
	engineDone := make(chan error, 1)
	go func() { engineDone <- engine.Run(engineCtx) }()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	serveCtx, stopServe := context.WithCancel(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(serveCtx, ln) }()

	created, err := store.Create(ctx)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+"/ws", nil)
	require.NoError(t, err)
	resp.Body.Close()
	defer conn.Close()
	sendFrame(t, conn, "join-session", created.SessionID)
	readUntil(t, conn, board.EventBoardData)
	require.Equal(t, 1, tracker.Global())

	// The engine goes first, so the handler cannot hand it the disconnect
	stopEngine()
	require.NoError(t, <-engineDone)
	stopServe()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
	}

	assert.Equal(t, 0, tracker.Global())
	assert.Equal(t, 0, hub.Connections())
	require.NoError(t, store.Persist(ctx))

	data, err := file.Load(ctx)
	require.NoError(t, err)
	var doc struct {
		Sessions map[string]struct {
			Participants []string `json:"participants"`
		} `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Contains(t, doc.Sessions, created.SessionID)
	assert.Empty(t, doc.Sessions[created.SessionID].Participants)
}
