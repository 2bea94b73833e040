package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/config"
	"github.com/codeready-toolchain/design-team/pkg/events"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/services"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/version"
	testdb "github.com/codeready-toolchain/design-team/test/database"
)

const testApp = "game_design_team_app"

type echoLLM struct{}

func (echoLLM) GenerateContent(_ context.Context, req *agent.LLMRequest) (*agent.LLMResponse, error) {
	text := req.Contents[len(req.Contents)-1].Text()
	return &agent.LLMResponse{
		Content:      models.NewTextContent(models.RoleModel, "echo: "+text),
		FinishReason: agent.FinishReasonStop,
	}, nil
}

type testEnv struct {
	server *Server
	store  *sessions.Store
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()
	client := testdb.NewTestClient(t)
	store := sessions.NewStore(client)
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)

	cfg := &config.Config{
		AppName:          testApp,
		Chat:             config.DefaultChatConfig(),
		AllowedWSOrigins: []string{"*"},
	}
	root := agent.NewLLMAgent(agent.LLMAgentConfig{Name: "echo", Model: "m", Instruction: "repeat"})
	runner := agent.NewRunner(testApp, root, store, echoLLM{})

	threads := services.NewThreadService(client, store, testApp, m)
	connManager := events.NewConnectionManager(events.NewThreadCatchupAdapter(threads), 5*time.Second, m)
	publisher := events.NewEventPublisher(connManager)
	chat := services.NewChatService(store, runner, publisher, m, services.ChatConfig{
		AppName:        testApp,
		WelcomeMessage: cfg.Chat.WelcomeMessage,
		RunTimeout:     time.Minute,
	})

	s := NewServer(cfg, client, threads, chat, connManager, reg)
	s.SetEventPublisher(publisher)
	return &testEnv{server: s, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) seed(t *testing.T, userID, threadID string, texts ...string) {
	t.Helper()
	ctx := context.Background()
	sess, err := e.store.Create(ctx, sessions.CreateRequest{AppName: testApp, UserID: userID, SessionID: threadID})
	require.NoError(t, err)
	for i, text := range texts {
		_, err := e.store.AppendEvent(ctx, sess, &models.Event{
			ID:        fmt.Sprintf("%s-e%d", threadID, i),
			Author:    models.AuthorUser,
			Timestamp: time.Now().UTC(),
			Content:   models.NewTextContent(models.RoleUser, text),
			Actions:   &models.EventActions{StateDelta: map[string]any{"n": i}},
		})
		require.NoError(t, err)
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealthHandler(t *testing.T) {
	env := setupServer(t)
	rec := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[HealthResponse](t, rec)
	assert.Equal(t, healthStatusHealthy, resp.Status)
	assert.Equal(t, version.Full(), resp.Version)
	require.NotNil(t, resp.Database)
	assert.Equal(t, "healthy", resp.Database.Status)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestMetricsEndpoint(t *testing.T) {
	env := setupServer(t)
	env.do(t, http.MethodGet, "/api/v1/threads", nil)

	rec := env.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "design_team_threads_queries_total")
}

func TestThreadHandlers(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "alice", "t1", "hello")
	env.seed(t, "bob", "t2")

	t.Run("list", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads?first=10", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[models.PaginatedThreads](t, rec)
		assert.Len(t, page.Data, 2)
	})

	t.Run("list filtered by user", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads?user_id=bob", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		page := decode[models.PaginatedThreads](t, rec)
		require.Len(t, page.Data, 1)
		assert.Equal(t, "t2", page.Data[0].ID)
	})

	t.Run("list invalid page size", func(t *testing.T) {
		for _, q := range []string{"first=0", "first=abc", "first=1000"} {
			rec := env.do(t, http.MethodGet, "/api/v1/threads?"+q, nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, q)
		}
	})

	t.Run("get", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads/t1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		thread := decode[models.Thread](t, rec)
		assert.Equal(t, "alice", thread.UserID)
		require.Len(t, thread.Steps, 1)
		assert.Equal(t, "hello", thread.Steps[0].Output)
		assert.Equal(t, models.StepTypeUserMessage, thread.Steps[0].Type)
	})

	t.Run("get missing", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads/nope", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "resource not found", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("author", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/api/v1/threads/t2/author", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "bob", decode[ThreadAuthorResponse](t, rec).Author)

		rec = env.do(t, http.MethodGet, "/api/v1/threads/nope/author", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		rec := env.do(t, http.MethodDelete, "/api/v1/threads/t2", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[DeleteResponse](t, rec).Deleted)

		rec = env.do(t, http.MethodDelete, "/api/v1/threads/t2", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = env.do(t, http.MethodGet, "/api/v1/threads/t2", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUserHandlers(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "alice", "t1")

	rec := env.do(t, http.MethodGet, "/api/v1/users/alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", decode[models.PersistedUser](t, rec).Identifier)

	rec = env.do(t, http.MethodGet, "/api/v1/users/nobody", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/v1/users", models.User{Identifier: "carol"})
	require.Equal(t, http.StatusOK, rec.Code)
	user := decode[models.PersistedUser](t, rec)
	assert.Equal(t, "carol", user.Identifier)
	assert.NotEmpty(t, user.ID)

	rec = env.do(t, http.MethodPost, "/api/v1/users", models.User{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInertHandlers(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "alice", "t1")

	tests := []struct {
		method string
		path   string
		body   any
		want   int
	}{
		{http.MethodPatch, "/api/v1/threads/t1", map[string]any{"name": "renamed"}, http.StatusNoContent},
		{http.MethodGet, "/api/v1/threads/t1/elements/el1", nil, http.StatusNotFound},
		{http.MethodPost, "/api/v1/threads/t1/elements", models.Element{ID: "el1", Name: "a.png"}, http.StatusNoContent},
		{http.MethodDelete, "/api/v1/threads/t1/elements/el1", nil, http.StatusNoContent},
		{http.MethodPost, "/api/v1/steps", models.Step{ID: "s1"}, http.StatusNoContent},
		{http.MethodPatch, "/api/v1/steps/s1", models.Step{Output: "x"}, http.StatusNoContent},
		{http.MethodDelete, "/api/v1/steps/s1", nil, http.StatusNoContent},
		{http.MethodDelete, "/api/v1/feedback/f1", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	// Nothing was stored.
	rec := env.do(t, http.MethodGet, "/api/v1/threads/t1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[models.Thread](t, rec).Steps)
}

func TestFeedbackHandler(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPut, "/api/v1/feedback", models.Feedback{ID: "f1", ForID: "s1", Value: 1})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "f1", decode[FeedbackResponse](t, rec).ID)

	rec = env.do(t, http.MethodPut, "/api/v1/feedback", models.Feedback{ForID: "s1", Value: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[FeedbackResponse](t, rec).ID)
}

// sseEvents splits an SSE body into (event, data) pairs.
func sseEvents(body string) [][2]string {
	var out [][2]string
	for _, block := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var ev, data string
		for _, line := range strings.Split(block, "\n") {
			if v, ok := strings.CutPrefix(line, "event:"); ok {
				ev = strings.TrimSpace(v)
			}
			if v, ok := strings.CutPrefix(line, "data:"); ok {
				data = strings.TrimSpace(v)
			}
		}
		if ev != "" {
			out = append(out, [2]string{ev, data})
		}
	}
	return out
}

func TestChatHandlers(t *testing.T) {
	env := setupServer(t)

	rec := env.do(t, http.MethodPost, "/api/v1/chats", models.StartChatRequest{ThreadID: "c1"}, "X-Forwarded-User", "alice")
	require.Equal(t, http.StatusCreated, rec.Code)
	start := decode[models.StartChatResponse](t, rec)
	assert.Equal(t, "c1", start.ThreadID)
	assert.Equal(t, config.DefaultWelcomeMessage, start.Welcome.Output)

	t.Run("send streams steps", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/messages", models.SendMessageRequest{Content: "a tiny roguelike"}, "X-Forwarded-User", "alice")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")

		evs := sseEvents(rec.Body.String())
		require.NotEmpty(t, evs)
		assert.Equal(t, sseEventDone, evs[len(evs)-1][0])

		var outputs []string
		for _, ev := range evs[:len(evs)-1] {
			require.Equal(t, sseEventStep, ev[0])
			var step models.Step
			require.NoError(t, json.Unmarshal([]byte(ev[1]), &step))
			outputs = append(outputs, step.Output)
		}
		assert.Contains(t, outputs, "echo: a tiny roguelike")

		// The user message and the reply are now part of the thread.
		rec = env.do(t, http.MethodGet, "/api/v1/threads/c1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, decode[models.Thread](t, rec).Steps)
	})

	t.Run("send to another user's thread", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/messages", models.SendMessageRequest{Content: "hi"}, "X-Forwarded-User", "mallory")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("send without content", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/messages", map[string]string{"content": "  "})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		rec = env.do(t, http.MethodPost, "/api/v1/chats/c1/messages", map[string]string{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("stop without active run", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/stop", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[StopChatResponse](t, rec).Stopped)
	})

	t.Run("resume", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/resume", nil, "X-Forwarded-User", "alice")
		assert.Equal(t, http.StatusOK, rec.Code)
		rec = env.do(t, http.MethodPost, "/api/v1/chats/c1/resume", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("end keeps used thread and drops empty one", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats/c1/end", nil, "X-Forwarded-User", "alice")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, decode[DeleteResponse](t, rec).Deleted)

		rec = env.do(t, http.MethodPost, "/api/v1/chats", nil)
		require.Equal(t, http.StatusCreated, rec.Code)
		empty := decode[models.StartChatResponse](t, rec)

		rec = env.do(t, http.MethodPost, "/api/v1/chats/"+empty.ThreadID+"/end", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, decode[DeleteResponse](t, rec).Deleted)
	})

	t.Run("start on another user's thread", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/api/v1/chats", models.StartChatRequest{ThreadID: "c1"}, "X-Forwarded-User", "mallory")
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestWebSocketCatchup(t *testing.T) {
	env := setupServer(t)
	env.seed(t, "alice", "t1", "first", "second")

	srv := httptest.NewServer(env.server.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	read := func() map[string]any {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	}

	assert.Equal(t, "connection.established", read()["type"])
	require.NoError(t, conn.WriteJSON(events.ClientMessage{Action: "subscribe", Channel: events.ThreadChannel("t1")}))
	assert.Equal(t, "subscription.confirmed", read()["type"])

	for i, want := range []string{"first", "second"} {
		msg := read()
		assert.Equal(t, events.EventTypeStepCreated, msg["type"])
		assert.Equal(t, float64(i+1), msg["seq"])
		assert.Equal(t, want, msg["step"].(map[string]any)["output"])
	}
}

func TestExtractUser(t *testing.T) {
	env := setupServer(t)
	tests := []struct {
		name    string
		headers []string
		want    string
	}{
		{"forwarded user wins", []string{"X-Forwarded-User", "u", "X-Forwarded-Email", "e", "X-Remote-User", "r"}, "u"},
		{"email next", []string{"X-Forwarded-Email", "e", "X-Remote-User", "r"}, "e"},
		{"remote user", []string{"X-Remote-User", "r"}, "r"},
		{"default", nil, "default_user"},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			threadID := fmt.Sprintf("user-%d", i)
			rec := env.do(t, http.MethodPost, "/api/v1/chats", models.StartChatRequest{ThreadID: threadID}, tt.headers...)
			require.Equal(t, http.StatusCreated, rec.Code)
			rec = env.do(t, http.MethodGet, "/api/v1/threads/"+threadID+"/author", nil)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.want, decode[ThreadAuthorResponse](t, rec).Author)
		})
	}
}

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", services.NewValidationError("content", "required"), http.StatusBadRequest},
		{"not found", fmt.Errorf("wrap: %w", services.ErrNotFound), http.StatusNotFound},
		{"run in progress", services.ErrRunInProgress, http.StatusConflict},
		{"already exists", services.ErrAlreadyExists, http.StatusConflict},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := mapServiceError(tt.err)
			assert.Equal(t, tt.want, status)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	assert.Nil(t, originChecker(nil))
	assert.True(t, originChecker([]string{"*"})(req("https://evil.example")))

	check := originChecker([]string{"https://ui.example"})
	assert.True(t, check(req("https://ui.example")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("https://evil.example")))
}
