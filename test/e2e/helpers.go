package e2e

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// SSEEvent is one server-sent event from a chat message stream.
type SSEEvent struct {
	Event string
	Data  string
}

// Step decodes the event's data as a step.
func (e SSEEvent) Step(t *testing.T) models.Step {
	t.Helper()
	var step models.Step
	require.NoError(t, json.Unmarshal([]byte(e.Data), &step))
	return step
}

// do performs a request as user and returns the response. The body is
// closed by the caller.
func (app *TestApp) do(method, path, user string, body any) *http.Response {
	app.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(app.t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, app.BaseURL+path, r)
	require.NoError(app.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-Forwarded-User", user)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(app.t, err)
	return resp
}

// doJSON performs a request, checks the status and decodes the body into out.
func (app *TestApp) doJSON(method, path, user string, body any, wantStatus int, out any) {
	app.t.Helper()
	resp := app.do(method, path, user, body)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(app.t, err)
	require.Equal(app.t, wantStatus, resp.StatusCode, "body: %s", data)
	if out != nil {
		require.NoError(app.t, json.Unmarshal(data, out))
	}
}

// StartChat opens (or reopens) a thread for user.
func (app *TestApp) StartChat(user, threadID string) models.StartChatResponse {
	app.t.Helper()
	var resp models.StartChatResponse
	app.doJSON(http.MethodPost, "/api/v1/chats", user, models.StartChatRequest{ThreadID: threadID}, http.StatusCreated, &resp)
	return resp
}

// SendMessage posts a user turn and reads the whole SSE stream.
func (app *TestApp) SendMessage(user, threadID, text string) []SSEEvent {
	app.t.Helper()
	resp := app.do(http.MethodPost, "/api/v1/chats/"+threadID+"/messages", user, models.SendMessageRequest{Content: text})
	defer func() { _ = resp.Body.Close() }()
	require.Equal(app.t, http.StatusOK, resp.StatusCode)
	require.Contains(app.t, resp.Header.Get("Content-Type"), "text/event-stream")
	return readSSE(app.t, resp.Body)
}

// StopChat asks the server to stop the thread's active run.
func (app *TestApp) StopChat(threadID string) bool {
	app.t.Helper()
	var resp struct {
		Stopped bool `json:"stopped"`
	}
	app.doJSON(http.MethodPost, "/api/v1/chats/"+threadID+"/stop", "", nil, http.StatusOK, &resp)
	return resp.Stopped
}

// GetThread fetches the assembled thread.
func (app *TestApp) GetThread(threadID string) models.Thread {
	app.t.Helper()
	var thread models.Thread
	app.doJSON(http.MethodGet, "/api/v1/threads/"+threadID, "", nil, http.StatusOK, &thread)
	return thread
}

// ListThreads fetches one page of threads.
func (app *TestApp) ListThreads(query string) models.PaginatedThreads {
	app.t.Helper()
	var page models.PaginatedThreads
	app.doJSON(http.MethodGet, "/api/v1/threads"+query, "", nil, http.StatusOK, &page)
	return page
}

func readSSE(t *testing.T, r io.Reader) []SSEEvent {
	t.Helper()
	var (
		out []SSEEvent
		cur SSEEvent
	)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if cur.Event != "" {
				out = append(out, cur)
			}
			cur = SSEEvent{}
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
	require.NoError(t, sc.Err())
	if cur.Event != "" {
		out = append(out, cur)
	}
	return out
}

// stepsOf returns the steps carried by a stream, in order.
func stepsOf(t *testing.T, evs []SSEEvent) []models.Step {
	t.Helper()
	var out []models.Step
	for _, ev := range evs {
		if ev.Event == "step" {
			out = append(out, ev.Step(t))
		}
	}
	return out
}

// names lists step names, skipping the synthetic state steps.
func names(steps []models.Step) []string {
	var out []string
	for _, s := range steps {
		if s.Type == models.StepTypeSystemMessage && s.ParentID != nil {
			continue
		}
		out = append(out, s.Name)
	}
	return out
}
