package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/metrics"
)

// mockCatchupQuerier implements CatchupQuerier for tests.
type mockCatchupQuerier struct {
	events []CatchupEvent
	err    error
}

func (m *mockCatchupQuerier) GetCatchupEvents(_ context.Context, _ string, sinceID int, limit int) ([]CatchupEvent, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []CatchupEvent
	for _, e := range m.events {
		if e.ID > sinceID {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		return out[:limit], nil
	}
	return out, nil
}

func newTestServer(t *testing.T, manager *ConnectionManager) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("WebSocket upgrade error: %v", err)
			return
		}
		manager.HandleConnection(context.Background(), conn)
	}))
	t.Cleanup(server.Close)
	return server
}

func setupTestManager(t *testing.T) (*ConnectionManager, *httptest.Server) {
	t.Helper()
	manager := NewConnectionManager(&mockCatchupQuerier{}, 5*time.Second, nil)
	return manager, newTestServer(t, manager)
}

func connectWS(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func send(t *testing.T, conn *websocket.Conn, msg ClientMessage) {
	t.Helper()
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

// expectSilence asserts nothing arrives for a short while. The connection
// is unusable afterwards.
func expectSilence(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err, "expected no further messages")
}

func subscribe(t *testing.T, manager *ConnectionManager, conn *websocket.Conn, channel string) {
	t.Helper()
	send(t, conn, ClientMessage{Action: "subscribe", Channel: channel})
	msg := readJSON(t, conn)
	require.Equal(t, "subscription.confirmed", msg["type"])
	require.Equal(t, channel, msg["channel"])
	require.Eventually(t, func() bool { return manager.subscriberCount(channel) > 0 },
		time.Second, 10*time.Millisecond)
}

func TestConnectionManager_ConnectionEstablished(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)

	msg := readJSON(t, conn)
	assert.Equal(t, "connection.established", msg["type"])
	assert.NotEmpty(t, msg["connection_id"])
	assert.Equal(t, 1, manager.ActiveConnections())
}

func TestConnectionManager_Broadcast(t *testing.T) {
	manager, server := setupTestManager(t)
	conn1 := connectWS(t, server)
	conn2 := connectWS(t, server)
	readJSON(t, conn1)
	readJSON(t, conn2)

	channel := ThreadChannel("broadcast-test")
	subscribe(t, manager, conn1, channel)
	subscribe(t, manager, conn2, channel)
	assert.Equal(t, 2, manager.subscriberCount(channel))

	payload, _ := json.Marshal(map[string]string{"type": "test", "data": "hello"})
	manager.Broadcast(channel, payload)

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		msg := readJSON(t, conn)
		assert.Equal(t, "test", msg["type"])
		assert.Equal(t, "hello", msg["data"])
	}
}

func TestConnectionManager_PingPong(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	send(t, conn, ClientMessage{Action: "ping"})
	msg := readJSON(t, conn)
	assert.Equal(t, "pong", msg["type"])
}

func TestConnectionManager_MissingChannel(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	for _, action := range []string{"subscribe", "unsubscribe", "catchup"} {
		send(t, conn, ClientMessage{Action: action})
		msg := readJSON(t, conn)
		assert.Equal(t, "error", msg["type"], action)
		assert.Contains(t, msg["message"], action)
	}
}

func TestConnectionManager_InvalidMessageKeepsConnection(t *testing.T) {
	_, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	send(t, conn, ClientMessage{Action: "ping"})
	assert.Equal(t, "pong", readJSON(t, conn)["type"])
}

func TestConnectionManager_AutoCatchupOnSubscribe(t *testing.T) {
	querier := &mockCatchupQuerier{events: []CatchupEvent{
		{ID: 1, Payload: map[string]any{"type": EventTypeStepCreated, "seq": 1}},
		{ID: 2, Payload: map[string]any{"type": EventTypeStepCreated, "seq": 2}},
	}}
	manager := NewConnectionManager(querier, 5*time.Second, nil)
	server := newTestServer(t, manager)
	conn := connectWS(t, server)
	readJSON(t, conn)

	subscribe(t, manager, conn, ThreadChannel("t1"))
	assert.Equal(t, float64(1), readJSON(t, conn)["seq"])
	assert.Equal(t, float64(2), readJSON(t, conn)["seq"])
	expectSilence(t, conn)
}

func TestConnectionManager_CatchupSince(t *testing.T) {
	querier := &mockCatchupQuerier{}
	for i := 1; i <= 3; i++ {
		querier.events = append(querier.events, CatchupEvent{ID: i, Payload: map[string]any{"seq": i}})
	}
	manager := NewConnectionManager(querier, 5*time.Second, nil)
	server := newTestServer(t, manager)
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := ThreadChannel("t1")
	subscribe(t, manager, conn, channel)
	for i := 1; i <= 3; i++ {
		readJSON(t, conn)
	}

	last := 2
	send(t, conn, ClientMessage{Action: "catchup", Channel: channel, LastEventID: &last})
	assert.Equal(t, float64(3), readJSON(t, conn)["seq"])
	expectSilence(t, conn)
}

func TestConnectionManager_CatchupOverflow(t *testing.T) {
	many := make([]CatchupEvent, catchupLimit+5)
	for i := range many {
		many[i] = CatchupEvent{ID: i + 1, Payload: map[string]any{"type": "test", "seq": i + 1}}
	}
	manager := NewConnectionManager(&mockCatchupQuerier{events: many}, 5*time.Second, nil)
	server := newTestServer(t, manager)
	conn := connectWS(t, server)
	readJSON(t, conn)

	send(t, conn, ClientMessage{Action: "subscribe", Channel: "thread:overflow"})
	readJSON(t, conn) // subscription.confirmed

	for i := 0; i < catchupLimit; i++ {
		msg := readJSON(t, conn)
		require.Equal(t, "test", msg["type"])
	}
	msg := readJSON(t, conn)
	assert.Equal(t, "catchup.overflow", msg["type"])
	assert.Equal(t, true, msg["has_more"])
}

func TestConnectionManager_CatchupError(t *testing.T) {
	manager := NewConnectionManager(&mockCatchupQuerier{err: fmt.Errorf("database unreachable")}, 5*time.Second, nil)
	server := newTestServer(t, manager)
	conn := connectWS(t, server)
	readJSON(t, conn)

	subscribe(t, manager, conn, ThreadChannel("t1"))

	// Connection stays usable.
	send(t, conn, ClientMessage{Action: "ping"})
	assert.Equal(t, "pong", readJSON(t, conn)["type"])
}

func TestConnectionManager_ConcurrentBroadcast(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := ThreadChannel("concurrent")
	subscribe(t, manager, conn, channel)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			payload, _ := json.Marshal(map[string]any{"type": "concurrent", "idx": idx})
			manager.Broadcast(channel, payload)
		}(i)
	}
	wg.Wait()

	seen := map[float64]bool{}
	for i := 0; i < 20; i++ {
		msg := readJSON(t, conn)
		seen[msg["idx"].(float64)] = true
	}
	assert.Len(t, seen, 20)
}

func TestConnectionManager_BroadcastToNonExistentChannel(t *testing.T) {
	manager, _ := setupTestManager(t)
	payload, _ := json.Marshal(map[string]string{"type": "test"})
	manager.Broadcast("nonexistent-channel", payload)
}

func TestConnectionManager_MultipleChannels(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	subscribe(t, manager, conn, "thread:ch1")
	subscribe(t, manager, conn, "thread:ch2")

	payload, _ := json.Marshal(map[string]string{"type": "test", "channel": "ch1"})
	manager.Broadcast("thread:ch1", payload)
	assert.Equal(t, "ch1", readJSON(t, conn)["channel"])

	payload, _ = json.Marshal(map[string]string{"type": "test", "channel": "ch2"})
	manager.Broadcast("thread:ch2", payload)
	assert.Equal(t, "ch2", readJSON(t, conn)["channel"])
}

func TestConnectionManager_Unsubscribe(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := ThreadChannel("unsub")
	subscribe(t, manager, conn, channel)

	send(t, conn, ClientMessage{Action: "unsubscribe", Channel: channel})
	require.Eventually(t, func() bool { return manager.subscriberCount(channel) == 0 },
		time.Second, 10*time.Millisecond)

	payload, _ := json.Marshal(map[string]string{"type": "should-not-receive"})
	manager.Broadcast(channel, payload)
	expectSilence(t, conn)
}

func TestConnectionManager_DisconnectCleansUp(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.MustNew(reg)
	manager := NewConnectionManager(&mockCatchupQuerier{}, 5*time.Second, m)
	server := newTestServer(t, manager)
	conn := connectWS(t, server)
	readJSON(t, conn)

	channel := ThreadChannel("gone")
	subscribe(t, manager, conn, channel)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		return manager.ActiveConnections() == 0 && manager.subscriberCount(channel) == 0
	}, 2*time.Second, 10*time.Millisecond)
	expected := `
# HELP design_team_websocket_connections Currently open WebSocket connections.
# TYPE design_team_websocket_connections gauge
design_team_websocket_connections 0
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "design_team_websocket_connections"))
}

func TestConnectionManager_CloseAll(t *testing.T) {
	manager, server := setupTestManager(t)
	conn := connectWS(t, server)
	readJSON(t, conn)

	manager.CloseAll()
	require.Eventually(t, func() bool { return manager.ActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}
