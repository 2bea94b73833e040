package e2e

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WSEvent represents a received WebSocket event.
type WSEvent struct {
	Type     string          `json:"type"`
	Raw      json.RawMessage // Original JSON
	Parsed   map[string]any  // Parsed for assertions
	Received time.Time       // When we received it
}

// WSClient connects to the WebSocket endpoint and collects events.
type WSClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	events  []WSEvent
	mu      sync.Mutex
	doneCh  chan struct{}
}

// WSConnect establishes a WebSocket connection to the test server and starts
// collecting events in a background goroutine.
func WSConnect(wsURL string) (*WSClient, error) {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("WebSocket dial: %w", err)
	}

	c := &WSClient{
		conn:   conn,
		doneCh: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe sends a subscribe action for the given channel.
func (c *WSClient) Subscribe(channel string) error {
	return c.send(map[string]any{"action": "subscribe", "channel": channel})
}

// Catchup requests the channel's steps after lastEventID.
func (c *WSClient) Catchup(channel string, lastEventID int) error {
	return c.send(map[string]any{"action": "catchup", "channel": channel, "last_event_id": lastEventID})
}

func (c *WSClient) send(msg map[string]any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(msg)
}

// WaitForEvent waits until an event matching the predicate is received, or timeout.
func (c *WSClient) WaitForEvent(predicate func(WSEvent) bool, timeout time.Duration) (*WSEvent, error) {
	deadline := time.After(timeout)
	tick := time.NewTicker(25 * time.Millisecond)
	defer tick.Stop()

	for {
		select {
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for event (collected %d events)", len(c.Events()))
		case <-tick.C:
			for _, e := range c.Events() {
				if predicate(e) {
					return &e, nil
				}
			}
		}
	}
}

// WaitForEventType waits for an event with the given type.
func (c *WSClient) WaitForEventType(eventType string, timeout time.Duration) (*WSEvent, error) {
	return c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == eventType
	}, timeout)
}

// WaitForRunStatus waits for a run.status event with the given status.
func (c *WSClient) WaitForRunStatus(status string, timeout time.Duration) (*WSEvent, error) {
	return c.WaitForEvent(func(e WSEvent) bool {
		return e.Type == "run.status" && e.Parsed["status"] == status
	}, timeout)
}

// Events returns a snapshot of all collected events.
func (c *WSClient) Events() []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	result := make([]WSEvent, len(c.events))
	copy(result, c.events)
	return result
}

// EventsByType returns events filtered by type.
func (c *WSClient) EventsByType(eventType string) []WSEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	var result []WSEvent
	for _, e := range c.events {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result
}

// Close closes the WebSocket connection and waits for the read loop to exit.
func (c *WSClient) Close() error {
	err := c.conn.Close()
	<-c.doneCh
	return err
}

// readLoop reads messages from the WebSocket and appends them to the events slice.
func (c *WSClient) readLoop() {
	defer close(c.doneCh)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return // Connection closed.
		}

		var parsed map[string]any
		if err := json.Unmarshal(data, &parsed); err != nil {
			continue // Skip malformed messages.
		}

		evt := WSEvent{
			Raw:      json.RawMessage(data),
			Parsed:   parsed,
			Received: time.Now(),
		}
		if t, ok := parsed["type"].(string); ok {
			evt.Type = t
		}

		c.mu.Lock()
		c.events = append(c.events, evt)
		c.mu.Unlock()
	}
}
