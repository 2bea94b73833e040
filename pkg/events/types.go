// Package events delivers chat steps to browsers over WebSocket.
//
// Clients subscribe to a thread channel ("thread:{id}"). On subscribe the
// manager replays every step assembled from the thread's event log, then
// forwards live steps as the chat service produces them:
//
//	step.created  {thread_id, seq, step}   (replayed and live)
//	run.status    {thread_id, status}      (live only)
//	thread.*      {thread_id, user_id}     (on the "threads" channel)
//
// Catch-up is positional: "seq" is the 1-based index of the step in the
// assembled thread, and a client that reconnects sends the last seq it
// rendered to receive only the remainder.
package events

import "strings"

// Persistent event types (replayable from the event log).
const (
	EventTypeStepCreated = "step.created"
)

// Transient event types (live only, never replayed).
const (
	EventTypeRunStatus     = "run.status"
	EventTypeThreadCreated = "thread.created"
	EventTypeThreadDeleted = "thread.deleted"
)

// Run status values (used in RunStatusPayload.Status).
const (
	RunStatusStarted   = "started"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// GlobalThreadsChannel carries thread list changes. The thread list page
// subscribes to it for real-time updates.
const GlobalThreadsChannel = "threads"

const threadChannelPrefix = "thread:"

// ThreadChannel returns the channel name for a thread's steps.
// Format: "thread:{thread_id}"
func ThreadChannel(threadID string) string {
	return threadChannelPrefix + threadID
}

// ThreadIDFromChannel extracts the thread id from a thread channel name.
func ThreadIDFromChannel(channel string) (string, bool) {
	id, ok := strings.CutPrefix(channel, threadChannelPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action      string `json:"action"`                  // "subscribe", "unsubscribe", "catchup", "ping"
	Channel     string `json:"channel,omitempty"`       // Channel name (e.g., "thread:abc-123")
	LastEventID *int   `json:"last_event_id,omitempty"` // For catchup: last seq the client has
}
