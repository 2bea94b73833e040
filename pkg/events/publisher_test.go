package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	channels []string
	payloads []map[string]any
}

func (r *recordingBroadcaster) Broadcast(channel string, event []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var m map[string]any
	_ = json.Unmarshal(event, &m)
	r.channels = append(r.channels, channel)
	r.payloads = append(r.payloads, m)
}

func TestEventPublisher_PublishStep(t *testing.T) {
	rec := &recordingBroadcaster{}
	p := NewEventPublisher(rec)

	require.NoError(t, p.PublishStep("t1", models.Step{ID: "e1", ThreadID: "t1", Type: models.StepTypeAssistantMessage, Output: "hi"}))

	require.Len(t, rec.payloads, 1)
	assert.Equal(t, "thread:t1", rec.channels[0])
	assert.Equal(t, EventTypeStepCreated, rec.payloads[0]["type"])
	assert.Equal(t, "t1", rec.payloads[0]["thread_id"])
	assert.NotContains(t, rec.payloads[0], "seq")
	step := rec.payloads[0]["step"].(map[string]any)
	assert.Equal(t, "e1", step["id"])
	assert.Equal(t, "hi", step["output"])
}

func TestEventPublisher_PublishRunStatus(t *testing.T) {
	rec := &recordingBroadcaster{}
	p := NewEventPublisher(rec)
	p.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }

	require.NoError(t, p.PublishRunStatus("t1", RunStatusStarted, nil))
	require.NoError(t, p.PublishRunStatus("t1", RunStatusFailed, errors.New("boom")))

	require.Len(t, rec.payloads, 2)
	assert.Equal(t, RunStatusStarted, rec.payloads[0]["status"])
	assert.NotContains(t, rec.payloads[0], "error")
	assert.Equal(t, "2025-01-02T03:04:05.000000Z", rec.payloads[0]["timestamp"])
	assert.Equal(t, RunStatusFailed, rec.payloads[1]["status"])
	assert.Equal(t, "boom", rec.payloads[1]["error"])
}

func TestEventPublisher_ThreadLifecycle(t *testing.T) {
	rec := &recordingBroadcaster{}
	p := NewEventPublisher(rec)

	require.NoError(t, p.PublishThreadCreated("t1", "alice"))
	require.NoError(t, p.PublishThreadDeleted("t1"))

	assert.Equal(t, []string{GlobalThreadsChannel, GlobalThreadsChannel}, rec.channels)
	assert.Equal(t, EventTypeThreadCreated, rec.payloads[0]["type"])
	assert.Equal(t, "alice", rec.payloads[0]["user_id"])
	assert.Equal(t, EventTypeThreadDeleted, rec.payloads[1]["type"])
}
