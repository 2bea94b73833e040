package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// Broadcaster delivers a payload to a channel's subscribers.
// Implemented by ConnectionManager.
type Broadcaster interface {
	Broadcast(channel string, event []byte)
}

// EventPublisher publishes chat activity for WebSocket delivery.
//
// Each public method accepts typed data; payloads are marshaled to JSON
// and routed to the channel derived from the thread id. Steps are not
// persisted here: they are projections of the event log, which is what
// catch-up replays.
type EventPublisher struct {
	broadcaster Broadcaster
	now         func() time.Time
}

// NewEventPublisher creates a new EventPublisher.
func NewEventPublisher(b Broadcaster) *EventPublisher {
	return &EventPublisher{broadcaster: b, now: time.Now}
}

// PublishStep broadcasts a step.created event on the thread's channel.
func (p *EventPublisher) PublishStep(threadID string, step models.Step) error {
	return p.publish(ThreadChannel(threadID), StepCreatedPayload{
		Type:     EventTypeStepCreated,
		ThreadID: threadID,
		Step:     step,
	})
}

// PublishRunStatus broadcasts a run.status event on the thread's channel.
func (p *EventPublisher) PublishRunStatus(threadID, status string, runErr error) error {
	payload := RunStatusPayload{
		Type:      EventTypeRunStatus,
		ThreadID:  threadID,
		Status:    status,
		Timestamp: models.FormatTime(p.now()),
	}
	if runErr != nil {
		payload.Error = runErr.Error()
	}
	return p.publish(ThreadChannel(threadID), payload)
}

// PublishThreadCreated announces a new thread on the global channel.
func (p *EventPublisher) PublishThreadCreated(threadID, userID string) error {
	return p.publish(GlobalThreadsChannel, ThreadPayload{
		Type:     EventTypeThreadCreated,
		ThreadID: threadID,
		UserID:   userID,
	})
}

// PublishThreadDeleted announces a removed thread on the global channel.
func (p *EventPublisher) PublishThreadDeleted(threadID string) error {
	return p.publish(GlobalThreadsChannel, ThreadPayload{
		Type:     EventTypeThreadDeleted,
		ThreadID: threadID,
	})
}

func (p *EventPublisher) publish(channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %T: %w", payload, err)
	}
	p.broadcaster.Broadcast(channel, data)
	return nil
}
