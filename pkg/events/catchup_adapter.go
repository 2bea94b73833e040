package events

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// ThreadReader loads an assembled thread. Implemented by services.ThreadService.
type ThreadReader interface {
	GetThread(ctx context.Context, threadID string) (*models.Thread, error)
}

// ThreadCatchupAdapter replays a thread's steps from the event log.
type ThreadCatchupAdapter struct {
	threads ThreadReader
}

// NewThreadCatchupAdapter creates a CatchupQuerier from a ThreadReader.
func NewThreadCatchupAdapter(threads ThreadReader) *ThreadCatchupAdapter {
	return &ThreadCatchupAdapter{threads: threads}
}

// GetCatchupEvents returns the steps after position sinceID, up to limit.
// Channels that are not thread channels have no history.
func (a *ThreadCatchupAdapter) GetCatchupEvents(ctx context.Context, channel string, sinceID, limit int) ([]CatchupEvent, error) {
	threadID, ok := ThreadIDFromChannel(channel)
	if !ok {
		return nil, nil
	}

	thread, err := a.threads.GetThread(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to load thread %s: %w", threadID, err)
	}

	if sinceID < 0 {
		sinceID = 0
	}
	if sinceID >= len(thread.Steps) {
		return nil, nil
	}
	remaining := thread.Steps[sinceID:]
	if limit > 0 && len(remaining) > limit {
		remaining = remaining[:limit]
	}

	result := make([]CatchupEvent, len(remaining))
	for i, step := range remaining {
		seq := sinceID + i + 1
		result[i] = CatchupEvent{
			ID: seq,
			Payload: StepCreatedPayload{
				Type:     EventTypeStepCreated,
				ThreadID: threadID,
				Seq:      seq,
				Step:     step,
			},
		}
	}
	return result, nil
}
