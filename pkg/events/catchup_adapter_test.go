package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

type fakeThreadReader struct {
	thread *models.Thread
	err    error
	asked  []string
}

func (f *fakeThreadReader) GetThread(_ context.Context, threadID string) (*models.Thread, error) {
	f.asked = append(f.asked, threadID)
	return f.thread, f.err
}

func threadWithSteps(n int) *models.Thread {
	th := &models.Thread{ID: "t1"}
	for i := 0; i < n; i++ {
		th.Steps = append(th.Steps, models.Step{ID: string(rune('a' + i)), ThreadID: "t1"})
	}
	return th
}

func TestThreadCatchupAdapter(t *testing.T) {
	tests := []struct {
		name    string
		since   int
		limit   int
		wantIDs []string
		wantSeq []int
	}{
		{name: "from start", since: 0, limit: 10, wantIDs: []string{"a", "b", "c"}, wantSeq: []int{1, 2, 3}},
		{name: "after position", since: 2, limit: 10, wantIDs: []string{"c"}, wantSeq: []int{3}},
		{name: "limited", since: 0, limit: 2, wantIDs: []string{"a", "b"}, wantSeq: []int{1, 2}},
		{name: "negative since", since: -4, limit: 1, wantIDs: []string{"a"}, wantSeq: []int{1}},
		{name: "past end", since: 3, limit: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reader := &fakeThreadReader{thread: threadWithSteps(3)}
			adapter := NewThreadCatchupAdapter(reader)

			events, err := adapter.GetCatchupEvents(context.Background(), ThreadChannel("t1"), tt.since, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, []string{"t1"}, reader.asked)

			var ids []string
			var seqs []int
			for _, e := range events {
				p := e.Payload.(StepCreatedPayload)
				assert.Equal(t, EventTypeStepCreated, p.Type)
				assert.Equal(t, e.ID, p.Seq)
				ids = append(ids, p.Step.ID)
				seqs = append(seqs, e.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
			assert.Equal(t, tt.wantSeq, seqs)
		})
	}
}

func TestThreadCatchupAdapter_NonThreadChannel(t *testing.T) {
	reader := &fakeThreadReader{}
	adapter := NewThreadCatchupAdapter(reader)

	events, err := adapter.GetCatchupEvents(context.Background(), GlobalThreadsChannel, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Empty(t, reader.asked)
}

func TestThreadCatchupAdapter_Error(t *testing.T) {
	boom := errors.New("boom")
	adapter := NewThreadCatchupAdapter(&fakeThreadReader{err: boom})

	_, err := adapter.GetCatchupEvents(context.Background(), ThreadChannel("t1"), 0, 10)
	assert.ErrorIs(t, err, boom)
}

func TestThreadIDFromChannel(t *testing.T) {
	id, ok := ThreadIDFromChannel("thread:abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", id)

	_, ok = ThreadIDFromChannel("thread:")
	assert.False(t, ok)
	_, ok = ThreadIDFromChannel("threads")
	assert.False(t, ok)
}
