package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	testdb "github.com/codeready-toolchain/design-team/test/database"
)

func TestRunner(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewStore(testdb.NewTestClient(t))
	_, err := store.Create(ctx, sessions.CreateRequest{AppName: "app", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)

	llm := &fakeLLM{responses: []*LLMResponse{textResponse("overview v1")}}
	root := NewLLMAgent(LLMAgentConfig{Name: "planner", OutputKey: "game_overview"})
	runner := NewRunner("app", root, store, llm)

	var seen []*models.Event
	for ev, err := range runner.Run(ctx, "alice", "s1", models.NewTextContent(models.RoleUser, "a space game")) {
		require.NoError(t, err)
		seen = append(seen, ev)
	}
	require.Len(t, seen, 1)
	assert.Equal(t, "planner", seen[0].Author)

	// The model saw the user turn appended by the runner.
	require.Len(t, llm.requests, 1)
	require.Len(t, llm.requests[0].Contents, 1)
	assert.Equal(t, "a space game", llm.requests[0].Contents[0].Text())

	sess, err := store.Get(ctx, sessions.GetRequest{AppName: "app", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)
	require.Len(t, sess.Events, 2)
	assert.Equal(t, models.AuthorUser, sess.Events[0].Author)
	assert.Equal(t, "overview v1", sess.Events[1].Text())
	assert.Equal(t, seen[0].InvocationID, sess.Events[0].InvocationID)
	assert.Equal(t, "overview v1", sess.State["game_overview"])
}

func TestRunnerSessionNotFound(t *testing.T) {
	store := sessions.NewStore(testdb.NewTestClient(t))
	runner := NewRunner("app", emit("a", false), store, &fakeLLM{})

	for _, err := range runner.Run(context.Background(), "alice", "missing", nil) {
		require.ErrorIs(t, err, ErrSessionNotFound)
	}
}

func TestRunnerStopsWhenConsumerStops(t *testing.T) {
	ctx := context.Background()
	store := sessions.NewStore(testdb.NewTestClient(t))
	_, err := store.Create(ctx, sessions.CreateRequest{AppName: "app", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)

	root := NewSequentialAgent("seq", "", emit("a", false), emit("b", false))
	runner := NewRunner("app", root, store, &fakeLLM{})
	for range runner.Run(ctx, "alice", "s1", nil) {
		break
	}

	sess, err := store.Get(ctx, sessions.GetRequest{AppName: "app", UserID: "alice", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, authors(sess.Events))
}
