// Package agent provides the runtime the design team runs on.
// Agents produce events; the Runner persists each event before the agent
// resumes, so agents always see an up-to-date session.
package agent

import (
	"context"
	"iter"
	"maps"
	"strings"
	"time"

	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/google/uuid"
)

// Agent defines the interface for all agents in a team.
type Agent interface {
	Name() string
	Description() string
	SubAgents() []Agent

	// Run executes the agent and yields its events in order. The consumer
	// applies each event to the session before pulling the next one.
	// A non-nil error ends the run.
	Run(ctx context.Context, ictx *InvocationContext) iter.Seq2[*models.Event, error]
}

// DefaultMaxLLMCalls bounds model calls in a single invocation.
const DefaultMaxLLMCalls = 500

// InvocationContext carries the state of one runner invocation.
type InvocationContext struct {
	InvocationID string
	Session      *models.Session
	LLM          LLM
	MaxLLMCalls  int

	llmCalls int
}

// NewInvocationContext creates a context with a fresh invocation id.
func NewInvocationContext(sess *models.Session, llm LLM) *InvocationContext {
	return &InvocationContext{
		InvocationID: "e-" + uuid.New().String(),
		Session:      sess,
		LLM:          llm,
		MaxLLMCalls:  DefaultMaxLLMCalls,
	}
}

// State returns the current session state. Never nil.
func (c *InvocationContext) State() map[string]any {
	if c.Session.State == nil {
		c.Session.State = map[string]any{}
	}
	return c.Session.State
}

func (c *InvocationContext) countLLMCall() error {
	c.llmCalls++
	if c.MaxLLMCalls > 0 && c.llmCalls > c.MaxLLMCalls {
		return ErrMaxLLMCalls
	}
	return nil
}

// NewEvent returns an event authored by author within the invocation.
func NewEvent(ictx *InvocationContext, author string) *models.Event {
	return &models.Event{
		ID:           uuid.New().String(),
		InvocationID: ictx.InvocationID,
		Author:       author,
		Timestamp:    time.Now().UTC(),
	}
}

// ApplyEvent appends ev to an in-memory session and applies its state delta.
// Keys with the temp: prefix live only in memory for the invocation.
func ApplyEvent(sess *models.Session, ev *models.Event) {
	sess.Events = append(sess.Events, ev)
	if !ev.HasStateDelta() {
		return
	}
	if sess.State == nil {
		sess.State = map[string]any{}
	}
	maps.Copy(sess.State, ev.Actions.StateDelta)
}

func stripTempKeys(delta map[string]any) map[string]any {
	out := make(map[string]any, len(delta))
	for k, v := range delta {
		if !strings.HasPrefix(k, "temp:") {
			out[k] = v
		}
	}
	return out
}

func errorEvent(ictx *InvocationContext, author, code, msg string) *models.Event {
	ev := NewEvent(ictx, author)
	ev.ErrorCode = code
	ev.ErrorMessage = msg
	return ev
}
