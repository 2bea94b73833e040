package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
)

// SessionService is the part of the session store the runner needs.
type SessionService interface {
	Get(ctx context.Context, req sessions.GetRequest) (*models.Session, error)
	AppendEvent(ctx context.Context, sess *models.Session, ev *models.Event) (*models.Event, error)
}

// Runner drives a root agent against stored sessions.
type Runner struct {
	appName string
	root    Agent
	store   SessionService
	llm     LLM
}

// NewRunner creates a runner for root.
func NewRunner(appName string, root Agent, store SessionService, llm LLM) *Runner {
	return &Runner{appName: appName, root: root, store: store, llm: llm}
}

// AppName returns the application the runner's sessions belong to.
func (r *Runner) AppName() string { return r.appName }

// Root returns the root agent.
func (r *Runner) Root() Agent { return r.root }

// Run appends msg to the session as a user event and runs the root agent.
// Every agent event is persisted before it is yielded, and the agent is
// not resumed until the consumer returns.
func (r *Runner) Run(ctx context.Context, userID, sessionID string, msg *models.Content) iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		sess, err := r.store.Get(ctx, sessions.GetRequest{AppName: r.appName, UserID: userID, SessionID: sessionID})
		if err != nil {
			if errors.Is(err, sessions.ErrNotFound) {
				err = fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
			}
			yield(nil, err)
			return
		}

		ictx := NewInvocationContext(sess, r.llm)
		log := slog.With("session_id", sessionID, "invocation_id", ictx.InvocationID)

		if msg != nil {
			userEv := NewEvent(ictx, models.AuthorUser)
			userEv.Content = msg
			if _, err := r.store.AppendEvent(ctx, sess, userEv); err != nil {
				yield(nil, fmt.Errorf("append user message: %w", err))
				return
			}
		}

		log.Debug("Invocation started", "agent", r.root.Name())
		for ev, err := range r.root.Run(ctx, ictx) {
			if err != nil {
				log.Error("Invocation failed", "error", err)
				yield(nil, err)
				return
			}
			stored, err := r.store.AppendEvent(ctx, sess, ev)
			if err != nil {
				yield(nil, fmt.Errorf("append event: %w", err))
				return
			}
			if !yield(stored, nil) {
				return
			}
		}
		log.Debug("Invocation finished", "events", len(sess.Events))
	}
}
