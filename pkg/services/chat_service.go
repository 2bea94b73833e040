package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/events"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/steps"
)

// Error codes carried by steps the chat service synthesizes.
const (
	ErrorCodeRunFailed = "RUN_FAILED"
	ErrorCodeTimedOut  = "RUN_TIMED_OUT"
)

// ChatRunner runs the agent team for one user turn. Implemented by agent.Runner.
type ChatRunner interface {
	Run(ctx context.Context, userID, sessionID string, msg *models.Content) iter.Seq2[*models.Event, error]
}

// StepPublisher fans chat activity out to WebSocket subscribers.
// Implemented by events.EventPublisher.
type StepPublisher interface {
	PublishStep(threadID string, step models.Step) error
	PublishRunStatus(threadID, status string, runErr error) error
	PublishThreadCreated(threadID, userID string) error
	PublishThreadDeleted(threadID string) error
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	AppName        string
	WelcomeMessage string
	RunTimeout     time.Duration
}

// ChatService drives live conversations: it opens threads, runs the team
// for each user message and streams the resulting steps.
type ChatService struct {
	store     *sessions.Store
	runner    ChatRunner
	publisher StepPublisher
	metrics   *metrics.Metrics
	cfg       ChatConfig
	now       func() time.Time

	mu     sync.Mutex
	active map[string]context.CancelCauseFunc
	runs   sync.WaitGroup
}

// errStopped is the cancellation cause recorded by StopChat.
var errStopped = errors.New("stopped by user")

// NewChatService creates a new ChatService. publisher may be nil.
func NewChatService(store *sessions.Store, runner ChatRunner, publisher StepPublisher, m *metrics.Metrics, cfg ChatConfig) *ChatService {
	return &ChatService{
		store:     store,
		runner:    runner,
		publisher: publisher,
		metrics:   m,
		cfg:       cfg,
		now:       time.Now,
		active:    make(map[string]context.CancelCauseFunc),
	}
}

// StartChat opens a thread for the user and returns the welcome step. An
// empty threadID gets a generated one; an existing thread of the same user
// is reused.
func (s *ChatService) StartChat(ctx context.Context, userID, threadID string) (*models.StartChatResponse, error) {
	if userID == "" {
		return nil, NewValidationError("user", "required")
	}
	if threadID == "" {
		threadID = uuid.NewString()
	}

	_, err := s.store.Get(ctx, sessions.GetRequest{AppName: s.cfg.AppName, UserID: userID, SessionID: threadID})
	switch {
	case err == nil:
		slog.Info("Reusing existing chat session", "thread_id", threadID, "user_id", userID)
	case errors.Is(err, sessions.ErrNotFound):
		if _, err := s.store.Create(ctx, sessions.CreateRequest{AppName: s.cfg.AppName, UserID: userID, SessionID: threadID}); err != nil {
			if errors.Is(err, sessions.ErrAlreadyExists) {
				// Taken by another user.
				return nil, fmt.Errorf("%w: thread %s", ErrAlreadyExists, threadID)
			}
			slog.Error("Failed to create chat session", "thread_id", threadID, "user_id", userID, "error", err)
			return nil, fmt.Errorf("failed to create chat session: %w", err)
		}
		slog.Info("Chat session created", "app_name", s.cfg.AppName, "thread_id", threadID, "user_id", userID)
		s.publish(threadID, func(p StepPublisher) error { return p.PublishThreadCreated(threadID, userID) })
	default:
		slog.Error("Failed to load chat session", "thread_id", threadID, "error", err)
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}

	return &models.StartChatResponse{
		ThreadID: threadID,
		Welcome:  s.systemStep(threadID, models.StepTypeAssistantMessage, s.cfg.WelcomeMessage, false),
	}, nil
}

// SendMessage runs the team on one user message. Each event the team
// produces is normalized into steps as it arrives; every step is passed to
// emit and published on the thread's channel. A failing run ends with an
// error step rather than an error return. Only one run per thread may be
// active at a time.
func (s *ChatService) SendMessage(ctx context.Context, userID, threadID, text string, emit func(models.Step)) error {
	if strings.TrimSpace(text) == "" {
		return NewValidationError("content", "required")
	}
	if threadID == "" {
		return NewValidationError("thread_id", "required")
	}

	runCtx, release, err := s.acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	log := slog.With("thread_id", threadID, "user_id", userID)
	log.Info("Chat run started")
	s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusStarted, nil) })

	started := s.now()
	deliver := func(step models.Step) {
		s.metrics.StepEmitted(string(step.Type))
		if emit != nil {
			emit(step)
		}
		s.publish(threadID, func(p StepPublisher) error { return p.PublishStep(threadID, step) })
	}

	var runErr error
	emitted := 0
	for ev, err := range s.runner.Run(runCtx, userID, threadID, models.NewTextContent(models.RoleUser, text)) {
		if err != nil {
			runErr = err
			break
		}
		stepList, _ := steps.Normalize(threadID, ev)
		for _, step := range stepList {
			deliver(step)
			emitted++
		}
	}
	s.metrics.ChatRun(s.now().Sub(started), runErr)

	if runErr == nil {
		log.Info("Chat run completed", "steps", emitted, "duration", s.now().Sub(started))
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusCompleted, nil) })
		return nil
	}

	if errors.Is(runErr, agent.ErrSessionNotFound) && emitted == 0 {
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusFailed, runErr) })
		return fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}

	switch cause := context.Cause(runCtx); {
	case errors.Is(cause, errStopped):
		log.Info("Chat run stopped by user", "steps", emitted)
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusCancelled, nil) })
		deliver(s.systemStep(threadID, models.StepTypeSystemMessage, "*Task stopped.*", false))
	case errors.Is(cause, context.DeadlineExceeded):
		log.Warn("Chat run timed out", "timeout", s.cfg.RunTimeout)
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusFailed, runErr) })
		deliver(s.errorStep(threadID, ErrorCodeTimedOut, fmt.Sprintf("the design team did not finish within %s", s.cfg.RunTimeout)))
	case ctx.Err() != nil:
		// The caller went away; nobody is left to show a step to.
		log.Info("Chat run abandoned by caller", "steps", emitted)
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusCancelled, nil) })
	default:
		log.Error("Chat run failed", "steps", emitted, "error", runErr)
		s.publish(threadID, func(p StepPublisher) error { return p.PublishRunStatus(threadID, events.RunStatusFailed, runErr) })
		deliver(s.errorStep(threadID, ErrorCodeRunFailed, runErr.Error()))
	}
	return nil
}

// StopChat cancels the thread's active run. It reports whether one was running.
func (s *ChatService) StopChat(threadID string) bool {
	s.mu.Lock()
	cancel, ok := s.active[threadID]
	s.mu.Unlock()
	if ok {
		slog.Info("Stopping chat run", "thread_id", threadID)
		cancel(errStopped)
	}
	return ok
}

// IsRunning reports whether the thread has an active run.
func (s *ChatService) IsRunning(threadID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[threadID]
	return ok
}

// EndChat is called when the user leaves a thread. A session that never
// received an event is deleted. It reports whether the session was deleted.
func (s *ChatService) EndChat(ctx context.Context, userID, threadID string) (bool, error) {
	sess, err := s.store.Get(ctx, sessions.GetRequest{AppName: s.cfg.AppName, UserID: userID, SessionID: threadID})
	if errors.Is(err, sessions.ErrNotFound) {
		slog.Info("No session to end", "thread_id", threadID, "user_id", userID)
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to load chat session", "thread_id", threadID, "error", err)
		return false, fmt.Errorf("failed to load chat session: %w", err)
	}
	if len(sess.Events) > 0 || s.IsRunning(threadID) {
		return false, nil
	}

	err = s.store.Delete(ctx, sessions.DeleteRequest{AppName: s.cfg.AppName, UserID: userID, SessionID: threadID})
	if errors.Is(err, sessions.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		slog.Error("Failed to delete empty session", "thread_id", threadID, "error", err)
		return false, fmt.Errorf("failed to delete empty session: %w", err)
	}
	slog.Info("Empty session deleted", "thread_id", threadID, "user_id", userID)
	s.publish(threadID, func(p StepPublisher) error { return p.PublishThreadDeleted(threadID) })
	return true, nil
}

// ResumeChat verifies that the user's thread exists so it can be continued.
func (s *ChatService) ResumeChat(ctx context.Context, userID, threadID string) error {
	_, err := s.store.Get(ctx, sessions.GetRequest{AppName: s.cfg.AppName, UserID: userID, SessionID: threadID})
	if errors.Is(err, sessions.ErrNotFound) {
		return fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	if err != nil {
		slog.Error("Failed to resume chat session", "thread_id", threadID, "error", err)
		return fmt.Errorf("failed to resume chat session: %w", err)
	}
	slog.Info("Chat session resumed", "thread_id", threadID, "user_id", userID)
	return nil
}

// Shutdown cancels every active run and waits until each has emitted its
// final step, or until ctx is done.
func (s *ChatService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for threadID, cancel := range s.active {
		slog.Info("Cancelling chat run on shutdown", "thread_id", threadID)
		cancel(errStopped)
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for chat runs: %w", ctx.Err())
	}
}

// acquire reserves the thread's run slot.
func (s *ChatService) acquire(ctx context.Context, threadID string) (context.Context, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.active[threadID]; busy {
		return nil, nil, fmt.Errorf("%w: thread %s", ErrRunInProgress, threadID)
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	var stopTimer context.CancelFunc = func() {}
	if s.cfg.RunTimeout > 0 {
		runCtx, stopTimer = context.WithTimeoutCause(runCtx, s.cfg.RunTimeout, context.DeadlineExceeded)
	}
	s.active[threadID] = cancel
	s.runs.Add(1)

	return runCtx, func() {
		stopTimer()
		cancel(nil)
		s.mu.Lock()
		delete(s.active, threadID)
		s.mu.Unlock()
		s.runs.Done()
	}, nil
}

func (s *ChatService) publish(threadID string, fn func(StepPublisher) error) {
	if s.publisher == nil {
		return
	}
	if err := fn(s.publisher); err != nil {
		slog.Warn("Failed to publish chat event", "thread_id", threadID, "error", err)
	}
}

func (s *ChatService) systemStep(threadID string, typ models.StepType, output string, isError bool) models.Step {
	return models.Step{
		ID:        uuid.NewString(),
		ThreadID:  threadID,
		Name:      s.cfg.AppName,
		Type:      typ,
		Output:    output,
		Metadata:  map[string]any{},
		CreatedAt: models.FormatTime(s.now()),
		IsError:   isError,
	}
}

func (s *ChatService) errorStep(threadID, code, message string) models.Step {
	return s.systemStep(threadID, models.StepTypeSystemMessage, fmt.Sprintf("`%s`: %s", code, message), true)
}
