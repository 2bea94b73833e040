package services

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/sessions"
	"github.com/codeready-toolchain/design-team/pkg/steps"
)

// DefaultPageSize is used when a listing asks for a non-positive page size.
const DefaultPageSize = 20

// ThreadUpdate carries the fields a UI may try to change on a thread.
type ThreadUpdate struct {
	Name     *string        `json:"name,omitempty"`
	UserID   *string        `json:"userId,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Tags     []string       `json:"tags,omitempty"`
}

// ThreadService serves the chat UI's thread data layer from the session
// store. Threads are sessions, steps are derived from events, and every
// step, element and feedback mutation is accepted without being stored.
type ThreadService struct {
	client  *database.Client
	store   *sessions.Store
	appName string
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewThreadService creates a new ThreadService
func NewThreadService(client *database.Client, store *sessions.Store, appName string, m *metrics.Metrics) *ThreadService {
	return &ThreadService{
		client:  client,
		store:   store,
		appName: appName,
		metrics: m,
		now:     time.Now,
	}
}

// ListThreads returns one page of threads, newest first.
func (s *ThreadService) ListThreads(ctx context.Context, page models.Pagination, filter models.ThreadFilter) (*models.PaginatedThreads, error) {
	result, err := s.listThreads(ctx, page, filter)
	s.metrics.ThreadQuery("list", err)
	if err != nil {
		slog.Error("Failed to list threads",
			"search", filter.Search, "user_id", filter.UserID, "cursor", page.Cursor, "error", err)
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	return result, nil
}

func (s *ThreadService) listThreads(ctx context.Context, page models.Pagination, filter models.ThreadFilter) (*models.PaginatedThreads, error) {
	first := page.First
	if first <= 0 {
		first = DefaultPageSize
	}

	b := s.client.SQL()
	sel := b.Select("id", "create_time", "user_id", "state").
		From(b.Table("sessions")).
		Where(entsql.EQ("app_name", s.appName)).
		OrderBy(entsql.Desc("create_time"), entsql.Desc("id")).
		Limit(first + 1)
	if filter.Search != "" {
		sel.Where(entsql.ContainsFold("id", filter.Search))
	}
	if filter.UserID != "" {
		sel.Where(entsql.EQ("user_id", filter.UserID))
	}
	if page.Cursor != "" {
		cursorTime, ok, err := s.createTime(ctx, page.Cursor)
		if err != nil {
			return nil, err
		}
		if !ok {
			return emptyPage(), nil
		}
		// Rows sharing the cursor's timestamp continue in id order.
		sel.Where(entsql.Or(
			entsql.LT("create_time", cursorTime),
			entsql.And(
				entsql.EQ("create_time", cursorTime),
				entsql.LT("id", page.Cursor),
			),
		))
	}
	query, args := sel.Query()

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	threads := make([]models.Thread, 0, first+1)
	for rows.Next() {
		var (
			id, userID string
			created    any
			state      stdsql.NullString
		)
		if err := rows.Scan(&id, &created, &userID, &state); err != nil {
			return nil, err
		}
		createdAt, err := sessions.ParseTime(created)
		if err != nil {
			return nil, fmt.Errorf("thread %s: %w", id, err)
		}
		threads = append(threads, models.Thread{
			ID:             id,
			CreatedAt:      models.FormatTime(createdAt),
			Name:           id,
			UserID:         userID,
			UserIdentifier: userID,
			Metadata:       sessions.DecodeState(state.String),
			Steps:          []models.Step{},
			Elements:       []models.Element{},
			Tags:           []string{},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hasNext := len(threads) > first
	if hasNext {
		threads = threads[:first]
	}
	result := &models.PaginatedThreads{
		PageInfo: models.PageInfo{HasNextPage: hasNext},
		Data:     threads,
	}
	if len(threads) > 0 {
		start, end := threads[0].ID, threads[len(threads)-1].ID
		result.PageInfo.StartCursor = &start
		result.PageInfo.EndCursor = &end
	}
	return result, nil
}

func emptyPage() *models.PaginatedThreads {
	return &models.PaginatedThreads{Data: []models.Thread{}}
}

// GetThread returns a thread with the steps assembled from its events.
func (s *ThreadService) GetThread(ctx context.Context, threadID string) (*models.Thread, error) {
	thread, err := s.getThread(ctx, threadID)
	s.metrics.ThreadQuery("get", err)
	return thread, err
}

func (s *ThreadService) getThread(ctx context.Context, threadID string) (*models.Thread, error) {
	userID, err := s.GetThreadAuthor(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: thread %s has no owner", ErrNotFound, threadID)
	}

	sess, err := s.store.Get(ctx, sessions.GetRequest{AppName: s.appName, UserID: userID, SessionID: threadID})
	if err != nil {
		if errors.Is(err, sessions.ErrNotFound) {
			return nil, fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
		}
		slog.Error("Failed to load thread", "thread_id", threadID, "error", err)
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	stepList, elements := steps.Assemble(sess)
	return &models.Thread{
		ID:             sess.ID,
		CreatedAt:      models.FormatTime(sess.CreateTime),
		Name:           sess.ID,
		UserID:         sess.UserID,
		UserIdentifier: sess.UserID,
		Metadata:       map[string]any{},
		Steps:          stepList,
		Elements:       elements,
		Tags:           []string{},
	}, nil
}

// GetThreadAuthor returns the id of the user owning the thread.
func (s *ThreadService) GetThreadAuthor(ctx context.Context, threadID string) (string, error) {
	b := s.client.SQL()
	query, args := b.Select("user_id").
		From(b.Table("sessions")).
		Where(entsql.And(entsql.EQ("id", threadID), entsql.EQ("app_name", s.appName))).
		Query()

	var userID string
	err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&userID)
	if errors.Is(err, stdsql.ErrNoRows) {
		return "", fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	if err != nil {
		slog.Error("Failed to look up thread author", "thread_id", threadID, "error", err)
		return "", fmt.Errorf("failed to look up thread author: %w", err)
	}
	return userID, nil
}

// DeleteThread removes the thread's events and session. It is not atomic
// with the author lookup: a thread deleted concurrently yields ErrNotFound.
func (s *ThreadService) DeleteThread(ctx context.Context, threadID string) error {
	err := s.deleteThread(ctx, threadID)
	s.metrics.ThreadQuery("delete", err)
	return err
}

func (s *ThreadService) deleteThread(ctx context.Context, threadID string) error {
	userID, err := s.GetThreadAuthor(ctx, threadID)
	if err != nil {
		return err
	}

	err = s.store.Delete(ctx, sessions.DeleteRequest{AppName: s.appName, UserID: userID, SessionID: threadID})
	if errors.Is(err, sessions.ErrNotFound) {
		return fmt.Errorf("%w: thread %s", ErrNotFound, threadID)
	}
	if err != nil {
		slog.Error("Failed to delete thread", "thread_id", threadID, "error", err)
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	slog.Info("Thread deleted", "thread_id", threadID, "user_id", userID)
	return nil
}

// GetUser derives a user from the earliest session it owns. It returns
// nil when the user has no sessions.
func (s *ThreadService) GetUser(ctx context.Context, identifier string) (*models.PersistedUser, error) {
	b := s.client.SQL()
	query, args := b.Select("user_id", entsql.Min("create_time")).
		From(b.Table("sessions")).
		Where(entsql.And(entsql.EQ("user_id", identifier), entsql.EQ("app_name", s.appName))).
		GroupBy("user_id").
		Query()

	var (
		userID  string
		created any
	)
	err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&userID, &created)
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, nil
	}
	if err == nil {
		var createdAt time.Time
		if createdAt, err = sessions.ParseTime(created); err == nil {
			return &models.PersistedUser{
				ID:         userID,
				Identifier: userID,
				CreatedAt:  models.FormatTime(createdAt),
				Metadata:   map[string]any{},
			}, nil
		}
	}
	slog.Error("Failed to look up user", "identifier", identifier, "error", err)
	return nil, fmt.Errorf("failed to look up user: %w", err)
}

// createTime resolves a cursor thread id to its creation time.
func (s *ThreadService) createTime(ctx context.Context, threadID string) (time.Time, bool, error) {
	b := s.client.SQL()
	query, args := b.Select("create_time").
		From(b.Table("sessions")).
		Where(entsql.And(
			entsql.EQ("id", threadID),
			entsql.EQ("app_name", s.appName),
		)).
		Query()

	var created any
	err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&created)
	if errors.Is(err, stdsql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := sessions.ParseTime(created)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// CreateUser echoes a user with a fresh id. Users are derived from
// sessions, so nothing is stored.
func (s *ThreadService) CreateUser(_ context.Context, user models.User) (*models.PersistedUser, error) {
	metadata := user.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &models.PersistedUser{
		ID:         uuid.NewString(),
		Identifier: user.Identifier,
		CreatedAt:  models.FormatTime(s.now()),
		Metadata:   metadata,
	}, nil
}

// UpsertFeedback accepts feedback without storing it and returns its id.
func (s *ThreadService) UpsertFeedback(_ context.Context, feedback models.Feedback) (string, error) {
	if feedback.ID != "" {
		return feedback.ID, nil
	}
	return uuid.NewString(), nil
}

// DeleteFeedback always succeeds.
func (s *ThreadService) DeleteFeedback(_ context.Context, _ string) (bool, error) {
	return true, nil
}

// CreateElement is a no-op.
func (s *ThreadService) CreateElement(_ context.Context, _ models.Element) error {
	return nil
}

// GetElement always reports no element.
func (s *ThreadService) GetElement(_ context.Context, _, _ string) (*models.Element, error) {
	return nil, nil
}

// DeleteElement is a no-op.
func (s *ThreadService) DeleteElement(_ context.Context, _, _ string) error {
	return nil
}

// CreateStep is a no-op; steps are derived from events.
func (s *ThreadService) CreateStep(_ context.Context, _ models.Step) error {
	return nil
}

// UpdateStep is a no-op.
func (s *ThreadService) UpdateStep(_ context.Context, _ models.Step) error {
	return nil
}

// DeleteStep is a no-op.
func (s *ThreadService) DeleteStep(_ context.Context, _ string) error {
	return nil
}

// UpdateThread is a no-op.
func (s *ThreadService) UpdateThread(_ context.Context, _ string, _ ThreadUpdate) error {
	return nil
}

// BuildDebugURL returns no URL; there is no tracing backend.
func (s *ThreadService) BuildDebugURL() string {
	return ""
}
