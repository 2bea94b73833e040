// Package sessions persists agent sessions and their append-only event logs.
//
// The Store is keyed by (app, user, session) and works against either
// PostgreSQL or SQLite; queries are built with ent's dialect-aware SQL
// builder so the same code serves both.
package sessions

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/design-team/pkg/database"
	"github.com/codeready-toolchain/design-team/pkg/models"
)

var (
	// ErrNotFound is returned when a session does not exist
	ErrNotFound = errors.New("session not found")

	// ErrAlreadyExists is returned when creating a session with a taken id
	ErrAlreadyExists = errors.New("session already exists")
)

// State key prefixes.
const (
	// TempPrefix marks keys that live only for the current invocation.
	TempPrefix = "temp:"
	// UserPrefix marks keys shared by all sessions of a user.
	UserPrefix = "user:"
)

const (
	tableSessions   = "sessions"
	tableEvents     = "events"
	tableUserStates = "user_states"
)

var sessionColumns = []string{"id", "app_name", "user_id", "state", "create_time", "update_time"}

var eventColumns = []string{
	"id", "invocation_id", "author", "timestamp", "content", "actions",
	"error_code", "error_message", "custom_metadata",
}

// CreateRequest creates a session. An empty SessionID gets a generated one.
type CreateRequest struct {
	AppName   string
	UserID    string
	SessionID string
	State     map[string]any
}

// GetRequest identifies one session.
type GetRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// ListRequest lists the sessions of an app, optionally for a single user.
type ListRequest struct {
	AppName string
	UserID  string
}

// DeleteRequest identifies the session to delete.
type DeleteRequest struct {
	AppName   string
	UserID    string
	SessionID string
}

// Store is the relational session service.
type Store struct {
	client *database.Client
	now    func() time.Time
}

// NewStore creates a Store on top of a database client.
func NewStore(client *database.Client) *Store {
	return &Store{
		client: client,
		now:    func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
}

// Create inserts a new session.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*models.Session, error) {
	if req.AppName == "" || req.UserID == "" {
		return nil, fmt.Errorf("app name and user id are required")
	}
	id := req.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	state := make(map[string]any)
	userDelta := make(map[string]any)
	for k, v := range req.State {
		switch {
		case strings.HasPrefix(k, TempPrefix):
		case strings.HasPrefix(k, UserPrefix):
			userDelta[k] = v
		default:
			state[k] = v
		}
	}
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}

	now := s.now()
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	exists, err := s.exists(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
	}

	query, args := s.client.SQL().Insert(tableSessions).
		Columns(sessionColumns...).
		Values(id, req.AppName, req.UserID, string(stateJSON), now, now).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	userState, err := s.applyUserDelta(ctx, tx, req.AppName, req.UserID, userDelta)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	maps.Copy(state, userState)
	return &models.Session{
		ID:         id,
		AppName:    req.AppName,
		UserID:     req.UserID,
		State:      state,
		Events:     []*models.Event{},
		CreateTime: now,
		UpdateTime: now,
	}, nil
}

// Get loads a session with its events in append order.
func (s *Store) Get(ctx context.Context, req GetRequest) (*models.Session, error) {
	b := s.client.SQL()
	query, args := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		Where(entsql.And(
			entsql.EQ("app_name", req.AppName),
			entsql.EQ("user_id", req.UserID),
			entsql.EQ("id", req.SessionID),
		)).
		Query()

	sess, err := scanSession(s.client.DB().QueryRowContext(ctx, query, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.SessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}

	userState, err := s.userState(ctx, s.client.DB(), req.AppName, req.UserID)
	if err != nil {
		return nil, err
	}
	maps.Copy(sess.State, userState)

	sess.Events, err = s.events(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns sessions without events, newest first.
func (s *Store) List(ctx context.Context, req ListRequest) ([]*models.Session, error) {
	b := s.client.SQL()
	sel := b.Select(sessionColumns...).
		From(b.Table(tableSessions)).
		OrderBy(entsql.Desc("create_time"), entsql.Desc("id"))
	if req.AppName != "" {
		sel.Where(entsql.EQ("app_name", req.AppName))
	}
	if req.UserID != "" {
		sel.Where(entsql.EQ("user_id", req.UserID))
	}
	query, args := sel.Query()

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// Delete removes a session's events and then the session row.
func (s *Store) Delete(ctx context.Context, req DeleteRequest) error {
	b := s.client.SQL()
	return s.inTx(ctx, func(tx *stdsql.Tx) error {
		query, args := b.Delete(tableEvents).
			Where(entsql.EQ("session_id", req.SessionID)).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}

		query, args = b.Delete(tableSessions).
			Where(entsql.And(
				entsql.EQ("app_name", req.AppName),
				entsql.EQ("user_id", req.UserID),
				entsql.EQ("id", req.SessionID),
			)).
			Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, req.SessionID)
		}
		return nil
	})
}

// AppendEvent persists ev at the end of the session's log and applies its
// state delta to both the stored row and sess. Partial events are returned
// untouched and never stored.
func (s *Store) AppendEvent(ctx context.Context, sess *models.Session, ev *models.Event) (*models.Event, error) {
	if ev.Partial {
		return ev, nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = s.now()
	}
	ev.Timestamp = ev.Timestamp.UTC()

	var stateDelta, userDelta map[string]any
	if ev.Actions != nil {
		stateDelta = make(map[string]any)
		userDelta = make(map[string]any)
		for k, v := range ev.Actions.StateDelta {
			switch {
			case strings.HasPrefix(k, TempPrefix):
			case strings.HasPrefix(k, UserPrefix):
				userDelta[k] = v
			default:
				stateDelta[k] = v
			}
		}
	}

	content, err := marshalNullable(ev.Content)
	if err != nil {
		return nil, fmt.Errorf("encode content: %w", err)
	}
	actions, err := marshalNullable(ev.Actions)
	if err != nil {
		return nil, fmt.Errorf("encode actions: %w", err)
	}
	metadata, err := marshalNullable(ev.CustomMetadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	b := s.client.SQL()
	now := s.now()
	err = s.inTx(ctx, func(tx *stdsql.Tx) error {
		query, args := b.Select("state").
			From(b.Table(tableSessions)).
			Where(entsql.EQ("id", sess.ID)).
			Query()
		var raw string
		if err := tx.QueryRowContext(ctx, query, args...).Scan(&raw); err != nil {
			if errors.Is(err, stdsql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrNotFound, sess.ID)
			}
			return fmt.Errorf("load state: %w", err)
		}

		seq, err := nextSeq(ctx, b, tx, sess.ID)
		if err != nil {
			return err
		}

		query, args = b.Insert(tableEvents).
			Columns(append([]string{"app_name", "user_id", "session_id", "seq"}, eventColumns...)...).
			Values(sess.AppName, sess.UserID, sess.ID, seq,
				ev.ID, ev.InvocationID, ev.Author, ev.Timestamp, content, actions,
				nullString(ev.ErrorCode), nullString(ev.ErrorMessage), metadata).
			Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}

		update := b.Update(tableSessions).Set("update_time", now).Where(entsql.EQ("id", sess.ID))
		if len(stateDelta) > 0 {
			state := decodeState(raw)
			maps.Copy(state, stateDelta)
			encoded, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("encode state: %w", err)
			}
			update.Set("state", string(encoded))
		}
		query, args = update.Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		_, err = s.applyUserDelta(ctx, tx, sess.AppName, sess.UserID, userDelta)
		return err
	})
	if err != nil {
		return nil, err
	}

	if sess.State == nil {
		sess.State = make(map[string]any)
	}
	maps.Copy(sess.State, stateDelta)
	maps.Copy(sess.State, userDelta)
	sess.Events = append(sess.Events, ev)
	sess.UpdateTime = now
	return ev, nil
}

func (s *Store) events(ctx context.Context, sessionID string) ([]*models.Event, error) {
	b := s.client.SQL()
	query, args := b.Select(eventColumns...).
		From(b.Table(tableEvents)).
		Where(entsql.EQ("session_id", sessionID)).
		OrderBy("seq").
		Query()

	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load events: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (s *Store) exists(ctx context.Context, tx *stdsql.Tx, id string) (bool, error) {
	b := s.client.SQL()
	query, args := b.Select("id").From(b.Table(tableSessions)).Where(entsql.EQ("id", id)).Query()
	var got string
	err := tx.QueryRowContext(ctx, query, args...).Scan(&got)
	if errors.Is(err, stdsql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return true, nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *stdsql.Row
}

func (s *Store) userState(ctx context.Context, q querier, appName, userID string) (map[string]any, error) {
	b := s.client.SQL()
	query, args := b.Select("state").
		From(b.Table(tableUserStates)).
		Where(entsql.And(entsql.EQ("app_name", appName), entsql.EQ("user_id", userID))).
		Query()
	var raw string
	err := q.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, stdsql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user state: %w", err)
	}
	return decodeState(raw), nil
}

func (s *Store) applyUserDelta(ctx context.Context, tx *stdsql.Tx, appName, userID string, delta map[string]any) (map[string]any, error) {
	state, err := s.userState(ctx, tx, appName, userID)
	if err != nil {
		return nil, err
	}
	if len(delta) == 0 {
		return state, nil
	}
	maps.Copy(state, delta)
	encoded, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode user state: %w", err)
	}

	query, args := s.client.SQL().Insert(tableUserStates).
		Columns("app_name", "user_id", "state", "update_time").
		Values(appName, userID, string(encoded), s.now()).
		OnConflict(
			entsql.ConflictColumns("app_name", "user_id"),
			entsql.ResolveWithNewValues(),
		).
		Query()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("upsert user state: %w", err)
	}
	return state, nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *stdsql.Tx) error) error {
	tx, err := s.client.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nextSeq(ctx context.Context, b *entsql.DialectBuilder, tx *stdsql.Tx, sessionID string) (int64, error) {
	query, args := b.Select(entsql.Max("seq")).
		From(b.Table(tableEvents)).
		Where(entsql.EQ("session_id", sessionID)).
		Query()
	var seq stdsql.NullInt64
	if err := tx.QueryRowContext(ctx, query, args...).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next event seq: %w", err)
	}
	return seq.Int64 + 1, nil
}
