package sessions

import (
	"context"
	stdsql "database/sql"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"
)

// TableStats is the row count of one store table.
type TableStats struct {
	Table string
	Rows  int64
}

// Stats returns row counts for every store table.
func (s *Store) Stats(ctx context.Context) ([]TableStats, error) {
	b := s.client.SQL()
	out := make([]TableStats, 0, 3)
	for _, table := range []string{tableSessions, tableEvents, tableUserStates} {
		query, args := b.Select(entsql.Count("*")).From(b.Table(table)).Query()
		var n int64
		if err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		out = append(out, TableStats{Table: table, Rows: n})
	}
	return out, nil
}

// DeleteUserData removes every event, user state and session of a user.
// It returns the number of sessions removed.
func (s *Store) DeleteUserData(ctx context.Context, userID string) (int64, error) {
	b := s.client.SQL()
	var removed int64
	err := s.inTx(ctx, func(tx *stdsql.Tx) error {
		for _, table := range []string{tableEvents, tableUserStates, tableSessions} {
			query, args := b.Delete(table).Where(entsql.EQ("user_id", userID)).Query()
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
			if table == tableSessions {
				removed, _ = res.RowsAffected()
			}
		}
		return nil
	})
	return removed, err
}

// DeleteOlderThan removes sessions created before cutoff, events first.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	b := s.client.SQL()
	query, args := b.Select("id").
		From(b.Table(tableSessions)).
		Where(entsql.LT("create_time", cutoff.UTC())).
		Query()
	ids, err := s.selectIDs(ctx, query, args)
	if err != nil {
		return 0, err
	}
	return s.deleteByIDs(ctx, ids)
}

// DeleteEmptyOlderThan removes sessions without events whose last update is
// before cutoff. Emptiness is checked by the delete itself, so a session that
// gains an event concurrently is kept.
func (s *Store) DeleteEmptyOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	b := s.client.SQL()
	sessions := b.Table(tableSessions)
	events := b.Table(tableEvents)
	hasEvents := b.Select(events.C("id")).
		From(events).
		Where(entsql.ColumnsEQ(events.C("session_id"), sessions.C("id")))
	query, args := b.Delete(tableSessions).
		Where(entsql.And(
			entsql.LT(sessions.C("update_time"), cutoff.UTC()),
			entsql.NotExists(hasEvents),
		)).
		Query()
	res, err := s.client.DB().ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete empty sessions: %w", err)
	}
	removed, _ := res.RowsAffected()
	return removed, nil
}

// Clear deletes all rows from every store table.
func (s *Store) Clear(ctx context.Context) error {
	b := s.client.SQL()
	return s.inTx(ctx, func(tx *stdsql.Tx) error {
		for _, table := range []string{tableEvents, tableUserStates, tableSessions} {
			query, args := b.Delete(table).Query()
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) selectIDs(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := s.client.DB().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select session ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) deleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	b := s.client.SQL()
	values := make([]any, len(ids))
	for i, id := range ids {
		values[i] = id
	}
	var removed int64
	err := s.inTx(ctx, func(tx *stdsql.Tx) error {
		query, args := b.Delete(tableEvents).Where(entsql.In("session_id", values...)).Query()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("delete events: %w", err)
		}
		query, args = b.Delete(tableSessions).Where(entsql.In("id", values...)).Query()
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete sessions: %w", err)
		}
		removed, _ = res.RowsAffected()
		return nil
	})
	return removed, err
}
