package sessions

import (
	stdsql "database/sql"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*models.Session, error) {
	var (
		sess             models.Session
		state            string
		created, updated any
	)
	if err := row.Scan(&sess.ID, &sess.AppName, &sess.UserID, &state, &created, &updated); err != nil {
		return nil, err
	}
	var err error
	if sess.CreateTime, err = ParseTime(created); err != nil {
		return nil, fmt.Errorf("create_time: %w", err)
	}
	if sess.UpdateTime, err = ParseTime(updated); err != nil {
		return nil, fmt.Errorf("update_time: %w", err)
	}
	sess.State = decodeState(state)
	return &sess, nil
}

func scanEvent(row scanner) (*models.Event, error) {
	var (
		ev                         models.Event
		ts                         any
		content, actions, metadata stdsql.NullString
		errCode, errMsg            stdsql.NullString
	)
	if err := row.Scan(&ev.ID, &ev.InvocationID, &ev.Author, &ts,
		&content, &actions, &errCode, &errMsg, &metadata); err != nil {
		return nil, err
	}
	var err error
	if ev.Timestamp, err = ParseTime(ts); err != nil {
		return nil, fmt.Errorf("timestamp: %w", err)
	}
	ev.ErrorCode = errCode.String
	ev.ErrorMessage = errMsg.String

	if content.Valid && content.String != "" {
		ev.Content = &models.Content{}
		if err := json.Unmarshal([]byte(content.String), ev.Content); err != nil {
			return nil, fmt.Errorf("decode content of event %s: %w", ev.ID, err)
		}
	}
	if actions.Valid && actions.String != "" {
		ev.Actions = &models.EventActions{}
		if err := json.Unmarshal([]byte(actions.String), ev.Actions); err != nil {
			return nil, fmt.Errorf("decode actions of event %s: %w", ev.ID, err)
		}
	}
	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &ev.CustomMetadata); err != nil {
			return nil, fmt.Errorf("decode metadata of event %s: %w", ev.ID, err)
		}
	}
	return &ev, nil
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTime converts a scanned timestamp column to UTC. SQLite may return
// text for aggregates and PostgreSQL returns time.Time.
func ParseTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTimeString(t)
	case []byte:
		return parseTimeString(string(t))
	case nil:
		return time.Time{}, fmt.Errorf("null timestamp")
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %s", reflect.TypeOf(v))
	}
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// Go's time.Time.String() output, as some drivers store it.
	if i := strings.Index(s, " m="); i > 0 {
		s = s[:i]
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999 -0700 MST", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// DecodeState parses a JSON state column. Malformed or empty input yields
// an empty map.
func DecodeState(raw string) map[string]any {
	return decodeState(raw)
}

func decodeState(raw string) map[string]any {
	state := make(map[string]any)
	if raw == "" {
		return state
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil || state == nil {
		return make(map[string]any)
	}
	return state
}

func marshalNullable(v any) (stdsql.NullString, error) {
	if v == nil || reflect.ValueOf(v).IsNil() {
		return stdsql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return stdsql.NullString{}, err
	}
	return stdsql.NullString{String: string(data), Valid: true}, nil
}

func nullString(s string) stdsql.NullString {
	return stdsql.NullString{String: s, Valid: s != ""}
}
