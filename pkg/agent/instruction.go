package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	placeholderRe = regexp.MustCompile(`\{+[^{}]*\}+`)
	identifierRe  = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

var statePrefixes = []string{"app:", "user:", "temp:"}

// InjectState replaces {key} placeholders in tmpl with values from state.
// A trailing ? marks the key optional: missing optional keys render empty,
// missing required keys fail with ErrMissingStateKey. Placeholders that are
// not valid state keys are left as written.
func InjectState(tmpl string, state map[string]any) (string, error) {
	var firstErr error
	out := placeholderRe.ReplaceAllStringFunc(tmpl, func(m string) string {
		key := strings.TrimSpace(strings.TrimRight(strings.TrimLeft(m, "{"), "}"))
		optional := strings.HasSuffix(key, "?")
		key = strings.TrimSuffix(key, "?")
		if !validStateKey(key) {
			return m
		}
		v, ok := state[key]
		if !ok {
			if !optional && firstErr == nil {
				firstErr = fmt.Errorf("%w: %s", ErrMissingStateKey, key)
			}
			return ""
		}
		return stringify(v)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func validStateKey(key string) bool {
	for _, p := range statePrefixes {
		if strings.HasPrefix(key, p) {
			key = strings.TrimPrefix(key, p)
			break
		}
	}
	return identifierRe.MatchString(key)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
