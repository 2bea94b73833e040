package agent

import "errors"

var (
	// ErrMaxLLMCalls is returned when an invocation exceeds its model call budget.
	ErrMaxLLMCalls = errors.New("max llm calls exceeded")

	// ErrMissingStateKey is returned when an instruction references a
	// required state key that is not set.
	ErrMissingStateKey = errors.New("missing state key")

	// ErrSessionNotFound is returned by the runner when the session does not exist.
	ErrSessionNotFound = errors.New("session not found")
)
