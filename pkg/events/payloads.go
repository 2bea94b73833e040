package events

import "github.com/codeready-toolchain/design-team/pkg/models"

// StepCreatedPayload carries one rendered step.
type StepCreatedPayload struct {
	Type     string      `json:"type"` // always EventTypeStepCreated
	ThreadID string      `json:"thread_id"`
	Seq      int         `json:"seq,omitempty"` // set on replay only
	Step     models.Step `json:"step"`
}

// RunStatusPayload reports an agent run transition for a thread.
type RunStatusPayload struct {
	Type      string `json:"type"` // always EventTypeRunStatus
	ThreadID  string `json:"thread_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// ThreadPayload announces a thread being created or deleted.
type ThreadPayload struct {
	Type     string `json:"type"` // EventTypeThreadCreated or EventTypeThreadDeleted
	ThreadID string `json:"thread_id"`
	UserID   string `json:"user_id,omitempty"`
}
