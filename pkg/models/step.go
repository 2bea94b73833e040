package models

import "time"

// StepType is the kind of a chat UI step.
type StepType string

// Step types understood by the chat UI.
const (
	StepTypeSystemMessage    StepType = "system_message"
	StepTypeTool             StepType = "tool"
	StepTypeUserMessage      StepType = "user_message"
	StepTypeAssistantMessage StepType = "assistant_message"
)

// StepTimeLayout is the createdAt format of steps and threads.
const StepTimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in StepTimeLayout (UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format(StepTimeLayout)
}

// Step is one rendered unit of a conversation in the chat UI.
type Step struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"threadId"`
	ParentID  *string        `json:"parentId"`
	Name      string         `json:"name"`
	Type      StepType       `json:"type"`
	Input     string         `json:"input"`
	Output    string         `json:"output"`
	Metadata  map[string]any `json:"metadata"`
	CreatedAt string         `json:"createdAt"`
	ShowInput bool           `json:"showInput"`
	IsError   bool           `json:"isError"`
	Feedback  *Feedback      `json:"feedback"`
}

// Element is a UI attachment. The data layer never stores any.
type Element struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
	Type     string `json:"type"`
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	ForID    string `json:"forId,omitempty"`
	Mime     string `json:"mime,omitempty"`
}

// Feedback is a user rating of a step.
type Feedback struct {
	ID      string `json:"id,omitempty"`
	ForID   string `json:"forId"`
	Value   int    `json:"value"`
	Comment string `json:"comment,omitempty"`
}
