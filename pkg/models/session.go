package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Content roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// AuthorUser is the author recorded on events produced by the human participant.
const AuthorUser = "user"

// Session is one conversation owned by a user within an application.
// Events are ordered by append order.
type Session struct {
	ID         string         `json:"id"`
	AppName    string         `json:"app_name"`
	UserID     string         `json:"user_id"`
	State      map[string]any `json:"state"`
	Events     []*Event       `json:"events,omitempty"`
	CreateTime time.Time      `json:"create_time"`
	UpdateTime time.Time      `json:"update_time"`
}

// Event is an immutable record appended to a session by an agent or the user.
type Event struct {
	ID             string         `json:"id"`
	InvocationID   string         `json:"invocation_id,omitempty"`
	Author         string         `json:"author"`
	Timestamp      time.Time      `json:"timestamp"`
	Content        *Content       `json:"content,omitempty"`
	Actions        *EventActions  `json:"actions,omitempty"`
	ErrorCode      string         `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	CustomMetadata map[string]any `json:"custom_metadata,omitempty"`
	// Partial marks streamed fragments that are not persisted.
	Partial bool `json:"partial,omitempty"`
}

// IsError reports whether the event carries an error code.
func (e *Event) IsError() bool {
	return e.ErrorCode != ""
}

// HasStateDelta reports whether the event's actions carry any state change.
func (e *Event) HasStateDelta() bool {
	return e.Actions != nil && len(e.Actions.StateDelta) > 0
}

// FunctionCalls returns the function call parts of the event content.
func (e *Event) FunctionCalls() []*FunctionCallPart {
	if e.Content == nil {
		return nil
	}
	var calls []*FunctionCallPart
	for _, p := range e.Content.Parts {
		if fc, ok := p.(*FunctionCallPart); ok {
			calls = append(calls, fc)
		}
	}
	return calls
}

// Text returns the concatenated text parts of the event content.
func (e *Event) Text() string {
	if e.Content == nil {
		return ""
	}
	return e.Content.Text()
}

// EventActions are the side effects an event requests from the runtime.
type EventActions struct {
	StateDelta      map[string]any `json:"state_delta,omitempty"`
	Escalate        bool           `json:"escalate,omitempty"`
	TransferToAgent string         `json:"transfer_to_agent,omitempty"`
}

// Content is a role-tagged ordered list of parts.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// NewTextContent builds single-part text content.
func NewTextContent(role, text string) *Content {
	return &Content{Role: role, Parts: []Part{&TextPart{Text: text}}}
}

// Text concatenates all text parts.
func (c *Content) Text() string {
	var out string
	for _, p := range c.Parts {
		if t, ok := p.(*TextPart); ok {
			out += t.Text
		}
	}
	return out
}

// Part is one element of Content. Exactly one of TextPart, FunctionCallPart
// or FunctionResponsePart.
type Part interface {
	isPart()
}

// TextPart is plain text.
type TextPart struct {
	Text string `json:"text"`
	// Thought marks model reasoning that is not shown as the answer.
	Thought bool `json:"thought,omitempty"`
}

// FunctionCallPart is a tool invocation requested by the model.
type FunctionCallPart struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// FunctionResponsePart is the result of a tool invocation.
type FunctionResponsePart struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response,omitempty"`
	Error    string         `json:"error,omitempty"`
}

func (*TextPart) isPart()             {}
func (*FunctionCallPart) isPart()     {}
func (*FunctionResponsePart) isPart() {}

type partJSON struct {
	Text             *string               `json:"text,omitempty"`
	Thought          bool                  `json:"thought,omitempty"`
	FunctionCall     *FunctionCallPart     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponsePart `json:"functionResponse,omitempty"`
}

type contentJSON struct {
	Role  string            `json:"role,omitempty"`
	Parts []json.RawMessage `json:"parts"`
}

// MarshalPart encodes a part in the wire shape used by the model API.
func MarshalPart(p Part) ([]byte, error) {
	var pj partJSON
	switch v := p.(type) {
	case *TextPart:
		pj.Text = &v.Text
		pj.Thought = v.Thought
	case *FunctionCallPart:
		pj.FunctionCall = v
	case *FunctionResponsePart:
		pj.FunctionResponse = v
	default:
		return nil, fmt.Errorf("unsupported part type %T", p)
	}
	return json.Marshal(pj)
}

// UnmarshalPart decodes a wire part. It returns nil, nil for parts of a kind
// this package does not model.
func UnmarshalPart(data []byte) (Part, error) {
	var pj partJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, err
	}
	switch {
	case pj.FunctionCall != nil:
		return pj.FunctionCall, nil
	case pj.FunctionResponse != nil:
		return pj.FunctionResponse, nil
	case pj.Text != nil:
		return &TextPart{Text: *pj.Text, Thought: pj.Thought}, nil
	}
	return nil, nil
}

// MarshalJSON implements json.Marshaler.
func (c Content) MarshalJSON() ([]byte, error) {
	out := contentJSON{Role: c.Role, Parts: make([]json.RawMessage, 0, len(c.Parts))}
	for _, p := range c.Parts {
		raw, err := MarshalPart(p)
		if err != nil {
			return nil, err
		}
		out.Parts = append(out.Parts, raw)
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Content) UnmarshalJSON(data []byte) error {
	var in contentJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	c.Role = in.Role
	c.Parts = make([]Part, 0, len(in.Parts))
	for _, raw := range in.Parts {
		p, err := UnmarshalPart(raw)
		if err != nil {
			return fmt.Errorf("decode part: %w", err)
		}
		if p != nil {
			c.Parts = append(c.Parts, p)
		}
	}
	return nil
}
