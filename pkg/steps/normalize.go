// Package steps turns agent session events into chat UI steps.
//
// Steps are a projection: they are recomputed from the event log on every
// read and never stored.
package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

const (
	// StateUpdatedOutput is the text of the synthetic state step.
	StateUpdatedOutput = "*State updated.*"

	// PendingToolOutput marks a tool call whose response has not been seen.
	PendingToolOutput = "(ERROR)"

	// UnknownToolName names a tool call without a name.
	UnknownToolName = "(unknown)"

	stateStepSuffix = "_stupd"
)

// Normalize maps one event to the ordered steps it renders as. It never
// fails: malformed or empty events yield no steps. Elements are always empty.
func Normalize(threadID string, ev *models.Event) ([]models.Step, []models.Element) {
	elements := []models.Element{}
	if ev == nil {
		return []models.Step{}, elements
	}

	createdAt := models.FormatTime(ev.Timestamp)
	metadata := ev.CustomMetadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	newStep := func(id string, parent *string, name string, typ models.StepType) models.Step {
		return models.Step{
			ID:        id,
			ThreadID:  threadID,
			ParentID:  parent,
			Name:      name,
			Type:      typ,
			Metadata:  metadata,
			CreatedAt: createdAt,
		}
	}

	if ev.IsError() {
		step := newStep(ev.ID, nil, ev.Author, models.StepTypeSystemMessage)
		step.Output = fmt.Sprintf("`%s`: %s", ev.ErrorCode, ev.ErrorMessage)
		step.IsError = true
		return []models.Step{step}, elements
	}

	if ev.Content == nil || len(ev.Content.Parts) == 0 {
		return []models.Step{}, elements
	}

	parent := ev.ID
	out := make([]models.Step, 0, len(ev.Content.Parts)+2)

	if !ev.HasStateDelta() {
		step := newStep(ev.ID+stateStepSuffix, &parent, ev.Author, models.StepTypeSystemMessage)
		step.Output = StateUpdatedOutput
		out = append(out, step)
	}

	calls := make(map[string]int)
	var text strings.Builder
	for n, part := range ev.Content.Parts {
		switch p := part.(type) {
		case *models.FunctionCallPart:
			name := p.Name
			if name == "" {
				name = UnknownToolName
			}
			step := newStep(ev.ID+"_"+strconv.Itoa(n+1), &parent, name, models.StepTypeTool)
			step.Input = encode(p.Args)
			step.Output = PendingToolOutput
			step.ShowInput = true
			calls[p.ID] = len(out)
			out = append(out, step)
		case *models.FunctionResponsePart:
			// A response only completes a call made in the same event.
			if i, ok := calls[p.ID]; ok {
				out[i].Output = encode(p.Response)
				out[i].IsError = false
			}
		case *models.TextPart:
			text.WriteString(p.Text)
		}
	}

	if text.Len() > 0 {
		typ := models.StepTypeAssistantMessage
		if ev.Content.Role == models.RoleUser {
			typ = models.StepTypeUserMessage
		}
		step := newStep(ev.ID, nil, ev.Author, typ)
		step.Output = text.String()
		out = append(out, step)
	}

	return out, elements
}

// Assemble folds a session's events, in stored order, into its steps and
// elements. Nothing is reordered or deduplicated.
func Assemble(sess *models.Session) ([]models.Step, []models.Element) {
	steps := make([]models.Step, 0, len(sess.Events))
	elements := make([]models.Element, 0)
	for _, ev := range sess.Events {
		s, e := Normalize(sess.ID, ev)
		steps = append(steps, s...)
		elements = append(elements, e...)
	}
	return steps, elements
}

func encode(v map[string]any) string {
	if v == nil {
		v = map[string]any{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
