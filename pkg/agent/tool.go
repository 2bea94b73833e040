package agent

import (
	"context"
	"fmt"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// Tool is a function an LLMAgent exposes to its model.
type Tool interface {
	Declaration() ToolDeclaration
	Call(ctx context.Context, tctx *ToolContext, args map[string]any) (map[string]any, error)
}

// ToolContext is handed to a tool call. Tools record side effects on it;
// they are carried by the function response event.
type ToolContext struct {
	Invocation *InvocationContext
	CallID     string
	Actions    models.EventActions
}

func (t *ToolContext) setState(key string, v any) {
	if t.Actions.StateDelta == nil {
		t.Actions.StateDelta = map[string]any{}
	}
	t.Actions.StateDelta[key] = v
}

// AgentTool exposes an agent as a tool. The wrapped agent runs on a
// scratch session seeded with a copy of the caller's state; its state
// changes flow back through the function response.
type AgentTool struct {
	agent Agent
}

// NewAgentTool wraps a.
func NewAgentTool(a Agent) *AgentTool {
	return &AgentTool{agent: a}
}

const agentToolRequestArg = "request"

func (t *AgentTool) Declaration() ToolDeclaration {
	return ToolDeclaration{
		Name:        t.agent.Name(),
		Description: t.agent.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				agentToolRequestArg: map[string]any{"type": "string"},
			},
			"required": []string{agentToolRequestArg},
		},
	}
}

func (t *AgentTool) Call(ctx context.Context, tctx *ToolContext, args map[string]any) (map[string]any, error) {
	request, _ := args[agentToolRequestArg].(string)
	if request == "" {
		return nil, fmt.Errorf("%s: missing %q argument", t.agent.Name(), agentToolRequestArg)
	}

	parent := tctx.Invocation
	scratch := &models.Session{
		ID:      parent.Session.ID,
		AppName: parent.Session.AppName,
		UserID:  parent.Session.UserID,
		State:   make(map[string]any, len(parent.State())),
	}
	for k, v := range parent.State() {
		scratch.State[k] = v
	}
	child := &InvocationContext{
		InvocationID: parent.InvocationID,
		Session:      scratch,
		LLM:          parent.LLM,
		MaxLLMCalls:  parent.MaxLLMCalls,
		llmCalls:     parent.llmCalls,
	}

	userEv := NewEvent(child, models.AuthorUser)
	userEv.Content = models.NewTextContent(models.RoleUser, request)
	ApplyEvent(scratch, userEv)

	var last string
	for ev, err := range t.agent.Run(ctx, child) {
		if err != nil {
			return nil, err
		}
		ApplyEvent(scratch, ev)
		if ev.IsError() {
			return nil, fmt.Errorf("%s: %s: %s", t.agent.Name(), ev.ErrorCode, ev.ErrorMessage)
		}
		if ev.HasStateDelta() {
			for k, v := range stripTempKeys(ev.Actions.StateDelta) {
				tctx.setState(k, v)
			}
		}
		if text := finalText(ev.Content); text != "" {
			last = text
		}
	}
	parent.llmCalls = child.llmCalls
	return map[string]any{"result": last}, nil
}

// TransferToAgentTool is the name of the function that hands control to a
// sub-agent.
const TransferToAgentTool = "transfer_to_agent"

type transferTool struct {
	targets []Agent
}

func (t *transferTool) Declaration() ToolDeclaration {
	names := make([]string, 0, len(t.targets))
	desc := "Transfer the conversation to another agent. Available agents:"
	for _, a := range t.targets {
		names = append(names, a.Name())
		desc += fmt.Sprintf("\n- %s: %s", a.Name(), a.Description())
	}
	return ToolDeclaration{
		Name:        TransferToAgentTool,
		Description: desc,
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_name": map[string]any{"type": "string", "enum": names},
			},
			"required": []string{"agent_name"},
		},
	}
}

func (t *transferTool) Call(_ context.Context, tctx *ToolContext, args map[string]any) (map[string]any, error) {
	name, _ := args["agent_name"].(string)
	for _, a := range t.targets {
		if a.Name() == name {
			tctx.Actions.TransferToAgent = name
			return map[string]any{}, nil
		}
	}
	return nil, fmt.Errorf("unknown agent %q", name)
}

// finalText returns the non-thought text of c.
func finalText(c *models.Content) string {
	if c == nil {
		return ""
	}
	var out string
	for _, p := range c.Parts {
		if tp, ok := p.(*models.TextPart); ok && !tp.Thought {
			out += tp.Text
		}
	}
	return out
}
