package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/google/uuid"
)

// Error codes recorded on events produced by the runtime itself.
const (
	ErrorCodeInvalidOutput = "INVALID_OUTPUT"
)

// LLMAgentConfig configures an LLMAgent.
type LLMAgentConfig struct {
	Name        string
	Description string
	Model       string

	// Instruction is the system instruction. {key} and {key?} placeholders
	// are filled from session state on every call.
	Instruction string

	// OutputKey, when set, stores the final answer in session state.
	OutputKey string

	// OutputSchema asks the model for JSON; the parsed object is stored
	// under OutputKey.
	OutputSchema map[string]any

	ThinkingBudget int

	Tools     []Tool
	SubAgents []Agent
}

// LLMAgent is an agent driven by a model. It calls the model, executes any
// function calls it asks for, and calls it again until it answers in text.
type LLMAgent struct {
	cfg   LLMAgentConfig
	tools map[string]Tool
	decls []ToolDeclaration
}

// NewLLMAgent creates an LLMAgent. Sub-agents become reachable through the
// transfer_to_agent function.
func NewLLMAgent(cfg LLMAgentConfig) *LLMAgent {
	a := &LLMAgent{cfg: cfg, tools: make(map[string]Tool)}
	tools := cfg.Tools
	if len(cfg.SubAgents) > 0 {
		tools = append(append([]Tool{}, tools...), &transferTool{targets: cfg.SubAgents})
	}
	for _, t := range tools {
		d := t.Declaration()
		a.tools[d.Name] = t
		a.decls = append(a.decls, d)
	}
	return a
}

func (a *LLMAgent) Name() string        { return a.cfg.Name }
func (a *LLMAgent) Description() string { return a.cfg.Description }
func (a *LLMAgent) SubAgents() []Agent  { return a.cfg.SubAgents }

// Config returns the agent configuration.
func (a *LLMAgent) Config() LLMAgentConfig { return a.cfg }

func (a *LLMAgent) Run(ctx context.Context, ictx *InvocationContext) iter.Seq2[*models.Event, error] {
	return func(yield func(*models.Event, error) bool) {
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			req, err := a.buildRequest(ictx)
			if err != nil {
				yield(nil, fmt.Errorf("%s: %w", a.Name(), err))
				return
			}
			if err := ictx.countLLMCall(); err != nil {
				yield(nil, err)
				return
			}
			resp, err := ictx.LLM.GenerateContent(ctx, req)
			if err != nil {
				yield(nil, fmt.Errorf("%s: generate content: %w", a.Name(), err))
				return
			}
			if resp.FinishReason != "" && resp.FinishReason != FinishReasonStop {
				msg := resp.ErrorMessage
				if msg == "" {
					msg = fmt.Sprintf("model stopped with finish reason %s", resp.FinishReason)
				}
				slog.Warn("Model call did not finish", "agent", a.Name(), "finish_reason", resp.FinishReason)
				yield(errorEvent(ictx, a.Name(), resp.FinishReason, msg), nil)
				return
			}

			ev := NewEvent(ictx, a.Name())
			ev.Content = resp.Content
			if ev.Content != nil && ev.Content.Role == "" {
				ev.Content.Role = models.RoleModel
			}

			calls := ev.FunctionCalls()
			if len(calls) == 0 {
				if err := a.saveOutput(ev); err != nil {
					yield(errorEvent(ictx, a.Name(), ErrorCodeInvalidOutput, err.Error()), nil)
					return
				}
				yield(ev, nil)
				return
			}

			for _, c := range calls {
				if c.ID == "" {
					c.ID = "adk-" + uuid.New().String()
				}
			}
			if !yield(ev, nil) {
				return
			}

			respEv := a.callTools(ctx, ictx, calls)
			if !yield(respEv, nil) {
				return
			}

			if respEv.Actions != nil && respEv.Actions.TransferToAgent != "" {
				target := a.subAgent(respEv.Actions.TransferToAgent)
				for ev, err := range target.Run(ctx, ictx) {
					if !yield(ev, err) || err != nil {
						return
					}
				}
				return
			}
		}
	}
}

func (a *LLMAgent) buildRequest(ictx *InvocationContext) (*LLMRequest, error) {
	instruction, err := InjectState(a.cfg.Instruction, ictx.State())
	if err != nil {
		return nil, err
	}
	return &LLMRequest{
		Model:             a.cfg.Model,
		SystemInstruction: instruction,
		Contents:          a.contents(ictx.Session.Events),
		Tools:             a.decls,
		ResponseSchema:    a.cfg.OutputSchema,
		ThinkingBudget:    a.cfg.ThinkingBudget,
	}, nil
}

// contents builds the conversation history the model sees. Turns by other
// agents are rewritten as user context so the model does not mistake them
// for its own.
func (a *LLMAgent) contents(events []*models.Event) []*models.Content {
	var out []*models.Content
	for _, ev := range events {
		if ev.Content == nil || len(ev.Content.Parts) == 0 || ev.IsError() {
			continue
		}
		if ev.Author == models.AuthorUser || ev.Author == a.Name() {
			out = append(out, ev.Content)
			continue
		}
		if c := foreignContent(ev); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func foreignContent(ev *models.Event) *models.Content {
	parts := []models.Part{&models.TextPart{Text: "For context:"}}
	for _, p := range ev.Content.Parts {
		switch v := p.(type) {
		case *models.TextPart:
			if v.Thought || v.Text == "" {
				continue
			}
			parts = append(parts, &models.TextPart{Text: fmt.Sprintf("[%s] said: %s", ev.Author, v.Text)})
		case *models.FunctionCallPart:
			parts = append(parts, &models.TextPart{Text: fmt.Sprintf("[%s] called tool `%s` with parameters: %s", ev.Author, v.Name, stringify(v.Args))})
		case *models.FunctionResponsePart:
			parts = append(parts, &models.TextPart{Text: fmt.Sprintf("[%s] `%s` tool returned result: %s", ev.Author, v.Name, stringify(v.Response))})
		}
	}
	if len(parts) == 1 {
		return nil
	}
	return &models.Content{Role: models.RoleUser, Parts: parts}
}

func (a *LLMAgent) callTools(ctx context.Context, ictx *InvocationContext, calls []*models.FunctionCallPart) *models.Event {
	ev := NewEvent(ictx, a.Name())
	ev.Content = &models.Content{Role: models.RoleUser}
	actions := &models.EventActions{}

	for _, call := range calls {
		resp := &models.FunctionResponsePart{ID: call.ID, Name: call.Name}
		tool, ok := a.tools[call.Name]
		if !ok {
			resp.Error = fmt.Sprintf("tool %q not found", call.Name)
			resp.Response = map[string]any{"error": resp.Error}
			ev.Content.Parts = append(ev.Content.Parts, resp)
			continue
		}

		tctx := &ToolContext{Invocation: ictx, CallID: call.ID}
		result, err := tool.Call(ctx, tctx, call.Args)
		if err != nil {
			slog.Warn("Tool call failed", "agent", a.Name(), "tool", call.Name, "error", err)
			resp.Error = err.Error()
			resp.Response = map[string]any{"error": resp.Error}
		} else {
			resp.Response = result
		}
		ev.Content.Parts = append(ev.Content.Parts, resp)

		for k, v := range tctx.Actions.StateDelta {
			if actions.StateDelta == nil {
				actions.StateDelta = map[string]any{}
			}
			actions.StateDelta[k] = v
		}
		if tctx.Actions.TransferToAgent != "" {
			actions.TransferToAgent = tctx.Actions.TransferToAgent
		}
		actions.Escalate = actions.Escalate || tctx.Actions.Escalate
	}

	if len(actions.StateDelta) > 0 || actions.TransferToAgent != "" || actions.Escalate {
		ev.Actions = actions
	}
	return ev
}

func (a *LLMAgent) saveOutput(ev *models.Event) error {
	if a.cfg.OutputKey == "" || ev.Content == nil {
		return nil
	}
	text := finalText(ev.Content)
	var value any = text
	if a.cfg.OutputSchema != nil {
		obj := map[string]any{}
		if err := json.Unmarshal([]byte(stripCodeFence(text)), &obj); err != nil {
			return fmt.Errorf("%s: output is not valid JSON: %w", a.Name(), err)
		}
		value = obj
	}
	if ev.Actions == nil {
		ev.Actions = &models.EventActions{}
	}
	if ev.Actions.StateDelta == nil {
		ev.Actions.StateDelta = map[string]any{}
	}
	ev.Actions.StateDelta[a.cfg.OutputKey] = value
	return nil
}

func (a *LLMAgent) subAgent(name string) Agent {
	for _, s := range a.cfg.SubAgents {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
