package e2e

import (
	"context"
	"fmt"
	"sync"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/models"
)

// LLMScriptEntry defines a single scripted model response.
type LLMScriptEntry struct {
	// Response content (exactly one must be set)
	Text  string                   // Plain text answer
	Call  *models.FunctionCallPart // A single tool call
	Error error                    // Return error from GenerateContent()

	// Test control
	BlockUntilCancelled bool            // Block until ctx is cancelled
	OnBlock             chan<- struct{} // Notified when the call starts blocking
}

// ScriptedLLM implements agent.LLM by replaying entries in call order.
type ScriptedLLM struct {
	mu       sync.Mutex
	script   []LLMScriptEntry
	index    int
	requests []*agent.LLMRequest
}

// NewScriptedLLM creates an empty script.
func NewScriptedLLM() *ScriptedLLM {
	return &ScriptedLLM{}
}

// Add appends entries to the script.
func (s *ScriptedLLM) Add(entries ...LLMScriptEntry) *ScriptedLLM {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.script = append(s.script, entries...)
	return s
}

// GenerateContent implements agent.LLM.
func (s *ScriptedLLM) GenerateContent(ctx context.Context, req *agent.LLMRequest) (*agent.LLMResponse, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	if s.index >= len(s.script) {
		n := len(s.requests)
		s.mu.Unlock()
		return nil, fmt.Errorf("scripted llm: unexpected call %d (model %s)", n, req.Model)
	}
	entry := s.script[s.index]
	s.index++
	s.mu.Unlock()

	if entry.BlockUntilCancelled {
		if entry.OnBlock != nil {
			entry.OnBlock <- struct{}{}
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if entry.Error != nil {
		return nil, entry.Error
	}

	content := &models.Content{Role: models.RoleModel}
	if entry.Call != nil {
		call := *entry.Call
		content.Parts = append(content.Parts, &call)
	}
	if entry.Text != "" {
		content.Parts = append(content.Parts, &models.TextPart{Text: entry.Text})
	}
	return &agent.LLMResponse{Content: content, FinishReason: agent.FinishReasonStop}, nil
}

// Requests returns a snapshot of every request received.
func (s *ScriptedLLM) Requests() []*agent.LLMRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*agent.LLMRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

// Remaining reports how many entries have not been consumed.
func (s *ScriptedLLM) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script) - s.index
}
