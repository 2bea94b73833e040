package agent

import (
	"context"

	"github.com/codeready-toolchain/design-team/pkg/models"
)

// LLM is the model backend agents call. One call per turn, no streaming.
type LLM interface {
	GenerateContent(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMRequest is one model call.
type LLMRequest struct {
	Model             string
	SystemInstruction string
	Contents          []*models.Content
	Tools             []ToolDeclaration // nil = no tools

	// ResponseSchema, when set, asks the model for JSON matching it.
	ResponseSchema map[string]any

	// ThinkingBudget caps reasoning tokens. Zero leaves the model default.
	ThinkingBudget  int
	IncludeThoughts bool
}

// ToolDeclaration describes a function the model may call.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any // JSON Schema object
}

// Finish reasons reported by the model.
const (
	FinishReasonStop = "STOP"
)

// LLMResponse is the model's answer to one call.
type LLMResponse struct {
	Content      *models.Content
	FinishReason string
	// ErrorMessage carries the provider's explanation when FinishReason
	// is not STOP (safety block, token limit, ...).
	ErrorMessage string
	Usage        TokenUsage
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	ThinkingTokens int
}
