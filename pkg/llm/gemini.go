// Package llm implements the agent model backend over the Gemini
// generateContent REST API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/metrics"
	"github.com/codeready-toolchain/design-team/pkg/models"
	"github.com/codeready-toolchain/design-team/pkg/version"
)

// DefaultBaseURL is the public Gemini API endpoint.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

// Config configures a Client.
type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries uint64

	// InitialBackoff is the first retry delay. Zero uses 500ms.
	InitialBackoff time.Duration
}

// APIError is a non-2xx answer from the API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini: %s (%d): %s", e.Status, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("gemini: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client calls generateContent. Safe for concurrent use.
type Client struct {
	http    *http.Client
	cfg     Config
	metrics *metrics.Metrics
}

var _ agent.LLM = (*Client)(nil)

// NewClient creates a Client. m may be nil.
func NewClient(cfg Config, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	return &Client{http: &http.Client{Timeout: cfg.Timeout}, cfg: cfg, metrics: m}
}

// GenerateContent sends one request. Rate limits and server errors are
// retried with exponential backoff.
func (c *Client) GenerateContent(ctx context.Context, req *agent.LLMRequest) (*agent.LLMResponse, error) {
	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	start := time.Now()
	var resp *generateContentResponse
	op := func() error {
		r, err := c.post(ctx, req.Model, body)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) && !apiErr.retryable() {
				return backoff.Permanent(err)
			}
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			slog.Warn("Gemini request failed, retrying", "model", req.Model, "error", err)
			return err
		}
		resp = r
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialBackoff
	err = backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, c.cfg.MaxRetries), ctx))
	c.metrics.LLMRequest(req.Model, time.Since(start), err)
	if err != nil {
		return nil, err
	}

	out := fromWireResponse(resp)
	slog.Debug("Gemini response",
		"model", req.Model,
		"finish_reason", out.FinishReason,
		"input_tokens", out.Usage.InputTokens,
		"output_tokens", out.Usage.OutputTokens,
		"duration", time.Since(start))
	return out, nil
}

func (c *Client) post(ctx context.Context, model string, body []byte) (*generateContentResponse, error) {
	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.cfg.BaseURL, model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gemini request: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: httpResp.StatusCode, Message: strings.TrimSpace(string(raw))}
		var env errorEnvelope
		if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
			apiErr.Status = env.Error.Status
			apiErr.Message = env.Error.Message
		}
		return nil, apiErr
	}

	var out generateContentResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &out, nil
}

// toWireRequest maps an agent request onto the REST shape.
func toWireRequest(req *agent.LLMRequest) *generateContentRequest {
	out := &generateContentRequest{Contents: make([]wireContent, 0, len(req.Contents))}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &wireContent{Parts: []wirePart{{Text: req.SystemInstruction}}}
	}
	for _, c := range req.Contents {
		wc := wireContent{Role: c.Role}
		for _, p := range c.Parts {
			if wp, ok := toWirePart(p); ok {
				wc.Parts = append(wc.Parts, wp)
			}
		}
		if len(wc.Parts) > 0 {
			out.Contents = append(out.Contents, wc)
		}
	}
	if len(req.Tools) > 0 {
		decls := make([]wireFunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, wireFunctionDeclaration{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
		}
		out.Tools = []wireTool{{FunctionDeclarations: decls}}
	}

	gc := &generationConfig{}
	if req.ResponseSchema != nil {
		gc.ResponseMIMEType = "application/json"
		gc.ResponseSchema = req.ResponseSchema
	}
	if req.ThinkingBudget > 0 || req.IncludeThoughts {
		gc.ThinkingConfig = &thinkingConfig{ThinkingBudget: req.ThinkingBudget, IncludeThoughts: req.IncludeThoughts}
	}
	if gc.ResponseSchema != nil || gc.ThinkingConfig != nil {
		out.GenerationConfig = gc
	}
	return out
}

func toWirePart(p models.Part) (wirePart, bool) {
	switch v := p.(type) {
	case *models.TextPart:
		// Earlier thoughts are not sent back.
		if v.Thought {
			return wirePart{}, false
		}
		return wirePart{Text: v.Text}, true
	case *models.FunctionCallPart:
		return wirePart{FunctionCall: &wireFunctionCall{Name: v.Name, Args: v.Args}}, true
	case *models.FunctionResponsePart:
		resp := v.Response
		if resp == nil {
			resp = map[string]any{}
		}
		if v.Error != "" {
			resp = map[string]any{"error": v.Error}
		}
		return wirePart{FunctionResponse: &wireFunctionResponse{Name: v.Name, Response: resp}}, true
	}
	return wirePart{}, false
}

func fromWireResponse(resp *generateContentResponse) *agent.LLMResponse {
	out := &agent.LLMResponse{
		Usage: agent.TokenUsage{
			InputTokens:    resp.UsageMetadata.PromptTokenCount,
			OutputTokens:   resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:    resp.UsageMetadata.TotalTokenCount,
			ThinkingTokens: resp.UsageMetadata.ThoughtsTokenCount,
		},
	}
	if len(resp.Candidates) == 0 {
		reason := resp.PromptFeedback.BlockReason
		if reason == "" {
			reason = "NO_CANDIDATES"
		}
		out.FinishReason = reason
		out.ErrorMessage = "the model returned no candidates"
		if resp.PromptFeedback.BlockReason != "" {
			out.ErrorMessage = "the prompt was blocked: " + resp.PromptFeedback.BlockReason
		}
		return out
	}

	cand := resp.Candidates[0]
	out.FinishReason = cand.FinishReason
	if out.FinishReason == "" {
		out.FinishReason = agent.FinishReasonStop
	}
	out.ErrorMessage = cand.FinishMessage

	role := cand.Content.Role
	if role == "" {
		role = models.RoleModel
	}
	content := &models.Content{Role: role}
	for _, p := range cand.Content.Parts {
		switch {
		case p.FunctionCall != nil:
			content.Parts = append(content.Parts, &models.FunctionCallPart{ID: p.FunctionCall.ID, Name: p.FunctionCall.Name, Args: p.FunctionCall.Args})
		case p.Text != "":
			content.Parts = append(content.Parts, &models.TextPart{Text: p.Text, Thought: p.Thought})
		}
	}
	if len(content.Parts) > 0 {
		out.Content = content
	}
	return out
}
