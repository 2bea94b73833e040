package team

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/models"
)

type scriptedLLM struct {
	responses []*agent.LLMResponse
	requests  []*agent.LLMRequest
}

func (s *scriptedLLM) GenerateContent(_ context.Context, req *agent.LLMRequest) (*agent.LLMResponse, error) {
	s.requests = append(s.requests, req)
	if len(s.responses) == 0 {
		return nil, fmt.Errorf("unexpected call %d", len(s.requests))
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func text(s string) *agent.LLMResponse {
	return &agent.LLMResponse{Content: models.NewTextContent(models.RoleModel, s), FinishReason: agent.FinishReasonStop}
}

func testConfig() Config {
	return Config{WorkerModel: "worker", DesignerModel: "designer", MaxGameplayIterations: 5}
}

func TestNew(t *testing.T) {
	tm, err := New(testConfig())
	require.NoError(t, err)

	assert.Equal(t, NamePlanner, tm.Root.Name())
	require.Len(t, tm.Root.SubAgents(), 1)
	assert.Equal(t, NamePipeline, tm.Root.SubAgents()[0].Name())

	var names []string
	for _, a := range tm.Pipeline.SubAgents() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{NameGameplayDesigner, NameRefinementLoop, NameNarrativeDesigner, NameMarketingDirector, NameProducer}, names)

	names = nil
	for _, a := range tm.RefinementLoop.SubAgents() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{NameGameplayCritic, NameEscalationChecker, NameGameplayRefiner}, names)
	assert.Equal(t, 5, tm.RefinementLoop.MaxIterations())

	assert.Equal(t, KeyGameOverview, tm.LeadGameDesigner.Config().OutputKey)
	assert.Equal(t, DefaultThinkingBudget, tm.LeadGameDesigner.Config().ThinkingBudget)
	assert.Contains(t, tm.LeadGameDesigner.Config().Instruction, "TEAM AGREEMENT")
	assert.NotContains(t, tm.PlanSynthesizer.Config().Instruction, "%!")
	assert.Equal(t, KeyDesignDocument, tm.PlanSynthesizer.Config().OutputKey)

	cfg := testConfig()
	cfg.SynthesizePlan = true
	tm, err = New(cfg)
	require.NoError(t, err)
	stages := tm.Pipeline.SubAgents()
	require.Len(t, stages, 6)
	assert.Equal(t, NamePlanSynthesizer, stages[5].Name())
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{WorkerModel: "w", MaxGameplayIterations: 1})
	require.Error(t, err)

	_, err = New(Config{WorkerModel: "w", DesignerModel: "d"})
	require.Error(t, err)
}

func TestParseFeedback(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		want   Feedback
		wantOK bool
	}{
		{name: "decoded object", in: map[string]any{"grade": "pass", "comment": "great"}, want: Feedback{Grade: "pass", Comment: "great"}, wantOK: true},
		{name: "json string", in: `{"grade":"fail","comment":"meh","follow_ups":["add co-op"]}`, want: Feedback{Grade: "fail", Comment: "meh", FollowUps: []string{"add co-op"}}, wantOK: true},
		{name: "missing", in: nil},
		{name: "no grade", in: map[string]any{"comment": "?"}},
		{name: "not json", in: "pass"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseFeedback(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEscalationChecker(t *testing.T) {
	checker := NewEscalationChecker("checker")
	run := func(state map[string]any) *models.Event {
		ictx := agent.NewInvocationContext(&models.Session{ID: "s1", State: state}, nil)
		var out []*models.Event
		for ev, err := range checker.Run(context.Background(), ictx) {
			require.NoError(t, err)
			out = append(out, ev)
		}
		require.Len(t, out, 1)
		return out[0]
	}

	ev := run(map[string]any{KeyGameplayEvaluation: map[string]any{"grade": "pass"}})
	require.NotNil(t, ev.Actions)
	assert.True(t, ev.Actions.Escalate)

	ev = run(map[string]any{KeyGameplayEvaluation: map[string]any{"grade": "fail"}})
	assert.Nil(t, ev.Actions)
	assert.Nil(t, ev.Content)

	ev = run(map[string]any{})
	assert.Nil(t, ev.Actions)
}

func TestPipelineRun(t *testing.T) {
	llm := &scriptedLLM{responses: []*agent.LLMResponse{
		{
			Content: &models.Content{Role: models.RoleModel, Parts: []models.Part{
				&models.FunctionCallPart{Name: agent.TransferToAgentTool, Args: map[string]any{"agent_name": NamePipeline}},
			}},
			FinishReason: agent.FinishReasonStop,
		},
		text("gameplay v1"),
		text(`{"grade": "fail", "comment": "needs social hooks", "follow_ups": ["add trading"]}`),
		text("gameplay v2"),
		text(`{"grade": "pass", "comment": "solid"}`),
		text("art and narrative"),
		text("marketing"),
		text("production"),
	}}
	tm, err := New(testConfig())
	require.NoError(t, err)

	sess := &models.Session{ID: "s1", State: map[string]any{KeyGameOverview: "a cozy farming game"}}
	agent.ApplyEvent(sess, &models.Event{Author: models.AuthorUser, Content: models.NewTextContent(models.RoleUser, "looks good, run it")})
	ictx := agent.NewInvocationContext(sess, llm)

	var authors []string
	for ev, err := range tm.Root.Run(context.Background(), ictx) {
		require.NoError(t, err)
		agent.ApplyEvent(sess, ev)
		authors = append(authors, ev.Author)
	}

	assert.Equal(t, []string{
		NamePlanner, NamePlanner,
		NameGameplayDesigner,
		NameGameplayCritic, NameEscalationChecker, NameGameplayRefiner,
		NameGameplayCritic, NameEscalationChecker,
		NameNarrativeDesigner, NameMarketingDirector, NameProducer,
	}, authors)

	assert.Equal(t, "gameplay v2", sess.State[KeyGameplayPlan])
	assert.Equal(t, map[string]any{"grade": "pass", "comment": "solid"}, sess.State[KeyGameplayEvaluation])
	assert.Equal(t, "art and narrative", sess.State[KeyArtNarrativePlan])
	assert.Equal(t, "marketing", sess.State[KeyMarketingStrategy])
	assert.Equal(t, "production", sess.State[KeyProductionPlan])

	require.Len(t, llm.requests, 8)
	assert.Equal(t, "worker", llm.requests[0].Model)
	assert.Equal(t, "designer", llm.requests[1].Model)
	assert.Equal(t, "worker", llm.requests[2].Model)
	assert.NotNil(t, llm.requests[2].ResponseSchema)
	assert.Contains(t, llm.requests[2].SystemInstruction, "gameplay v1")
	assert.Contains(t, llm.requests[3].SystemInstruction, "add trading")
	assert.Contains(t, llm.requests[7].SystemInstruction, "marketing")
}

func TestPipelineRunWithSynthesis(t *testing.T) {
	llm := &scriptedLLM{responses: []*agent.LLMResponse{
		{
			Content: &models.Content{Role: models.RoleModel, Parts: []models.Part{
				&models.FunctionCallPart{Name: agent.TransferToAgentTool, Args: map[string]any{"agent_name": NamePipeline}},
			}},
			FinishReason: agent.FinishReasonStop,
		},
		text("gameplay v1"),
		text(`{"grade": "pass", "comment": "solid"}`),
		text("art and narrative"),
		text("marketing"),
		text("production"),
		text("the design document"),
	}}
	cfg := testConfig()
	cfg.SynthesizePlan = true
	tm, err := New(cfg)
	require.NoError(t, err)

	sess := &models.Session{ID: "s1", State: map[string]any{KeyGameOverview: "a cozy farming game"}}
	agent.ApplyEvent(sess, &models.Event{Author: models.AuthorUser, Content: models.NewTextContent(models.RoleUser, "go ahead")})
	ictx := agent.NewInvocationContext(sess, llm)

	var authors []string
	for ev, err := range tm.Root.Run(context.Background(), ictx) {
		require.NoError(t, err)
		agent.ApplyEvent(sess, ev)
		authors = append(authors, ev.Author)
	}

	require.NotEmpty(t, authors)
	assert.Equal(t, NamePlanSynthesizer, authors[len(authors)-1])
	assert.Equal(t, "the design document", sess.State[KeyDesignDocument])

	require.Len(t, llm.requests, 7)
	last := llm.requests[6]
	assert.Equal(t, "worker", last.Model)
	assert.Contains(t, last.SystemInstruction, "a cozy farming game")
	assert.Contains(t, last.SystemInstruction, "production")
	assert.NotContains(t, last.SystemInstruction, "{production_plan}")
}
