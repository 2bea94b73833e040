// Package team wires the game design team: the interactive planner the
// user talks to, and the project pipeline it hands approved plans to.
package team

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codeready-toolchain/design-team/pkg/agent"
	"github.com/codeready-toolchain/design-team/pkg/models"
)

// State keys written by the team.
const (
	KeyGameOverview       = "game_overview"
	KeyGameplayPlan       = "gameplay_plan"
	KeyGameplayEvaluation = "gameplay_evaluation"
	KeyArtNarrativePlan   = "art_narrative_plan"
	KeyMarketingStrategy  = "marketing_strategy"
	KeyProductionPlan     = "production_plan"
	KeyDesignDocument     = "game_design_document"
)

// Agent names.
const (
	NamePlanner           = "interactive_planner_agent"
	NameLeadGameDesigner  = "LeadGameDesigner"
	NamePipeline          = "ProjectPipeline"
	NameGameplayDesigner  = "GameplayDesigner"
	NameRefinementLoop    = "gameplay_refinement_loop"
	NameGameplayCritic    = "GameplayDesignCritic"
	NameEscalationChecker = "escalation_checker"
	NameGameplayRefiner   = "gameplay_refiner"
	NameNarrativeDesigner = "NarrativeDesigner"
	NameMarketingDirector = "MarketingDirector"
	NameProducer          = "Producer"
	NamePlanSynthesizer   = "PlanSynthesizer"
)

// DefaultThinkingBudget caps reasoning tokens for the designer roles.
const DefaultThinkingBudget = 1024

// Config selects models and loop limits.
type Config struct {
	// WorkerModel serves the planner, critic, refiner and synthesizer.
	WorkerModel string
	// DesignerModel serves the roles that author plans.
	DesignerModel         string
	MaxGameplayIterations int
	ThinkingBudget        int
	// SynthesizePlan ends the pipeline with the PlanSynthesizer, which
	// merges every plan into one design document.
	SynthesizePlan bool
}

// Team holds every role. Root is the entry point handed to the runner.
type Team struct {
	Root             *agent.LLMAgent
	LeadGameDesigner *agent.LLMAgent
	Pipeline         *agent.SequentialAgent
	RefinementLoop   *agent.LoopAgent
	// PlanSynthesizer is the pipeline's last stage when enabled.
	PlanSynthesizer *agent.LLMAgent
}

// New builds the team.
func New(cfg Config) (*Team, error) {
	if cfg.WorkerModel == "" || cfg.DesignerModel == "" {
		return nil, fmt.Errorf("team: worker and designer models are required")
	}
	if cfg.MaxGameplayIterations <= 0 {
		return nil, fmt.Errorf("team: max gameplay iterations must be positive, got %d", cfg.MaxGameplayIterations)
	}
	if cfg.ThinkingBudget == 0 {
		cfg.ThinkingBudget = DefaultThinkingBudget
	}

	lead := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:           NameLeadGameDesigner,
		Description:    "Generates or refines the existing game design plan.",
		Model:          cfg.DesignerModel,
		Instruction:    withAgreement(leadGameDesignerPrompt),
		OutputKey:      KeyGameOverview,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	gameplayDesigner := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:           NameGameplayDesigner,
		Description:    "Develops core mechanics, systems, and rules that empower the player's agency. Generates thorough plans and foresees contradictions.",
		Model:          cfg.DesignerModel,
		Instruction:    withAgreement(gameplayDesignerPrompt),
		OutputKey:      KeyGameplayPlan,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	critic := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:         NameGameplayCritic,
		Description:  "Evaluates and provides feedback on gameplay mechanics, expected player experience, and design coherence.",
		Model:        cfg.WorkerModel,
		Instruction:  withAgreement(gameplayCriticPrompt),
		OutputKey:    KeyGameplayEvaluation,
		OutputSchema: FeedbackSchema(),
	})

	refiner := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:        NameGameplayRefiner,
		Description: "Refines gameplay according to feedback.",
		Model:       cfg.WorkerModel,
		Instruction: withAgreement(gameplayRefinerPrompt),
		OutputKey:   KeyGameplayPlan,
	})

	loop := agent.NewLoopAgent(NameRefinementLoop, "Critiques and refines the gameplay plan until it passes.",
		cfg.MaxGameplayIterations, critic, NewEscalationChecker(NameEscalationChecker), refiner)

	narrative := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:           NameNarrativeDesigner,
		Description:    "Imbues the existing game with rich artistic and narrative vision.",
		Model:          cfg.DesignerModel,
		Instruction:    withAgreement(narrativeDesignerPrompt),
		OutputKey:      KeyArtNarrativePlan,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	marketing := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:           NameMarketingDirector,
		Description:    "Crafts the marketing strategy and messaging for the game.",
		Model:          cfg.DesignerModel,
		Instruction:    withAgreement(marketingDirectorPrompt),
		OutputKey:      KeyMarketingStrategy,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	producer := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:           NameProducer,
		Description:    "Plans a timeline and task list given a game design document.",
		Model:          cfg.DesignerModel,
		Instruction:    withAgreement(producerPrompt),
		OutputKey:      KeyProductionPlan,
		ThinkingBudget: cfg.ThinkingBudget,
	})

	synthesizer := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:        NamePlanSynthesizer,
		Description: "Unifies all content into a coherent Game Design Document.",
		Model:       cfg.WorkerModel,
		Instruction: planSynthesizerPrompt,
		OutputKey:   KeyDesignDocument,
	})

	stages := []agent.Agent{gameplayDesigner, loop, narrative, marketing, producer}
	if cfg.SynthesizePlan {
		stages = append(stages, synthesizer)
	}
	pipeline := agent.NewSequentialAgent(NamePipeline, "Executes the approved game design across the whole team.", stages...)

	root := agent.NewLLMAgent(agent.LLMAgentConfig{
		Name:        NamePlanner,
		Description: "The primary game design agent. Collaborates with the directing user and then executes the project design.",
		Model:       cfg.WorkerModel,
		Instruction: withAgreement(plannerPrompt),
		Tools:       []agent.Tool{agent.NewAgentTool(lead)},
		SubAgents:   []agent.Agent{pipeline},
	})

	return &Team{
		Root:             root,
		LeadGameDesigner: lead,
		Pipeline:         pipeline,
		RefinementLoop:   loop,
		PlanSynthesizer:  synthesizer,
	}, nil
}

func withAgreement(tmpl string) string {
	return fmt.Sprintf(tmpl, teamAgreement)
}

// NewEscalationChecker returns an agent that ends the refinement loop once
// the latest gameplay evaluation passes. Otherwise it emits an empty event
// and the loop continues.
func NewEscalationChecker(name string) *agent.FuncAgent {
	return agent.NewFuncAgent(name, "Stops the refinement loop when the gameplay evaluation passes.",
		func(_ context.Context, ictx *agent.InvocationContext) (*models.Event, error) {
			ev := agent.NewEvent(ictx, name)
			fb, ok := ParseFeedback(ictx.State()[KeyGameplayEvaluation])
			if ok && fb.Grade == GradePass {
				slog.Info("Gameplay evaluation passed, ending refinement loop", "session_id", ictx.Session.ID)
				ev.Actions = &models.EventActions{Escalate: true}
				return ev, nil
			}
			slog.Info("Gameplay evaluation failed or missing, refinement continues", "session_id", ictx.Session.ID)
			return ev, nil
		})
}
