// Package stage implements the three model-calling phases of a training
// run: scenario design, simulation facilitation, and evaluation. Stages are
// stateless; everything they read and write lives on the session aggregate
// owned by the controller.
package stage

import (
	"context"
	"fmt"
	"strings"

	"influencesim/pkg/config"
	"influencesim/pkg/llm"
	"influencesim/pkg/logx"
	"influencesim/pkg/session"
	"influencesim/pkg/templates"
	"influencesim/pkg/tokens"
)

const (
	// RubricDelimiter separates scenario text from rubric text in the
	// designer's combined response.
	RubricDelimiter = "EVALUATION_RUBRIC:"

	// ScenarioLabel is the optional label stripped from the scenario part.
	ScenarioLabel = "SCENARIO:"

	// NoRubricSentinel is recorded as the rubric when the designer's
	// response contains no delimiter. Downstream stages consume it like
	// any other rubric text.
	NoRubricSentinel = "No rubric found."

	designerSystemPrompt = "You are a helpful scenario designer."
)

// DesignStage produces a scenario and evaluation rubric from user-supplied
// parameters with a single gateway call.
type DesignStage struct {
	client   llm.Client
	renderer *templates.Renderer
	cfg      config.RoleConfig
	logger   *logx.Logger
}

// NewDesignStage creates the scenario-design stage.
func NewDesignStage(client llm.Client, renderer *templates.Renderer, cfg config.RoleConfig) *DesignStage {
	return &DesignStage{
		client:   client,
		renderer: renderer,
		cfg:      cfg,
		logger:   logx.NewLogger("stage.design"),
	}
}

// Generate renders the design prompt, invokes the gateway once, parses the
// combined response, and writes the (scenario, rubric) pair atomically into
// the session. A failed call leaves the session untouched.
func (d *DesignStage) Generate(ctx context.Context, sess *session.Session, req *session.ScenarioRequest) error {
	if err := req.Validate(); err != nil {
		return NewValidationError("%v", err)
	}
	if _, ok := sess.Scenario(); ok {
		return fmt.Errorf("session %s already has a scenario", sess.ID())
	}

	makeItUp := "No"
	if req.MakeItUp {
		makeItUp = "Yes"
	}

	prompt, err := d.renderer.Render(templates.ScenarioDesignTemplate, &templates.TemplateData{
		Tactics:         req.Tactics,
		ScenarioDetails: req.ScenarioDetails,
		Role:            req.Role,
		MakeItUp:        makeItUp,
		Difficulty:      req.Difficulty,
		InfluenceData:   templates.InfluenceData(),
	})
	if err != nil {
		return fmt.Errorf("failed to render design prompt: %w", err)
	}

	d.logger.Debug("design prompt: ~%d tokens", tokens.CountSimple(prompt))

	in := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(designerSystemPrompt),
			llm.NewUserMessage(prompt),
		},
		MaxTokens:       d.cfg.MaxTokens,
		Temperature:     d.cfg.Temperature,
		ReasoningEffort: llm.ReasoningEffort(d.cfg.ReasoningEffort),
	}

	resp, err := d.client.Complete(ctx, in)
	if err != nil {
		return fmt.Errorf("scenario design call failed: %w", err)
	}

	scenario, rubric := ParseDesignOutput(resp.Content)
	if err := sess.SetScenario(scenario, rubric); err != nil {
		return err
	}

	d.logger.Info("scenario generated for session %s (%d rubric chars)", sess.ID(), len(rubric))
	return nil
}

// ParseDesignOutput splits the designer's combined response into scenario
// and rubric text. If the rubric delimiter is present, the text before it
// (with any SCENARIO: label stripped) becomes the scenario and the text
// after becomes the rubric, both trimmed. If absent, the whole trimmed
// response is the scenario and the rubric is NoRubricSentinel.
func ParseDesignOutput(text string) (scenario, rubric string) {
	before, after, found := strings.Cut(text, RubricDelimiter)
	if !found {
		return strings.TrimSpace(text), NoRubricSentinel
	}
	scenario = strings.TrimSpace(strings.ReplaceAll(before, ScenarioLabel, ""))
	rubric = strings.TrimSpace(after)
	return scenario, rubric
}
