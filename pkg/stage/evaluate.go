package stage

import (
	"context"
	"fmt"

	"influencesim/pkg/config"
	"influencesim/pkg/llm"
	"influencesim/pkg/logx"
	"influencesim/pkg/session"
	"influencesim/pkg/templates"
)

const evaluatorSystemPrompt = "You are the evaluator."

// EvaluationStage scores the finished conversation against the rubric with
// a single gateway call.
type EvaluationStage struct {
	client   llm.Client
	renderer *templates.Renderer
	cfg      config.RoleConfig
	logger   *logx.Logger
}

// NewEvaluationStage creates the evaluation stage.
func NewEvaluationStage(client llm.Client, renderer *templates.Renderer, cfg config.RoleConfig) *EvaluationStage {
	return &EvaluationStage{
		client:   client,
		renderer: renderer,
		cfg:      cfg,
		logger:   logx.NewLogger("stage.evaluate"),
	}
}

// Evaluate runs the evaluator once over the full transcript and rubric and
// records the raw feedback text. Idempotent: if feedback already exists it
// is returned without another gateway call. The rubric is passed as-is,
// sentinel included, when the designer produced none.
func (e *EvaluationStage) Evaluate(ctx context.Context, sess *session.Session) (string, error) {
	if feedback, ok := sess.Feedback(); ok {
		return feedback, nil
	}

	if !sess.Finished() {
		return "", fmt.Errorf("cannot evaluate before the simulation is finished")
	}

	scenario, _ := sess.Scenario()
	rubric, _ := sess.Rubric()
	history := session.RenderTranscript(sess.Transcript())

	prompt, err := e.renderer.Render(templates.EvaluationTemplate, &templates.TemplateData{
		ScenarioText:        scenario,
		ConversationHistory: history,
		EvaluationRubric:    rubric,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render evaluation prompt: %w", err)
	}

	in := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(evaluatorSystemPrompt),
			llm.NewUserMessage(prompt),
		},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	}

	resp, err := e.client.Complete(ctx, in)
	if err != nil {
		return "", fmt.Errorf("evaluation call failed: %w", err)
	}

	if err := sess.SetFeedback(resp.Content); err != nil {
		return "", err
	}

	e.logger.Info("evaluation recorded for session %s", sess.ID())
	return resp.Content, nil
}
