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
)

const facilitatorSystemPrompt = "You are the simulation facilitator."

// SimulationStage drives the multi-turn conversation: each accepted user
// move produces one gateway call and one appended USER/FACILITATOR exchange.
type SimulationStage struct {
	client   llm.Client
	renderer *templates.Renderer
	cfg      config.RoleConfig
	logger   *logx.Logger
}

// NewSimulationStage creates the facilitation stage.
func NewSimulationStage(client llm.Client, renderer *templates.Renderer, cfg config.RoleConfig) *SimulationStage {
	return &SimulationStage{
		client:   client,
		renderer: renderer,
		cfg:      cfg,
		logger:   logx.NewLogger("stage.simulate"),
	}
}

// SubmitMove handles one user move. Blank moves are rejected with a
// ValidationError before any state changes. The conversation context sent
// to the facilitator includes the prospective move, but the transcript is
// only mutated after the gateway call succeeds, so a failure leaves the
// session exactly as it was.
func (s *SimulationStage) SubmitMove(ctx context.Context, sess *session.Session, move string) (string, error) {
	if strings.TrimSpace(move) == "" {
		return "", NewValidationError("move cannot be empty")
	}

	scenario, ok := sess.Scenario()
	if !ok {
		return "", fmt.Errorf("cannot submit a move before a scenario is generated")
	}
	if sess.Finished() {
		return "", fmt.Errorf("cannot submit a move after the simulation is finished")
	}

	// Render the conversation including the move being submitted.
	turns := append(sess.Transcript(), session.Turn{Speaker: session.SpeakerUser, Content: move})
	history := session.RenderTranscript(turns)

	prompt, err := s.renderer.Render(templates.FacilitationTemplate, &templates.TemplateData{
		ScenarioText:        scenario,
		ConversationHistory: history,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render facilitation prompt: %w", err)
	}

	in := llm.CompletionRequest{
		Messages: []llm.CompletionMessage{
			llm.NewSystemMessage(facilitatorSystemPrompt),
			llm.NewUserMessage(prompt),
		},
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	}

	resp, err := s.client.Complete(ctx, in)
	if err != nil {
		return "", fmt.Errorf("facilitation call failed: %w", err)
	}

	if err := sess.AppendExchange(move, resp.Content); err != nil {
		return "", err
	}

	s.logger.Debug("exchange appended: session %s now has %d turns", sess.ID(), len(sess.Transcript()))
	return resp.Content, nil
}

// Finish ends the simulation phase without a gateway call.
func (s *SimulationStage) Finish(sess *session.Session) error {
	return sess.SetFinished()
}
