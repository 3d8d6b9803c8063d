package controller

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"influencesim/pkg/config"
	"influencesim/pkg/llm"
	"influencesim/pkg/session"
	"influencesim/pkg/stage"
	"influencesim/pkg/templates"
)

type mocks struct {
	design *llm.MockClient
	sim    *llm.MockClient
	eval   *llm.MockClient
}

// newTestController wires a controller with one mock client per stage so
// call counts can be asserted independently.
func newTestController(t *testing.T, m *mocks, opts ...Option) *Controller {
	t.Helper()
	renderer, err := templates.NewRenderer()
	require.NoError(t, err)

	designerCfg := config.RoleConfig{Model: "o3-mini", ReasoningEffort: "high", MaxTokens: 4096}
	chatCfg := config.RoleConfig{Model: "gpt-4o", Temperature: 0.7, MaxTokens: 4096}

	return New(
		stage.NewDesignStage(m.design, renderer, designerCfg),
		stage.NewSimulationStage(m.sim, renderer, chatCfg),
		stage.NewEvaluationStage(m.eval, renderer, chatCfg),
		opts...,
	)
}

func happyMocks() *mocks {
	return &mocks{
		design: llm.NewMockClient([]llm.CompletionResponse{
			{Content: "SCENARIO: The renewal meeting.\nEVALUATION_RUBRIC:\n1. Reciprocity."},
			{Content: "SCENARIO: The renewal meeting.\nEVALUATION_RUBRIC:\n1. Reciprocity."},
		}, nil),
		sim: llm.NewMockClient([]llm.CompletionResponse{
			{Content: "The vendor hesitates."},
			{Content: "The vendor counters."},
		}, nil),
		eval: llm.NewMockClient([]llm.CompletionResponse{
			{Content: "You led with value. Good."},
		}, nil),
	}
}

func validRequest() *session.ScenarioRequest {
	return &session.ScenarioRequest{
		Tactics:    "reciprocity",
		Role:       "account manager",
		Difficulty: 2,
	}
}

type recordingArchive struct {
	records []string
	err     error
}

func (a *recordingArchive) RecordSession(_ context.Context, sess *session.Session, finalState string) error {
	if a.err != nil {
		return a.err
	}
	a.records = append(a.records, sess.ID()+"/"+finalState)
	return nil
}

func TestControllerFullRun(t *testing.T) {
	m := happyMocks()
	ctrl := newTestController(t, m)
	ctx := context.Background()

	assert.Equal(t, StateSetup, ctrl.State())

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	assert.Equal(t, StateSimulating, ctrl.State())
	scenario, ok := ctrl.Session().Scenario()
	require.True(t, ok)
	assert.Equal(t, "The renewal meeting.", scenario)

	reply, err := ctrl.SubmitMove(ctx, "I offer a longer term.")
	require.NoError(t, err)
	assert.Equal(t, "The vendor hesitates.", reply)
	assert.Equal(t, StateSimulating, ctrl.State())

	_, err = ctrl.SubmitMove(ctx, "I hold firm on price.")
	require.NoError(t, err)
	assert.Len(t, ctrl.Session().Transcript(), 4)

	feedback, err := ctrl.Finish(ctx)
	require.NoError(t, err)
	assert.Equal(t, "You led with value. Good.", feedback)
	assert.Equal(t, StateFinished, ctrl.State())

	assert.Equal(t, 1, m.design.Calls())
	assert.Equal(t, 2, m.sim.Calls())
	assert.Equal(t, 1, m.eval.Calls())
}

func TestControllerRejectsEventsOutOfState(t *testing.T) {
	ctrl := newTestController(t, happyMocks())
	ctx := context.Background()

	// SETUP accepts only scenario requests.
	_, err := ctrl.SubmitMove(ctx, "a move")
	require.Error(t, err)
	_, err = ctrl.Finish(ctx)
	require.Error(t, err)
	_, err = ctrl.Evaluate(ctx)
	require.Error(t, err)

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))

	// SIMULATING rejects a second scenario request and early evaluation.
	require.Error(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	_, err = ctrl.Evaluate(ctx)
	require.Error(t, err)

	_, err = ctrl.Finish(ctx)
	require.NoError(t, err)

	// FINISHED rejects moves, finish, and scenario requests.
	_, err = ctrl.SubmitMove(ctx, "late move")
	require.Error(t, err)
	_, err = ctrl.Finish(ctx)
	require.Error(t, err)
	require.Error(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
}

func TestControllerDesignFailureStaysInSetup(t *testing.T) {
	m := happyMocks()
	m.design = llm.NewMockClient([]llm.CompletionResponse{
		{Content: "SCENARIO: Retry works.\nEVALUATION_RUBRIC:\nR."},
	}, []error{assert.AnError})
	ctrl := newTestController(t, m)
	ctx := context.Background()

	require.Error(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	assert.Equal(t, StateSetup, ctrl.State())
	_, ok := ctrl.Session().Scenario()
	assert.False(t, ok)

	// The same controller accepts a retried request.
	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	assert.Equal(t, StateSimulating, ctrl.State())
}

func TestControllerBlankMoveDoesNotChangeState(t *testing.T) {
	ctrl := newTestController(t, happyMocks())
	ctx := context.Background()
	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))

	_, err := ctrl.SubmitMove(ctx, "   ")
	require.Error(t, err)
	assert.True(t, stage.IsValidation(err))
	assert.Equal(t, StateSimulating, ctrl.State())
	assert.Empty(t, ctrl.Session().Transcript())
}

func TestControllerEvaluationIdempotent(t *testing.T) {
	m := happyMocks()
	ctrl := newTestController(t, m)
	ctx := context.Background()

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	_, err := ctrl.SubmitMove(ctx, "a move")
	require.NoError(t, err)

	first, err := ctrl.Finish(ctx)
	require.NoError(t, err)

	second, err := ctrl.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, m.eval.Calls())
}

func TestControllerEvaluationFailureThenRetry(t *testing.T) {
	m := happyMocks()
	m.eval = llm.NewMockClient([]llm.CompletionResponse{
		{Content: "Second attempt feedback."},
	}, []error{assert.AnError})
	ctrl := newTestController(t, m)
	ctx := context.Background()

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	_, err := ctrl.SubmitMove(ctx, "a move")
	require.NoError(t, err)

	// Finish transitions to FINISHED even though the evaluation call fails.
	_, err = ctrl.Finish(ctx)
	require.Error(t, err)
	assert.Equal(t, StateFinished, ctrl.State())
	_, ok := ctrl.Session().Feedback()
	assert.False(t, ok)

	feedback, err := ctrl.Evaluate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Second attempt feedback.", feedback)
	assert.Equal(t, 2, m.eval.Calls())
}

func TestControllerResetFromEveryState(t *testing.T) {
	ctx := context.Background()

	advance := map[string]func(*Controller){
		"setup": func(_ *Controller) {},
		"simulating": func(c *Controller) {
			require.NoError(t, c.SubmitScenarioRequest(ctx, validRequest()))
		},
		"finished": func(c *Controller) {
			require.NoError(t, c.SubmitScenarioRequest(ctx, validRequest()))
			_, err := c.Finish(ctx)
			require.NoError(t, err)
		},
	}

	for name, setup := range advance {
		t.Run(name, func(t *testing.T) {
			ctrl := newTestController(t, happyMocks())
			setup(ctrl)
			oldID := ctrl.Session().ID()

			ctrl.Reset()

			assert.Equal(t, StateSetup, ctrl.State())
			assert.NotEqual(t, oldID, ctrl.Session().ID())
			_, ok := ctrl.Session().Scenario()
			assert.False(t, ok)
			assert.Empty(t, ctrl.Session().Transcript())

			// A fresh run starts cleanly after reset.
			require.NoError(t, ctrl.SubmitScenarioRequest(ctx, &session.ScenarioRequest{
				Tactics:    "scarcity",
				Role:       "seller",
				Difficulty: 4,
			}))
		})
	}
}

func TestControllerArchivesOnceOnFirstSuccess(t *testing.T) {
	archive := &recordingArchive{}
	ctrl := newTestController(t, happyMocks(), WithArchive(archive))
	ctx := context.Background()

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	_, err := ctrl.SubmitMove(ctx, "a move")
	require.NoError(t, err)
	_, err = ctrl.Finish(ctx)
	require.NoError(t, err)

	// Repeated evaluations never re-archive.
	_, err = ctrl.Evaluate(ctx)
	require.NoError(t, err)
	_, err = ctrl.Evaluate(ctx)
	require.NoError(t, err)

	require.Len(t, archive.records, 1)
	assert.Equal(t, ctrl.Session().ID()+"/FINISHED", archive.records[0])
}

func TestControllerArchiveFailureIsNotASessionError(t *testing.T) {
	archive := &recordingArchive{err: assert.AnError}
	ctrl := newTestController(t, happyMocks(), WithArchive(archive))
	ctx := context.Background()

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	feedback, err := ctrl.Finish(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, feedback)
}

func TestControllerTransitionHistory(t *testing.T) {
	ctrl := newTestController(t, happyMocks())
	ctx := context.Background()

	require.NoError(t, ctrl.SubmitScenarioRequest(ctx, validRequest()))
	_, err := ctrl.Finish(ctx)
	require.NoError(t, err)
	ctrl.Reset()

	transitions := ctrl.Transitions()
	require.Len(t, transitions, 3)
	assert.Equal(t, StateSetup, transitions[0].From)
	assert.Equal(t, StateSimulating, transitions[0].To)
	assert.Equal(t, StateSimulating, transitions[1].From)
	assert.Equal(t, StateFinished, transitions[1].To)
	assert.Equal(t, StateFinished, transitions[2].From)
	assert.Equal(t, StateSetup, transitions[2].To)
}
