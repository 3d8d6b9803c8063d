package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionInitialState(t *testing.T) {
	sess := New()

	assert.NotEmpty(t, sess.ID())
	assert.False(t, sess.CreatedAt().IsZero())

	_, ok := sess.Scenario()
	assert.False(t, ok)
	_, ok = sess.Rubric()
	assert.False(t, ok)
	_, ok = sess.Feedback()
	assert.False(t, ok)
	assert.Empty(t, sess.Transcript())
	assert.False(t, sess.Finished())
}

func TestSetScenarioWritesPairAtomically(t *testing.T) {
	sess := New()
	require.NoError(t, sess.SetScenario("the scenario", "the rubric"))

	scenario, ok := sess.Scenario()
	require.True(t, ok)
	assert.Equal(t, "the scenario", scenario)

	rubric, ok := sess.Rubric()
	require.True(t, ok)
	assert.Equal(t, "the rubric", rubric)

	// Only one scenario per run.
	require.Error(t, sess.SetScenario("another", "rubric"))
	scenario, _ = sess.Scenario()
	assert.Equal(t, "the scenario", scenario)
}

func TestAppendExchangeGuards(t *testing.T) {
	sess := New()
	require.Error(t, sess.AppendExchange("move", "reply"), "transcript must stay empty before scenario")

	require.NoError(t, sess.SetScenario("s", "r"))
	require.NoError(t, sess.AppendExchange("move one", "reply one"))
	require.NoError(t, sess.AppendExchange("move two", "reply two"))

	turns := sess.Transcript()
	require.Len(t, turns, 4)
	assert.Equal(t, []Turn{
		{Speaker: SpeakerUser, Content: "move one"},
		{Speaker: SpeakerFacilitator, Content: "reply one"},
		{Speaker: SpeakerUser, Content: "move two"},
		{Speaker: SpeakerFacilitator, Content: "reply two"},
	}, turns)

	require.NoError(t, sess.SetFinished())
	require.Error(t, sess.AppendExchange("late move", "late reply"))
	assert.Len(t, sess.Transcript(), 4)
}

func TestTranscriptReturnsCopy(t *testing.T) {
	sess := New()
	require.NoError(t, sess.SetScenario("s", "r"))
	require.NoError(t, sess.AppendExchange("m", "f"))

	turns := sess.Transcript()
	turns[0].Content = "mutated"
	assert.Equal(t, "m", sess.Transcript()[0].Content)
}

func TestSetFinishedRequiresScenario(t *testing.T) {
	sess := New()
	require.Error(t, sess.SetFinished())

	require.NoError(t, sess.SetScenario("s", "r"))
	require.NoError(t, sess.SetFinished())
	assert.True(t, sess.Finished())
}

func TestSetFeedbackGuards(t *testing.T) {
	sess := New()
	require.NoError(t, sess.SetScenario("s", "r"))
	require.Error(t, sess.SetFeedback("too early"))

	require.NoError(t, sess.SetFinished())
	require.NoError(t, sess.SetFeedback("well done"))

	feedback, ok := sess.Feedback()
	require.True(t, ok)
	assert.Equal(t, "well done", feedback)

	require.Error(t, sess.SetFeedback("again"))
	feedback, _ = sess.Feedback()
	assert.Equal(t, "well done", feedback)
}

func TestResetClearsEverything(t *testing.T) {
	sess := New()
	oldID := sess.ID()
	require.NoError(t, sess.SetScenario("s", "r"))
	require.NoError(t, sess.AppendExchange("m", "f"))
	require.NoError(t, sess.SetFinished())
	require.NoError(t, sess.SetFeedback("feedback"))

	sess.Reset()

	assert.NotEqual(t, oldID, sess.ID())
	_, ok := sess.Scenario()
	assert.False(t, ok)
	_, ok = sess.Feedback()
	assert.False(t, ok)
	assert.Empty(t, sess.Transcript())
	assert.False(t, sess.Finished())

	// A reset session supports a full new run.
	require.NoError(t, sess.SetScenario("s2", "r2"))
	require.NoError(t, sess.AppendExchange("m2", "f2"))
}

func TestScenarioRequestValidate(t *testing.T) {
	tests := []struct {
		name       string
		difficulty int
		wantErr    bool
	}{
		{"minimum", 1, false},
		{"maximum", 5, false},
		{"middle", 3, false},
		{"zero", 0, true},
		{"too high", 6, true},
		{"negative", -2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := &ScenarioRequest{Difficulty: tt.difficulty}
			err := req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRenderTranscript(t *testing.T) {
	turns := []Turn{
		{Speaker: SpeakerUser, Content: "hello"},
		{Speaker: SpeakerFacilitator, Content: "hi there"},
	}
	assert.Equal(t, "USER: hello\nFACILITATOR: hi there\n", RenderTranscript(turns))
	assert.Equal(t, "", RenderTranscript(nil))
}
