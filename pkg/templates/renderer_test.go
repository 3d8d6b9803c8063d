package templates

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRendererParsesAllTemplates(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	for _, name := range []PromptTemplate{ScenarioDesignTemplate, FacilitationTemplate, EvaluationTemplate} {
		out, err := renderer.Render(name, &TemplateData{})
		require.NoError(t, err, "template %s", name)
		assert.NotEmpty(t, out)
	}
}

func TestRenderScenarioDesign(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{
		Tactics:         "anchoring",
		ScenarioDetails: "a salary negotiation",
		Role:            "candidate",
		MakeItUp:        "No",
		Difficulty:      4,
		InfluenceData:   InfluenceData(),
	}

	out, err := renderer.Render(ScenarioDesignTemplate, data)
	require.NoError(t, err)

	assert.Contains(t, out, "anchoring")
	assert.Contains(t, out, "a salary negotiation")
	assert.Contains(t, out, "candidate")
	assert.Contains(t, out, "4")
	assert.Contains(t, out, "SCENARIO:")
	assert.Contains(t, out, "EVALUATION_RUBRIC:")
	assert.NotContains(t, out, "{{")
}

func TestRenderIsDeterministic(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{
		ScenarioText:        "the scenario",
		ConversationHistory: "USER: hi\nFACILITATOR: hello\n",
		EvaluationRubric:    "be persuasive",
	}

	first, err := renderer.Render(EvaluationTemplate, data)
	require.NoError(t, err)
	second, err := renderer.Render(EvaluationTemplate, data)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRenderEmptyOptionalFieldsStayEmpty(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	data := &TemplateData{
		Tactics:       "scarcity",
		Role:          "buyer",
		MakeItUp:      "Yes",
		Difficulty:    1,
		InfluenceData: InfluenceData(),
	}

	out, err := renderer.Render(ScenarioDesignTemplate, data)
	require.NoError(t, err)
	// Blank details render as empty text, no placeholder or default leaks in.
	assert.NotContains(t, out, "<no value>")
}

func TestRenderUnknownTemplate(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	_, err = renderer.Render(PromptTemplate("missing.tpl.md"), &TemplateData{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestInfluenceDataEmbedded(t *testing.T) {
	data := InfluenceData()
	assert.NotEmpty(t, data)
	assert.True(t, strings.Contains(data, "Reciprocity") || strings.Contains(data, "reciprocity"))
}

func TestFacilitationIncludesHistory(t *testing.T) {
	renderer, err := NewRenderer()
	require.NoError(t, err)

	out, err := renderer.Render(FacilitationTemplate, &TemplateData{
		ScenarioText:        "scenario body",
		ConversationHistory: "USER: opening move\n",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "scenario body")
	assert.Contains(t, out, "USER: opening move")
}
