// Package templates provides prompt rendering for the three simulation
// personas. Rendering is pure: identical inputs produce byte-identical
// output, with no network or state access.
package templates

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"
)

//go:embed *.tpl.md influence_data.md
var templateFS embed.FS

// PromptTemplate identifies one of the stage prompt templates.
type PromptTemplate string

const (
	// ScenarioDesignTemplate renders the scenario-design prompt.
	ScenarioDesignTemplate PromptTemplate = "scenario_design.tpl.md"
	// FacilitationTemplate renders the per-move facilitation prompt.
	FacilitationTemplate PromptTemplate = "facilitation.tpl.md"
	// EvaluationTemplate renders the final evaluation prompt.
	EvaluationTemplate PromptTemplate = "evaluation.tpl.md"
)

// TemplateData holds the data for prompt rendering. Each template reads the
// subset of fields it needs; unused fields are ignored. Empty optional
// fields (e.g. blank ScenarioDetails) render as empty text, not defaults.
type TemplateData struct {
	// Scenario-design inputs.
	Tactics         string
	ScenarioDetails string
	Role            string
	MakeItUp        string // "Yes" or "No", rendered verbatim
	Difficulty      int
	InfluenceData   string

	// Facilitation and evaluation inputs.
	ScenarioText        string
	ConversationHistory string
	EvaluationRubric    string
}

// Renderer renders the persona prompt templates.
type Renderer struct {
	templates map[PromptTemplate]*template.Template
}

// NewRenderer creates a renderer with all stage templates parsed.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{
		templates: make(map[PromptTemplate]*template.Template),
	}

	templateNames := []PromptTemplate{
		ScenarioDesignTemplate,
		FacilitationTemplate,
		EvaluationTemplate,
	}

	for _, name := range templateNames {
		content, err := templateFS.ReadFile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read template %s: %w", name, err)
		}

		tmpl, err := template.New(string(name)).Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}

		r.templates[name] = tmpl
	}

	return r, nil
}

// Render renders the specified template with the given data.
func (r *Renderer) Render(templateName PromptTemplate, data *TemplateData) (string, error) {
	tmpl, exists := r.templates[templateName]
	if !exists {
		return "", fmt.Errorf("template %s not found", templateName)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %s: %w", templateName, err)
	}

	return buf.String(), nil
}

// InfluenceData returns the embedded reference corpus, an opaque domain
// text blob injected verbatim into the design prompt.
func InfluenceData() string {
	content, err := templateFS.ReadFile("influence_data.md")
	if err != nil {
		// The corpus is embedded at compile time; a read failure means a
		// broken build, not a runtime condition.
		panic(fmt.Sprintf("embedded influence data missing: %v", err))
	}
	return string(content)
}
