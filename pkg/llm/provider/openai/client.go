// Package openai provides an OpenAI backend for the completion gateway
// using the official OpenAI Go package and its Responses API.
package openai

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"influencesim/pkg/llm"
	"influencesim/pkg/llm/llmerrors"
)

// Client wraps the official OpenAI Go client to implement llm.Client.
type Client struct {
	client sdk.Client
	model  string
}

// NewClientWithModel creates a raw OpenAI client for the given model;
// middleware is applied at a higher level.
func NewClientWithModel(apiKey, model string) llm.Client {
	return &Client{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Complete implements llm.Client using the Responses API.
//
//nolint:gocritic // request passed by value matches interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if err := in.Validate(); err != nil {
		return llm.CompletionResponse{}, llmerrors.NewWithCause(llmerrors.KindUnknown, err, "invalid completion request")
	}

	// Combine messages into a single input string for the Responses API.
	var inputText string
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			inputText += fmt.Sprintf("System: %s\n\n", msg.Content)
		case llm.RoleAssistant:
			inputText += fmt.Sprintf("Assistant: %s\n\n", msg.Content)
		default:
			inputText += msg.Content
		}
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: sdk.Int(int64(in.MaxTokens)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: sdk.String(inputText)},
	}

	// Reasoning models take an effort control instead of a temperature;
	// the two are mutually exclusive on the API.
	if in.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{
			Effort: shared.ReasoningEffort(in.ReasoningEffort),
		}
	} else {
		params.Temperature = sdk.Float(float64(in.Temperature))
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindMalformedResponse, "empty response from OpenAI Responses API")
	}

	content := resp.OutputText()
	if content == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindMalformedResponse, "OpenAI response contained no output text")
	}

	return llm.CompletionResponse{Content: content}, nil
}

// ModelName returns the model name for this client.
func (o *Client) ModelName() string {
	return o.model
}
