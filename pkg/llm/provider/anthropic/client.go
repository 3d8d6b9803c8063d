// Package anthropic provides an Anthropic Claude backend for the
// completion gateway.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"influencesim/pkg/llm"
	"influencesim/pkg/llm/llmerrors"
)

// Client wraps the Anthropic API client to implement llm.Client.
type Client struct {
	client sdk.Client
	model  sdk.Model
}

// NewClientWithModel creates a raw Claude client for the given model;
// middleware is applied at a higher level.
func NewClientWithModel(apiKey, model string) llm.Client {
	return &Client{
		client: sdk.NewClient(option.WithAPIKey(apiKey)),
		model:  sdk.Model(model),
	}
}

// prepareMessages adapts a request to Anthropic API requirements: system
// messages move to the top-level system parameter and consecutive user
// messages are merged so strict user/assistant alternation holds.
func prepareMessages(messages []llm.CompletionMessage) (systemPrompt string, merged []llm.CompletionMessage, err error) {
	if len(messages) == 0 {
		return "", nil, fmt.Errorf("message list cannot be empty")
	}

	var systemParts []string
	var rest []llm.CompletionMessage
	for i := range messages {
		msg := &messages[i]
		if msg.Role == llm.RoleSystem {
			systemParts = append(systemParts, msg.Content)
		} else {
			rest = append(rest, *msg)
		}
	}
	systemPrompt = strings.Join(systemParts, "\n\n")

	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var userParts []string
	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			if len(userParts) > 0 {
				merged = append(merged, llm.CompletionMessage{
					Role:    llm.RoleUser,
					Content: strings.Join(userParts, "\n\n"),
				})
				userParts = nil
			}
			merged = append(merged, *msg)
		} else {
			userParts = append(userParts, msg.Content)
		}
	}
	if len(userParts) > 0 {
		merged = append(merged, llm.CompletionMessage{
			Role:    llm.RoleUser,
			Content: strings.Join(userParts, "\n\n"),
		})
	}

	if merged[len(merged)-1].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", merged[len(merged)-1].Role)
	}

	return systemPrompt, merged, nil
}

// Complete implements llm.Client.
//
//nolint:gocritic // request passed by value matches interface
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	systemPrompt, messages, err := prepareMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewWithCause(llmerrors.KindUnknown, err, "message preparation failed")
	}

	params := sdk.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: sdk.Float(float64(in.Temperature)),
	}

	msgParams := make([]sdk.MessageParam, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		msgParams = append(msgParams, sdk.MessageParam{
			Role:    sdk.MessageParamRole(msg.Role),
			Content: []sdk.ContentBlockParamUnion{sdk.NewTextBlock(msg.Content)},
		})
	}
	params.Messages = msgParams

	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{
			Text: systemPrompt,
			Type: "text",
		}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.Classify(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindMalformedResponse, "received empty response from Claude API")
	}

	var responseText string
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			responseText += block.AsText().Text
		}
	}
	if responseText == "" {
		return llm.CompletionResponse{}, llmerrors.New(llmerrors.KindMalformedResponse, "Claude response contained no text blocks")
	}

	return llm.CompletionResponse{
		Content:    responseText,
		StopReason: string(resp.StopReason),
	}, nil
}

// ModelName returns the model name for this client.
func (c *Client) ModelName() string {
	return string(c.model)
}
