package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tagging returns a middleware that appends its tag to the response content
// after the inner client runs, so ordering is observable.
func tagging(tag string) Middleware {
	return func(next Client) Client {
		return WrapClient(
			func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
				resp, err := next.Complete(ctx, req)
				if err != nil {
					return CompletionResponse{}, err
				}
				resp.Content += tag
				return resp, nil
			},
			next.ModelName,
		)
	}
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "base"}}, nil)

	// Chain(client, mw1, mw2): mw1 is outermost, so its tag lands last.
	client := Chain(mock, tagging("-outer"), tagging("-inner"))

	resp, err := client.Complete(context.Background(), NewCompletionRequest(
		[]CompletionMessage{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "base-inner-outer", resp.Content)
	assert.Equal(t, "mock", client.ModelName())
}

func TestChainWithoutMiddleware(t *testing.T) {
	mock := NewMockClient([]CompletionResponse{{Content: "untouched"}}, nil)
	client := Chain(mock)

	resp, err := client.Complete(context.Background(), NewCompletionRequest(
		[]CompletionMessage{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "untouched", resp.Content)
}

func TestMockClientScriptedErrors(t *testing.T) {
	mock := NewMockClient(
		[]CompletionResponse{{Content: "first"}, {Content: "second"}},
		[]error{nil, assert.AnError},
	)

	req := NewCompletionRequest([]CompletionMessage{NewUserMessage("hi")})

	resp, err := mock.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "first", resp.Content)

	_, err = mock.Complete(context.Background(), req)
	require.Error(t, err)

	resp, err = mock.Complete(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "second", resp.Content)

	assert.Equal(t, 3, mock.Calls())
	assert.Len(t, mock.Requests(), 3)
}
