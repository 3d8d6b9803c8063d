// Package middleware provides composable wrappers for gateway clients:
// per-request timeouts and Prometheus metrics.
package middleware

import (
	"context"
	"time"

	"influencesim/pkg/llm"
	"influencesim/pkg/llm/llmerrors"
)

// Timeout returns a middleware that bounds each request with a deadline.
// A request that exceeds it surfaces a classified timeout error instead of
// blocking indefinitely.
func Timeout(duration time.Duration) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil {
					return llm.CompletionResponse{}, llmerrors.Classify(err)
				}
				return resp, nil
			},
			next.ModelName,
		)
	}
}
