// Package metrics provides services for querying and aggregating metrics data.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// SessionMetrics represents aggregated gateway usage for one session.
type SessionMetrics struct {
	SessionID        string  `json:"session_id"`
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	AvgDuration      float64 `json:"avg_duration_seconds"`
}

// QueryService provides methods to query gateway metrics from Prometheus.
type QueryService struct {
	client   api.Client
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return &QueryService{
		client:   client,
		queryAPI: v1.NewAPI(client),
	}, nil
}

// scalarFromVector extracts the first sample value of a vector result, or
// zero when the query matched no series.
func scalarFromVector(result model.Value) float64 {
	if vector, ok := result.(model.Vector); ok && len(vector) > 0 {
		return float64(vector[0].Value)
	}
	return 0
}

// GetSessionMetrics retrieves aggregated request and token metrics for a
// specific session, summed across all three roles.
func (q *QueryService) GetSessionMetrics(ctx context.Context, sessionID string) (*SessionMetrics, error) {
	metrics := &SessionMetrics{
		SessionID: sessionID,
	}

	requestsQuery := fmt.Sprintf(`sum(llm_requests_total{session_id=%q})`, sessionID)
	requestsResult, _, err := q.queryAPI.Query(ctx, requestsQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query request count: %w", err)
	}
	metrics.Requests = int64(scalarFromVector(requestsResult))

	promptQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="prompt"})`, sessionID)
	promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query prompt tokens: %w", err)
	}
	metrics.PromptTokens = int64(scalarFromVector(promptResult))

	completionQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, type="completion"})`, sessionID)
	completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query completion tokens: %w", err)
	}
	metrics.CompletionTokens = int64(scalarFromVector(completionResult))

	metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens

	durationQuery := fmt.Sprintf(
		`sum(llm_request_duration_seconds_sum{session_id=%q}) / sum(llm_request_duration_seconds_count{session_id=%q})`,
		sessionID, sessionID)
	durationResult, _, err := q.queryAPI.Query(ctx, durationQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query request duration: %w", err)
	}
	metrics.AvgDuration = scalarFromVector(durationResult)

	return metrics, nil
}

// GetSessionMetricsByRole retrieves token metrics broken down by role
// (designer, facilitator, evaluator) for a specific session.
func (q *QueryService) GetSessionMetricsByRole(ctx context.Context, sessionID string) (map[string]*SessionMetrics, error) {
	result := make(map[string]*SessionMetrics)

	rolesQuery := fmt.Sprintf(`group by (role) (llm_tokens_total{session_id=%q})`, sessionID)
	rolesResult, _, err := q.queryAPI.Query(ctx, rolesQuery, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to query roles: %w", err)
	}

	var roles []string
	if vector, ok := rolesResult.(model.Vector); ok {
		for _, sample := range vector {
			if role, ok := sample.Metric["role"]; ok {
				roles = append(roles, string(role))
			}
		}
	}

	for _, role := range roles {
		metrics := &SessionMetrics{
			SessionID: sessionID,
		}

		requestsQuery := fmt.Sprintf(`sum(llm_requests_total{session_id=%q, role=%q})`, sessionID, role)
		requestsResult, _, err := q.queryAPI.Query(ctx, requestsQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query request count for role %s: %w", role, err)
		}
		metrics.Requests = int64(scalarFromVector(requestsResult))

		promptQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, role=%q, type="prompt"})`, sessionID, role)
		promptResult, _, err := q.queryAPI.Query(ctx, promptQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query prompt tokens for role %s: %w", role, err)
		}
		metrics.PromptTokens = int64(scalarFromVector(promptResult))

		completionQuery := fmt.Sprintf(`sum(llm_tokens_total{session_id=%q, role=%q, type="completion"})`, sessionID, role)
		completionResult, _, err := q.queryAPI.Query(ctx, completionQuery, time.Now())
		if err != nil {
			return nil, fmt.Errorf("failed to query completion tokens for role %s: %w", role, err)
		}
		metrics.CompletionTokens = int64(scalarFromVector(completionResult))

		metrics.TotalTokens = metrics.PromptTokens + metrics.CompletionTokens
		result[role] = metrics
	}

	return result, nil
}
