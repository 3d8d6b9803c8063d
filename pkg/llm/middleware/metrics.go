package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"influencesim/pkg/llm"
	"influencesim/pkg/llm/llmerrors"
	"influencesim/pkg/tokens"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Recorder records Prometheus metrics for gateway operations.
type Recorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewRecorder creates a Prometheus-based metrics recorder. Metrics are
// registered on the default registry via promauto, so only one Recorder
// should exist per process.
func NewRecorder() *Recorder {
	return &Recorder{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_requests_total",
				Help: "Total number of LLM requests by model, role, status, and error kind",
			},
			[]string{"model", "role", "session_id", "status", "error_kind"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llm_tokens_total",
				Help: "Total number of tokens used in LLM requests",
			},
			[]string{"model", "role", "session_id", "type"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "llm_request_duration_seconds",
				Help:    "Duration of LLM requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"model", "role", "session_id"},
		),
	}
}

// SessionIDProvider supplies the current session ID label at call time,
// since the session is replaced on reset.
type SessionIDProvider func() string

// Metrics returns a middleware that records request counts, latency, and
// token usage for every gateway call made by the named role. Token counts
// are tiktoken approximations of prompt and completion text.
func Metrics(recorder *Recorder, role string, sessionID SessionIDProvider) llm.Middleware {
	return func(next llm.Client) llm.Client {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.ModelName()

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				sid := sessionID()
				status := statusSuccess
				errorKind := ""
				if err != nil {
					status = statusError
					errorKind = llmerrors.KindOf(err).String()
				}

				recorder.requestsTotal.WithLabelValues(model, role, sid, status, errorKind).Inc()
				recorder.requestDuration.WithLabelValues(model, role, sid).Observe(duration.Seconds())

				if err == nil {
					var promptText string
					for i := range req.Messages {
						promptText += req.Messages[i].Content + "\n"
					}
					recorder.tokensTotal.WithLabelValues(model, role, sid, "prompt").
						Add(float64(tokens.CountSimple(promptText)))
					recorder.tokensTotal.WithLabelValues(model, role, sid, "completion").
						Add(float64(tokens.CountSimple(resp.Content)))
				}

				return resp, err
			},
			next.ModelName,
		)
	}
}
