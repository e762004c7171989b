package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dockhardman/General-LLM-Stack/internal/llm/configuration"
	llmerrors "github.com/dockhardman/General-LLM-Stack/internal/llm/errors"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/pricing"
	"github.com/dockhardman/General-LLM-Stack/internal/llm/transport"
)

// Metrics provides observability data collection for LLM operations.
// Supports counters, histograms, and gauges with tag-based dimensionality.
type Metrics interface {
	IncrementCounter(name string, tags map[string]string, value float64)
	RecordHistogram(name string, tags map[string]string, value float64)
	SetGauge(name string, tags map[string]string, value float64)
}

// NoOpMetrics satisfies Metrics without collecting anything.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a no-op metrics collector.
func NewNoOpMetrics() *NoOpMetrics { return &NoOpMetrics{} }

func (n *NoOpMetrics) IncrementCounter(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) RecordHistogram(_ string, _ map[string]string, _ float64) {}

func (n *NoOpMetrics) SetGauge(_ string, _ map[string]string, _ float64) {}

// LoggingMiddleware captures structured logs and metrics for the LLM request
// lifecycle, with configurable redaction for prompt content.
type LoggingMiddleware struct {
	logger        *slog.Logger
	metrics       Metrics
	pricing       *pricing.Registry
	redactPrompts bool
}

// NewLoggingMiddleware creates observability middleware with structured
// logging. Nil logger and metrics fall back to slog.Default and NoOpMetrics.
func NewLoggingMiddleware(cfg configuration.ObservabilityConfig, logger *slog.Logger, metrics Metrics) transport.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewNoOpMetrics()
	}

	lm := &LoggingMiddleware{
		logger:        logger,
		metrics:       metrics,
		pricing:       pricing.NewRegistry(),
		redactPrompts: cfg.RedactPrompts,
	}
	return lm.Middleware
}

// Middleware wraps handlers with request/response logging, latency
// measurement, usage metrics, and error classification.
func (m *LoggingMiddleware) Middleware(next transport.Handler) transport.Handler {
	return transport.HandlerFunc(func(ctx context.Context, req *transport.Request) (*transport.Response, error) {
		requestID := req.TraceID
		if requestID == "" {
			requestID = uuid.New().String()
		}

		baseTags := map[string]string{
			"provider":  req.Provider,
			"model":     req.Model,
			"operation": string(req.Operation),
		}

		m.logRequest(req, requestID)
		m.metrics.IncrementCounter("llm.requests.total", baseTags, 1)

		start := time.Now()
		resp, err := next.Handle(ctx, req)
		duration := time.Since(start)

		m.metrics.RecordHistogram("llm.request.duration_ms", baseTags, float64(duration.Milliseconds()))

		if err != nil {
			m.handleError(req, err, requestID, duration, baseTags)
		} else if resp != nil {
			m.handleSuccess(req, resp, requestID, duration, baseTags)
		}

		return resp, err
	})
}

func (m *LoggingMiddleware) logRequest(req *transport.Request, requestID string) {
	fields := []any{
		"request_id", requestID,
		"provider", req.Provider,
		"model", req.Model,
		"operation", req.Operation,
		"max_tokens", req.MaxTokens,
		"timeout_seconds", req.Timeout.Seconds(),
	}

	switch req.Operation {
	case transport.OpChatCompletion:
		fields = append(fields, "messages_count", len(req.Messages))
		if !m.redactPrompts && len(req.Messages) > 0 {
			fields = append(fields, "last_message", req.Messages[len(req.Messages)-1].Content)
		}
	case transport.OpCompletion:
		if m.redactPrompts {
			fields = append(fields, "prompt_length", len(req.Prompt))
		} else {
			fields = append(fields, "prompt", req.Prompt)
		}
	case transport.OpEmbedding:
		fields = append(fields, "input_count", len(req.Input))
	}

	m.logger.Info("llm request started", fields...)
}

func (m *LoggingMiddleware) handleError(
	req *transport.Request,
	err error,
	requestID string,
	duration time.Duration,
	baseTags map[string]string,
) {
	classified := llmerrors.Classify(err)

	errorTags := copyTags(baseTags)
	errorTags["error_type"] = string(classified.Type)
	m.metrics.IncrementCounter("llm.requests.errors", errorTags, 1)

	m.logger.Error("llm request failed",
		"request_id", requestID,
		"provider", req.Provider,
		"model", req.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"error_type", classified.Type,
		"error", err.Error())
}

func (m *LoggingMiddleware) handleSuccess(
	req *transport.Request,
	resp *transport.Response,
	requestID string,
	duration time.Duration,
	baseTags map[string]string,
) {
	m.metrics.IncrementCounter("llm.requests.success", baseTags, 1)
	m.metrics.RecordHistogram("llm.tokens.prompt", baseTags, float64(resp.Usage.PromptTokens))
	m.metrics.RecordHistogram("llm.tokens.completion", baseTags, float64(resp.Usage.CompletionTokens))
	m.metrics.RecordHistogram("llm.tokens.total", baseTags, float64(resp.Usage.TotalTokens))

	fields := []any{
		"request_id", requestID,
		"provider", req.Provider,
		"model", resp.Model,
		"operation", req.Operation,
		"duration_ms", duration.Milliseconds(),
		"finish_reason", resp.FinishReason,
		"total_tokens", resp.Usage.TotalTokens,
		"cached", resp.CachedAt != 0,
	}

	// Cache hits cost nothing; only freshly served requests are priced.
	if resp.CachedAt == 0 {
		if cost, ok := m.pricing.Estimate(req.Provider, req.Model, resp.Usage); ok {
			m.metrics.RecordHistogram("llm.request.cost_millicents", baseTags, float64(cost))
			fields = append(fields, "estimated_cost_millicents", cost)
		}
	}

	m.logger.Info("llm request completed", fields...)
}

func copyTags(tags map[string]string) map[string]string {
	out := make(map[string]string, len(tags)+1)
	for k, v := range tags {
		out[k] = v
	}
	return out
}
