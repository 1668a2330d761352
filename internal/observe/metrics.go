// Package observe provides the reporter's observability primitives:
// OpenTelemetry metrics, tracing, trace-aware logging and the gin middleware
// that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API and exported to
// Prometheus by [InitProvider]. Tests should build their own [Metrics] with
// [NewMetrics] and a manual reader to avoid cross-test pollution.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all OpenTelemetry metric instruments for the service.
// All fields are safe for concurrent use.
type Metrics struct {
	// LLMDuration tracks model call latency. Attributes: stage, status.
	LLMDuration metric.Float64Histogram

	// LLMTokens counts tokens consumed. Attributes: stage, direction.
	LLMTokens metric.Int64Counter

	// ToolCalls counts tool invocations. Attributes: tool, status.
	ToolCalls metric.Int64Counter

	// ToolDuration tracks tool execution latency. Attributes: tool.
	ToolDuration metric.Float64Histogram

	// RetryAttempts counts transient failures that triggered a retry.
	// Attributes: status.
	RetryAttempts metric.Int64Counter

	// Generations counts finished report generations. Attributes: outcome.
	Generations metric.Int64Counter

	// FirstToken tracks time from request start to the first streamed text.
	FirstToken metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time.
	// Attributes: method, route, status.
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// model round trips that range from sub-second to a minute.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(scope)
	var err error
	met := &Metrics{}

	if met.LLMDuration, err = m.Float64Histogram("reporter.llm.duration",
		metric.WithDescription("Latency of model calls by pipeline stage."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMTokens, err = m.Int64Counter("reporter.llm.tokens",
		metric.WithDescription("Tokens consumed by pipeline stage and direction."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("reporter.tool.calls",
		metric.WithDescription("Total tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}
	if met.ToolDuration, err = m.Float64Histogram("reporter.tool.duration",
		metric.WithDescription("Latency of tool execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetryAttempts, err = m.Int64Counter("reporter.retry.attempts",
		metric.WithDescription("Retries triggered by transient provider failures."),
	); err != nil {
		return nil, err
	}
	if met.Generations, err = m.Int64Counter("reporter.generations",
		metric.WithDescription("Finished report generations by outcome."),
	); err != nil {
		return nil, err
	}
	if met.FirstToken, err = m.Float64Histogram("reporter.generation.first_token",
		metric.WithDescription("Time until the first report text is streamed."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("reporter.http.request.duration",
		metric.WithDescription("HTTP request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// RecordLLMCall records latency and token usage of one model call.
// A nil receiver is a no-op so callers can run without metrics.
func (m *Metrics) RecordLLMCall(ctx context.Context, stage, status string, d time.Duration, input, output int) {
	if m == nil {
		return
	}
	m.LLMDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("status", status),
	))
	if input > 0 {
		m.LLMTokens.Add(ctx, int64(input), metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("direction", "input"),
		))
	}
	if output > 0 {
		m.LLMTokens.Add(ctx, int64(output), metric.WithAttributes(
			attribute.String("stage", stage),
			attribute.String("direction", "output"),
		))
	}
}

// RecordToolCall records a tool invocation and its latency.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", tool),
		attribute.String("status", status),
	))
	m.ToolDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("tool", tool)))
}

// RecordRetry records one retry caused by the given HTTP-like status.
func (m *Metrics) RecordRetry(ctx context.Context, status int) {
	if m == nil {
		return
	}
	m.RetryAttempts.Add(ctx, 1, metric.WithAttributes(attribute.Int("status", status)))
}

// RecordGeneration records the outcome of a report generation.
func (m *Metrics) RecordGeneration(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Generations.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordFirstToken records the time to first streamed text.
func (m *Metrics) RecordFirstToken(ctx context.Context, d time.Duration) {
	if m == nil {
		return
	}
	m.FirstToken.Record(ctx, d.Seconds())
}
