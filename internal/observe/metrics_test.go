package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// sumFor returns the value of the data point carrying key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.Emit() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestRecordLLMCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordLLMCall(ctx, "report", "ok", 2*time.Second, 1200, 300)
	m.RecordLLMCall(ctx, "report", "ok", time.Second, 800, 0)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "reporter.llm.tokens", "direction", "input"); got != 2000 {
		t.Errorf("input tokens = %d, want 2000", got)
	}
	if got := sumFor(t, rm, "reporter.llm.tokens", "direction", "output"); got != 300 {
		t.Errorf("output tokens = %d, want 300", got)
	}
	met := findMetric(rm, "reporter.llm.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("sample count = %d, want 2", got)
	}
}

func TestRecordToolCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordToolCall(ctx, "buscar_referencia", "ok", 100*time.Millisecond)
	m.RecordToolCall(ctx, "buscar_referencia", "error", 50*time.Millisecond)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "reporter.tool.calls", "status", "ok"); got != 1 {
		t.Errorf("ok calls = %d, want 1", got)
	}
	if got := sumFor(t, rm, "reporter.tool.calls", "status", "error"); got != 1 {
		t.Errorf("error calls = %d, want 1", got)
	}
}

func TestRecordRetryAndGeneration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRetry(ctx, 529)
	m.RecordRetry(ctx, 529)
	m.RecordRetry(ctx, 429)
	m.RecordGeneration(ctx, "done")
	m.RecordGeneration(ctx, "error")
	m.RecordGeneration(ctx, "done")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "reporter.retry.attempts", "status", "529"); got != 2 {
		t.Errorf("529 retries = %d, want 2", got)
	}
	if got := sumFor(t, rm, "reporter.generations", "outcome", "done"); got != 2 {
		t.Errorf("done generations = %d, want 2", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordLLMCall(ctx, "select", "ok", time.Second, 1, 1)
	m.RecordToolCall(ctx, "x", "ok", time.Second)
	m.RecordRetry(ctx, 429)
	m.RecordGeneration(ctx, "done")
	m.RecordFirstToken(ctx, time.Second)
}

func TestRecordFirstToken(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFirstToken(ctx, 500*time.Millisecond)
	m.RecordFirstToken(ctx, 2*time.Second)

	met := findMetric(collect(t, reader), "reporter.generation.first_token")
	if met == nil {
		t.Fatal("first token histogram not recorded")
	}
	hist := met.Data.(metricdata.Histogram[float64])
	dp := hist.DataPoints[0]
	if dp.Count != 2 {
		t.Errorf("count = %d, want 2", dp.Count)
	}
	if dp.Sum != 2.5 {
		t.Errorf("sum = %v, want 2.5", dp.Sum)
	}
}
