package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func init() { gin.SetMode(gin.TestMode) }

type harness struct {
	metrics *Metrics
	reader  *sdkmetric.ManualReader
	spans   *tracetest.InMemoryExporter
	router  *gin.Engine
	seenID  string
}

// newHarness mounts GET /api/laudos/:id, which answers with the status in the
// "status" query parameter and remembers the correlation ID it saw.
func newHarness(t *testing.T, withMetrics bool) *harness {
	t.Helper()
	p := &harness{spans: useTracer(t)}
	if withMetrics {
		p.metrics, p.reader = newTestMetrics(t)
	}
	p.router = gin.New()
	p.router.Use(Middleware(p.metrics))
	p.router.GET("/api/laudos/:id", func(c *gin.Context) {
		p.seenID = CorrelationID(c.Request.Context())
		status := http.StatusOK
		if c.Query("status") == "404" {
			status = http.StatusNotFound
		}
		c.Status(status)
	})
	return p
}

func (p *harness) do(path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	p.router.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationID(t *testing.T) {
	const parent = "4bf92f3577b34da6a3ce929d0e0e4736"
	tests := []struct {
		name   string
		header http.Header
		want   string
	}{
		{"new trace", nil, ""},
		{"w3c parent", http.Header{"Traceparent": {"00-" + parent + "-00f067aa0ba902b7-01"}}, parent},
		{"client id", http.Header{"X-Correlation-Id": {"pedido-123"}}, "pedido-123"},
		{"bad client id", http.Header{"X-Correlation-Id": {"has space"}, "Traceparent": {"00-" + parent + "-00f067aa0ba902b7-01"}}, parent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newHarness(t, false)
			rec := p.do("/api/laudos/1", tt.header)

			if tt.want == "" && len(p.seenID) != 32 {
				t.Errorf("generated ID = %q, want a trace ID", p.seenID)
			}
			if tt.want != "" && p.seenID != tt.want {
				t.Errorf("handler saw %q, want %q", p.seenID, tt.want)
			}
			if got := rec.Header().Get(CorrelationHeader); got != p.seenID {
				t.Errorf("response header = %q, want %q", got, p.seenID)
			}
			if rec.Header().Get("Traceparent") == "" {
				t.Error("trace context not injected into the response")
			}
		})
	}
}

func TestMiddleware_Span(t *testing.T) {
	p := newHarness(t, false)
	p.do("/api/laudos/abc?status=404", nil)

	spans := p.spans.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	if want := "HTTP GET /api/laudos/:id"; spans[0].Name != want {
		t.Errorf("span name = %q, want %q", spans[0].Name, want)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNotFound {
		t.Errorf("http.response.status_code = %d, want 404", status)
	}
}

func TestMiddleware_Duration(t *testing.T) {
	p := newHarness(t, true)
	p.do("/api/laudos/1", nil)
	p.do("/api/laudos/2", nil)
	p.do("/nowhere", nil)

	met := findMetric(collect(t, p.reader), "reporter.http.request.duration")
	if met == nil {
		t.Fatal("duration histogram not recorded")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("data type = %T, want float64 histogram", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		route, _ := dp.Attributes.Value("route")
		status, _ := dp.Attributes.Value("status")
		counts[route.AsString()+" "+status.AsString()] += dp.Count
	}
	if counts["/api/laudos/:id 200"] != 2 {
		t.Errorf("templated route count = %d, want 2 (all: %v)", counts["/api/laudos/:id 200"], counts)
	}
	if counts["unmatched 404"] != 1 {
		t.Errorf("unmatched count = %d, want 1 (all: %v)", counts["unmatched 404"], counts)
	}
}

func TestMiddleware_NoTracer(t *testing.T) {
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(noop.NewTracerProvider())
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	r := gin.New()
	r.Use(Middleware(nil))
	var seen string
	r.GET("/x", func(c *gin.Context) { seen = CorrelationID(c.Request.Context()) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	if _, err := uuid.Parse(seen); err != nil {
		t.Errorf("correlation ID %q is not a UUID: %v", seen, err)
	}
	if rec.Header().Get(CorrelationHeader) != seen {
		t.Errorf("response header = %q, want %q", rec.Header().Get(CorrelationHeader), seen)
	}
}

func TestMiddleware_NilMetrics(t *testing.T) {
	p := newHarness(t, false)
	if rec := p.do("/api/laudos/1", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}
