package observe

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// CorrelationHeader carries the correlation ID in both directions.
const CorrelationHeader = "X-Correlation-ID"

// Middleware traces every request as a server span named after its gin route,
// continuing a W3C trace context when the client sent one. A valid
// X-Correlation-ID request header is kept; otherwise the trace ID is used, or
// a random UUID when tracing is disabled.
// The ID is echoed in the response. Duration goes to m when m is non-nil.
func Middleware(m *Metrics) gin.HandlerFunc {
	prop := propagation.TraceContext{}
	tracer := otel.Tracer(scope)

	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx := prop.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
		ctx, span := tracer.Start(ctx, "HTTP "+method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(method),
				semconv.URLPath(c.Request.URL.Path),
				semconv.HTTPRoute(route),
			),
		)
		defer span.End()

		ctx = WithCorrelationID(ctx, c.GetHeader(CorrelationHeader))
		if CorrelationID(ctx) == "" {
			ctx = WithCorrelationID(ctx, uuid.NewString())
		}
		c.Header(CorrelationHeader, CorrelationID(ctx))
		prop.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Request = c.Request.WithContext(ctx)
		c.Next()

		status := c.Writer.Status()
		elapsed := time.Since(start)
		span.SetAttributes(semconv.HTTPResponseStatusCode(status))
		if m != nil {
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
				attribute.String("method", method),
				attribute.String("route", route),
				attribute.String("status", strconv.Itoa(status)),
			))
		}

		Logger(ctx).LogAttrs(ctx, slog.LevelInfo, "request completed",
			slog.String("method", method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Duration("duration", elapsed),
		)
	}
}
