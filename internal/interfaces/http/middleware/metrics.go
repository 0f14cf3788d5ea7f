package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
	"go.opentelemetry.io/otel/metric"
)

type httpMetrics struct {
	requests *telemetry.Counter
	duration *telemetry.Histogram
	active   metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	in := telemetry.NewInstruments(meter)
	m := &httpMetrics{
		requests: in.Counter("http_server_request_total", "HTTP requests by route and status", "{request}"),
		duration: in.Latency("http_server_request_duration_seconds", "HTTP request latency"),
		active:   in.Gauge("http_server_active_requests", "Requests in flight", "{request}"),
	}
	return m, in.Err()
}

// HTTPMetrics records request count, latency and in-flight requests.
// Routes are labeled by pattern to keep cardinality bounded.
func HTTPMetrics(meter metric.Meter) (gin.HandlerFunc, error) {
	m, err := newHTTPMetrics(meter)
	if err != nil {
		return nil, err
	}
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()
		m.active.Add(ctx, 1)

		c.Next()

		m.active.Add(ctx, -1)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		method := telemetry.AttrHTTPMethod.String(c.Request.Method)
		m.requests.Inc(ctx, method, telemetry.AttrHTTPRoute.String(route), telemetry.AttrHTTPStatus.Int(c.Writer.Status()))
		m.duration.RecordDuration(ctx, time.Since(start), method, telemetry.AttrHTTPRoute.String(route))
	}, nil
}
