package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Attribute keys shared by the hub's instruments.
var (
	AttrProvider  = attribute.Key("provider")
	AttrEntity    = attribute.Key("entity")
	AttrOutcome   = attribute.Key("outcome")
	AttrEventType = attribute.Key("event_type")
	AttrPoolState = attribute.Key("db.pool.state")

	AttrHTTPMethod = attribute.Key("http.request.method")
	AttrHTTPRoute  = attribute.Key("http.route")
	AttrHTTPStatus = attribute.Key("http.response.status_code")
)

// LatencyBuckets suit HTTP handlers and remote provider calls, in seconds.
var LatencyBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Instruments registers instruments on one meter and collects the
// registration errors, so a metrics set is built without an if per field:
//
//	in := NewInstruments(meter)
//	m := &set{hits: in.Counter("hits_total", "Hits", "{hit}")}
//	if err := in.Err(); err != nil { ... }
type Instruments struct {
	meter metric.Meter
	errs  []error
}

func NewInstruments(meter metric.Meter) *Instruments {
	return &Instruments{meter: meter}
}

func (in *Instruments) Counter(name, description, unit string) *Counter {
	c, err := in.meter.Int64Counter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.record(name, err)
	return &Counter{c: c}
}

// Latency registers a seconds histogram with LatencyBuckets.
func (in *Instruments) Latency(name, description string) *Histogram {
	h, err := in.meter.Float64Histogram(name,
		metric.WithDescription(description),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(LatencyBuckets...),
	)
	in.record(name, err)
	return &Histogram{h: h}
}

func (in *Instruments) Gauge(name, description, unit string) metric.Int64UpDownCounter {
	g, err := in.meter.Int64UpDownCounter(name, metric.WithDescription(description), metric.WithUnit(unit))
	in.record(name, err)
	return g
}

// Err reports every instrument that failed to register.
func (in *Instruments) Err() error {
	return errors.Join(in.errs...)
}

func (in *Instruments) record(name string, err error) {
	if err != nil {
		in.errs = append(in.errs, fmt.Errorf("instrument %s: %w", name, err))
	}
}

// Counter is a monotonically increasing int64 instrument.
type Counter struct {
	c metric.Int64Counter
}

func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}

func (c *Counter) Add(ctx context.Context, n int64, attrs ...attribute.KeyValue) {
	if c.c == nil {
		return
	}
	c.c.Add(ctx, n, metric.WithAttributes(attrs...))
}

// Histogram records durations in seconds.
type Histogram struct {
	h metric.Float64Histogram
}

func (h *Histogram) RecordDuration(ctx context.Context, d time.Duration, attrs ...attribute.KeyValue) {
	if h.h == nil {
		return
	}
	h.h.Record(ctx, d.Seconds(), metric.WithAttributes(attrs...))
}
