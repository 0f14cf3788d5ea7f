package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// SyncMetrics counts what the sync pipeline does: pushes by outcome,
// connector latency, list calls and webhook dispatches.
type SyncMetrics struct {
	pushTotal        *Counter
	connectorLatency *Histogram
	listTotal        *Counter
	webhookTotal     *Counter
}

// Push outcomes.
const (
	PushCreated = "created"
	PushUpdated = "updated"
	PushFailed  = "failed"
)

// Webhook outcomes.
const (
	WebhookDelivered = "delivered"
	WebhookFailed    = "failed"
)

// NewSyncMetrics registers the sync instruments on meter.
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	if meter == nil {
		return nil, ErrMeterNil
	}

	in := NewInstruments(meter)
	sm := &SyncMetrics{
		pushTotal:        in.Counter("unihub_push_total", "Pushes by provider, entity and outcome", "{pushes}"),
		connectorLatency: in.Latency("unihub_connector_duration_seconds", "Latency of provider connector writes"),
		listTotal:        in.Counter("unihub_list_total", "List calls by entity", "{calls}"),
		webhookTotal:     in.Counter("unihub_webhook_dispatch_total", "Webhook dispatches by outcome", "{dispatches}"),
	}
	if err := in.Err(); err != nil {
		return nil, err
	}
	return sm, nil
}

// NoopSyncMetrics records nothing. Used when metrics are disabled.
func NoopSyncMetrics() *SyncMetrics {
	sm, _ := NewSyncMetrics(noop.NewMeterProvider().Meter(TracerName))
	return sm
}

func (m *SyncMetrics) RecordPush(ctx context.Context, provider, entity, outcome string) {
	m.pushTotal.Inc(ctx, AttrProvider.String(provider), AttrEntity.String(entity), AttrOutcome.String(outcome))
}

func (m *SyncMetrics) RecordConnectorLatency(ctx context.Context, provider string, d time.Duration, ok bool) {
	m.connectorLatency.RecordDuration(ctx, d, AttrProvider.String(provider), attribute.Bool("success", ok))
}

func (m *SyncMetrics) RecordList(ctx context.Context, provider, entity string) {
	m.listTotal.Inc(ctx, AttrProvider.String(provider), AttrEntity.String(entity))
}

func (m *SyncMetrics) RecordWebhook(ctx context.Context, eventType, outcome string) {
	m.webhookTotal.Inc(ctx, AttrEventType.String(eventType), AttrOutcome.String(outcome))
}

// ErrMeterNil is returned when a metrics set is built without a meter.
var ErrMeterNil = errors.New("telemetry: meter cannot be nil")
