package unified

import (
	"context"
	"fmt"

	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// WebhookHandler fans committed pushes out to tenant webhooks. It runs
// behind the outbox, so a returned error schedules a retry and never
// reaches the caller of Push.
type WebhookHandler struct {
	notifier unified.Notifier
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
}

func NewWebhookHandler(notifier unified.Notifier, metrics *telemetry.SyncMetrics, logger *zap.Logger) *WebhookHandler {
	if metrics == nil {
		metrics = telemetry.NoopSyncMetrics()
	}
	return &WebhookHandler{notifier: notifier, metrics: metrics, logger: logger}
}

func (h *WebhookHandler) EventTypes() []string {
	return []string{unified.EventTypeRecordPushed}
}

func (h *WebhookHandler) Handle(ctx context.Context, event shared.DomainEvent) error {
	pushed, ok := event.(*unified.RecordPushedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type: expected %s, got %s", unified.EventTypeRecordPushed, event.EventType())
	}

	err := h.notifier.Dispatch(ctx, unified.Notification{
		Record:        pushed.Record,
		EventType:     pushed.WebhookType,
		TenantID:      pushed.TenantID(),
		CorrelationID: pushed.EventID(),
	})
	if err != nil {
		h.metrics.RecordWebhook(ctx, pushed.WebhookType, telemetry.WebhookFailed)
		h.logger.Warn("webhook dispatch failed",
			zap.String("event_id", pushed.EventID().String()),
			zap.String("webhook_type", pushed.WebhookType),
			zap.Error(err),
		)
		return err
	}
	h.metrics.RecordWebhook(ctx, pushed.WebhookType, telemetry.WebhookDelivered)
	return nil
}

var _ shared.EventHandler = (*WebhookHandler)(nil)
