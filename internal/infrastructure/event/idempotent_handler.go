package event

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/unihub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyMetrics counts what an IdempotentHandler did with its deliveries.
type IdempotencyMetrics struct {
	Processed atomic.Int64
	Duplicate atomic.Int64
	Failed    atomic.Int64
}

// IdempotencyStats is a point-in-time copy of IdempotencyMetrics.
type IdempotencyStats struct {
	Processed int64 `json:"processed"`
	Duplicate int64 `json:"duplicate"`
	Failed    int64 `json:"failed"`
}

func (m *IdempotencyMetrics) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed: m.Processed.Load(),
		Duplicate: m.Duplicate.Load(),
		Failed:    m.Failed.Load(),
	}
}

// IdempotentHandler makes an at-least-once channel look exactly-once to the
// wrapped handler. Keys are scoped by handler name so two consumers of the
// same event do not shadow each other.
type IdempotentHandler struct {
	name    string
	handler shared.EventHandler
	store   shared.IdempotencyStore
	config  shared.IdempotencyConfig
	logger  *zap.Logger
	metrics *IdempotencyMetrics
}

type IdempotentHandlerOption func(*IdempotentHandler)

func WithIdempotencyConfig(cfg shared.IdempotencyConfig) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.config = cfg }
}

func WithIdempotencyMetrics(m *IdempotencyMetrics) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.metrics = m }
}

// WithHandlerName overrides the key scope, which defaults to the handler's
// Go type.
func WithHandlerName(name string) IdempotentHandlerOption {
	return func(h *IdempotentHandler) { h.name = name }
}

func NewIdempotentHandler(
	handler shared.EventHandler,
	store shared.IdempotencyStore,
	logger *zap.Logger,
	opts ...IdempotentHandlerOption,
) *IdempotentHandler {
	h := &IdempotentHandler{
		name:    fmt.Sprintf("%T", handler),
		handler: handler,
		store:   store,
		config:  shared.DefaultIdempotencyConfig(),
		logger:  logger,
		metrics: &IdempotencyMetrics{},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.handler.EventTypes()
}

// Handle claims the event id before running the handler. On failure the
// claim is released so the outbox retry reaches the handler again.
func (h *IdempotentHandler) Handle(ctx context.Context, ev shared.DomainEvent) error {
	if !h.config.Enabled {
		return h.handler.Handle(ctx, ev)
	}

	key := h.name + ":" + ev.EventID().String()
	fields := []zap.Field{
		zap.String("event_id", ev.EventID().String()),
		zap.String("event_type", ev.EventType()),
		zap.String("handler", h.name),
	}

	isNew, err := h.store.MarkProcessed(ctx, key, h.config.TTL)
	switch {
	case err != nil:
		// A store outage must not stall delivery; a duplicate is the lesser failure.
		h.logger.Warn("idempotency check failed, processing anyway", append(fields, zap.Error(err))...)
	case !isNew:
		h.metrics.Duplicate.Add(1)
		h.logger.Debug("duplicate delivery skipped", fields...)
		return nil
	}

	if err := h.handler.Handle(ctx, ev); err != nil {
		h.metrics.Failed.Add(1)
		if ferr := h.store.Forget(ctx, key); ferr != nil {
			h.logger.Warn("failed to release idempotency key", append(fields, zap.Error(ferr))...)
		}
		return err
	}

	h.metrics.Processed.Add(1)
	return nil
}

func (h *IdempotentHandler) Metrics() *IdempotencyMetrics {
	return h.metrics
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
