package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// OutboxProcessorConfig controls polling and retention of the outbox.
type OutboxProcessorConfig struct {
	BatchSize        int
	PollInterval     time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
	// ClaimLease is how long a claimed entry may stay unsettled before
	// another poll reclaims it.
	ClaimLease time.Duration
}

func DefaultOutboxProcessorConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:        100,
		PollInterval:     time.Second,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour,
		CleanupInterval:  time.Hour,
		ClaimLease:       5 * time.Minute,
	}
}

// OutboxProcessor drains committed outbox entries into the event bus.
// Delivery is at-least-once: an entry is marked sent only after every
// handler succeeded, and failed entries come back with backoff until they
// are dead-lettered.
type OutboxProcessor struct {
	repo       shared.OutboxRepository
	bus        shared.EventPublisher
	serializer *EventSerializer
	cfg        OutboxProcessorConfig
	logger     *zap.Logger

	cancel context.CancelFunc
	loops  *errgroup.Group
}

func NewOutboxProcessor(
	repo shared.OutboxRepository,
	bus shared.EventPublisher,
	serializer *EventSerializer,
	cfg OutboxProcessorConfig,
	logger *zap.Logger,
) *OutboxProcessor {
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = DefaultOutboxProcessorConfig().ClaimLease
	}
	return &OutboxProcessor{repo: repo, bus: bus, serializer: serializer, cfg: cfg, logger: logger}
}

// Start launches the poll loop and, if enabled, the cleanup loop. Both run
// until Stop or until ctx is cancelled.
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)
	p.loops = &errgroup.Group{}

	p.loops.Go(func() error {
		tick(ctx, p.cfg.PollInterval, func() { p.ProcessBatch(ctx) })
		return nil
	})
	if p.cfg.CleanupEnabled {
		p.loops.Go(func() error {
			tick(ctx, p.cfg.CleanupInterval, func() { p.purge(ctx) })
			return nil
		})
	}

	p.logger.Info("outbox processor started",
		zap.Int("batch_size", p.cfg.BatchSize),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Bool("cleanup", p.cfg.CleanupEnabled),
	)
	return nil
}

// Stop cancels the loops and waits for an in-flight batch, up to ctx.
func (p *OutboxProcessor) Stop(ctx context.Context) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	done := make(chan struct{})
	go func() {
		_ = p.loops.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.logger.Info("outbox processor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func tick(ctx context.Context, every time.Duration, fn func()) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn()
		}
	}
}

// ProcessBatch delivers one batch of new entries and one batch of retries
// that are due, then reclaims entries whose claim lapsed. It returns how
// many were delivered.
func (p *OutboxProcessor) ProcessBatch(ctx context.Context) int {
	now := time.Now().UTC()
	staleBefore := now.Add(-p.cfg.ClaimLease)
	sources := []struct {
		name  string
		fetch func() ([]*shared.OutboxEntry, error)
	}{
		{"pending", func() ([]*shared.OutboxEntry, error) {
			return p.repo.FindPending(ctx, p.cfg.BatchSize)
		}},
		{"retryable", func() ([]*shared.OutboxEntry, error) {
			return p.repo.FindRetryable(ctx, now, p.cfg.BatchSize)
		}},
		{"stale", func() ([]*shared.OutboxEntry, error) {
			return p.repo.FindStale(ctx, staleBefore, p.cfg.BatchSize)
		}},
	}

	delivered := 0
	for _, src := range sources {
		entries, err := src.fetch()
		if err != nil {
			p.logger.Error("load outbox entries", zap.String("source", src.name), zap.Error(err))
			break
		}
		delivered += p.deliverAll(ctx, entries, staleBefore)
	}
	return delivered
}

func (p *OutboxProcessor) deliverAll(ctx context.Context, entries []*shared.OutboxEntry, staleBefore time.Time) int {
	if len(entries) == 0 {
		return 0
	}
	ids := make([]uuid.UUID, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.ID)
	}
	// Another processor may have won some of these; only ours come back.
	claimed, err := p.repo.MarkProcessing(ctx, ids, staleBefore)
	if err != nil {
		p.logger.Error("claim outbox entries", zap.Int("count", len(ids)), zap.Error(err))
		return 0
	}

	n := 0
	for _, entry := range claimed {
		if ctx.Err() != nil {
			entry.Release()
			p.settle(ctx, entry, p.logger.With(zap.String("event_id", entry.EventID.String())))
			continue
		}
		if p.deliver(ctx, entry) {
			n++
		}
	}
	return n
}

func (p *OutboxProcessor) deliver(ctx context.Context, entry *shared.OutboxEntry) bool {
	log := p.logger.With(
		zap.String("event_id", entry.EventID.String()),
		zap.String("event_type", entry.EventType),
	)

	err := p.publish(ctx, entry)
	switch {
	case err == nil:
		entry.MarkSent()
	case ctx.Err() != nil:
		// Stopped mid-delivery: the attempt does not count.
		entry.Release()
		log.Info("outbox delivery interrupted, entry released", zap.Error(err))
	default:
		entry.MarkFailed(err.Error())
		if entry.IsDead() {
			log.Warn("outbox entry dead-lettered",
				zap.String("aggregate_id", entry.AggregateID.String()),
				zap.Int("attempts", entry.RetryCount),
				zap.String("last_error", entry.LastError),
			)
		} else {
			log.Info("outbox delivery failed, will retry",
				zap.Int("attempts", entry.RetryCount),
				zap.Timep("next_retry_at", entry.NextRetryAt),
				zap.Error(err),
			)
		}
	}

	p.settle(ctx, entry, log)
	return err == nil
}

// settle persists the entry's new state. It outlives ctx so a stopping
// processor still records what happened to the entries it claimed.
func (p *OutboxProcessor) settle(ctx context.Context, entry *shared.OutboxEntry, log *zap.Logger) {
	if err := p.repo.Update(context.WithoutCancel(ctx), entry); err != nil {
		log.Error("persist outbox entry state",
			zap.String("status", string(entry.Status)),
			zap.Error(err),
		)
	}
}

func (p *OutboxProcessor) publish(ctx context.Context, entry *shared.OutboxEntry) error {
	ev, err := p.serializer.Deserialize(entry.EventType, entry.Payload)
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, ev)
}

// purge drops sent entries older than the retention window.
func (p *OutboxProcessor) purge(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.cfg.CleanupRetention)
	deleted, err := p.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error("purge outbox", zap.Error(err))
		return
	}
	if deleted > 0 {
		p.logger.Info("purged delivered outbox entries", zap.Int64("deleted", deleted), zap.Time("before", cutoff))
	}
}
