package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OutboxStatus is where an entry sits in the delivery lifecycle:
//
//	PENDING -> PROCESSING -> SENT
//	              |
//	              +-> FAILED -> PROCESSING ...
//	              +-> DEAD   -> PENDING (manual retry)
type OutboxStatus string

const (
	OutboxStatusPending    OutboxStatus = "PENDING"
	OutboxStatusProcessing OutboxStatus = "PROCESSING"
	OutboxStatusSent       OutboxStatus = "SENT"
	OutboxStatusFailed     OutboxStatus = "FAILED"
	OutboxStatusDead       OutboxStatus = "DEAD"
)

const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = time.Second
	maxBackoff         = 10 * time.Minute
)

// claimable lists the states a processor may pick an entry up from.
var claimable = map[OutboxStatus]bool{
	OutboxStatusPending: true,
	OutboxStatusFailed:  true,
}

// OutboxEntry is a committed event waiting for post-commit delivery.
type OutboxEntry struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	EventID       uuid.UUID
	EventType     string
	AggregateID   uuid.UUID
	AggregateType string
	Payload       []byte

	Status      OutboxStatus
	RetryCount  int
	MaxRetries  int
	LastError   string
	NextRetryAt *time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewOutboxEntry wraps a serialized event in a pending entry.
func NewOutboxEntry(event DomainEvent, payload []byte) *OutboxEntry {
	e := &OutboxEntry{
		ID:            uuid.New(),
		TenantID:      event.TenantID(),
		EventID:       event.EventID(),
		EventType:     event.EventType(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		Payload:       payload,
		Status:        OutboxStatusPending,
		MaxRetries:    DefaultMaxRetries,
	}
	e.CreatedAt = e.touch()
	return e
}

func (e *OutboxEntry) touch() time.Time {
	e.UpdatedAt = time.Now().UTC()
	return e.UpdatedAt
}

func (e *OutboxEntry) CanRetry() bool {
	return e.Status == OutboxStatusFailed && e.RetryCount < e.MaxRetries
}

func (e *OutboxEntry) IsDead() bool { return e.Status == OutboxStatusDead }

// MarkProcessing claims the entry for delivery.
func (e *OutboxEntry) MarkProcessing() error {
	if !claimable[e.Status] {
		return fmt.Errorf("outbox entry %s: cannot claim from %s", e.ID, e.Status)
	}
	e.Status = OutboxStatusProcessing
	e.touch()
	return nil
}

func (e *OutboxEntry) MarkSent() {
	e.Status = OutboxStatusSent
	at := e.touch()
	e.ProcessedAt = &at
}

// MarkFailed records a delivery failure and either schedules the next
// attempt or, once MaxRetries is reached, parks the entry as a dead letter.
func (e *OutboxEntry) MarkFailed(errMsg string) {
	at := e.touch()
	e.RetryCount++
	e.LastError = errMsg
	e.NextRetryAt = nil

	if e.RetryCount >= e.MaxRetries {
		e.Status = OutboxStatusDead
		return
	}
	e.Status = OutboxStatusFailed
	due := at.Add(Backoff(e.RetryCount))
	e.NextRetryAt = &due
}

// Release hands a claimed entry back without spending an attempt, for
// deliveries interrupted by shutdown.
func (e *OutboxEntry) Release() {
	at := e.touch()
	e.NextRetryAt = nil
	if e.RetryCount == 0 {
		e.Status = OutboxStatusPending
		return
	}
	e.Status = OutboxStatusFailed
	e.NextRetryAt = &at
}

// ResetForRetry puts a dead letter back in the pending queue with a fresh
// retry budget.
func (e *OutboxEntry) ResetForRetry() error {
	if !e.IsDead() {
		return fmt.Errorf("outbox entry %s: only dead letters can be retried, got %s", e.ID, e.Status)
	}
	e.Status = OutboxStatusPending
	e.RetryCount = 0
	e.LastError = ""
	e.NextRetryAt = nil
	e.touch()
	return nil
}

// Backoff is the delay before the given 1-based attempt: one second,
// doubling each time, capped at ten minutes.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := DefaultBaseBackoff
	for i := 1; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

// OutboxRepository persists outbox entries.
type OutboxRepository interface {
	Save(ctx context.Context, entries ...*OutboxEntry) error
	FindPending(ctx context.Context, limit int) ([]*OutboxEntry, error)
	// FindRetryable returns failed entries due before the given time.
	FindRetryable(ctx context.Context, before time.Time, limit int) ([]*OutboxEntry, error)
	FindDead(ctx context.Context, page, pageSize int) ([]*OutboxEntry, int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*OutboxEntry, error)
	// FindStale returns entries claimed before claimedBefore that were never
	// settled, such as those held by a processor that crashed mid-delivery.
	FindStale(ctx context.Context, claimedBefore time.Time, limit int) ([]*OutboxEntry, error)
	// MarkProcessing claims the given entries and returns the ones it won.
	// Pending and failed entries are claimable, and so are processing ones
	// last touched before staleBefore. Entries claimed concurrently by
	// another processor are left out.
	MarkProcessing(ctx context.Context, ids []uuid.UUID, staleBefore time.Time) ([]*OutboxEntry, error)
	Update(ctx context.Context, entry *OutboxEntry) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[OutboxStatus]int64, error)
}
