package event

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// DeadLetterService lets operators inspect webhook deliveries that ran out
// of retries and put them back in the queue.
type DeadLetterService struct {
	repo   shared.OutboxRepository
	logger *zap.Logger
}

func NewDeadLetterService(repo shared.OutboxRepository, logger *zap.Logger) *DeadLetterService {
	return &DeadLetterService{repo: repo, logger: logger}
}

// EntryDTO is the operator view of an outbox entry. The payload is left
// out; it may hold tenant record data.
type EntryDTO struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	EventID       uuid.UUID  `json:"event_id"`
	EventType     string     `json:"event_type"`
	AggregateID   uuid.UUID  `json:"aggregate_id"`
	AggregateType string     `json:"aggregate_type"`
	Status        string     `json:"status"`
	RetryCount    int        `json:"retry_count"`
	MaxRetries    int        `json:"max_retries"`
	LastError     string     `json:"last_error,omitempty"`
	NextRetryAt   *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type ListFilter struct {
	Page     int `form:"page" binding:"omitempty,min=1"`
	PageSize int `form:"page_size" binding:"omitempty,min=1,max=100"`
}

type ListResult struct {
	Entries    []EntryDTO `json:"entries"`
	Total      int64      `json:"total"`
	Page       int        `json:"page"`
	PageSize   int        `json:"page_size"`
	TotalPages int        `json:"total_pages"`
}

type StatsDTO struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Total      int64 `json:"total"`
}

func (f ListFilter) normalize() (page, size int) {
	page, size = f.Page, f.PageSize
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = defaultPageSize
	}
	return page, min(size, maxPageSize)
}

// List pages through dead letters, most recent failure first.
func (s *DeadLetterService) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	page, size := filter.normalize()
	entries, total, err := s.repo.FindDead(ctx, page, size)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}

	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	pages := int(total) / size
	if int(total)%size > 0 {
		pages++
	}
	return &ListResult{Entries: out, Total: total, Page: page, PageSize: size, TotalPages: pages}, nil
}

func (s *DeadLetterService) Get(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	dto := toEntryDTO(entry)
	return &dto, nil
}

// Retry requeues one dead letter. Entries in any other state are rejected
// with shared.ErrInvalidState.
func (s *DeadLetterService) Retry(ctx context.Context, id uuid.UUID) (*EntryDTO, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := entry.ResetForRetry(); err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidState, err)
	}
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("requeue %s: %w", id, err)
	}

	s.logger.Info("dead letter requeued",
		zap.String("id", id.String()),
		zap.String("event_type", entry.EventType),
	)
	dto := toEntryDTO(entry)
	return &dto, nil
}

// RetryAll requeues every dead letter and returns how many were moved.
// Requeued entries leave the dead set, so the first page is reread until
// it is empty.
func (s *DeadLetterService) RetryAll(ctx context.Context) (int64, error) {
	var count int64
	for {
		entries, _, err := s.repo.FindDead(ctx, 1, maxPageSize)
		if err != nil {
			return count, fmt.Errorf("list dead letters: %w", err)
		}
		if len(entries) == 0 {
			break
		}

		var errs []error
		for _, e := range entries {
			if err := e.ResetForRetry(); err != nil {
				continue
			}
			if err := s.repo.Update(ctx, e); err != nil {
				errs = append(errs, fmt.Errorf("requeue %s: %w", e.ID, err))
				continue
			}
			count++
		}
		if len(errs) > 0 {
			return count, errors.Join(errs...)
		}
		if len(entries) < maxPageSize {
			break
		}
	}

	if count > 0 {
		s.logger.Info("dead letters requeued", zap.Int64("count", count))
	}
	return count, nil
}

func (s *DeadLetterService) Stats(ctx context.Context) (*StatsDTO, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("outbox stats: %w", err)
	}
	var total int64
	for _, n := range counts {
		total += n
	}
	return &StatsDTO{
		Pending:    counts[shared.OutboxStatusPending],
		Processing: counts[shared.OutboxStatusProcessing],
		Sent:       counts[shared.OutboxStatusSent],
		Failed:     counts[shared.OutboxStatusFailed],
		Dead:       counts[shared.OutboxStatusDead],
		Total:      total,
	}, nil
}

func toEntryDTO(e *shared.OutboxEntry) EntryDTO {
	return EntryDTO{
		ID:            e.ID,
		TenantID:      e.TenantID,
		EventID:       e.EventID,
		EventType:     e.EventType,
		AggregateID:   e.AggregateID,
		AggregateType: e.AggregateType,
		Status:        string(e.Status),
		RetryCount:    e.RetryCount,
		MaxRetries:    e.MaxRetries,
		LastError:     e.LastError,
		NextRetryAt:   e.NextRetryAt,
		ProcessedAt:   e.ProcessedAt,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}
