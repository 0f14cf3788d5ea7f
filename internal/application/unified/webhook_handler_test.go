package unified

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"go.uber.org/zap"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Dispatch(ctx context.Context, n unified.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func pushedEvent(t *testing.T) *unified.RecordPushedEvent {
	t.Helper()
	conn := testConnection()
	rec := unified.NewRecord(conn, unified.EntityTicket, remote("rt-1"), map[string]any{"name": "x"}, time.Now())
	ev, err := unified.NewRecordPushedEvent(conn, &unified.UnifiedRecord{Record: rec}, true)
	require.NoError(t, err)
	return ev
}

func TestWebhookHandler_Dispatches(t *testing.T) {
	ev := pushedEvent(t)
	notifier := &mockNotifier{}
	notifier.On("Dispatch", mock.Anything, mock.MatchedBy(func(n unified.Notification) bool {
		return n.EventType == "ticketing.ticket.created" &&
			n.TenantID == ev.TenantID() &&
			n.CorrelationID == ev.EventID() &&
			json.Valid(n.Record)
	})).Return(nil)

	h := NewWebhookHandler(notifier, nil, zap.NewNop())
	assert.Equal(t, []string{unified.EventTypeRecordPushed}, h.EventTypes())
	require.NoError(t, h.Handle(context.Background(), ev))
	notifier.AssertExpectations(t)
}

func TestWebhookHandler_FailureIsReturnedForRetry(t *testing.T) {
	boom := errors.New("subscriber down")
	notifier := &mockNotifier{}
	notifier.On("Dispatch", mock.Anything, mock.Anything).Return(boom)

	err := NewWebhookHandler(notifier, nil, zap.NewNop()).Handle(context.Background(), pushedEvent(t))
	assert.ErrorIs(t, err, boom)
}

func TestWebhookHandler_RejectsOtherEvents(t *testing.T) {
	notifier := &mockNotifier{}
	other := shared.NewBaseDomainEvent("other.event", "Other", uuid.New(), uuid.New())

	err := NewWebhookHandler(notifier, nil, zap.NewNop()).Handle(context.Background(), &other)
	assert.Error(t, err)
	notifier.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything)
}

func TestReader_Clamp(t *testing.T) {
	r := NewReader(nil, ReaderConfig{}, nil, zap.NewNop())
	assert.Equal(t, 50, r.clamp(0))
	assert.Equal(t, 1, r.clamp(-5))
	assert.Equal(t, 7, r.clamp(7))
	assert.Equal(t, 1000, r.clamp(5000))
}
