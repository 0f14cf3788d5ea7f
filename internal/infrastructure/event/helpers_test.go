package event

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type pingEvent struct {
	shared.BaseDomainEvent
	Note string `json:"note"`
}

func newPingEvent(note string) *pingEvent {
	return &pingEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent("test.ping", "Ping", uuid.New(), uuid.New()),
		Note:            note,
	}
}

// recordingHandler remembers what it saw and fails while err is set.
type recordingHandler struct {
	mu    sync.Mutex
	types []string
	seen  []shared.DomainEvent
	err   error
}

func (h *recordingHandler) Handle(_ context.Context, ev shared.DomainEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, ev)
	return h.err
}

func (h *recordingHandler) EventTypes() []string { return h.types }

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func (h *recordingHandler) fail(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.err = err
}

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.OutboxEntryModel{}))
	return db
}
