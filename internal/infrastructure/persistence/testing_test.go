package persistence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// newTestDB opens a private in-memory SQLite database with the hub schema.
// A single connection keeps every statement on the same database.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), GormConfig())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.UnifiedModels()...))
	return db
}

func seedConnection(t *testing.T, db *gorm.DB) *unified.Connection {
	t.Helper()
	ctx := context.Background()
	tenant := &unified.Tenant{ID: uuid.New(), Name: "acme", CreatedAt: time.Now().UTC()}
	require.NoError(t, NewGormTenantRepository(db).Save(ctx, tenant))

	conn := &unified.Connection{
		ID:        uuid.New(),
		TenantID:  tenant.ID,
		Provider:  "echo",
		Category:  unified.CategoryTicketing,
		Status:    unified.ConnectionActive,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, NewGormConnectionRepository(db).Save(ctx, conn))
	return conn
}

// modelOutbox writes outbox rows directly, standing in for the event
// package's publisher.
type modelOutbox struct{}

func (modelOutbox) SaveEvents(ctx context.Context, txProvider any, events ...shared.DomainEvent) error {
	tx := txProvider.(*gorm.DB)
	for _, ev := range events {
		entry := shared.NewOutboxEntry(ev, []byte(`{}`))
		if err := tx.WithContext(ctx).Create(models.OutboxEntryModelFromDomain(entry)).Error; err != nil {
			return err
		}
	}
	return nil
}

type memBlobs struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: map[string][]byte{}}
}

func (m *memBlobs) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.data[key]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return d, nil
}
