//go:build integration

package persistence

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/migration"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func migrationsDir(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

func newPostgresDB(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("unihub_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)

	m, err := migration.New(sqlDB, migrationsDir(t), zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, m.Up())
	return db
}

func TestPostgres_ConcurrentFirstPushHasOneWinner(t *testing.T) {
	db := newPostgresDB(t)
	conn := seedConnection(t, db)
	ctx := context.Background()
	uow := NewGormUnitOfWork(db, modelOutbox{})

	const writers = 8
	var (
		wg        sync.WaitGroup
		conflicts int
		mu        sync.Mutex
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := uow.Do(ctx, func(ctx context.Context, s unified.Stores) error {
				rec := unified.NewRecord(conn, unified.EntityTicket, strPtr("rt-race"), map[string]any{"name": "x"}, time.Now())
				err := s.Records().Create(ctx, rec)
				if err == nil {
					return nil
				}
				if !assert.ErrorIs(t, err, shared.ErrAlreadyExists) {
					return err
				}
				mu.Lock()
				conflicts++
				mu.Unlock()

				existing, err := s.Records().FindByRemoteID(ctx, conn.ID, "rt-race")
				if err != nil {
					return err
				}
				existing.Apply(map[string]any{"name": "y"}, time.Now())
				return s.Records().Update(ctx, existing)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var n int64
	require.NoError(t, db.Table("unified_records").Where("remote_id = ?", "rt-race").Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, writers-1, conflicts)
}

func TestPostgres_ListPageOrder(t *testing.T) {
	db := newPostgresDB(t)
	conn := seedConnection(t, db)
	repo := NewGormRecordRepository(db)
	ctx := context.Background()

	now := time.Now()
	var first *unified.Record
	for i := 0; i < 3; i++ {
		r := unified.NewRecord(conn, unified.EntityTicket, nil, nil, now.Add(time.Duration(i)*time.Second))
		require.NoError(t, repo.Create(ctx, r))
		if first == nil {
			first = r
		}
	}

	page, err := repo.ListPage(ctx, unified.PageQuery{
		TenantID: conn.TenantID, ConnectionID: conn.ID, EntityType: unified.EntityTicket, Size: 10,
	})
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, first.ID, page[0].ID)
}
