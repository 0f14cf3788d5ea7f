package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/unified"
	"github.com/unihub/backend/internal/infrastructure/persistence/models"
)

func TestGormUnitOfWork_RollbackDiscardsEverything(t *testing.T) {
	db := newTestDB(t)
	conn := seedConnection(t, db)
	uow := NewGormUnitOfWork(db, modelOutbox{})
	ctx := context.Background()
	boom := errors.New("boom")

	rec := unified.NewRecord(conn, unified.EntityTicket, strPtr("rt-1"), nil, time.Now())
	err := uow.Do(ctx, func(ctx context.Context, s unified.Stores) error {
		require.NoError(t, s.Records().Create(ctx, rec))
		require.NoError(t, s.Overlays().Put(ctx, rec.ID, unified.OverlayValues{{Slug: "a", Value: "b"}}))
		require.NoError(t, s.Audits().Append(ctx, unified.NewAuditEvent(conn, "t", "POST", unified.AuditSuccess, unified.DirectionOutbound, time.Now())))
		ev, err := unified.NewRecordPushedEvent(conn, &unified.UnifiedRecord{Record: rec}, true)
		require.NoError(t, err)
		require.NoError(t, s.Events().Save(ctx, ev))
		return boom
	})
	require.ErrorIs(t, err, boom)

	for _, m := range []any{&models.RecordModel{}, &models.OverlayValueModel{}, &models.AuditEventModel{}, &models.OutboxEntryModel{}} {
		var n int64
		require.NoError(t, db.Model(m).Count(&n).Error)
		assert.Zero(t, n, "%T", m)
	}
}

func TestGormUnitOfWork_Commit(t *testing.T) {
	db := newTestDB(t)
	conn := seedConnection(t, db)
	uow := NewGormUnitOfWork(db, modelOutbox{}, WithSnapshotOffload(newMemBlobs(), 1<<20))
	ctx := context.Background()

	rec := unified.NewRecord(conn, unified.EntityTicket, strPtr("rt-1"), nil, time.Now())
	err := uow.Do(ctx, func(ctx context.Context, s unified.Stores) error {
		if err := s.Records().Create(ctx, rec); err != nil {
			return err
		}
		ev, err := unified.NewRecordPushedEvent(conn, &unified.UnifiedRecord{Record: rec}, true)
		if err != nil {
			return err
		}
		return s.Events().Save(ctx, ev)
	})
	require.NoError(t, err)

	got, err := uow.Stores().Records().FindByID(ctx, conn.TenantID, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)

	var n int64
	require.NoError(t, db.Model(&models.OutboxEntryModel{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}
