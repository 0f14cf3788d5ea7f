package persistence

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/unified"
)

func TestGormSnapshotRepository_LatestMissing(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSnapshotRepository(db, nil, 0)

	snap, err := repo.Latest(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestGormSnapshotRepository_ReplaceKeepsOne(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormSnapshotRepository(db, nil, 0)
	ctx := context.Background()
	recordID, tenantID := uuid.New(), uuid.New()

	for _, body := range []string{`{"v":1}`, `{"v":2}`} {
		require.NoError(t, repo.Replace(ctx, &unified.RawSnapshot{
			RecordID: recordID, TenantID: tenantID,
			Payload: json.RawMessage(body), CapturedAt: time.Now().UTC(),
		}))
	}

	snap, err := repo.Latest(ctx, recordID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":2}`, string(snap.Payload))
	assert.Empty(t, snap.ObjectKey)
}

func TestGormSnapshotRepository_Offload(t *testing.T) {
	db := newTestDB(t)
	blobs := newMemBlobs()
	repo := NewGormSnapshotRepository(db, blobs, 16)
	ctx := context.Background()
	recordID, tenantID := uuid.New(), uuid.New()

	big := `{"body":"` + strings.Repeat("x", 64) + `"}`
	require.NoError(t, repo.Replace(ctx, &unified.RawSnapshot{
		RecordID: recordID, TenantID: tenantID,
		Payload: json.RawMessage(big), CapturedAt: time.Now().UTC(),
	}))

	key := SnapshotObjectKey(tenantID, recordID)
	assert.Contains(t, blobs.data, key)

	snap, err := repo.Latest(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, key, snap.ObjectKey)
	assert.JSONEq(t, big, string(snap.Payload))

	// a small payload later moves back inline
	require.NoError(t, repo.Replace(ctx, &unified.RawSnapshot{
		RecordID: recordID, TenantID: tenantID,
		Payload: json.RawMessage(`{}`), CapturedAt: time.Now().UTC(),
	}))
	snap, err = repo.Latest(ctx, recordID)
	require.NoError(t, err)
	assert.Empty(t, snap.ObjectKey)
	assert.JSONEq(t, `{}`, string(snap.Payload))
}

func TestGormSnapshotRepository_LostBlobReadsAsMissing(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	recordID, tenantID := uuid.New(), uuid.New()

	big := `{"body":"` + strings.Repeat("x", 64) + `"}`
	require.NoError(t, NewGormSnapshotRepository(db, newMemBlobs(), 16).Replace(ctx, &unified.RawSnapshot{
		RecordID: recordID, TenantID: tenantID,
		Payload: json.RawMessage(big), CapturedAt: time.Now().UTC(),
	}))

	// a restarted process with an empty store, or with none at all
	for name, repo := range map[string]*GormSnapshotRepository{
		"empty store": NewGormSnapshotRepository(db, newMemBlobs(), 16),
		"no store":    NewGormSnapshotRepository(db, nil, 0),
	} {
		t.Run(name, func(t *testing.T) {
			snap, err := repo.Latest(ctx, recordID)
			require.NoError(t, err)
			assert.Nil(t, snap)
		})
	}
}

func TestGormSnapshotRepository_BlobErrorsStillSurface(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	recordID, tenantID := uuid.New(), uuid.New()

	blobs := newMemBlobs()
	repo := NewGormSnapshotRepository(db, blobs, 16)
	require.NoError(t, repo.Replace(ctx, &unified.RawSnapshot{
		RecordID: recordID, TenantID: tenantID,
		Payload: json.RawMessage(`{"body":"` + strings.Repeat("x", 64) + `"}`), CapturedAt: time.Now().UTC(),
	}))

	_, err := NewGormSnapshotRepository(db, failingBlobs{}, 16).Latest(ctx, recordID)
	assert.ErrorIs(t, err, assert.AnError)
}

type failingBlobs struct{}

func (failingBlobs) Put(context.Context, string, []byte) error { return assert.AnError }

func (failingBlobs) Get(context.Context, string) ([]byte, error) { return nil, assert.AnError }
