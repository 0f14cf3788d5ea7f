package unified

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawSnapshot is the provider response last seen for a record, kept for
// traceability only. A record has at most one current snapshot. Large
// payloads may live in blob storage, in which case ObjectKey is set and
// Payload is filled on read.
type RawSnapshot struct {
	RecordID   uuid.UUID
	TenantID   uuid.UUID
	Payload    json.RawMessage
	ObjectKey  string
	CapturedAt time.Time
}

// BlobStore keeps opaque payloads outside the database.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}
