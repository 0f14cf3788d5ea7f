// Package unified holds the sync use cases: pushing canonical records out
// through provider connectors and reading them back.
package unified

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/unihub/backend/internal/domain/shared"
	"github.com/unihub/backend/internal/domain/unified"
)

// PushCommand is one canonical write through a connection.
type PushCommand struct {
	TenantID     uuid.UUID          `validate:"required"`
	ConnectionID uuid.UUID          `validate:"required"`
	EntityType   unified.EntityType `validate:"required"`
	Input        map[string]any     `validate:"required"`
	Overlay      unified.OverlayValues
	RemoteData   bool
	// LinkedUserID overrides the connection's linked user when set.
	LinkedUserID string
}

// PushResult is the hydrated record and whether the push created it.
type PushResult struct {
	Record  *unified.UnifiedRecord
	Created bool
}

// ListQuery selects one page of a connection's records.
type ListQuery struct {
	TenantID     uuid.UUID          `validate:"required"`
	ConnectionID uuid.UUID          `validate:"required"`
	EntityType   unified.EntityType `validate:"required"`
	// Limit of zero means the default; out of range values are clamped.
	Limit   int
	Cursor  string
	WantRaw bool
}

// Page is one list result. NextCursor is empty on the last page and
// PrevCursor echoes the cursor that was asked for.
type Page struct {
	Records    []*unified.UnifiedRecord
	PrevCursor string
	NextCursor string
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}
