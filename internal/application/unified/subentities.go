package unified

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/unihub/backend/internal/domain/unified"
)

// subEntities are the inline children of one push.
type subEntities struct {
	// pending records are created in the push transaction.
	pending []*unified.Record
	// ids replaces each sub-entity field of the parent with record ids.
	ids map[string][]string
}

// resolveSubEntities turns inline sub-entity objects into pending records
// with fresh ids and substitutes those ids into input. String items are
// ids of existing records and must resolve.
func (o *Orchestrator) resolveSubEntities(ctx context.Context, stores unified.Stores, schema *unified.EntitySchema, conn *unified.Connection, input map[string]any, now time.Time) (*subEntities, error) {
	out := &subEntities{ids: map[string][]string{}}

	fields := make([]string, 0, len(schema.SubEntities))
	for field := range schema.SubEntities {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		raw, ok := input[field]
		if !ok || raw == nil {
			continue
		}
		items, ok := raw.([]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a list", unified.ErrTransform, schema.Entity, field)
		}

		child := schema.SubEntities[field]
		childSchema, err := o.schemas.Get(child)
		if err != nil {
			return nil, err
		}

		ids := make([]string, 0, len(items))
		var existing []string
		for _, item := range items {
			switch v := item.(type) {
			case string:
				existing = append(existing, v)
				ids = append(ids, v)
			case map[string]any:
				if err := childSchema.Validate(v); err != nil {
					return nil, err
				}
				rec := unified.NewRecord(conn, child, nil, v, now)
				out.pending = append(out.pending, rec)
				ids = append(ids, rec.ID.String())
			default:
				return nil, fmt.Errorf("%w: %s.%s item %T", unified.ErrTransform, schema.Entity, field, item)
			}
		}
		if err := o.checkIDs(ctx, stores, conn.TenantID, child, field, existing); err != nil {
			return nil, err
		}

		out.ids[field] = ids
		input[field] = ids
	}
	return out, nil
}
