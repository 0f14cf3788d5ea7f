package unified

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketingRegistry(t *testing.T) {
	reg, err := NewTicketingRegistry()
	require.NoError(t, err)

	ticket, err := reg.Get(EntityTicket)
	require.NoError(t, err)

	var refs []string
	for _, f := range ticket.References() {
		refs = append(refs, f.Name)
	}
	assert.Equal(t, []string{"parent_ticket", "assigned_to", "collections", "account_id", "contact_id"}, refs)
	assert.Equal(t, EntityAttachment, ticket.SubEntities["attachments"])

	f, ok := ticket.Field("assigned_to")
	require.True(t, ok)
	assert.True(t, f.IsList())
	assert.Equal(t, EntityUser, f.Ref)

	_, err = reg.Get("invoice")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}

func TestEntitySchema_Validate(t *testing.T) {
	reg, err := NewTicketingRegistry()
	require.NoError(t, err)
	ticket, err := reg.Get(EntityTicket)
	require.NoError(t, err)

	tests := []struct {
		name    string
		fields  map[string]any
		wantErr bool
	}{
		{"valid", map[string]any{"name": "Bug", "tags": []any{"a"}, "due_date": "2026-01-01T00:00:00Z"}, false},
		{"nulls allowed", map[string]any{"name": nil, "assigned_to": nil}, false},
		{"inline attachment", map[string]any{"attachments": []any{map[string]any{"file_name": "a.txt"}, "existing-id"}}, false},
		{"number for string", map[string]any{"name": 12}, true},
		{"bad date", map[string]any{"due_date": "yesterday"}, true},
		{"non-string list item", map[string]any{"tags": []any{1}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ticket.Validate(tt.fields)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrTransform)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseEntityType(t *testing.T) {
	et, err := ParseEntityType("ticketing", "contact")
	require.NoError(t, err)
	assert.Equal(t, EntityContact, et)

	_, err = ParseEntityType("crm", "contact")
	assert.ErrorIs(t, err, ErrUnknownEntity)
}
