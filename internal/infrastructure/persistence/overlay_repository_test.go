package persistence

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/unified"
)

func TestGormOverlayRepository_Rules(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOverlayRepository(db)
	ctx := context.Background()
	tenantID := uuid.New()

	require.NoError(t, repo.SaveRule(ctx, tenantID, "jira", unified.EntityTicket,
		unified.OverlayRule{Slug: "severity", RemoteField: "customfield_1", Default: "low", Position: 2}))
	require.NoError(t, repo.SaveRule(ctx, tenantID, "jira", unified.EntityTicket,
		unified.OverlayRule{Slug: "region", RemoteField: "customfield_2", Position: 1}))
	require.NoError(t, repo.SaveRule(ctx, tenantID, "zendesk", unified.EntityTicket,
		unified.OverlayRule{Slug: "other", RemoteField: "x"}))

	// same slug replaces the rule
	require.NoError(t, repo.SaveRule(ctx, tenantID, "jira", unified.EntityTicket,
		unified.OverlayRule{Slug: "severity", RemoteField: "customfield_9", Default: 3, Position: 2}))

	rules, err := repo.Rules(ctx, tenantID, "jira", unified.EntityTicket)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "region", rules[0].Slug)
	assert.Nil(t, rules[0].Default)
	assert.Equal(t, "severity", rules[1].Slug)
	assert.Equal(t, "customfield_9", rules[1].RemoteField)
	assert.Equal(t, json.Number("3"), rules[1].Default)

	rules, err = repo.Rules(ctx, uuid.New(), "jira", unified.EntityTicket)
	require.NoError(t, err)
	assert.Empty(t, rules)
}

func TestGormOverlayRepository_PutReplacesSet(t *testing.T) {
	db := newTestDB(t)
	repo := NewGormOverlayRepository(db)
	ctx := context.Background()
	recordID := uuid.New()

	require.NoError(t, repo.Put(ctx, recordID, unified.OverlayValues{
		{Slug: "b", Value: "first"},
		{Slug: "a", Value: map[string]any{"nested": true}},
	}))
	values, err := repo.Values(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, unified.OverlayValues{
		{Slug: "b", Value: "first"},
		{Slug: "a", Value: map[string]any{"nested": true}},
	}, values)

	require.NoError(t, repo.Put(ctx, recordID, unified.OverlayValues{{Slug: "c", Value: 1}}))
	values, err = repo.Values(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, unified.OverlayValues{{Slug: "c", Value: json.Number("1")}}, values)

	require.NoError(t, repo.Put(ctx, recordID, nil))
	values, err = repo.Values(ctx, recordID)
	require.NoError(t, err)
	assert.Empty(t, values)
}
