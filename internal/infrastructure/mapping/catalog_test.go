package mapping

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unihub/backend/internal/domain/unified"
	"go.uber.org/zap/zaptest"
)

const acmeYAML = `provider: acme
entities:
  - entity: ticket
    remote_id: id
    fields:
      - {canonical: name, remote: subject}
      - {canonical: description, remote: body.text}
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newSchemas(t *testing.T) *unified.SchemaRegistry {
	t.Helper()
	reg, err := unified.NewTicketingRegistry()
	require.NoError(t, err)
	return reg
}

func TestCatalog_Defaults(t *testing.T) {
	c, err := NewCatalog(WithSchemas(newSchemas(t)))
	require.NoError(t, err)

	assert.Equal(t, []string{"echo", "zendesk"}, c.Providers())

	m, err := c.Mapping("echo", unified.EntityTicket)
	require.NoError(t, err)
	assert.Equal(t, "echo", m.Provider)
	assert.Equal(t, "id", m.RemoteIDField)

	m, err = c.Mapping("zendesk", unified.EntityAttachment)
	require.NoError(t, err)
	assert.Equal(t, "upload.attachment.id", m.RemoteIDField)

	_, err = c.Mapping("zendesk", unified.EntityTeam)
	assert.ErrorIs(t, err, unified.ErrUnknownProvider)
	_, err = c.Mapping("nope", unified.EntityTicket)
	assert.ErrorIs(t, err, unified.ErrUnknownProvider)
}

func TestCatalog_DirectoryOverridesProvider(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme.yaml", acmeYAML)
	writeFile(t, dir, "echo.yml", "provider: echo\nentities:\n  - entity: team\n    remote_id: key\n")
	writeFile(t, dir, "README.md", "ignored")

	c, err := NewCatalog(WithDir(dir), WithSchemas(newSchemas(t)))
	require.NoError(t, err)

	m, err := c.Mapping("acme", unified.EntityTicket)
	require.NoError(t, err)
	assert.Equal(t, "body.text", m.Fields[1].Remote)

	m, err = c.Mapping("echo", unified.EntityTeam)
	require.NoError(t, err)
	assert.Equal(t, "key", m.RemoteIDField)

	_, err = c.Mapping("echo", unified.EntityTicket)
	assert.ErrorIs(t, err, unified.ErrUnknownProvider, "a directory file replaces the whole provider")
}

func TestCatalog_InvalidFiles(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"no provider", "entities: []\n"},
		{"unknown entity", "provider: x\nentities:\n  - {entity: invoice, remote_id: id}\n"},
		{"missing remote id", "provider: x\nentities:\n  - {entity: ticket}\n"},
		{"duplicate entity", "provider: x\nentities:\n  - {entity: ticket, remote_id: id}\n  - {entity: ticket, remote_id: id}\n"},
		{"duplicate field", "provider: x\nentities:\n  - entity: ticket\n    remote_id: id\n    fields:\n      - {canonical: name, remote: a}\n      - {canonical: name, remote: b}\n"},
		{"unknown canonical field", "provider: x\nentities:\n  - entity: ticket\n    remote_id: id\n    fields:\n      - {canonical: colour, remote: c}\n"},
		{"unknown key", "provider: x\nlabels: [a]\n"},
		{"not yaml", "provider: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, "x.yaml", tt.doc)
			_, err := NewCatalog(WithDir(dir), WithSchemas(newSchemas(t)))
			assert.ErrorIs(t, err, ErrInvalidMapping)
		})
	}
}

func TestCatalog_FailedReloadKeepsMappings(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "acme.yaml", acmeYAML)
	c, err := NewCatalog(WithDir(dir))
	require.NoError(t, err)

	writeFile(t, dir, "acme.yaml", "provider: [\n")
	require.Error(t, c.Reload())

	_, err = c.Mapping("acme", unified.EntityTicket)
	assert.NoError(t, err)
}

func TestCatalog_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCatalog(WithDir(dir), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx) }()
	defer func() {
		cancel()
		assert.NoError(t, <-done)
	}()

	// Give the watcher time to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "acme.yaml", acmeYAML)

	assert.Eventually(t, func() bool {
		_, err := c.Mapping("acme", unified.EntityTicket)
		return err == nil
	}, 5*time.Second, 50*time.Millisecond)
}

func TestCatalog_WatchNeedsDir(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)
	assert.Error(t, c.Watch(context.Background()))
}
