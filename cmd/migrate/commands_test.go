package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.Execute()
	return out.String(), err
}

func TestCreateThenList(t *testing.T) {
	dir := t.TempDir()

	out, err := run(t, "create", "add ticket index", "--path", dir, "-d", "list by connection")
	require.NoError(t, err)
	assert.Contains(t, out, "000001_add_ticket_index.up.sql")
	assert.FileExists(t, filepath.Join(dir, "000001_add_ticket_index.down.sql"))

	out, err = run(t, "list", "--path", dir)
	require.NoError(t, err)
	assert.Equal(t, "000001  add_ticket_index\n", out)
}

func TestList_FlagsMissingDown(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "000001_init.up.sql"), nil, 0o644))

	out, err := run(t, "list", "--path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "(no down)")
}

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"down needs positive count", []string{"down", "0"}},
		{"up rejects words", []string{"up", "all"}},
		{"goto needs version", []string{"goto"}},
		{"force rejects words", []string{"force", "latest"}},
		{"create needs name", []string{"create"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, append(tt.args, "--path", t.TempDir())...)
			require.Error(t, err)
		})
	}
}

func TestOptionalCount(t *testing.T) {
	n, err := optionalCount(nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = optionalCount([]string{"3"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = optionalCount([]string{"-1"})
	assert.Error(t, err)
}
