package unified

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursor_RoundTrip(t *testing.T) {
	id := uuid.New()

	got, err := DecodeCursor(EncodeCursor(id))
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestDecodeCursor_AcceptsStdEncoding(t *testing.T) {
	id := uuid.New()
	std := base64.StdEncoding.EncodeToString([]byte(id.String()))

	got, err := DecodeCursor(std)
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	for _, c := range []string{
		"",
		"%%%not-base64",
		base64.URLEncoding.EncodeToString([]byte("42")),
	} {
		_, err := DecodeCursor(c)
		assert.ErrorIs(t, err, ErrInvalidCursor, "cursor %q", c)
	}
}
