package unified

import (
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// EncodeCursor turns a record id into an opaque pagination token. The
// encoding is for transport only; it is not a security boundary.
func EncodeCursor(id uuid.UUID) string {
	return base64.URLEncoding.EncodeToString([]byte(id.String()))
}

// DecodeCursor reverses EncodeCursor. Standard base64 is accepted too.
func DecodeCursor(cursor string) (uuid.UUID, error) {
	raw, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		raw, err = base64.StdEncoding.DecodeString(cursor)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: not base64", ErrInvalidCursor)
	}
	id, err := uuid.Parse(string(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: not a record id", ErrInvalidCursor)
	}
	return id, nil
}
