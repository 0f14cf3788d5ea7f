package persistence

import (
	"errors"

	"github.com/unihub/backend/internal/domain/shared"
	"gorm.io/gorm"
)

// translate maps driver errors to domain errors. It relies on the
// connection being opened with TranslateError enabled.
func translate(err error, notFound error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound) && notFound != nil:
		return notFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return shared.ErrAlreadyExists
	default:
		return err
	}
}
