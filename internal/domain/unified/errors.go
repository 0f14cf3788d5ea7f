package unified

import (
	"fmt"
	"strings"

	"github.com/unihub/backend/internal/domain/shared"
)

// Error taxonomy of the sync pipeline. Test with errors.Is.
var (
	ErrNotFound          = shared.ErrNotFound
	ErrReferenceNotFound = shared.NewDomainError("REFERENCE_NOT_FOUND", "referenced entity not found")
	ErrConnectorFailure  = shared.NewDomainError("CONNECTOR_FAILURE", "provider connector failed")
	ErrTransform         = shared.NewDomainError("TRANSFORM_ERROR", "payload shape mismatch")
	ErrInvalidCursor     = shared.NewDomainError("INVALID_CURSOR", "invalid pagination cursor")
	ErrUnknownProvider   = shared.NewDomainError("UNKNOWN_PROVIDER", "unknown provider")
	ErrUnknownEntity     = shared.NewDomainError("UNKNOWN_ENTITY", "unknown entity type")
)

// ReferenceError reports every missing id of one reference field.
type ReferenceError struct {
	Field   string
	Missing []string
}

func (e *ReferenceError) Error() string {
	return fmt.Sprintf("%s: %s [%s]", ErrReferenceNotFound.Message, e.Field, strings.Join(e.Missing, ", "))
}

func (e *ReferenceError) Unwrap() error {
	return ErrReferenceNotFound
}

// StepError annotates a pipeline failure with the step and subject id.
type StepError struct {
	Step string
	ID   string
	Err  error
}

func (e *StepError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Step, e.ID, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// WrapStep returns nil for a nil err.
func WrapStep(step, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StepError{Step: step, ID: id, Err: err}
}

// ConnectorError is a provider call that failed. StatusCode is zero when
// no response was received.
type ConnectorError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ConnectorError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s: HTTP %d: %v", ErrConnectorFailure.Message, e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConnectorFailure.Message, e.Provider, e.Err)
}

// Unwrap exposes both the taxonomy sentinel and the cause.
func (e *ConnectorError) Unwrap() []error {
	return []error{ErrConnectorFailure, e.Err}
}
