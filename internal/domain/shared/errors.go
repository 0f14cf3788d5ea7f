package shared

// DomainError is an error carrying a stable machine-readable code.
// Wrap it with fmt.Errorf("%w: ...") to add context; errors.Is matches the
// sentinel and errors.As recovers the code.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound      = NewDomainError("NOT_FOUND", "resource not found")
	ErrAlreadyExists = NewDomainError("ALREADY_EXISTS", "resource already exists")
	ErrInvalidInput  = NewDomainError("INVALID_INPUT", "invalid input")
	ErrUnauthorized  = NewDomainError("UNAUTHORIZED", "not authorized")
	ErrInvalidState  = NewDomainError("INVALID_STATE", "operation not allowed in current state")
)
