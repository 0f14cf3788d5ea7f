package dto

import "net/http"

// Error codes returned in the response envelope. Format: ERR_<DESCRIPTION>.
const (
	ErrCodeInternal     = "ERR_INTERNAL"
	ErrCodeValidation   = "ERR_VALIDATION"
	ErrCodeBadRequest   = "ERR_BAD_REQUEST"
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	ErrCodeTooLarge     = "ERR_REQUEST_TOO_LARGE"

	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeTokenInvalid = "ERR_TOKEN_INVALID"
	ErrCodeTokenExpired = "ERR_TOKEN_EXPIRED"

	ErrCodeNotFound      = "ERR_NOT_FOUND"
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	ErrCodeInvalidState  = "ERR_INVALID_STATE"
)

// Sync pipeline codes.
const (
	ErrCodeReferenceNotFound = "ERR_REFERENCE_NOT_FOUND"
	ErrCodeTransform         = "ERR_TRANSFORM"
	ErrCodeInvalidCursor     = "ERR_INVALID_CURSOR"
	ErrCodeUnknownProvider   = "ERR_UNKNOWN_PROVIDER"
	ErrCodeUnknownEntity     = "ERR_UNKNOWN_ENTITY"
	ErrCodeConnectorFailure  = "ERR_CONNECTOR_FAILURE"
)

var errorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeTooLarge:     http.StatusRequestEntityTooLarge,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeTokenInvalid: http.StatusUnauthorized,
	ErrCodeTokenExpired: http.StatusUnauthorized,

	ErrCodeNotFound:      http.StatusNotFound,
	ErrCodeAlreadyExists: http.StatusConflict,
	ErrCodeInvalidState:  http.StatusUnprocessableEntity,

	ErrCodeReferenceNotFound: http.StatusUnprocessableEntity,
	ErrCodeTransform:         http.StatusUnprocessableEntity,
	ErrCodeInvalidCursor:     http.StatusBadRequest,
	ErrCodeUnknownProvider:   http.StatusBadRequest,
	ErrCodeUnknownEntity:     http.StatusNotFound,
	ErrCodeConnectorFailure:  http.StatusBadGateway,
}

// GetHTTPStatus returns 500 for codes it does not know.
func GetHTTPStatus(code string) int {
	if status, ok := errorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

var domainCodes = map[string]string{
	"NOT_FOUND":           ErrCodeNotFound,
	"ALREADY_EXISTS":      ErrCodeAlreadyExists,
	"INVALID_INPUT":       ErrCodeInvalidInput,
	"INVALID_STATE":       ErrCodeInvalidState,
	"UNAUTHORIZED":        ErrCodeUnauthorized,
	"REFERENCE_NOT_FOUND": ErrCodeReferenceNotFound,
	"TRANSFORM_ERROR":     ErrCodeTransform,
	"INVALID_CURSOR":      ErrCodeInvalidCursor,
	"UNKNOWN_PROVIDER":    ErrCodeUnknownProvider,
	"UNKNOWN_ENTITY":      ErrCodeUnknownEntity,
	"CONNECTOR_FAILURE":   ErrCodeConnectorFailure,
}

// NormalizeErrorCode maps a domain error code to its API code. Unknown
// codes become ERR_INTERNAL so no internal name leaks out.
func NormalizeErrorCode(code string) string {
	if api, ok := domainCodes[code]; ok {
		return api
	}
	return ErrCodeInternal
}
