package dto

// Response is the envelope of every API answer.
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

type ErrorInfo struct {
	Code      string        `json:"code"`
	Message   string        `json:"message"`
	RequestID string        `json:"request_id,omitempty"`
	Details   []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail points at one offending input field.
type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Meta carries either page-number or cursor pagination, never both.
type Meta struct {
	Total      int64  `json:"total,omitempty"`
	Page       int    `json:"page,omitempty"`
	PageSize   int    `json:"page_size,omitempty"`
	TotalPages int    `json:"total_pages,omitempty"`
	Previous   string `json:"previous,omitempty"`
	Next       string `json:"next,omitempty"`
}

func NewSuccessResponse(data any) Response {
	return Response{Success: true, Data: data}
}

func NewPagedResponse(data any, total int64, page, pageSize, totalPages int) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Total: total, Page: page, PageSize: pageSize, TotalPages: totalPages},
	}
}

// NewCursorResponse always sets Meta so clients can tell the last page
// by an empty Next.
func NewCursorResponse(data any, previous, next string) Response {
	return Response{
		Success: true,
		Data:    data,
		Meta:    &Meta{Previous: previous, Next: next},
	}
}

func NewErrorResponse(code, message, requestID string) Response {
	return Response{
		Success: false,
		Error:   &ErrorInfo{Code: code, Message: message, RequestID: requestID},
	}
}

func NewValidationErrorResponse(requestID string, details []ErrorDetail) Response {
	return Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      ErrCodeValidation,
			Message:   "Request validation failed",
			RequestID: requestID,
			Details:   details,
		},
	}
}
