package pitsws

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error taxonomy codes carried on response envelopes.
const (
	CodeInvalidInput        = "InvalidInput"
	CodeAccessDenied        = "AccessDenied"
	CodeResourceNotFound    = "ResourceNotFound"
	CodeInternalServerError = "InternalServerError"
)

// ErrorDetail is the code/message pair reported on failed responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Response is the canonical envelope delivered for every handled event.
type Response struct {
	Action     string       `json:"action,omitempty"`
	StatusCode int          `json:"statusCode"`
	Body       interface{}  `json:"body,omitempty"`
	Error      *ErrorDetail `json:"error,omitempty"`
	RequestID  string       `json:"requestId,omitempty"`
}

type envelope struct {
	Response *Response `json:"response"`
}

// Envelope serializes the response in its wire form.
func (r *Response) Envelope() []byte {
	data, err := json.Marshal(envelope{Response: r})
	if err != nil {
		data, _ = json.Marshal(envelope{Response: InternalError("Internal server error")})
	}
	return data
}

// OK returns a successful response with the given body.
func OK(body interface{}) *Response {
	return &Response{
		StatusCode: http.StatusOK,
		Body:       body,
	}
}

// Failure returns an error response with the given status and taxonomy code.
func Failure(statusCode int, code, message string) *Response {
	return &Response{
		StatusCode: statusCode,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
		},
	}
}

// InvalidInput rejects a request naming the malformed or missing field.
func InvalidInput(field string) *Response {
	return Failure(http.StatusBadRequest, CodeInvalidInput, fmt.Sprintf("Input payload %v is invalid", field))
}

// AccessDenied rejects a request that failed identity or authorization checks.
func AccessDenied(message string) *Response {
	return Failure(http.StatusUnauthorized, CodeAccessDenied, message)
}

// NotFound reports a missing or unrelated resource.
func NotFound(message string) *Response {
	return Failure(http.StatusNotFound, CodeResourceNotFound, message)
}

// InternalError reports an unexpected failure.
func InternalError(message string) *Response {
	return Failure(http.StatusInternalServerError, CodeInternalServerError, message)
}
