// Package errors provides RFC 7807 Problem Details error responses.
package errors

import (
	"encoding/json"
	"net/http"

	"github.com/auth-platform/file-upload/internal/domain"
)

// ProblemDetails represents an RFC 7807 Problem Details response.
type ProblemDetails struct {
	Type          string         `json:"type"`
	Title         string         `json:"title"`
	Status        int            `json:"status"`
	Detail        string         `json:"detail,omitempty"`
	Instance      string         `json:"instance,omitempty"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Extensions    map[string]any `json:"extensions,omitempty"`
}

// ErrorCode is an application error code. Values are exactly the
// domain.ErrCode* constants so a DomainError's Code converts directly.
type ErrorCode string

const (
	ErrValidation      ErrorCode = ErrorCode(domain.ErrCodeValidation)
	ErrNotFound        ErrorCode = ErrorCode(domain.ErrCodeNotFound)
	ErrAlreadyReceived ErrorCode = ErrorCode(domain.ErrCodeAlreadyReceived)
	ErrWriteError      ErrorCode = ErrorCode(domain.ErrCodeWriteError)
	ErrStoreError      ErrorCode = ErrorCode(domain.ErrCodeStoreError)
	ErrFinalization    ErrorCode = ErrorCode(domain.ErrCodeFinalizationErr)
	ErrPeek            ErrorCode = ErrorCode(domain.ErrCodePeekError)
	ErrInternal        ErrorCode = "INTERNAL_ERROR"
)

// errorMapping maps error codes to HTTP status and titles.
var errorMapping = map[ErrorCode]struct {
	Status int
	Title  string
}{
	ErrValidation:      {http.StatusBadRequest, "Validation Error"},
	ErrNotFound:        {http.StatusNotFound, "Upload Session Not Found"},
	ErrAlreadyReceived: {http.StatusConflict, "Chunk Already Received"},
	ErrWriteError:      {http.StatusInternalServerError, "Chunk Write Failed"},
	ErrStoreError:      {http.StatusInternalServerError, "Metadata Store Error"},
	ErrFinalization:    {http.StatusUnprocessableEntity, "Finalization Failed"},
	ErrPeek:            {http.StatusInternalServerError, "Container Peek Failed"},
	ErrInternal:        {http.StatusInternalServerError, "Internal Error"},
}

// NewProblemDetails creates a new ProblemDetails from an error code.
func NewProblemDetails(code ErrorCode, detail, instance, correlationID string) *ProblemDetails {
	mapping, ok := errorMapping[code]
	if !ok {
		mapping = errorMapping[ErrInternal]
	}

	return &ProblemDetails{
		Type:          "https://errors.file-upload/" + string(code),
		Title:         mapping.Title,
		Status:        mapping.Status,
		Detail:        detail,
		Instance:      instance,
		CorrelationID: correlationID,
	}
}

// FromDomainError converts a domain.DomainError into the matching ErrorCode,
// falling back to ErrInternal for anything that isn't a DomainError.
func FromDomainError(err error) ErrorCode {
	code := domain.Code(err)
	if code == "" {
		return ErrInternal
	}
	return ErrorCode(code)
}

// WithExtension adds an extension to the problem details.
func (p *ProblemDetails) WithExtension(key string, value any) *ProblemDetails {
	if p.Extensions == nil {
		p.Extensions = make(map[string]any)
	}
	p.Extensions[key] = value
	return p
}

// Write writes the problem details to the response.
func (p *ProblemDetails) Write(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.Header().Set("X-Correlation-ID", p.CorrelationID)
	w.WriteHeader(p.Status)
	json.NewEncoder(w).Encode(p)
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, code ErrorCode, detail, instance, correlationID string) {
	problem := NewProblemDetails(code, detail, instance, correlationID)
	problem.Write(w)
}

// WriteDomainError writes err as a problem response, mapping its
// domain.DomainError code (if any) to the corresponding HTTP status.
func WriteDomainError(w http.ResponseWriter, err error, instance, correlationID string) {
	WriteError(w, FromDomainError(err), err.Error(), instance, correlationID)
}

// GetHTTPStatus returns the HTTP status for an error code.
func GetHTTPStatus(code ErrorCode) int {
	if mapping, ok := errorMapping[code]; ok {
		return mapping.Status
	}
	return http.StatusInternalServerError
}
