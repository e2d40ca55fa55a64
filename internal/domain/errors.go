package domain

import (
	"errors"
	"fmt"
)

// Error codes for the upload core, exactly the kinds spec.md §7 names.
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyReceived = "ALREADY_RECEIVED"
	ErrCodeWriteError      = "WRITE_ERROR"
	ErrCodeStoreError      = "STORE_ERROR"
	ErrCodeFinalizationErr = "FINALIZATION_ERROR"
	ErrCodePeekError       = "PEEK_ERROR"
)

// DomainError is the single error shape the Coordinator and Request Surface
// exchange. Code selects the HTTP mapping; Err carries the underlying cause.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is by code, ignoring Message/Err.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError wraps err (which may be nil) under code/message.
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{Code: code, Message: message, Err: err}
}

// Sentinels for errors.Is comparisons; Message/Err are overwritten by callers
// that need more context via NewDomainError.
var (
	ErrValidation      = &DomainError{Code: ErrCodeValidation, Message: "invalid request"}
	ErrNotFound        = &DomainError{Code: ErrCodeNotFound, Message: "upload session not found"}
	ErrAlreadyReceived = &DomainError{Code: ErrCodeAlreadyReceived, Message: "chunk already received"}
	ErrWriteError      = &DomainError{Code: ErrCodeWriteError, Message: "chunk write failed"}
	ErrStoreError      = &DomainError{Code: ErrCodeStoreError, Message: "metadata store operation failed"}
	ErrFinalization    = &DomainError{Code: ErrCodeFinalizationErr, Message: "finalization failed"}
	ErrPeek            = &DomainError{Code: ErrCodePeekError, Message: "container peek failed"}
)

// Code extracts the DomainError code from err, or "" if err is not one.
func Code(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
