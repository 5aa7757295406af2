package common

import (
	"errors"
	"net/http"
)

// AppError is an error that already knows how it should look on the wire.
type AppError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
	Details    any
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewAppError constructs an AppError.
func NewAppError(code, message string, status int, err error) *AppError {
	return &AppError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

// WithDetails attaches a details payload and returns e.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WriteAppError renders err if an AppError is in its chain and reports whether it did.
// Missing status and code default to 400 BAD_REQUEST.
func WriteAppError(w http.ResponseWriter, err error) bool {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}
	status, code := appErr.HTTPStatus, appErr.Code
	if status == 0 {
		status = http.StatusBadRequest
	}
	if code == "" {
		code = "BAD_REQUEST"
	}
	JSONError(w, status, code, appErr.Message, appErr.Details)
	return true
}
