package common

import (
	"fmt"
	"net/http"
)

// AppError is an error carrying the HTTP status it should be reported with
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying error to errors.Is / errors.As
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError
func NewAppError(code int, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewBadRequestError creates a 400 error
func NewBadRequestError(message string, err error) *AppError {
	return NewAppError(http.StatusBadRequest, message, err)
}

// NewUnauthorizedError creates a 401 error
func NewUnauthorizedError(message string) *AppError {
	return NewAppError(http.StatusUnauthorized, message, nil)
}

// NewPaymentRequiredError creates a 402 error
func NewPaymentRequiredError(message string, err error) *AppError {
	return NewAppError(http.StatusPaymentRequired, message, err)
}

// NewForbiddenError creates a 403 error
func NewForbiddenError(message string) *AppError {
	return NewAppError(http.StatusForbidden, message, nil)
}

// NewNotFoundError creates a 404 error
func NewNotFoundError(message string, err error) *AppError {
	return NewAppError(http.StatusNotFound, message, err)
}

// NewConflictError creates a 409 error
func NewConflictError(message string) *AppError {
	return NewAppError(http.StatusConflict, message, nil)
}

// NewInternalServerError creates a 500 error
func NewInternalServerError(message string) *AppError {
	return NewAppError(http.StatusInternalServerError, message, nil)
}

// NewInternalError creates a 500 error wrapping the cause
func NewInternalError(message string, err error) *AppError {
	return NewAppError(http.StatusInternalServerError, message, err)
}

// NewServiceUnavailableError creates a 503 error
func NewServiceUnavailableError(message string) *AppError {
	return NewAppError(http.StatusServiceUnavailable, message, nil)
}
