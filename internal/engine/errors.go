package engine

import (
	"errors"
	"fmt"
)

// Sentinels for the runtime evaluation surface.
var (
	ErrUnknownTrigger   = errors.New("unknown trigger")
	ErrUnknownUser      = errors.New("unknown user")
	ErrMalformedContext = errors.New("malformed context")
	ErrNoActiveVersion  = errors.New("no active funnel version")
)

type AppError struct {
	Code    string        `json:"code"`
	Status  int           `json:"-"`
	Message string        `json:"message"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field,omitempty"`
	Rule    string `json:"rule,omitempty"`
	Message string `json:"message"`
}

func (e *AppError) Error() string {
	return e.Message
}

type ErrorResponse struct {
	Error *AppError `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Status:  404,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func UnknownTriggerError(name string) *AppError {
	return &AppError{
		Code:    "UNKNOWN_TRIGGER",
		Status:  404,
		Message: fmt.Sprintf("Unknown trigger: %s", name),
	}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: "UNAUTHORIZED", Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: "FORBIDDEN", Status: 403, Message: msg}
}

func ValidationError(details []ErrorDetail) *AppError {
	return &AppError{
		Code:    "VALIDATION_FAILED",
		Status:  422,
		Message: "Validation failed",
		Details: details,
	}
}
