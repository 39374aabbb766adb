// Package pipelineerr defines the typed error taxonomy used across the
// decisioning pipeline so every stage reports failures the same way and
// the API layer can map them to a stable HTTP response without string
// matching.
package pipelineerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the stable, machine-readable error category.
type Code string

const (
	Validation            Code = "VALIDATION"
	DependencyUnavailable  Code = "DEPENDENCY_UNAVAILABLE"
	BudgetExceeded         Code = "BUDGET_EXCEEDED"
	ModelUnavailable       Code = "MODEL_UNAVAILABLE"
	PolicyUndefined        Code = "POLICY_UNDEFINED"
	Internal               Code = "INTERNAL"
)

// Error is a typed pipeline error wrapping an underlying cause.
type Error struct {
	Code    Code
	Stage   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Code, e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Code, e.Stage, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a pipeline error for the given stage.
func New(code Code, stage, message string, err error) *Error {
	return &Error{Code: code, Stage: stage, Message: message, Err: err}
}

// CodeOf extracts the Code from err, defaulting to Internal when err is not
// a *Error.
func CodeOf(err error) Code {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code
	}
	return Internal
}

// HTTPStatus maps a Code to the HTTP status the API layer should return.
func HTTPStatus(code Code) int {
	switch code {
	case Validation:
		return http.StatusBadRequest
	case DependencyUnavailable:
		return http.StatusServiceUnavailable
	case BudgetExceeded:
		return http.StatusGatewayTimeout
	case ModelUnavailable:
		return http.StatusServiceUnavailable
	case PolicyUndefined:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
