package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"poolScope/internal/aggregate"
)

// ErrorCode is the machine readable error code returned to clients.
type ErrorCode string

const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrNoData         ErrorCode = "NO_DATA"
	ErrUpstream       ErrorCode = "UPSTREAM_ERROR"
	ErrInternal       ErrorCode = "INTERNAL_ERROR"
)

// AppError is the JSON error body.
type AppError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newAppError(code ErrorCode, msg string, cause error) *AppError {
	return &AppError{Code: code, Message: msg, HTTPStatus: statusFor(code), Cause: cause}
}

func invalidRequest(msg string) *AppError {
	return newAppError(ErrInvalidRequest, msg, nil)
}

func statusFor(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrNoData:
		return http.StatusNotFound
	case ErrUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// classify maps domain errors onto API errors.
func classify(err error) *AppError {
	var appErr *AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, aggregate.ErrInvalidRequest), errors.Is(err, aggregate.ErrUnsupportedChain):
		return newAppError(ErrInvalidRequest, err.Error(), err)
	case errors.Is(err, aggregate.ErrNoData):
		return newAppError(ErrNoData, err.Error(), err)
	case errors.Is(err, context.DeadlineExceeded):
		return newAppError(ErrUpstream, "upstream timeout", err)
	default:
		return newAppError(ErrInternal, err.Error(), err)
	}
}
