package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ProblemDetails is an RFC 7807 error body
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError points at one offending request field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

const (
	ErrorTypeValidation   = "https://rentals.app/errors/validation"
	ErrorTypeNotFound     = "https://rentals.app/errors/not-found"
	ErrorTypeUnauthorized = "https://rentals.app/errors/unauthorized"
	ErrorTypeConflict     = "https://rentals.app/errors/conflict"
	ErrorTypeInternal     = "https://rentals.app/errors/internal"
	ErrorTypeBadGateway   = "https://rentals.app/errors/bad-gateway"
	ErrorTypeUnavailable  = "https://rentals.app/errors/service-unavailable"
)

// problem writes the body and returns the write error, so handlers can
// `return NewXxxError(c, ...)` directly.
func problem(c echo.Context, status int, errorType, detail string, fields []ValidationError) error {
	return c.JSON(status, ProblemDetails{
		Type:     errorType,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   fields,
	})
}

func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return problem(c, http.StatusBadRequest, ErrorTypeValidation, detail, errors)
}

func NewNotFoundError(c echo.Context, detail string) error {
	return problem(c, http.StatusNotFound, ErrorTypeNotFound, detail, nil)
}

func NewUnauthorizedError(c echo.Context, detail string) error {
	return problem(c, http.StatusUnauthorized, ErrorTypeUnauthorized, detail, nil)
}

// NewConflictError reports a session that is busy with another operation
func NewConflictError(c echo.Context, detail string) error {
	return problem(c, http.StatusConflict, ErrorTypeConflict, detail, nil)
}

func NewInternalError(c echo.Context, detail string) error {
	return problem(c, http.StatusInternalServerError, ErrorTypeInternal, detail, nil)
}

// NewBadGatewayError reports a failure of the backing store, not of the request
func NewBadGatewayError(c echo.Context, detail string) error {
	return problem(c, http.StatusBadGateway, ErrorTypeBadGateway, detail, nil)
}

// NewServiceUnavailableError reports an optional backend that is not configured
func NewServiceUnavailableError(c echo.Context, detail string) error {
	return problem(c, http.StatusServiceUnavailable, ErrorTypeUnavailable, detail, nil)
}
