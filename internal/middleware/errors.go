package middleware

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// problemDetails mirrors handler.ProblemDetails; middleware cannot import handler
type problemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

const (
	errorTypeUnauthorized = "https://rentals.app/errors/unauthorized"
	errorTypeRateLimit    = "https://rentals.app/errors/rate-limit"
)

func writeProblem(c echo.Context, status int, errorType, detail string) error {
	return c.JSON(status, problemDetails{
		Type:     errorType,
		Title:    http.StatusText(status),
		Status:   status,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

func unauthorizedError(c echo.Context, detail string) error {
	return writeProblem(c, http.StatusUnauthorized, errorTypeUnauthorized, detail)
}

// rateLimitError answers 429; the Retry-After header is set by the caller
func rateLimitError(c echo.Context, retryAfter int) error {
	return writeProblem(c, http.StatusTooManyRequests, errorTypeRateLimit,
		fmt.Sprintf("Too many requests. Please retry after %d seconds.", retryAfter))
}
