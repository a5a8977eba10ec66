package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// responseStatus resolves the status a request ends with. When a handler
// returns an *echo.HTTPError the response has not been written yet; Echo's
// central error handler writes it later, so the code is taken from the error.
// Any other error becomes a 500 there.
func responseStatus(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return http.StatusInternalServerError
}
