package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"cors-wrapper-go/internal/config"
)

// AvailableEndpoints is listed in the body of every 404.
var AvailableEndpoints = []string{"/api/health", "/health", "/api/wrapper", "/proxy"}

// ErrorBody is the JSON body for errors raised outside the forwarding engine.
type ErrorBody struct {
	Success            bool     `json:"success"`
	Error              string   `json:"error"`
	Message            string   `json:"message"`
	AvailableEndpoints []string `json:"availableEndpoints,omitempty"`
}

// NewErrorHandler returns an Echo error handler. Unexpected errors surface as
// 500 with the real message only in development mode.
func NewErrorHandler(cfg *config.Config, logger *slog.Logger) echo.HTTPErrorHandler {
	logger = logger.With("component", "error_handler")

	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body := errorBody(err, cfg.IsDevelopment())
		if status >= http.StatusInternalServerError {
			logger.Error("unhandled error",
				"err", err,
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Error("write error response", "err", writeErr)
		}
	}
}

func errorBody(err error, development bool) (int, ErrorBody) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch he.Code {
		case http.StatusNotFound:
			return he.Code, ErrorBody{
				Error:              "Not found",
				Message:            "The requested endpoint does not exist",
				AvailableEndpoints: AvailableEndpoints,
			}
		case http.StatusInternalServerError:
		default:
			msg := http.StatusText(he.Code)
			if m, ok := he.Message.(string); ok {
				msg = m
			} else if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
			return he.Code, ErrorBody{Error: http.StatusText(he.Code), Message: msg}
		}
	}

	msg := "Something went wrong"
	if development {
		msg = err.Error()
	}
	return http.StatusInternalServerError, ErrorBody{Error: "Internal server error", Message: msg}
}
