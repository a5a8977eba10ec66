// Package handler exposes the forwarding engine over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"cors-wrapper-go/internal/model"
	"cors-wrapper-go/internal/service"
)

// Forwarder turns a ForwardRequest into an envelope. *service.ForwardService implements it.
type Forwarder interface {
	Process(ctx context.Context, req *model.ForwardRequest) *model.ForwardResponse
}

// WrapperHandler serves POST /api/wrapper.
type WrapperHandler struct {
	forwarder Forwarder
	logger    *slog.Logger
}

// NewWrapperHandler creates a WrapperHandler.
func NewWrapperHandler(svc *service.ForwardService, logger *slog.Logger) *WrapperHandler {
	return &WrapperHandler{
		forwarder: svc,
		logger:    logger.With("component", "wrapper_handler"),
	}
}

// Handle decodes the ForwardRequest body and replies with the envelope. The
// HTTP status mirrors the envelope status.
func (h *WrapperHandler) Handle(c echo.Context) error {
	var req model.ForwardRequest
	if err := decodeJSON(c, &req); err != nil {
		h.logger.Info("malformed wrapper request", "err", err)
		resp := model.Rejected("Invalid request body", "Request body must be a JSON object with url and method", time.Now())
		return c.JSON(resp.Status, resp)
	}

	resp := h.forwarder.Process(c.Request().Context(), &req)
	return c.JSON(resp.Status, resp)
}

// decodeJSON reads exactly one JSON object from the request body.
func decodeJSON(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	if dec.More() {
		return errors.New("decode request body: trailing data")
	}
	return nil
}
