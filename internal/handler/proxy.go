package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/labstack/echo/v4"

	"cors-wrapper-go/internal/model"
	"cors-wrapper-go/internal/service"
)

// droppedInboundHeaders are never copied from the inbound request to the
// target. Keys are canonical.
var droppedInboundHeaders = map[string]bool{
	"Host":                true,
	"Origin":              true,
	"Referer":             true,
	"User-Agent":          true,
	"Content-Length":      true,
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// ProxyHandler serves ANY /proxy?url=<target>: the inbound request itself
// describes the forward.
type ProxyHandler struct {
	forwarder Forwarder
	logger    *slog.Logger
}

// NewProxyHandler creates a ProxyHandler.
func NewProxyHandler(svc *service.ForwardService, logger *slog.Logger) *ProxyHandler {
	return &ProxyHandler{
		forwarder: svc,
		logger:    logger.With("component", "proxy_handler"),
	}
}

// Handle builds a ForwardRequest from the inbound method, headers and body
// and replies with the envelope.
func (h *ProxyHandler) Handle(c echo.Context) error {
	target := c.QueryParam("url")
	if target == "" {
		resp := model.Rejected("Missing URL parameter", "Please provide a URL parameter: /proxy?url=<target_url>", time.Now())
		return c.JSON(resp.Status, resp)
	}

	req := c.Request()
	fr := &model.ForwardRequest{
		URL:     target,
		Method:  req.Method,
		Headers: inboundHeaders(req.Header),
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		return fmt.Errorf("read inbound body: %w", err)
	}
	if len(body) > 0 {
		// A JSON string cannot carry invalid UTF-8 without altering it.
		if !utf8.Valid(body) {
			resp := model.Rejected("Invalid request body", "Request body must be valid UTF-8 text", time.Now())
			return c.JSON(resp.Status, resp)
		}
		// Encoded as a JSON string so the engine sends the bytes unchanged.
		raw, err := json.Marshal(string(body))
		if err != nil {
			return fmt.Errorf("encode inbound body: %w", err)
		}
		fr.Body = raw
	}

	h.logger.Debug("query proxy request", "method", req.Method, "target", target)

	resp := h.forwarder.Process(req.Context(), fr)
	return c.JSON(resp.Status, resp)
}

func inboundHeaders(src http.Header) map[string]string {
	dst := make(map[string]string, len(src))
	for key, vals := range src {
		if droppedInboundHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[key] = strings.Join(vals, ", ")
	}
	return dst
}
