// Package service implements the forwarding engine and the policies around it.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cors-wrapper-go/internal/client"
	"cors-wrapper-go/internal/config"
	"cors-wrapper-go/internal/guard"
	"cors-wrapper-go/internal/metrics"
	"cors-wrapper-go/internal/model"
	"cors-wrapper-go/internal/tracing"
)

// ForwardFailed is the error category of every envelope whose dispatch produced no response.
const ForwardFailed = "API Wrapper request failed"

// Outcome labels besides the failure kinds.
const (
	OutcomeResponse = "response"
	OutcomeBlocked  = "blocked"
	OutcomeInvalid  = "invalid"
)

// Dispatcher performs one outbound exchange. An error means no response was received.
type Dispatcher interface {
	Send(ctx context.Context, method, url string, header http.Header, body io.Reader) (*client.Response, error)
}

// ForwardService validates, guards and forwards client-described requests.
type ForwardService struct {
	dispatcher Dispatcher
	guard      *guard.HostGuard
	userAgent  string
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     *tracing.Tracer
	now        func() time.Time
}

// NewForwardService creates a ForwardService. m may be nil.
func NewForwardService(
	d Dispatcher,
	g *guard.HostGuard,
	cfg *config.Config,
	logger *slog.Logger,
	m *metrics.Metrics,
	t *tracing.Tracer,
) *ForwardService {
	if t == nil {
		t = tracing.Noop()
	}
	return &ForwardService{
		dispatcher: d,
		guard:      g,
		userAgent:  cfg.UserAgent(),
		logger:     logger.With("component", "forward_service"),
		metrics:    m,
		tracer:     t,
		now:        time.Now,
	}
}

// Process runs validation and the host guard, then forwards. Input problems
// come back as a 400 envelope and nothing is dispatched for them.
func (s *ForwardService) Process(ctx context.Context, req *model.ForwardRequest) *model.ForwardResponse {
	target, err := Validate(req)
	if err != nil {
		s.metrics.Outcome(OutcomeInvalid)
		category, message := Rejection(err)
		s.logger.Info("rejected forward request", "reason", category, "err", err)
		return model.Rejected(category, message, s.now())
	}

	if err := s.guard.Check(target.Hostname()); err != nil {
		s.metrics.Outcome(OutcomeBlocked)
		var blocked *guard.BlockedError
		if errors.As(err, &blocked) {
			return model.Rejected(guard.BlockedCategory, blocked.Message(), s.now())
		}
		return model.Rejected(guard.BlockedCategory, err.Error(), s.now())
	}

	return s.Forward(ctx, req)
}

// Forward re-issues req against its target and always returns an envelope.
// A received response of any status is a success; only a dispatch that
// produced no response is classified as a failure.
func (s *ForwardService) Forward(ctx context.Context, req *model.ForwardRequest) (resp *model.ForwardResponse) {
	start := s.now()
	method := strings.ToUpper(req.Method)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic while forwarding", "panic", r, "target", req.URL)
			resp = s.failure(&Failure{Kind: KindUnknown, Detail: fmt.Sprint(r)}, req.URL)
		}
		end := s.now()
		resp.Meta = model.Meta{
			Timestamp:    model.Timestamp(end),
			ResponseTime: max(end.Sub(start).Milliseconds(), 0),
			TargetURL:    req.URL,
			Method:       method,
		}
	}()

	header := buildRequestHeaders(s.userAgent, req.Headers)
	var body io.Reader
	if AllowsBody(method) && req.HasBody() {
		payload, contentType := encodeBody(req.Body)
		body = bytes.NewReader(payload)
		if header.Get("Content-Type") == "" {
			header.Set("Content-Type", contentType)
		}
	}

	s.logger.Debug("forwarding request",
		"method", method,
		"target", req.URL,
		"headers", header,
		"body", string(req.Body),
	)

	ctx, span := s.tracer.Start(ctx, "forward "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", req.URL),
		),
	)
	defer span.End()

	upstream, err := s.dispatcher.Send(ctx, method, req.URL, header, body)
	if err != nil {
		f := Describe(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(f.Kind))
		span.SetAttributes(attribute.String("forward.failure", string(f.Kind)))
		s.metrics.Outcome(string(f.Kind))
		s.logger.Warn("forward failed",
			"kind", f.Kind,
			"err", err,
			"target", req.URL,
		)
		return s.failure(f, req.URL)
	}

	span.SetAttributes(attribute.Int("http.response.status_code", upstream.StatusCode))
	s.metrics.Outcome(OutcomeResponse)
	s.logger.Info("forwarded",
		"status", upstream.StatusCode,
		"elapsed", s.now().Sub(start),
		"target", req.URL,
	)

	return &model.ForwardResponse{
		Success:    true,
		Status:     upstream.StatusCode,
		StatusText: model.StatusTextOK,
		Headers:    FilterResponseHeaders(upstream.Header),
		Data:       decodeData(upstream.Body),
	}
}

func (s *ForwardService) failure(f *Failure, target string) *model.ForwardResponse {
	status, message := Classify(f)
	return &model.ForwardResponse{
		Success:    false,
		Status:     status,
		StatusText: model.StatusTextError,
		Headers:    map[string]string{},
		Data: model.ErrorPayload{
			Error:         ForwardFailed,
			Message:       message,
			Status:        status,
			Timestamp:     model.Timestamp(s.now()),
			TargetURL:     target,
			OriginalError: f.Detail,
		},
	}
}

// encodeBody returns the bytes to send and the default content type. A JSON
// string is sent as its raw text; anything else is sent as JSON.
func encodeBody(raw json.RawMessage) ([]byte, string) {
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text), "text/plain; charset=utf-8"
	}
	return raw, "application/json"
}

// decodeData keeps a JSON body as-is and turns anything else into a string.
func decodeData(body []byte) any {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && json.Valid(trimmed) {
		return json.RawMessage(trimmed)
	}
	return string(body)
}
