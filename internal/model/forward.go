// Package model defines the request and response envelopes of the wrapper.
package model

import (
	"encoding/json"
	"time"
)

// ForwardRequest describes the request a client wants re-issued against a target.
type ForwardRequest struct {
	URL     string            `json:"url"`
	Method  string            `json:"method"`
	Headers map[string]string `json:"headers,omitempty"`
	// Body is either structured JSON or a JSON string holding raw text.
	Body json.RawMessage `json:"body,omitempty"`
}

// HasBody reports whether a non-null body was supplied.
func (r *ForwardRequest) HasBody() bool {
	return len(r.Body) > 0 && string(r.Body) != "null"
}

// ForwardResponse is the normalized envelope returned for every forward call.
type ForwardResponse struct {
	Success    bool              `json:"success"`
	Status     int               `json:"status"`
	StatusText string            `json:"statusText"`
	Headers    map[string]string `json:"headers"`
	Data       any               `json:"data"`
	Meta       Meta              `json:"meta"`
}

// Meta carries the timing and echo fields of a forward call.
type Meta struct {
	Timestamp    string `json:"timestamp"`
	ResponseTime int64  `json:"responseTime"`
	TargetURL    string `json:"targetUrl"`
	Method       string `json:"method"`
}

// ErrorPayload is the data of an envelope whose forward did not produce a response.
type ErrorPayload struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Status        int    `json:"status,omitempty"`
	Timestamp     string `json:"timestamp,omitempty"`
	TargetURL     string `json:"targetUrl,omitempty"`
	OriginalError string `json:"originalError,omitempty"`
}

// Status texts used by the envelope. They are fixed labels, not reason phrases.
const (
	StatusTextOK         = "OK"
	StatusTextError      = "Error"
	StatusTextBadRequest = "Bad Request"
)

// Timestamp formats t the way every envelope reports instants.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Rejected builds the 400 envelope for input rejected before dispatch.
func Rejected(category, message string, now time.Time) *ForwardResponse {
	return &ForwardResponse{
		Success:    false,
		Status:     400,
		StatusText: StatusTextBadRequest,
		Headers:    map[string]string{},
		Data: ErrorPayload{
			Error:   category,
			Message: message,
		},
		Meta: Meta{Timestamp: Timestamp(now)},
	}
}
