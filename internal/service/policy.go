package service

import (
	"net/http"
	"strings"
)

// AllowsBody reports whether a caller-supplied body is attached for method.
// Only POST, PUT, PATCH and DELETE carry one; for anything else the body is dropped.
func AllowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

// droppedResponseHeaders are never re-exposed in the envelope. Keys are lower case.
var droppedResponseHeaders = map[string]bool{
	"content-encoding":  true,
	"transfer-encoding": true,
	"connection":        true,
}

// FilterResponseHeaders flattens src into a single-valued map without the
// transport-level headers. Repeated values are joined with ", ".
func FilterResponseHeaders(src http.Header) map[string]string {
	dst := make(map[string]string, len(src))
	for key, vals := range src {
		if droppedResponseHeaders[strings.ToLower(key)] {
			continue
		}
		dst[key] = strings.Join(vals, ", ")
	}
	return dst
}

// buildRequestHeaders returns the baseline outbound headers overlaid with the
// caller's. Caller values win; keys are matched case-insensitively.
func buildRequestHeaders(userAgent string, caller map[string]string) http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("Connection", "keep-alive")
	h.Set("Cache-Control", "no-cache")
	for k, v := range caller {
		h.Set(k, v)
	}
	return h
}
