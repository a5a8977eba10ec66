package service

import (
	"errors"
	"net/url"
	"strings"

	"cors-wrapper-go/internal/model"
)

// Input errors, reported to the caller as 400 before anything is dispatched.
var (
	ErrMissingURL        = errors.New("url is required")
	ErrMissingMethod     = errors.New("method is required")
	ErrInvalidURL        = errors.New("url is not a valid absolute URL")
	ErrUnsupportedScheme = errors.New("url scheme must be http or https")
)

// Validate checks the required fields and returns the parsed target URL.
func Validate(req *model.ForwardRequest) (*url.URL, error) {
	if strings.TrimSpace(req.URL) == "" {
		return nil, ErrMissingURL
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, ErrMissingMethod
	}

	u, err := url.Parse(req.URL)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return nil, ErrInvalidURL
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u, nil
	default:
		return nil, ErrUnsupportedScheme
	}
}

// Rejection returns the envelope category and message for an input error.
func Rejection(err error) (category, message string) {
	switch {
	case errors.Is(err, ErrMissingURL):
		return "Validation failed", "URL is required"
	case errors.Is(err, ErrMissingMethod):
		return "Validation failed", "Method is required"
	case errors.Is(err, ErrUnsupportedScheme):
		return "Unsupported protocol", "Only HTTP and HTTPS protocols are supported"
	default:
		return "Invalid URL format", "Please provide a valid URL"
	}
}
