package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"syscall"

	"cors-wrapper-go/internal/client"
)

// FailureKind categorizes a forward that produced no response.
type FailureKind string

// Failure kinds, listed in classification precedence.
const (
	KindDNS          FailureKind = "dns"
	KindRefused      FailureKind = "connection_refused"
	KindTimeout      FailureKind = "timeout"
	KindTLS          FailureKind = "tls"
	KindRemoteStatus FailureKind = "remote_status"
	KindUnknown      FailureKind = "unknown"
)

// Failure is the structured description of a transport failure.
type Failure struct {
	Kind FailureKind
	// RemoteStatus is set for KindRemoteStatus only.
	RemoteStatus int
	Detail       string
	Err          error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Detail
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Describe derives a Failure from a dispatch error. Typed errors from the net,
// tls and x509 packages are inspected first; only errors carrying none of them
// fall back to matching the message text. Detail is the transport's own
// message, without the request URL or socket addresses around it.
func Describe(err error) *Failure {
	if err == nil {
		return &Failure{Kind: KindUnknown}
	}
	f := &Failure{Kind: KindUnknown, Detail: transportMessage(err), Err: err}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		f.Kind = KindDNS
		if dnsErr.IsTimeout {
			f.Kind = KindTimeout
		}
		return f
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		f.Kind = KindRefused
		return f
	}
	if isTimeout(err) {
		f.Kind = KindTimeout
		return f
	}
	if isTLS(err) {
		f.Kind = KindTLS
		return f
	}
	if errors.Is(err, client.ErrBodyTooLarge) {
		f.Detail = client.ErrBodyTooLarge.Error()
		return f
	}

	f.Kind, f.RemoteStatus = describeText(f.Detail)
	return f
}

// transportMessage strips the *url.Error and *net.OpError layers, whose text
// carries the target URL and addresses. Words in a URL or a port number must
// never steer classification.
func transportMessage(err error) string {
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		err = opErr.Err
	}
	return err.Error()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isTLS(err error) bool {
	var (
		recordErr    tls.RecordHeaderError
		verifyErr    *tls.CertificateVerificationError
		alertErr     tls.AlertError
		authorityErr x509.UnknownAuthorityError
		hostnameErr  x509.HostnameError
		invalidErr   x509.CertificateInvalidError
	)
	return errors.As(err, &recordErr) ||
		errors.As(err, &verifyErr) ||
		errors.As(err, &alertErr) ||
		errors.As(err, &authorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &invalidErr)
}

// remoteStatusPatterns match a status code as a whole word, in precedence order.
var remoteStatusPatterns = []struct {
	status  int
	pattern *regexp.Regexp
}{
	{http.StatusUnauthorized, regexp.MustCompile(`\b401\b`)},
	{http.StatusForbidden, regexp.MustCompile(`\b403\b`)},
	{http.StatusNotFound, regexp.MustCompile(`\b404\b`)},
	{http.StatusInternalServerError, regexp.MustCompile(`\b500\b`)},
}

// describeText is the heuristic for untyped errors.
func describeText(msg string) (FailureKind, int) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "no such host"),
		strings.Contains(lower, "name or service not known"),
		strings.Contains(lower, "name resolution"):
		return KindDNS, 0
	case strings.Contains(lower, "connection refused"):
		return KindRefused, 0
	case strings.Contains(lower, "timeout"),
		strings.Contains(lower, "timed out"),
		strings.Contains(lower, "deadline exceeded"):
		return KindTimeout, 0
	case strings.Contains(lower, "tls"),
		strings.Contains(lower, "ssl"),
		strings.Contains(lower, "x509"),
		strings.Contains(lower, "certificate"):
		return KindTLS, 0
	}
	for _, p := range remoteStatusPatterns {
		if p.pattern.MatchString(msg) {
			return KindRemoteStatus, p.status
		}
	}
	return KindUnknown, 0
}

// Classify maps a Failure to the status and message reported to the caller.
func Classify(f *Failure) (int, string) {
	switch f.Kind {
	case KindDNS:
		return http.StatusNotFound, "Target URL not found"
	case KindRefused:
		return http.StatusServiceUnavailable, "Connection refused by target server"
	case KindTimeout:
		return http.StatusGatewayTimeout, "Request timeout"
	case KindTLS:
		return StatusSSLError, "SSL/TLS error"
	case KindRemoteStatus:
		switch f.RemoteStatus {
		case http.StatusUnauthorized:
			return http.StatusUnauthorized, "Unauthorized"
		case http.StatusForbidden:
			return http.StatusForbidden, "Forbidden"
		case http.StatusNotFound:
			return http.StatusNotFound, "Not Found"
		case http.StatusInternalServerError:
			return http.StatusBadGateway, "Bad Gateway"
		}
	}
	if f.Detail == "" {
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	return http.StatusInternalServerError, f.Detail
}

// StatusSSLError is the non-standard status reported for TLS failures.
const StatusSSLError = 495
