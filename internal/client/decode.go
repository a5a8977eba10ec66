package client

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/andybalholm/brotli"
)

// ErrBodyTooLarge is returned when an upstream body, raw or decoded, is
// larger than the configured cap. The message carries no numbers so that it
// never reads like a remote status.
var ErrBodyTooLarge = errors.New("upstream response body exceeds size limit")

// readLimited reads r to the end, failing once more than limit bytes arrive.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(out)) > limit {
		return nil, ErrBodyTooLarge
	}
	return out, nil
}

// decodeBody undoes the codings listed in a Content-Encoding header. Codings
// are applied in listed order, so they are removed in reverse. Unknown codings
// leave the body untouched. Every decoded layer is held to limit bytes.
func decodeBody(contentEncoding string, body []byte, limit int64) ([]byte, error) {
	if contentEncoding == "" || len(body) == 0 {
		return body, nil
	}

	codings := strings.Split(contentEncoding, ",")
	for i := len(codings) - 1; i >= 0; i-- {
		coding := strings.ToLower(strings.TrimSpace(codings[i]))

		var (
			out []byte
			err error
		)
		switch coding {
		case "gzip", "x-gzip":
			out, err = gunzip(body, limit)
		case "deflate":
			out, err = inflate(body, limit)
		case "br":
			out, err = readLimited(brotli.NewReader(bytes.NewReader(body)), limit)
		case "identity", "":
			continue
		default:
			return body, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", coding, err)
		}
		body = out
	}
	return body, nil
}

func gunzip(body []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer func() { _ = zr.Close() }()
	return readLimited(zr, limit)
}

// inflate accepts both zlib-wrapped and raw deflate streams; servers send either.
func inflate(body []byte, limit int64) ([]byte, error) {
	if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
		defer func() { _ = zr.Close() }()
		out, err := readLimited(zr, limit)
		if err == nil || errors.Is(err, ErrBodyTooLarge) {
			return out, err
		}
	}
	fr := flate.NewReader(bytes.NewReader(body))
	defer func() { _ = fr.Close() }()
	return readLimited(fr, limit)
}
