/*
Package req provides helper functions for building outgoing HTTP requests and binding
the backend's responses.

It encapsulates JSON encoding of request bodies, size-limited reading of response bodies
and JSON decoding into destination structs, and integrates error handling so that callers
receive *errs.CustomError values with consistent codes.
*/
package req

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"stompchat/internal/pkg/errs"
)

const (
	// MaxResponseSize defines the maximum response body (8 MB) the client will read.
	// History responses for long conversations are the largest payloads.
	MaxResponseSize int64 = 8 << 20

	// MaxErrorTextSize caps how much of an error body is surfaced to the caller.
	MaxErrorTextSize int64 = 1 << 10

	// ContentTypeJSON is the media type of every request body the client sends.
	ContentTypeJSON = "application/json"
)

// NewJSON builds a request whose body is body encoded as JSON. A nil body sends no payload.
func NewJSON(ctx context.Context, method, url string, body any) (*http.Request, *errs.CustomError) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, errs.Wrap(errs.ErrInvalidParams, err)
		}
		reader = bytes.NewReader(payload)
	}

	r, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, errs.Wrap(errs.ErrInvalidParams, err)
	}

	r.Header.Set("Accept", ContentTypeJSON)
	if body != nil {
		r.Header.Set("Content-Type", ContentTypeJSON)
	}

	return r, nil
}

// BindJSON decodes the response body into dst. An empty body (or 204) leaves dst untouched.
func BindJSON(res *http.Response, dst any) *errs.CustomError {
	if res.StatusCode == http.StatusNoContent {
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseSize))
	if err != nil {
		return errs.Wrap(errs.ErrFetchFailed, err, "reading response body")
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return errs.Wrap(errs.ErrDecodeFailed, err)
	}

	return nil
}

// ReadText returns the trimmed response body, truncated to MaxErrorTextSize.
// Read errors yield the HTTP status text instead.
func ReadText(res *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(res.Body, MaxErrorTextSize))
	if err != nil {
		return http.StatusText(res.StatusCode)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return http.StatusText(res.StatusCode)
	}
	return text
}

// IsSuccess reports whether the response carries a 2xx status.
func IsSuccess(res *http.Response) bool {
	return res.StatusCode >= 200 && res.StatusCode < 300
}
