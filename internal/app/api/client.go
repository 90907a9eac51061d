/*
Package api is the REST client for the chat backend.

It covers authentication (login, registration, token refresh) and the two authenticated
reads the session needs: the list of connected users and the history of a conversation.
Every failure is returned as an *errs.CustomError carrying the HTTP status when one was seen.
*/
package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stompchat/internal/pkg/auth/jwt"
	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/logx"
	"stompchat/internal/pkg/req"
)

// DefaultTimeout bounds every request made with the default HTTP client.
const DefaultTimeout = 10 * time.Second

// Client talks to the backend's REST API.
type Client struct {
	baseURL string
	httpc   *http.Client
	logger  zerolog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.httpc = h
	}
}

// New creates a Client for baseURL. A missing base URL is a configuration error.
func New(baseURL string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errs.NewError(errs.ErrConfigMissingAPIURL)
	}

	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errs.NewError(errs.ErrConfigInvalid, "API URL must be an absolute http(s) URL")
	}

	c := &Client{
		baseURL: baseURL,
		httpc:   &http.Client{Timeout: DefaultTimeout},
		logger:  logx.Component("api"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do sends a request with an optional JSON body and bearer token.
// The caller must close the response body.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*http.Response, error) {
	r, cErr := req.NewJSON(ctx, method, c.baseURL+path, body)
	if cErr != nil {
		return nil, cErr
	}
	if token != "" {
		r.Header.Set(jwt.AuthorizationHeader, jwt.BearerValue(token))
	}

	start := time.Now()
	res, err := c.httpc.Do(r)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return nil, errs.Wrap(errs.ErrFetchFailed, err, method+" "+path)
	}

	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", res.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("Request completed")

	return res, nil
}

// getJSON performs an authenticated GET and decodes the JSON response into dst.
func (c *Client) getJSON(ctx context.Context, path, token string, dst any) error {
	if token == "" {
		return errs.NewError(errs.ErrMissingToken)
	}

	res, err := c.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized:
		return errs.NewError(errs.ErrUnauthorized).WithStatus(res.StatusCode)
	case !req.IsSuccess(res):
		return errs.NewError(errs.ErrFetchFailed, req.ReadText(res)).WithStatus(res.StatusCode)
	}

	if cErr := req.BindJSON(res, dst); cErr != nil {
		return cErr
	}
	return nil
}
