package api

import (
	"context"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/req"
)

// DefaultRole is assigned to accounts registered without an explicit role.
const DefaultRole = "ROLE_USER"

// Registration bounds enforced by the backend.
const (
	MinFullNameLength = 3
	MaxFullNameLength = 50
	MinUsernameLength = 3
	MaxUsernameLength = 10
	MinPasswordLength = 3
)

// TokenPair is the result of a login or refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken" yaml:"access_token"`
	RefreshToken string `json:"refreshToken,omitempty" yaml:"refresh_token,omitempty"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role"`
}

// Validate checks the request against the backend's field rules.
func (r RegisterRequest) Validate() *errs.CustomError {
	if n := utf8.RuneCountInString(strings.TrimSpace(r.FullName)); n < MinFullNameLength || n > MaxFullNameLength {
		return errs.NewError(errs.ErrInvalidFullName)
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(r.Username)); n < MinUsernameLength || n > MaxUsernameLength {
		return errs.NewError(errs.ErrInvalidHandle)
	}
	if utf8.RuneCountInString(r.Password) < MinPasswordLength {
		return errs.NewError(errs.ErrInvalidPassword)
	}
	if r.Email != "" {
		addr, err := mail.ParseAddress(r.Email)
		if err != nil || addr.Address != r.Email {
			return errs.NewError(errs.ErrInvalidEmail)
		}
	}
	return nil
}

// Login exchanges a username and password for a token pair.
func (c *Client) Login(ctx context.Context, username, password string) (TokenPair, error) {
	if strings.TrimSpace(username) == "" {
		return TokenPair{}, errs.NewError(errs.ErrInvalidHandle)
	}
	if password == "" {
		return TokenPair{}, errs.NewError(errs.ErrInvalidPassword)
	}

	res, err := c.do(ctx, http.MethodPost, "/api/auth/login", "", loginRequest{
		Username: strings.TrimSpace(username),
		Password: password,
	})
	if err != nil {
		return TokenPair{}, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return TokenPair{}, errs.NewError(errs.ErrInvalidCredentials).WithStatus(res.StatusCode)
	}
	if !req.IsSuccess(res) {
		return TokenPair{}, errs.NewError(errs.ErrFetchFailed, req.ReadText(res)).WithStatus(res.StatusCode)
	}

	var pair TokenPair
	if cErr := req.BindJSON(res, &pair); cErr != nil {
		return TokenPair{}, cErr
	}
	if pair.AccessToken == "" {
		return TokenPair{}, errs.NewError(errs.ErrDecodeFailed)
	}

	c.logger.Info().Str("handle", username).Msg("Logged in.")
	return pair, nil
}

// Register creates an account and returns the backend's confirmation text.
// The role defaults to DefaultRole.
func (c *Client) Register(ctx context.Context, r RegisterRequest) (string, error) {
	r.Username = strings.TrimSpace(r.Username)
	r.FullName = strings.TrimSpace(r.FullName)
	r.Email = strings.TrimSpace(r.Email)
	if r.Role == "" {
		r.Role = DefaultRole
	}

	if cErr := r.Validate(); cErr != nil {
		return "", cErr
	}

	res, err := c.do(ctx, http.MethodPost, "/api/auth/register", "", r)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	text := req.ReadText(res)
	if !req.IsSuccess(res) {
		return "", errs.NewError(errs.ErrRegistrationFailed, text).WithStatus(res.StatusCode)
	}

	c.logger.Info().Str("handle", r.Username).Msg("Registered.")
	return text, nil
}

// Refresh exchanges a refresh token for a new token pair. When the backend does not
// rotate the refresh token, the returned pair keeps the one passed in.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	if refreshToken == "" {
		return TokenPair{}, errs.NewError(errs.ErrMissingToken)
	}

	res, err := c.do(ctx, http.MethodPost, "/api/auth/refresh-token", "", map[string]string{
		"refreshToken": refreshToken,
	})
	if err != nil {
		return TokenPair{}, errs.Wrap(errs.ErrTokenRefreshFailed, err)
	}
	defer res.Body.Close()

	if !req.IsSuccess(res) {
		return TokenPair{}, errs.NewError(errs.ErrTokenRefreshFailed).WithStatus(res.StatusCode)
	}

	var pair TokenPair
	if cErr := req.BindJSON(res, &pair); cErr != nil {
		return TokenPair{}, cErr
	}
	if pair.AccessToken == "" {
		return TokenPair{}, errs.NewError(errs.ErrTokenRefreshFailed)
	}
	if pair.RefreshToken == "" {
		pair.RefreshToken = refreshToken
	}
	return pair, nil
}
