package api

import (
	"context"
	"net/url"
	"sync"
	"time"

	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
	"stompchat/internal/pkg/auth/jwt"
	"stompchat/internal/pkg/errs"
)

// Users lists the users the backend reports as connected.
func (c *Client) Users(ctx context.Context, token string) ([]user.User, error) {
	var users []user.User
	if err := c.getJSON(ctx, "/users", token, &users); err != nil {
		return nil, err
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}

// History returns the messages exchanged between sender and recipient.
func (c *Client) History(ctx context.Context, token, sender, recipient string) ([]message.ChatMessage, error) {
	path := "/messages/" + url.PathEscape(sender) + "/" + url.PathEscape(recipient)

	var msgs []message.ChatMessage
	if err := c.getJSON(ctx, path, token, &msgs); err != nil {
		return nil, err
	}
	if msgs == nil {
		msgs = []message.ChatMessage{}
	}
	return msgs, nil
}

// TokenSource hands out the current access token, refreshing it shortly before it expires
// when a refresh token is available.
type TokenSource struct {
	client *Client
	window time.Duration
	now    func() time.Time

	// onRefresh is called with every refreshed pair, e.g. to persist it.
	onRefresh func(TokenPair)

	mu   sync.Mutex
	pair TokenPair
}

// NewTokenSource creates a TokenSource starting from pair. onRefresh may be nil.
func NewTokenSource(c *Client, pair TokenPair, onRefresh func(TokenPair)) *TokenSource {
	return &TokenSource{
		client:    c,
		window:    jwt.TokenRefreshWindow,
		now:       time.Now,
		onRefresh: onRefresh,
		pair:      pair,
	}
}

// Token returns a usable access token. A failed refresh falls back to the current token
// and leaves the decision to the backend.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pair.AccessToken == "" {
		return "", errs.NewError(errs.ErrMissingToken)
	}

	if s.pair.RefreshToken == "" || !jwt.NeedsRefresh(s.pair.AccessToken, s.now(), s.window) {
		return s.pair.AccessToken, nil
	}

	pair, err := s.client.Refresh(ctx, s.pair.RefreshToken)
	if err != nil {
		s.client.logger.Warn().Err(err).Msg("Token refresh failed; using current token.")
		return s.pair.AccessToken, nil
	}

	s.pair = pair
	s.client.logger.Info().Msg("Access token refreshed.")
	if s.onRefresh != nil {
		s.onRefresh(pair)
	}
	return pair.AccessToken, nil
}

// Pair returns the current token pair.
func (s *TokenSource) Pair() TokenPair {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pair
}

// Directory serves the session's REST reads with tokens from a TokenSource.
type Directory struct {
	client *Client
	tokens *TokenSource
}

// NewDirectory creates a Directory.
func NewDirectory(c *Client, tokens *TokenSource) *Directory {
	return &Directory{client: c, tokens: tokens}
}

// ConnectedUsers lists the connected users.
func (d *Directory) ConnectedUsers(ctx context.Context) ([]user.User, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return d.client.Users(ctx, token)
}

// History returns the conversation between a and b.
func (d *Directory) History(ctx context.Context, a, b string) ([]message.ChatMessage, error) {
	token, err := d.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return d.client.History(ctx, token, a, b)
}
