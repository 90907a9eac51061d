/*
Package storage persists the client's login between runs.

This file defines the SessionStore interface and its factory. The only implementation today
is a YAML file readable by its owner alone, see file.go.
*/
package storage

import (
	"time"

	"stompchat/internal/app/api"
)

// Session is the persisted login of the local user.
type Session struct {
	Handle   string        `yaml:"handle"`
	FullName string        `yaml:"full_name,omitempty"`
	Tokens   api.TokenPair `yaml:"tokens"`
	SavedAt  time.Time     `yaml:"saved_at"`
}

// SessionStore defines the public interface for the session cache.
type SessionStore interface {
	// Load returns the saved session, or ErrSessionNotFound when there is none.
	Load() (*Session, error)

	// Save replaces the saved session.
	Save(s Session) error

	// Clear removes the saved session. Clearing an empty store is not an error.
	Clear() error

	// Path reports where the session is kept.
	Path() string
}

// NewSessionStore is the factory function for SessionStore.
// An empty path selects DefaultSessionPath.
func NewSessionStore(path string) (SessionStore, error) {
	if path == "" {
		p, err := DefaultSessionPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	return newFileStore(path), nil
}
