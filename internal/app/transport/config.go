/*
Package transport connects the chat client to the backend's STOMP broker over WebSocket.

This file defines the adapter configuration: the endpoint, the heart-beat interval, the
reconnect policy and the broker destinations used for presence and private messages.
*/
package transport

import (
	"fmt"
	"time"

	"stompchat/internal/pkg/errs"
)

const (
	// DefaultHeartBeat is the STOMP heart-beat interval offered in both directions.
	DefaultHeartBeat = 4 * time.Second

	// DefaultReconnectDelay is the fixed wait between reconnect attempts.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultEventBuffer is the capacity of the event channel.
	DefaultEventBuffer = 64
)

// Destinations names the broker destinations the adapter subscribes and publishes to.
type Destinations struct {
	// Presence is the broadcast topic carrying User presence updates.
	Presence string

	// PrivateQueue is a format string taking the user handle.
	PrivateQueue string

	// AddUser receives the ONLINE announcement after connecting.
	AddUser string

	// Chat receives outgoing chat messages.
	Chat string

	// DisconnectUser receives the OFFLINE announcement on disconnect.
	DisconnectUser string
}

// DefaultDestinations returns the destinations exposed by the chat backend.
func DefaultDestinations() Destinations {
	return Destinations{
		Presence:       "/topic/public",
		PrivateQueue:   "/user/%s/queue/messages",
		AddUser:        "/app/user.addUser",
		Chat:           "/app/chat",
		DisconnectUser: "/app/user.disconnectUser",
	}
}

// PrivateQueueFor returns the private queue of the given handle.
func (d Destinations) PrivateQueueFor(handle string) string {
	return fmt.Sprintf(d.PrivateQueue, handle)
}

// Config holds the adapter settings.
type Config struct {
	// URL is the ws:// or wss:// endpoint of the STOMP broker.
	URL string

	// HeartBeat is offered for both directions; 0 disables heart-beating.
	HeartBeat time.Duration

	// RequireToken rejects Connect calls without a bearer token.
	RequireToken bool

	// ReRegisterOnReconnect enables reconnecting after a registered connection is lost.
	// Every reconnect re-subscribes and re-announces presence before reporting Connected.
	ReRegisterOnReconnect bool

	// ReconnectDelay is the fixed wait before each reconnect attempt.
	ReconnectDelay time.Duration

	// MaxReconnects bounds consecutive reconnect attempts; negative means unlimited.
	MaxReconnects int

	// EventBuffer is the capacity of the event channel.
	EventBuffer int

	Destinations Destinations
}

// DefaultConfig returns a Config for url with the client's default policy.
func DefaultConfig(url string) Config {
	return Config{
		URL:                   url,
		HeartBeat:             DefaultHeartBeat,
		ReRegisterOnReconnect: true,
		ReconnectDelay:        DefaultReconnectDelay,
		MaxReconnects:         -1,
		EventBuffer:           DefaultEventBuffer,
		Destinations:          DefaultDestinations(),
	}
}

// withDefaults fills zero values and validates the configuration.
func (c Config) withDefaults() (Config, error) {
	if c.URL == "" {
		return c, errs.NewError(errs.ErrConfigInvalid, "missing WebSocket URL")
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = DefaultEventBuffer
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Destinations == (Destinations{}) {
		c.Destinations = DefaultDestinations()
	}
	return c, nil
}
