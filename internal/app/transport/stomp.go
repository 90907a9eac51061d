/*
Package transport connects the chat client to the backend's STOMP broker over WebSocket.

This file defines the Stomp adapter. Connect dials the broker, performs the STOMP handshake,
subscribes to the presence topic and the user's private queue and announces the user; the
outcome and everything received afterwards is reported on the Events channel. A connection
that is lost after registration is redialed with a fixed delay when the reconnect policy
allows it, repeating the full subscribe and announce sequence.
*/
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
	"stompchat/internal/metrics"
	"stompchat/internal/pkg/auth/jwt"
	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/logx"
	"stompchat/internal/pkg/randx"
	"stompchat/internal/pkg/req"
)

const (
	// handshakeTimeout bounds the WebSocket upgrade plus the STOMP CONNECT/CONNECTED exchange.
	handshakeTimeout = 10 * time.Second

	// disconnectWait bounds how long a graceful STOMP DISCONNECT waits for its receipt.
	disconnectWait = 2 * time.Second

	// shutdownWait bounds how long Disconnect waits for the connection goroutine to exit.
	shutdownWait = 3 * time.Second
)

var errSubscriptionClosed = errors.New("transport: subscription closed")

// Stomp is the STOMP-over-WebSocket adapter. It holds at most one logical connection.
type Stomp struct {
	cfg    Config
	host   string
	dialer *websocket.Dialer
	events chan Event

	// mu protects cur.
	mu  sync.Mutex
	cur *link

	logger zerolog.Logger
}

// link is one logical connection: the initial dial and every reconnect of it.
type link struct {
	user  user.User
	token string

	ctx    context.Context
	cancel context.CancelFunc

	// done is closed when the connection goroutine exits.
	done chan struct{}

	// mu protects the fields of the currently open STOMP session.
	mu       sync.Mutex
	conn     *stomp.Conn
	ws       *wsConn
	presence *stomp.Subscription
	private  *stomp.Subscription

	logger zerolog.Logger
}

// NewStomp creates an adapter. It fails only on invalid configuration.
func NewStomp(cfg Config) (*Stomp, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		return nil, errs.NewError(errs.ErrConfigInvalid, "WebSocket URL must use ws:// or wss://")
	}

	return &Stomp{
		cfg:  cfg,
		host: u.Hostname(),
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		events: make(chan Event, cfg.EventBuffer),
		logger: logx.Component("transport"),
	}, nil
}

// Events returns the channel on which the adapter reports connection outcomes and pushes.
// The channel is never closed.
func (t *Stomp) Events() <-chan Event {
	return t.events
}

// Destinations returns the destinations in use.
func (t *Stomp) Destinations() Destinations {
	return t.cfg.Destinations
}

// Connected reports whether a registered STOMP session is currently open.
func (t *Stomp) Connected() bool {
	return t.connection() != nil
}

// Connect starts connecting u. It returns immediately; the result is reported as
// EventConnected or EventError. Invalid input is reported without dialing.
// A connection that is still open is dropped silently first.
func (t *Stomp) Connect(u user.User, token string) {
	if strings.TrimSpace(u.Handle) == "" {
		t.reportDetached(errs.NewError(errs.ErrInvalidHandle))
		return
	}
	if t.cfg.RequireToken && token == "" {
		t.reportDetached(errs.NewError(errs.ErrMissingToken))
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &link{
		user:   u,
		token:  token,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: t.logger.With().
			Str("conn", randx.MustConnectionTag()).
			Str("handle", u.Handle).
			Logger(),
	}

	t.mu.Lock()
	prev := t.cur
	t.cur = l
	t.mu.Unlock()

	if prev != nil {
		prev.logger.Warn().Msg("Replacing open connection without leave announcement.")
		t.close(prev, nil)
	}

	go t.run(l)
}

// Publish encodes payload as JSON and sends it to destination. When no STOMP session is
// open the payload is dropped and ErrNotConnected is returned; nothing is queued.
func (t *Stomp) Publish(destination string, payload any) error {
	conn := t.connection()
	if conn == nil {
		t.logger.Debug().Str("destination", destination).Msg("Publish dropped: not connected.")
		return errs.NewError(errs.ErrNotConnected)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.ErrInvalidParams, err)
	}

	if err := conn.Send(destination, req.ContentTypeJSON, body); err != nil {
		return errs.Wrap(errs.ErrTransportFailed, err)
	}
	return nil
}

// Disconnect announces u as OFFLINE when connected, then tears the connection down.
// It is idempotent and safe to call when never connected. An empty u falls back to the
// user the connection was opened for.
func (t *Stomp) Disconnect(u user.User) {
	t.mu.Lock()
	l := t.cur
	t.cur = nil
	t.mu.Unlock()

	if l == nil {
		return
	}

	if u.Handle == "" {
		u = l.user
	}
	leave := u.WithStatus(user.StatusOffline)
	t.close(l, &leave)
}

// close stops l, publishing leave first when a session is open.
func (t *Stomp) close(l *link, leave *user.User) {
	l.mu.Lock()
	l.cancel()
	conn, ws := l.conn, l.ws
	l.conn, l.ws, l.presence, l.private = nil, nil, nil, nil
	l.mu.Unlock()

	if conn != nil {
		if leave != nil {
			body, err := json.Marshal(leave)
			if err == nil {
				err = conn.Send(t.cfg.Destinations.DisconnectUser, req.ContentTypeJSON, body)
			}
			if err != nil {
				l.logger.Debug().Err(err).Msg("Leave announcement failed.")
			}
		}
		disconnectGracefully(conn, l.logger)
	}
	if ws != nil {
		ws.Close()
	}

	select {
	case <-l.done:
	case <-time.After(shutdownWait):
		l.logger.Warn().Msg("Connection goroutine did not exit in time.")
	}

	l.logger.Info().Msg("Disconnected.")
}

// run drives l: the initial attempt, then reading and reconnecting until l is cancelled.
func (t *Stomp) run(l *link) {
	defer close(l.done)

	if err := t.establish(l); err != nil {
		if l.ctx.Err() == nil {
			l.logger.Warn().Err(err).Msg("Connect attempt failed.")
			t.emit(l, Event{Kind: EventError, Err: err})
			t.release(l)
		}
		return
	}

	l.logger.Info().Msg("Connected and registered.")
	t.emit(l, Event{Kind: EventConnected})

	for {
		lostErr := t.pump(l)
		l.teardown()
		if l.ctx.Err() != nil {
			return
		}

		reconnecting := t.canReconnect(0)
		l.logger.Warn().Err(lostErr).Bool("reconnecting", reconnecting).Msg("Connection lost.")
		t.emit(l, Event{Kind: EventConnectionLost, Err: lostErr, Reconnecting: reconnecting})
		if !reconnecting {
			t.release(l)
			return
		}

		if !t.reconnect(l) {
			return
		}
		t.emit(l, Event{Kind: EventConnected, Reconnected: true})
	}
}

// reconnect redials l after the configured delay until it succeeds, the attempt budget is
// spent, or l is cancelled. It reports whether l is registered again.
func (t *Stomp) reconnect(l *link) bool {
	for attempts := 1; ; attempts++ {
		select {
		case <-l.ctx.Done():
			return false
		case <-time.After(t.cfg.ReconnectDelay):
		}

		err := t.establish(l)
		if err == nil {
			l.logger.Info().Int("attempt", attempts).Msg("Reconnected and re-registered.")
			return true
		}
		if l.ctx.Err() != nil {
			return false
		}

		l.logger.Warn().Err(err).Int("attempt", attempts).Msg("Reconnect attempt failed.")
		if !t.canReconnect(attempts) {
			t.emit(l, Event{Kind: EventConnectionLost, Err: err, Reconnecting: false})
			t.release(l)
			return false
		}
	}
}

func (t *Stomp) canReconnect(attempts int) bool {
	if !t.cfg.ReRegisterOnReconnect {
		return false
	}
	return t.cfg.MaxReconnects < 0 || attempts < t.cfg.MaxReconnects
}

// establish dials, performs the STOMP handshake, subscribes and announces l.user.
func (t *Stomp) establish(l *link) error {
	ctx, cancel := context.WithTimeout(l.ctx, handshakeTimeout)
	defer cancel()

	ws, res, err := t.dialer.DialContext(ctx, t.cfg.URL, nil)
	if err != nil {
		customErr := errs.Wrap(errs.ErrTransportFailed, err)
		if res != nil {
			customErr = customErr.WithStatus(res.StatusCode)
		}
		return customErr
	}

	rwc := newWSConn(ws)
	stop := context.AfterFunc(ctx, func() { rwc.Close() })

	conn, err := stomp.Connect(rwc, t.connectOptions(l.token)...)
	stopped := stop()
	if err != nil {
		rwc.Close()
		return errs.Wrap(errs.ErrTransportFailed, err)
	}
	if !stopped {
		conn.MustDisconnect()
		return errs.Wrap(errs.ErrTransportFailed, ctx.Err())
	}

	fail := func(err error) error {
		conn.MustDisconnect()
		rwc.Close()
		return errs.Wrap(errs.ErrTransportFailed, err)
	}

	d := t.cfg.Destinations
	presence, err := conn.Subscribe(d.Presence, stomp.AckAuto)
	if err != nil {
		return fail(err)
	}
	private, err := conn.Subscribe(d.PrivateQueueFor(l.user.Handle), stomp.AckAuto)
	if err != nil {
		return fail(err)
	}

	body, err := json.Marshal(l.user.WithStatus(user.StatusOnline))
	if err != nil {
		return fail(err)
	}
	if err := conn.Send(d.AddUser, req.ContentTypeJSON, body); err != nil {
		return fail(err)
	}

	if !l.attach(conn, rwc, presence, private) {
		conn.MustDisconnect()
		rwc.Close()
		return errs.Wrap(errs.ErrTransportFailed, context.Canceled)
	}
	return nil
}

func (t *Stomp) connectOptions(token string) []func(*stomp.Conn) error {
	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(t.cfg.HeartBeat, t.cfg.HeartBeat),
	}
	if t.host != "" {
		opts = append(opts, stomp.ConnOpt.Host(t.host))
	}
	if token != "" {
		opts = append(opts, stomp.ConnOpt.Header(jwt.AuthorizationHeader, jwt.BearerValue(token)))
	}
	return opts
}

// pump forwards pushes from both subscriptions until either ends or l is cancelled.
func (t *Stomp) pump(l *link) error {
	presence, private := l.subscriptions()
	if presence == nil || private == nil {
		return errSubscriptionClosed
	}

	for {
		select {
		case <-l.ctx.Done():
			return nil

		case msg, ok := <-presence.C:
			if !ok {
				return errSubscriptionClosed
			}
			if msg.Err != nil {
				return msg.Err
			}
			t.handlePresence(l, msg.Body)

		case msg, ok := <-private.C:
			if !ok {
				return errSubscriptionClosed
			}
			if msg.Err != nil {
				return msg.Err
			}
			t.handleNotification(l, msg.Body)
		}
	}
}

func (t *Stomp) handlePresence(l *link, body []byte) {
	var u user.User
	if err := json.Unmarshal(body, &u); err != nil || u.Handle == "" {
		l.logger.Warn().Err(err).Bytes("body", body).Msg("Broker sent invalid presence payload")
		return
	}
	t.emit(l, Event{Kind: EventPresence, User: u})
}

func (t *Stomp) handleNotification(l *link, body []byte) {
	var n message.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		l.logger.Warn().Err(err).Bytes("body", body).Msg("Broker sent invalid notification payload")
		return
	}
	t.emit(l, Event{Kind: EventNotification, Notification: n})
}

// emit delivers ev if l is still the current connection. Pushes are dropped on a full
// channel; lifecycle events wait for room unless l is cancelled.
func (t *Stomp) emit(l *link, ev Event) {
	if !t.isCurrent(l) {
		return
	}

	if ev.critical() {
		select {
		case t.events <- ev:
		case <-l.ctx.Done():
		}
		return
	}

	select {
	case t.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		l.logger.Warn().
			Str("event", ev.Kind.String()).
			Int("queue_len", len(t.events)).
			Msg("Event channel full, dropping event")
	}
}

// reportDetached delivers an EventError that belongs to no connection. The send happens on
// its own goroutine so a caller that also drains Events cannot deadlock.
func (t *Stomp) reportDetached(err error) {
	t.logger.Warn().Err(err).Msg("Connect rejected before dialing.")
	go func() { t.events <- Event{Kind: EventError, Err: err} }()
}

func (t *Stomp) isCurrent(l *link) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cur == l
}

// release forgets l when it ended on its own.
func (t *Stomp) release(l *link) {
	t.mu.Lock()
	if t.cur == l {
		t.cur = nil
	}
	t.mu.Unlock()
	l.cancel()
}

func (t *Stomp) connection() *stomp.Conn {
	t.mu.Lock()
	l := t.cur
	t.mu.Unlock()

	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn
}

// attach records an open session. It refuses when l was cancelled meanwhile.
func (l *link) attach(conn *stomp.Conn, ws *wsConn, presence, private *stomp.Subscription) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ctx.Err() != nil {
		return false
	}
	l.conn, l.ws, l.presence, l.private = conn, ws, presence, private
	return true
}

func (l *link) subscriptions() (*stomp.Subscription, *stomp.Subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.presence, l.private
}

// teardown drops the session that was just lost, if it is still recorded.
func (l *link) teardown() {
	l.mu.Lock()
	conn, ws := l.conn, l.ws
	l.conn, l.ws, l.presence, l.private = nil, nil, nil, nil
	l.mu.Unlock()

	if conn != nil {
		conn.MustDisconnect()
	}
	if ws != nil {
		ws.Close()
	}
}

// disconnectGracefully sends DISCONNECT and waits a bounded time for the receipt.
func disconnectGracefully(conn *stomp.Conn, logger zerolog.Logger) {
	done := make(chan error, 1)
	go func() { done <- conn.Disconnect() }()

	select {
	case err := <-done:
		if err != nil {
			logger.Debug().Err(err).Msg("STOMP disconnect returned an error.")
		}
	case <-time.After(disconnectWait):
		logger.Debug().Msg("STOMP disconnect receipt not received in time.")
	}
}
