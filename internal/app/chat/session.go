/*
Package chat contains the client-side session coordinator of the chat client.

This file defines the Session struct. A Session owns the connection state, the authenticated
user, the presence roster, the selected peer and the conversation timeline. All of that state
is read and written only by the Run loop goroutine; the exported methods hand requests to the
loop over channels and wait for its answer. Transport events, history and roster fetch results
and the connect timer are processed by the same loop.
*/
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"stompchat/internal/app/message"
	"stompchat/internal/app/transport"
	"stompchat/internal/app/user"
	"stompchat/internal/metrics"
	"stompchat/internal/pkg/errs"
	"stompchat/internal/pkg/limiter"
	"stompchat/internal/pkg/logx"
	"stompchat/internal/pkg/randx"
)

const (
	// DefaultConnectTimeout bounds how long Connect waits for the broker.
	DefaultConnectTimeout = 15 * time.Second

	// DefaultFetchTimeout bounds each roster and history request.
	DefaultFetchTimeout = 10 * time.Second
)

// Transport is the messaging channel to the broker.
type Transport interface {
	// Connect starts connecting; the outcome arrives on Events.
	Connect(u user.User, token string)

	// Publish sends payload as JSON. It fails with ErrNotConnected when no session is open.
	Publish(destination string, payload any) error

	// Disconnect announces u as OFFLINE when connected and tears down. Idempotent.
	Disconnect(u user.User)

	Events() <-chan transport.Event
}

// Directory is the REST side of the backend.
type Directory interface {
	// ConnectedUsers lists the users the backend reports as connected.
	ConnectedUsers(ctx context.Context) ([]user.User, error)

	// History returns the conversation between a and b in backend order.
	History(ctx context.Context, a, b string) ([]message.ChatMessage, error)
}

// Options tunes a Session.
type Options struct {
	// ConnectTimeout bounds Connect; 0 waits indefinitely.
	ConnectTimeout time.Duration

	// FetchTimeout bounds each Directory call.
	FetchTimeout time.Duration

	// DedupEchoes skips notifications whose client id or id is already in the timeline.
	DedupEchoes bool

	// ChatDestination receives outgoing messages.
	ChatDestination string

	// SendRate and SendBurst throttle outgoing messages per peer; a zero rate disables it.
	SendRate  rate.Limit
	SendBurst int

	// ObserverBuffer is the capacity of each Subscribe channel.
	ObserverBuffer int

	// Clock stamps outgoing messages and timestamp-less notifications.
	Clock func() time.Time

	// NewID generates client correlation ids.
	NewID func() string
}

// DefaultOptions returns the options used by the command line client.
func DefaultOptions() Options {
	return Options{
		ConnectTimeout:  DefaultConnectTimeout,
		FetchTimeout:    DefaultFetchTimeout,
		ChatDestination: transport.DefaultDestinations().Chat,
		ObserverBuffer:  DefaultObserverBuffer,
		Clock:           time.Now,
		NewID:           randx.CorrelationID,
	}
}

func (o Options) withDefaults() Options {
	if o.FetchTimeout <= 0 {
		o.FetchTimeout = DefaultFetchTimeout
	}
	if o.ChatDestination == "" {
		o.ChatDestination = transport.DefaultDestinations().Chat
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.NewID == nil {
		o.NewID = randx.CorrelationID
	}
	return o
}

type connectReq struct {
	creds  Credentials
	result chan error
}

type selectReq struct {
	peer   user.User
	result chan error
}

type sendReq struct {
	content string
	result  chan sendResult
}

type sendResult struct {
	msg message.ChatMessage
	err error
}

type historyResult struct {
	epoch     uint64
	selection uint64
	self  string
	peer  string
	msgs  []message.ChatMessage
	err   error
}

type rosterResult struct {
	epoch uint64
	users []user.User
	err   error
}

// Session is the realtime session coordinator.
type Session struct {
	transport Transport
	directory Directory
	opts      Options
	limiter   *limiter.SendLimiter
	observers *observers

	connectCh    chan connectReq
	disconnectCh chan chan struct{}
	selectCh     chan selectReq
	sendCh       chan sendReq
	snapshotCh   chan chan Snapshot
	historyDone  chan historyResult
	rosterDone   chan rosterResult

	// stop signals the Run loop to exit; done is closed when it has.
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	// Everything below is owned by the Run loop.

	state    State
	current  *user.User
	peer     *user.User
	roster   *Roster
	timeline *Timeline
	lastErr  error

	// pending is the Connect call waiting for the outcome of the initial attempt.
	pending *connectReq

	// connectTimer bounds the pending attempt; timerC is nil while disarmed.
	connectTimer *time.Timer
	timerC       <-chan time.Time

	// epoch changes whenever the user connects or disconnects, invalidating fetches in flight.
	epoch uint64

	// selection changes on every select or clear, so two fetches for the same peer differ.
	selection uint64

	cancelHistory context.CancelFunc
	cancelRoster  context.CancelFunc

	logger zerolog.Logger
}

// NewSession creates a Session and starts its loop.
func NewSession(tr Transport, dir Directory, opts Options) *Session {
	opts = opts.withDefaults()
	logger := logx.Component("session")

	s := &Session{
		transport:    tr,
		directory:    dir,
		opts:         opts,
		limiter:      limiter.NewSendLimiter(opts.SendRate, opts.SendBurst),
		observers:    newObservers(opts.ObserverBuffer, logger),
		connectCh:    make(chan connectReq),
		disconnectCh: make(chan chan struct{}),
		selectCh:     make(chan selectReq),
		sendCh:       make(chan sendReq),
		snapshotCh:   make(chan chan Snapshot),
		historyDone:  make(chan historyResult),
		rosterDone:   make(chan rosterResult),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
		state:        StateDisconnected,
		roster:       NewRoster(),
		timeline:     NewTimeline(),
		logger:       logger,
	}

	metrics.ConnectionState.Set(float64(StateDisconnected))

	go s.Run()
	return s
}

// Connect connects as c and waits for the outcome. It fails fast with ErrConnectInProgress
// while another attempt is pending and with ErrAlreadyConnected once connected. Cancelling
// ctx abandons the attempt and disconnects.
func (s *Session) Connect(ctx context.Context, c Credentials) error {
	if cErr := c.Validate(); cErr != nil {
		return cErr
	}

	req := connectReq{creds: c, result: make(chan error, 1)}

	select {
	case s.connectCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errs.NewError(errs.ErrSessionClosed)
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		s.Disconnect()
		return ctx.Err()
	case <-s.done:
		return errs.NewError(errs.ErrSessionClosed)
	}
}

// Disconnect tears the connection down and clears all session state. Idempotent.
func (s *Session) Disconnect() {
	ack := make(chan struct{})

	select {
	case s.disconnectCh <- ack:
		<-ack
	case <-s.done:
	}
}

// SelectUser makes peer the active conversation and loads its history in the background.
// Selecting the current user is ignored.
func (s *Session) SelectUser(peer user.User) error {
	if strings.TrimSpace(peer.Handle) == "" {
		return errs.NewError(errs.ErrInvalidHandle)
	}

	req := selectReq{peer: peer, result: make(chan error, 1)}

	select {
	case s.selectCh <- req:
		return <-req.result
	case <-s.done:
		return errs.NewError(errs.ErrSessionClosed)
	}
}

// Send publishes content to the selected peer and appends it to the timeline.
// Blank content, no selected peer or no connection are rejected without publishing.
func (s *Session) Send(content string) (message.ChatMessage, error) {
	if cErr := ValidateContent(content); cErr != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return message.ChatMessage{}, cErr
	}

	req := sendReq{content: content, result: make(chan sendResult, 1)}

	select {
	case s.sendCh <- req:
		res := <-req.result
		return res.msg, res.err
	case <-s.done:
		return message.ChatMessage{}, errs.NewError(errs.ErrSessionClosed)
	}
}

// Snapshot returns a copy of the current state.
func (s *Session) Snapshot() Snapshot {
	ch := make(chan Snapshot, 1)

	select {
	case s.snapshotCh <- ch:
		return <-ch
	case <-s.done:
		return Snapshot{State: StateDisconnected, Roster: []user.User{}, Timeline: []message.ChatMessage{}}
	}
}

// Subscribe registers an observer. The returned function unregisters it and closes the
// channel. The channel is also closed when the session is closed.
func (s *Session) Subscribe() (<-chan Update, func()) {
	id, ch := s.observers.add()
	var once sync.Once
	return ch, func() {
		once.Do(func() { s.observers.remove(id) })
	}
}

// Close disconnects and stops the loop. Every later call fails with ErrSessionClosed.
func (s *Session) Close() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
}

// Run is the session loop. NewSession starts it; it returns after Close.
func (s *Session) Run() {
	defer func() {
		s.disconnect()
		s.limiter.Close()
		s.observers.shutdown()
		close(s.done)
		s.logger.Info().Msg("Session loop finished.")
	}()

	events := s.transport.Events()

	for {
		select {
		case req := <-s.connectCh:
			s.handleConnect(req)

		case ack := <-s.disconnectCh:
			s.disconnect()
			close(ack)

		case req := <-s.selectCh:
			req.result <- s.handleSelect(req.peer)

		case req := <-s.sendCh:
			msg, err := s.handleSend(req.content)
			req.result <- sendResult{msg: msg, err: err}

		case ch := <-s.snapshotCh:
			ch <- s.snapshot()

		case ev := <-events:
			s.handleEvent(ev)

		case res := <-s.historyDone:
			s.applyHistory(res)

		case res := <-s.rosterDone:
			s.applyRoster(res)

		case <-s.timerC:
			s.timerC = nil
			s.logger.Warn().Dur("timeout", s.opts.ConnectTimeout).Msg("Connect attempt timed out.")
			metrics.ConnectAttempts.WithLabelValues("timeout").Inc()
			s.failConnect(errs.NewError(errs.ErrConnectTimeout), true)

		case <-s.stop:
			return
		}
	}
}

func (s *Session) handleConnect(req connectReq) {
	switch s.state {
	case StateConnecting:
		req.result <- errs.NewError(errs.ErrConnectInProgress)
		return
	case StateConnected:
		req.result <- errs.NewError(errs.ErrAlreadyConnected)
		return
	}

	u := user.User{
		Handle:   strings.TrimSpace(req.creds.Handle),
		FullName: strings.TrimSpace(req.creds.FullName),
		Status:   user.StatusOnline,
	}

	s.reset()
	s.current = &u
	s.pending = &req
	s.lastErr = nil
	s.armConnectTimer()
	s.setState(StateConnecting)

	s.logger.Info().Str("handle", u.Handle).Msg("Connecting.")
	s.transport.Connect(u, req.creds.Token)
}

// disconnect tears down the transport and resets every piece of session state.
func (s *Session) disconnect() {
	wasIdle := s.state == StateDisconnected && s.current == nil

	leave := user.User{}
	if s.current != nil {
		leave = *s.current
	}
	s.transport.Disconnect(leave)

	s.resolvePending(errs.NewError(errs.ErrNotConnected))
	s.reset()
	s.lastErr = nil

	if !wasIdle {
		s.logger.Info().Msg("Disconnected; session state cleared.")
	}
	s.setState(StateDisconnected)
}

// failConnect ends the pending attempt with err and moves to StateError.
func (s *Session) failConnect(err error, teardown bool) {
	if teardown && s.current != nil {
		s.transport.Disconnect(*s.current)
	}

	s.resolvePending(err)
	s.reset()
	s.lastErr = err
	s.setState(StateError)
}

func (s *Session) handleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		s.onConnected(ev)

	case transport.EventError:
		if s.state != StateConnecting || s.pending == nil {
			s.logger.Debug().Err(ev.Err).Str("state", s.state.String()).Msg("Ignoring transport error outside a connect attempt.")
			return
		}
		s.logger.Warn().Err(ev.Err).Msg("Connect attempt failed.")
		metrics.ConnectAttempts.WithLabelValues("error").Inc()
		s.failConnect(ev.Err, false)

	case transport.EventConnectionLost:
		s.onConnectionLost(ev)

	case transport.EventPresence:
		s.onPresence(ev.User)

	case transport.EventNotification:
		s.onNotification(ev.Notification)
	}
}

func (s *Session) onConnected(ev transport.Event) {
	if s.state != StateConnecting || s.current == nil {
		s.logger.Debug().Str("state", s.state.String()).Msg("Ignoring stray connected event.")
		return
	}

	s.disarmConnectTimer()
	s.lastErr = nil
	s.setState(StateConnected)

	if ev.Reconnected {
		metrics.Reconnects.Inc()
		s.logger.Info().Msg("Connection re-established.")
	} else {
		metrics.ConnectAttempts.WithLabelValues("success").Inc()
		s.logger.Info().Str("handle", s.current.Handle).Msg("Connected.")
	}

	s.resolvePending(nil)
	s.bootstrapRoster()
}

func (s *Session) onConnectionLost(ev transport.Event) {
	if s.state != StateConnected && s.state != StateConnecting {
		return
	}

	lost := errs.Wrap(errs.ErrTransportFailed, ev.Err)

	if ev.Reconnecting {
		s.logger.Warn().Err(ev.Err).Msg("Connection lost; waiting for reconnect.")
		s.lastErr = lost
		s.setState(StateConnecting)
		s.notify(UpdateError)
		return
	}

	s.logger.Warn().Err(ev.Err).Msg("Connection lost; session closed.")
	s.resolvePending(lost)
	s.reset()
	s.lastErr = lost
	s.setState(StateDisconnected)
	s.notify(UpdateError)
}

func (s *Session) onPresence(u user.User) {
	if s.current == nil || s.current.Same(u) {
		return
	}

	if u.IsOffline() {
		removed := s.roster.Remove(u.Handle)

		if s.peer != nil && s.peer.Same(u) {
			s.logger.Info().Str("peer", u.Handle).Msg("Selected peer went offline; selection cleared.")
			s.clearSelection()
			s.notify(UpdateSelection)
		}
		if removed {
			metrics.RosterSize.Set(float64(s.roster.Len()))
			s.notify(UpdateRoster)
		}
		return
	}

	s.roster.Upsert(u)
	metrics.RosterSize.Set(float64(s.roster.Len()))
	s.notify(UpdateRoster)
}

func (s *Session) onNotification(n message.Notification) {
	if s.current == nil || s.peer == nil {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		return
	}

	m := n.ToMessage(s.opts.Clock())
	if !message.InConversation(m, s.current.Handle, s.peer.Handle) {
		metrics.MessagesTotal.WithLabelValues("dropped").Inc()
		s.logger.Debug().Str("sender", m.SenderID).Msg("Notification outside the active conversation dropped.")
		return
	}

	if s.opts.DedupEchoes && s.timeline.Contains(m.ClientID, m.ID) {
		s.logger.Debug().Str("client_id", m.ClientID).Msg("Echo of a sent message skipped.")
		return
	}

	s.timeline.Append(m)
	metrics.MessagesTotal.WithLabelValues("received").Inc()
	s.notify(UpdateTimeline)
}

func (s *Session) handleSelect(peer user.User) error {
	if s.current == nil {
		return errs.NewError(errs.ErrNotConnected)
	}
	if s.current.Same(peer) {
		s.logger.Debug().Msg("Self-selection ignored.")
		return nil
	}

	if known, ok := s.roster.Get(peer.Handle); ok {
		peer = known
	}

	s.clearSelection()
	s.peer = &peer
	s.notify(UpdateSelection)
	s.fetchHistory()

	return nil
}

func (s *Session) handleSend(content string) (message.ChatMessage, error) {
	if s.state != StateConnected || s.current == nil {
		return message.ChatMessage{}, errs.NewError(errs.ErrNotConnected)
	}
	if s.peer == nil {
		return message.ChatMessage{}, errs.NewError(errs.ErrNoActivePeer)
	}
	if !s.limiter.Allow(s.peer.Handle) {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		return message.ChatMessage{}, errs.NewError(errs.ErrRateLimitExceeded)
	}

	m := message.ChatMessage{
		ClientID:    s.opts.NewID(),
		SenderID:    s.current.Handle,
		RecipientID: s.peer.Handle,
		Content:     content,
		Timestamp:   s.opts.Clock(),
	}

	if err := s.transport.Publish(s.opts.ChatDestination, m); err != nil {
		metrics.MessagesTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn().Err(err).Msg("Publish failed; message not appended.")
		return message.ChatMessage{}, err
	}

	s.timeline.Append(m)
	metrics.MessagesTotal.WithLabelValues("sent").Inc()
	s.notify(UpdateTimeline)

	return m, nil
}

// fetchHistory loads the conversation with the selected peer in the background.
func (s *Session) fetchHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
	s.cancelHistory = cancel

	res := historyResult{epoch: s.epoch, selection: s.selection, self: s.current.Handle, peer: s.peer.Handle}

	go func() {
		defer cancel()

		start := time.Now()
		res.msgs, res.err = s.directory.History(ctx, res.self, res.peer)
		metrics.HistoryFetchDuration.Observe(time.Since(start).Seconds())

		select {
		case s.historyDone <- res:
		case <-s.stop:
		}
	}()
}

// applyHistory installs a history result unless the selection moved on meanwhile.
func (s *Session) applyHistory(res historyResult) {
	if res.epoch != s.epoch || res.selection != s.selection || s.current == nil || s.peer == nil ||
		s.current.Handle != res.self || s.peer.Handle != res.peer {
		s.logger.Debug().Str("peer", res.peer).Msg("Stale history result discarded.")
		return
	}
	if errors.Is(res.err, context.Canceled) {
		s.logger.Debug().Str("peer", res.peer).Msg("Cancelled history fetch discarded.")
		return
	}

	if res.err != nil {
		s.logger.Warn().Err(res.err).Str("peer", res.peer).Msg("History fetch failed; timeline left empty.")
		res.msgs = nil
	}

	kept := res.msgs[:0:0]
	for _, m := range res.msgs {
		if message.InConversation(m, res.self, res.peer) {
			kept = append(kept, m)
		}
	}

	s.timeline.Replace(kept)
	s.notify(UpdateTimeline)
}

// bootstrapRoster loads the connected users after every successful connect.
func (s *Session) bootstrapRoster() {
	if s.cancelRoster != nil {
		s.cancelRoster()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.FetchTimeout)
	s.cancelRoster = cancel

	epoch := s.epoch

	go func() {
		defer cancel()

		users, err := s.directory.ConnectedUsers(ctx)

		select {
		case s.rosterDone <- rosterResult{epoch: epoch, users: users, err: err}:
		case <-s.stop:
		}
	}()
}

// applyRoster replaces the roster with the fetched users, minus the local user and
// anyone explicitly OFFLINE. A failed fetch leaves the roster unchanged.
func (s *Session) applyRoster(res rosterResult) {
	if res.epoch != s.epoch || s.current == nil {
		return
	}

	if res.err != nil {
		s.logger.Warn().Err(res.err).Msg("Roster fetch failed; roster left unchanged.")
		return
	}

	online := make([]user.User, 0, len(res.users))
	for _, u := range res.users {
		if u.Handle == "" || s.current.Same(u) || u.IsOffline() {
			continue
		}
		online = append(online, u)
	}

	s.roster.Replace(online)
	metrics.RosterSize.Set(float64(s.roster.Len()))
	s.notify(UpdateRoster)
}

// clearSelection drops the selected peer, its timeline and any history fetch in flight.
func (s *Session) clearSelection() {
	if s.cancelHistory != nil {
		s.cancelHistory()
		s.cancelHistory = nil
	}
	s.selection++
	s.peer = nil
	s.timeline.Reset()
}

// reset clears the user, roster, selection and timeline and invalidates fetches in flight.
func (s *Session) reset() {
	s.disarmConnectTimer()
	s.clearSelection()

	if s.cancelRoster != nil {
		s.cancelRoster()
		s.cancelRoster = nil
	}

	s.epoch++
	s.current = nil
	s.pending = nil
	s.roster.Reset()
	metrics.RosterSize.Set(0)
}

func (s *Session) resolvePending(err error) {
	if s.pending == nil {
		return
	}
	s.pending.result <- err
	s.pending = nil
}

func (s *Session) armConnectTimer() {
	if s.opts.ConnectTimeout <= 0 {
		return
	}
	s.connectTimer = time.NewTimer(s.opts.ConnectTimeout)
	s.timerC = s.connectTimer.C
}

func (s *Session) disarmConnectTimer() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	s.timerC = nil
}

func (s *Session) setState(state State) {
	changed := s.state != state
	s.state = state
	metrics.ConnectionState.Set(float64(state))

	if changed {
		s.notify(UpdateState)
	}
}

func (s *Session) notify(kind UpdateKind) {
	if s.observers.empty() {
		return
	}
	s.observers.publish(Update{Kind: kind, Snapshot: s.snapshot()})
}

func (s *Session) snapshot() Snapshot {
	snap := Snapshot{
		State:    s.state,
		Roster:   s.roster.Users(),
		Timeline: s.timeline.Messages(),
		Err:      s.lastErr,
	}
	if s.current != nil {
		u := *s.current
		snap.CurrentUser = &u
	}
	if s.peer != nil {
		p := *s.peer
		snap.SelectedPeer = &p
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}
