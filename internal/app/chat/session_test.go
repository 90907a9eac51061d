package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"stompchat/internal/app/message"
	"stompchat/internal/app/transport"
	"stompchat/internal/app/user"
	"stompchat/internal/pkg/errs"
)

func TestConnect_ValidatesCredentials(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)

	err := s.Connect(context.Background(), Credentials{Handle: " ", FullName: "Alice"})
	assert.True(t, errs.IsCode(err, errs.ErrInvalidHandle))

	err = s.Connect(context.Background(), Credentials{Handle: "alice"})
	assert.True(t, errs.IsCode(err, errs.ErrInvalidFullName))

	assert.Zero(t, tr.connectCount())
}

func TestConnect_Success(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)

	connectAlice(t, s)

	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	require.NotNil(t, snap.CurrentUser)
	assert.Equal(t, "alice", snap.CurrentUser.Handle)

	require.Equal(t, 1, tr.connectCount())
	assert.Equal(t, "tok", tr.connects[0].token)
	assert.Equal(t, user.StatusOnline, tr.connects[0].user.Status)
}

func TestConnect_SecondCallWhileConnecting(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	tr.autoConnect = false

	first := make(chan error, 1)
	go func() {
		first <- s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	}()
	waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateConnecting })

	err := s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	assert.True(t, errs.IsCode(err, errs.ErrConnectInProgress))

	tr.emit(transport.Event{Kind: transport.EventConnected})
	require.NoError(t, <-first)

	err = s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	assert.True(t, errs.IsCode(err, errs.ErrAlreadyConnected))
	assert.Equal(t, 1, tr.connectCount())
}

func TestConnect_TransportError(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	tr.autoConnect = false

	result := make(chan error, 1)
	go func() {
		result <- s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	}()
	waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateConnecting })

	cause := errs.NewError(errs.ErrTransportFailed)
	tr.emit(transport.Event{Kind: transport.EventError, Err: cause})

	err := <-result
	assert.ErrorIs(t, err, cause)

	snap := s.Snapshot()
	assert.Equal(t, StateError, snap.State)
	assert.Nil(t, snap.CurrentUser)
	assert.Equal(t, cause, snap.Err)
	assert.NotEmpty(t, snap.LastError)
}

func TestConnect_Timeout(t *testing.T) {
	s, tr, _ := newTestSession(t, func(o *Options) { o.ConnectTimeout = 30 * time.Millisecond })
	tr.autoConnect = false

	err := s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	assert.True(t, errs.IsCode(err, errs.ErrConnectTimeout))

	assert.Equal(t, StateError, s.Snapshot().State)
	assert.Equal(t, 1, tr.disconnectCount(), "timed out attempt is torn down")

	tr.emit(transport.Event{Kind: transport.EventConnected})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, StateError, s.Snapshot().State, "late connected event is ignored")
}

func TestConnect_ContextCancelTearsDown(t *testing.T) {
	s, tr, _ := newTestSession(t, func(o *Options) { o.ConnectTimeout = 0 })
	tr.autoConnect = false

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx, Credentials{Handle: "alice", FullName: "Alice"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	snap := s.Snapshot()
	assert.Equal(t, StateDisconnected, snap.State)
	assert.Nil(t, snap.CurrentUser)
	assert.GreaterOrEqual(t, tr.disconnectCount(), 1)
}

func TestConnect_ReconnectAfterError(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	tr.autoConnect = false

	result := make(chan error, 1)
	go func() {
		result <- s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice"})
	}()
	waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateConnecting })
	tr.emit(transport.Event{Kind: transport.EventError, Err: errors.New("refused")})
	require.Error(t, <-result)

	tr.mu.Lock()
	tr.autoConnect = true
	tr.mu.Unlock()

	connectAlice(t, s)
	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Nil(t, snap.Err)
}

func TestRoster_BootstrapExcludesSelfAndOffline(t *testing.T) {
	s, _, dir := newTestSession(t, nil)
	dir.users = []user.User{
		bob,
		alice,
		{Handle: "dave", Status: user.StatusOffline},
		carol,
	}

	connectAlice(t, s)

	snap := waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) > 0 })
	assert.Equal(t, []string{"bob", "carol"}, handles(snap.Roster))
}

func TestRoster_BootstrapFailureLeavesRosterEmpty(t *testing.T) {
	s, _, dir := newTestSession(t, nil)
	dir.usersErr = errors.New("boom")

	connectAlice(t, s)

	require.Eventually(t, func() bool { return dir.rosterCallCount() == 1 }, waitTimeout, 5*time.Millisecond)
	snap := s.Snapshot()
	assert.Equal(t, StateConnected, snap.State)
	assert.Empty(t, snap.Roster)
}

func TestPresence_UpsertRemoveAndSelfExclusion(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	connectAlice(t, s)

	tr.emit(transport.Event{Kind: transport.EventPresence, User: bob})
	tr.emit(transport.Event{Kind: transport.EventPresence, User: carol})
	tr.emit(transport.Event{Kind: transport.EventPresence, User: alice})
	tr.emit(transport.Event{Kind: transport.EventPresence, User: user.User{Handle: "bob", FullName: "Bobby", Status: user.StatusOnline}})

	snap := waitFor(t, s, func(sn Snapshot) bool {
		return len(sn.Roster) == 2 && sn.Roster[0].FullName == "Bobby"
	})
	assert.Equal(t, []string{"bob", "carol"}, handles(snap.Roster), "replacement keeps insertion order")

	tr.emit(transport.Event{Kind: transport.EventPresence, User: carol.WithStatus(user.StatusOffline)})
	snap = waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 1 })
	assert.Equal(t, []string{"bob"}, handles(snap.Roster))

	for _, u := range snap.Roster {
		assert.NotEqual(t, "alice", u.Handle)
	}
}

func TestSelectUser(t *testing.T) {
	s, _, dir := newTestSession(t, nil)

	err := s.SelectUser(bob)
	assert.True(t, errs.IsCode(err, errs.ErrNotConnected))

	connectAlice(t, s)

	assert.True(t, errs.IsCode(s.SelectUser(user.User{}), errs.ErrInvalidHandle))

	require.NoError(t, s.SelectUser(alice))
	assert.Nil(t, s.Snapshot().SelectedPeer, "self-selection is ignored")
	assert.Zero(t, dir.servedCount())

	require.NoError(t, s.SelectUser(bob))
	snap := s.Snapshot()
	require.NotNil(t, snap.SelectedPeer)
	assert.Equal(t, "bob", snap.SelectedPeer.Handle)
}

func TestScenario_SelectHistoryThenSend(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	t1 := fixedNow.Add(-time.Hour)
	dir.history["bob"] = []message.ChatMessage{
		{SenderID: "alice", RecipientID: "bob", Content: "hi", Timestamp: t1},
	}

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

	sent, err := s.Send("yo")
	require.NoError(t, err)
	assert.Equal(t, "c-1", sent.ClientID)
	assert.Equal(t, fixedNow, sent.Timestamp)
	assert.Equal(t, "alice", sent.SenderID)
	assert.Equal(t, "bob", sent.RecipientID)

	snap := s.Snapshot()
	assert.Equal(t, []string{"hi", "yo"}, contents(snap.Timeline))

	require.Equal(t, 1, tr.publishedCount())
	assert.Equal(t, "/app/chat", tr.published[0].destination)
	assert.Equal(t, sent, tr.published[0].payload)
}

func TestHistory_StaleResultDiscarded(t *testing.T) {
	s, _, dir := newTestSession(t, nil)
	gate := make(chan struct{})
	dir.gates["bob"] = gate
	dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "from bob"}}
	dir.history["carol"] = []message.ChatMessage{{SenderID: "carol", RecipientID: "alice", Content: "from carol"}}

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	require.NoError(t, s.SelectUser(carol))

	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

	close(gate)
	require.Eventually(t, func() bool { return dir.servedCount() == 2 }, waitTimeout, 5*time.Millisecond)

	assert.Never(t, func() bool {
		got := contents(s.Snapshot().Timeline)
		return len(got) != 1 || got[0] != "from carol"
	}, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"from carol"}, contents(s.Snapshot().Timeline))
}

// firstCallHeldDirectory holds its first History call until release is closed, then answers
// it with first(ctx). Later calls go straight to the wrapped directory.
type firstCallHeldDirectory struct {
	*fakeDirectory
	release chan struct{}
	first   func(ctx context.Context) ([]message.ChatMessage, error)

	mu       sync.Mutex
	calls    int
	answered chan struct{}
}

func (d *firstCallHeldDirectory) History(ctx context.Context, a, b string) ([]message.ChatMessage, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()

	if n > 1 {
		return d.fakeDirectory.History(ctx, a, b)
	}

	<-d.release
	defer close(d.answered)
	return d.first(ctx)
}

func TestHistory_ReselectSamePeerDiscardsCancelledFetch(t *testing.T) {
	cases := []struct {
		name  string
		first func(ctx context.Context) ([]message.ChatMessage, error)
	}{
		{"cancelled error", func(ctx context.Context) ([]message.ChatMessage, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}},
		{"late success", func(context.Context) ([]message.ChatMessage, error) {
			return []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "old"}}, nil
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := &firstCallHeldDirectory{
				fakeDirectory: newFakeDirectory(),
				release:       make(chan struct{}),
				first:         tc.first,
				answered:      make(chan struct{}),
			}
			dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "hi"}}

			opts := DefaultOptions()
			opts.Clock = func() time.Time { return fixedNow }
			s := NewSession(newFakeTransport(), dir, opts)
			t.Cleanup(s.Close)

			connectAlice(t, s)
			require.NoError(t, s.SelectUser(bob))
			require.NoError(t, s.SelectUser(carol))
			require.NoError(t, s.SelectUser(bob))

			waitFor(t, s, func(sn Snapshot) bool {
				got := contents(sn.Timeline)
				return len(got) == 1 && got[0] == "hi"
			})
			_, err := s.Send("yo")
			require.NoError(t, err)

			close(dir.release)
			select {
			case <-dir.answered:
			case <-time.After(waitTimeout):
				t.Fatal("held history call never answered")
			}

			assert.Never(t, func() bool {
				got := contents(s.Snapshot().Timeline)
				return len(got) != 2 || got[0] != "hi" || got[1] != "yo"
			}, 100*time.Millisecond, 10*time.Millisecond)
		})
	}
}

func TestHistory_FailureLeavesTimelineEmpty(t *testing.T) {
	s, _, dir := newTestSession(t, nil)
	dir.historyErr = errors.New("backend down")

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))

	require.Eventually(t, func() bool { return dir.servedCount() == 1 }, waitTimeout, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	snap := s.Snapshot()
	assert.Empty(t, snap.Timeline)
	assert.Equal(t, StateConnected, snap.State)
	assert.Nil(t, snap.Err, "fetch failures are not surfaced as session errors")
}

func TestNotification_ConversationMembership(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "earlier"}}

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

	tr.emit(transport.Event{Kind: transport.EventNotification, Notification: message.Notification{SenderID: "carol", RecipientID: "alice", Content: "other"}})
	tr.emit(transport.Event{Kind: transport.EventNotification, Notification: message.Notification{SenderID: "bob", RecipientID: "alice", Content: "hey"}})

	snap := waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 2 })
	assert.Equal(t, []string{"earlier", "hey"}, contents(snap.Timeline))
	assert.Equal(t, fixedNow, snap.Timeline[1].Timestamp, "timestamp-less push is stamped locally")

	for _, m := range snap.Timeline {
		assert.Contains(t, []string{"alice", "bob"}, m.SenderID)
		assert.Contains(t, []string{"alice", "bob"}, m.RecipientID)
	}
}

func TestNotification_WithoutSelectionIsDropped(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	connectAlice(t, s)

	tr.emit(transport.Event{Kind: transport.EventNotification, Notification: message.Notification{SenderID: "bob", RecipientID: "alice", Content: "hey"}})
	tr.emit(transport.Event{Kind: transport.EventPresence, User: bob})

	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 1 })
	assert.Empty(t, s.Snapshot().Timeline)
}

func TestNotification_EchoHandling(t *testing.T) {
	cases := []struct {
		name  string
		dedup bool
		want  []string
	}{
		{"kept by default", false, []string{"earlier", "yo", "yo"}},
		{"deduplicated", true, []string{"earlier", "yo"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s, tr, dir := newTestSession(t, func(o *Options) { o.DedupEchoes = tc.dedup })
			dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "earlier"}}

			connectAlice(t, s)
			require.NoError(t, s.SelectUser(bob))
			waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

			sent, err := s.Send("yo")
			require.NoError(t, err)

			tr.emit(transport.Event{Kind: transport.EventNotification, Notification: message.Notification{
				ID: "srv-1", ClientID: sent.ClientID, SenderID: "alice", RecipientID: "bob", Content: "yo",
			}})
			tr.emit(transport.Event{Kind: transport.EventPresence, User: carol})

			snap := waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 1 })
			assert.Equal(t, tc.want, contents(snap.Timeline))
		})
	}
}

func TestScenario_SelectedPeerGoesOffline(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.users = []user.User{bob, carol}
	dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "hi"}}

	connectAlice(t, s)
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 2 })
	require.NoError(t, s.SelectUser(bob))
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

	tr.emit(transport.Event{Kind: transport.EventPresence, User: bob.WithStatus(user.StatusOffline)})

	snap := waitFor(t, s, func(sn Snapshot) bool { return sn.SelectedPeer == nil })
	assert.Equal(t, []string{"carol"}, handles(snap.Roster))
	assert.Empty(t, snap.Timeline)

	_, err := s.Send("still there?")
	assert.True(t, errs.IsCode(err, errs.ErrNoActivePeer))
}

func TestSend_BlankContentNeverPublishes(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.history["bob"] = []message.ChatMessage{{SenderID: "alice", RecipientID: "bob", Content: "hi"}}

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 })

	for _, content := range []string{"", "   ", "\n\t"} {
		_, err := s.Send(content)
		assert.True(t, errs.IsCode(err, errs.ErrEmptyMessage))
	}

	assert.Zero(t, tr.publishedCount())
	assert.Equal(t, []string{"hi"}, contents(s.Snapshot().Timeline))
}

func TestSend_Rejections(t *testing.T) {
	s, tr, _ := newTestSession(t, func(o *Options) {
		o.SendRate = rate.Every(time.Hour)
		o.SendBurst = 1
	})

	_, err := s.Send("hello")
	assert.True(t, errs.IsCode(err, errs.ErrNotConnected))

	connectAlice(t, s)

	_, err = s.Send("hello")
	assert.True(t, errs.IsCode(err, errs.ErrNoActivePeer))

	_, err = s.Send(string(make([]byte, MaxContentBytes+1)))
	assert.True(t, errs.IsCode(err, errs.ErrMessageContentTooLong))

	require.NoError(t, s.SelectUser(bob))

	_, err = s.Send("first")
	require.NoError(t, err)
	_, err = s.Send("second")
	assert.True(t, errs.IsCode(err, errs.ErrRateLimitExceeded))

	assert.Equal(t, 1, tr.publishedCount())
}

func TestSend_PublishFailureIsNotAppended(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	require.Eventually(t, func() bool { return dir.servedCount() == 1 }, waitTimeout, 5*time.Millisecond)

	tr.mu.Lock()
	tr.publishErr = errs.NewError(errs.ErrNotConnected)
	tr.mu.Unlock()

	_, err := s.Send("lost")
	assert.True(t, errs.IsCode(err, errs.ErrNotConnected))
	assert.Empty(t, s.Snapshot().Timeline)
}

func TestDisconnect_Idempotent(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.users = []user.User{bob}
	dir.history["bob"] = []message.ChatMessage{{SenderID: "bob", RecipientID: "alice", Content: "hi"}}

	s.Disconnect()
	never := s.Snapshot()

	connectAlice(t, s)
	require.NoError(t, s.SelectUser(bob))
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Timeline) == 1 && len(sn.Roster) == 1 })

	s.Disconnect()
	once := s.Snapshot()
	s.Disconnect()
	twice := s.Snapshot()

	assert.Equal(t, once, twice)
	assert.Equal(t, never, once)
	assert.Equal(t, StateDisconnected, once.State)
	assert.Nil(t, once.CurrentUser)
	assert.Nil(t, once.SelectedPeer)
	assert.Empty(t, once.Roster)
	assert.Empty(t, once.Timeline)

	tr.mu.Lock()
	defer tr.mu.Unlock()
	require.NotEmpty(t, tr.disconnects)
	assert.Contains(t, handles(tr.disconnects), "alice")
}

func TestConnectionLost_Reconnecting(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.users = []user.User{bob}

	connectAlice(t, s)
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 1 })
	require.NoError(t, s.SelectUser(bob))

	tr.emit(transport.Event{Kind: transport.EventConnectionLost, Err: errors.New("eof"), Reconnecting: true})
	snap := waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateConnecting })
	require.NotNil(t, snap.SelectedPeer, "selection survives a reconnect")
	assert.True(t, errs.IsCode(snap.Err, errs.ErrTransportFailed))

	_, err := s.Send("while down")
	assert.True(t, errs.IsCode(err, errs.ErrNotConnected))

	dir.mu.Lock()
	dir.users = []user.User{bob, carol}
	dir.mu.Unlock()

	tr.emit(transport.Event{Kind: transport.EventConnected, Reconnected: true})
	snap = waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateConnected && len(sn.Roster) == 2 })
	assert.Equal(t, []string{"bob", "carol"}, handles(snap.Roster))
	assert.Equal(t, 2, dir.rosterCallCount(), "roster is bootstrapped again")
}

func TestConnectionLost_Final(t *testing.T) {
	s, tr, dir := newTestSession(t, nil)
	dir.users = []user.User{bob}

	connectAlice(t, s)
	waitFor(t, s, func(sn Snapshot) bool { return len(sn.Roster) == 1 })

	tr.emit(transport.Event{Kind: transport.EventConnectionLost, Reconnecting: false})

	snap := waitFor(t, s, func(sn Snapshot) bool { return sn.State == StateDisconnected })
	assert.Nil(t, snap.CurrentUser)
	assert.Empty(t, snap.Roster)
	assert.True(t, errs.IsCode(snap.Err, errs.ErrTransportFailed))
}

func TestSubscribe_ReceivesUpdates(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	updates, cancel := s.Subscribe()
	defer cancel()

	connectAlice(t, s)
	tr.emit(transport.Event{Kind: transport.EventPresence, User: bob})

	var kinds []UpdateKind
	deadline := time.After(waitTimeout)
	for len(kinds) < 3 {
		select {
		case u := <-updates:
			kinds = append(kinds, u.Kind)
		case <-deadline:
			t.Fatalf("timed out, got %v", kinds)
		}
	}

	assert.Equal(t, []UpdateKind{UpdateState, UpdateState, UpdateRoster}, kinds[:3])
}

func TestClose(t *testing.T) {
	s, tr, _ := newTestSession(t, nil)
	updates, _ := s.Subscribe()

	connectAlice(t, s)
	s.Close()
	s.Close()

	for range updates {
	}

	assert.True(t, errs.IsCode(s.Connect(context.Background(), Credentials{Handle: "a", FullName: "A"}), errs.ErrSessionClosed))
	assert.True(t, errs.IsCode(s.SelectUser(bob), errs.ErrSessionClosed))
	_, err := s.Send("x")
	assert.True(t, errs.IsCode(err, errs.ErrSessionClosed))
	assert.Equal(t, StateDisconnected, s.Snapshot().State)
	assert.GreaterOrEqual(t, tr.disconnectCount(), 1)

	ch, _ := s.Subscribe()
	_, open := <-ch
	assert.False(t, open)
}
