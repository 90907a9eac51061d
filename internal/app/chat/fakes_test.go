package chat

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stompchat/internal/app/message"
	"stompchat/internal/app/transport"
	"stompchat/internal/app/user"
)

const waitTimeout = 2 * time.Second

type connectCall struct {
	user  user.User
	token string
}

type publishCall struct {
	destination string
	payload     any
}

// fakeTransport records calls and lets tests inject events.
type fakeTransport struct {
	events chan transport.Event

	mu          sync.Mutex
	connects    []connectCall
	published   []publishCall
	disconnects []user.User
	autoConnect bool
	publishErr  error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 64), autoConnect: true}
}

func (f *fakeTransport) Connect(u user.User, token string) {
	f.mu.Lock()
	f.connects = append(f.connects, connectCall{user: u, token: token})
	auto := f.autoConnect
	f.mu.Unlock()

	if auto {
		f.events <- transport.Event{Kind: transport.EventConnected}
	}
}

func (f *fakeTransport) Publish(destination string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, publishCall{destination: destination, payload: payload})
	return nil
}

func (f *fakeTransport) Disconnect(u user.User) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, u)
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

func (f *fakeTransport) emit(ev transport.Event) {
	f.events <- ev
}

func (f *fakeTransport) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.connects)
}

func (f *fakeTransport) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.disconnects)
}

// fakeDirectory serves canned roster and history responses. A gate blocks the history
// request for that peer until the gate is closed, regardless of cancellation.
type fakeDirectory struct {
	mu          sync.Mutex
	users       []user.User
	usersErr    error
	history     map[string][]message.ChatMessage
	historyErr  error
	gates       map[string]chan struct{}
	rosterCalls int
	served      []string
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		history: make(map[string][]message.ChatMessage),
		gates:   make(map[string]chan struct{}),
	}
}

func (d *fakeDirectory) ConnectedUsers(ctx context.Context) ([]user.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rosterCalls++
	return append([]user.User(nil), d.users...), d.usersErr
}

func (d *fakeDirectory) History(ctx context.Context, a, b string) ([]message.ChatMessage, error) {
	d.mu.Lock()
	gate := d.gates[b]
	msgs := append([]message.ChatMessage(nil), d.history[b]...)
	err := d.historyErr
	d.mu.Unlock()

	if gate != nil {
		<-gate
	}

	d.mu.Lock()
	d.served = append(d.served, b)
	d.mu.Unlock()

	return msgs, err
}

func (d *fakeDirectory) servedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.served)
}

func (d *fakeDirectory) rosterCallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rosterCalls
}

var (
	alice = user.User{Handle: "alice", FullName: "Alice", Status: user.StatusOnline}
	bob   = user.User{Handle: "bob", FullName: "Bob", Status: user.StatusOnline}
	carol = user.User{Handle: "carol", FullName: "Carol", Status: user.StatusOnline}

	fixedNow = time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
)

func newTestSession(t *testing.T, mutate func(*Options)) (*Session, *fakeTransport, *fakeDirectory) {
	t.Helper()

	tr := newFakeTransport()
	dir := newFakeDirectory()

	ids := 0
	opts := DefaultOptions()
	opts.Clock = func() time.Time { return fixedNow }
	opts.NewID = func() string {
		ids++
		return "c-" + strconv.Itoa(ids)
	}
	if mutate != nil {
		mutate(&opts)
	}

	s := NewSession(tr, dir, opts)
	t.Cleanup(s.Close)
	return s, tr, dir
}

func connectAlice(t *testing.T, s *Session) {
	t.Helper()

	err := s.Connect(context.Background(), Credentials{Handle: "alice", FullName: "Alice", Token: "tok"})
	require.NoError(t, err)
}

// waitFor polls the session snapshot until cond holds.
func waitFor(t *testing.T, s *Session, cond func(Snapshot) bool) Snapshot {
	t.Helper()

	var last Snapshot
	require.Eventually(t, func() bool {
		last = s.Snapshot()
		return cond(last)
	}, waitTimeout, 5*time.Millisecond)
	return last
}

func handles(users []user.User) []string {
	out := make([]string, 0, len(users))
	for _, u := range users {
		out = append(out, u.Handle)
	}
	return out
}

func contents(msgs []message.ChatMessage) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}
