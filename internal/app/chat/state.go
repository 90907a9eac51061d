package chat

import (
	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
)

// State is the connection state of a Session.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateError
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is a copy of the session state. It shares nothing with the Session.
type Snapshot struct {
	State        State                 `json:"state"`
	CurrentUser  *user.User            `json:"currentUser,omitempty"`
	SelectedPeer *user.User            `json:"selectedPeer,omitempty"`
	Roster       []user.User           `json:"roster"`
	Timeline     []message.ChatMessage `json:"timeline"`

	// Err is the last connection error, if any.
	Err error `json:"-"`

	// LastError is Err rendered for display.
	LastError string `json:"lastError,omitempty"`
}

// UpdateKind tells observers what changed.
type UpdateKind int

const (
	// UpdateState reports a connection state change.
	UpdateState UpdateKind = iota + 1

	// UpdateRoster reports a roster change.
	UpdateRoster

	// UpdateSelection reports a change of the selected peer. The timeline was cleared.
	UpdateSelection

	// UpdateTimeline reports a new message or a replaced history.
	UpdateTimeline

	// UpdateError reports a transient error notice, such as a lost connection.
	UpdateError
)

// String returns the update name used in logs.
func (k UpdateKind) String() string {
	switch k {
	case UpdateState:
		return "state"
	case UpdateRoster:
		return "roster"
	case UpdateSelection:
		return "selection"
	case UpdateTimeline:
		return "timeline"
	case UpdateError:
		return "error"
	default:
		return "unknown"
	}
}

// Update is delivered to observers after every change.
type Update struct {
	Kind     UpdateKind
	Snapshot Snapshot
}
