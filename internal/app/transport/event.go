package transport

import (
	"stompchat/internal/app/message"
	"stompchat/internal/app/user"
)

// EventKind identifies what an Event reports.
type EventKind int

const (
	// EventConnected reports that the session is registered: subscribed and announced.
	EventConnected EventKind = iota + 1

	// EventPresence carries a presence update from the broadcast topic.
	EventPresence

	// EventNotification carries a push from the private message queue.
	EventNotification

	// EventError reports a failed connect attempt. No connection remains.
	EventError

	// EventConnectionLost reports that a registered connection dropped.
	EventConnectionLost
)

// String returns the event name used in logs.
func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventPresence:
		return "presence"
	case EventNotification:
		return "notification"
	case EventError:
		return "error"
	case EventConnectionLost:
		return "connection_lost"
	default:
		return "unknown"
	}
}

// Event is a single notification from the adapter to its owner.
type Event struct {
	Kind EventKind

	// User is set for EventPresence.
	User user.User

	// Notification is set for EventNotification.
	Notification message.Notification

	// Err is set for EventError and, when known, EventConnectionLost.
	Err error

	// Reconnected marks an EventConnected that followed a lost connection.
	Reconnected bool

	// Reconnecting reports, on EventConnectionLost, whether the adapter will try again.
	Reconnecting bool
}

// critical reports whether the event must not be dropped on a full channel.
func (e Event) critical() bool {
	return e.Kind != EventPresence && e.Kind != EventNotification
}
