package chat

import (
	"stompchat/internal/app/message"
)

// Timeline is the ordered list of messages of the selected conversation.
// Messages are only ever appended or replaced wholesale; entries are never edited.
// It is owned by the session loop and is not safe for concurrent use.
type Timeline struct {
	messages []message.ChatMessage

	// ids holds every non-empty id and client id present, for echo detection.
	ids map[string]struct{}
}

// NewTimeline creates an empty timeline.
func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[string]struct{})}
}

// Append adds m at the end.
func (t *Timeline) Append(m message.ChatMessage) {
	t.messages = append(t.messages, m)
	t.track(m)
}

// Replace discards the current messages and installs msgs in their given order.
func (t *Timeline) Replace(msgs []message.ChatMessage) {
	t.Reset()
	for _, m := range msgs {
		t.Append(m)
	}
}

// Contains reports whether a message with the given client id or server id is present.
// Empty ids never match.
func (t *Timeline) Contains(clientID, id string) bool {
	if clientID != "" {
		if _, ok := t.ids[clientID]; ok {
			return true
		}
	}
	if id != "" {
		if _, ok := t.ids[id]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of messages.
func (t *Timeline) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages in order.
func (t *Timeline) Messages() []message.ChatMessage {
	out := make([]message.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

// Reset empties the timeline.
func (t *Timeline) Reset() {
	t.messages = nil
	t.ids = make(map[string]struct{})
}

func (t *Timeline) track(m message.ChatMessage) {
	if m.ClientID != "" {
		t.ids[m.ClientID] = struct{}{}
	}
	if m.ID != "" {
		t.ids[m.ID] = struct{}{}
	}
}
