/*
Package message defines the chat message shapes exchanged with the backend.

ChatMessage is the delivered, immutable unit of a conversation timeline. Notification is the
push payload received on the private message queue; it is converted to a ChatMessage on receipt.
*/
package message

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"stompchat/internal/pkg/logx"
)

// wireTimeLayout is ISO-8601 with millisecond precision, which the backend's date parser accepts.
const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// localLayouts are tried, in order, for timestamps that carry no zone. They are read as UTC.
var localLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ChatMessage is a single delivered message.
type ChatMessage struct {
	ID          string    `json:"id,omitempty"`
	ChatID      string    `json:"chatId,omitempty"`
	ClientID    string    `json:"clientId,omitempty"`
	SenderID    string    `json:"senderId"`
	RecipientID string    `json:"recipientId"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
}

type chatMessageAlias ChatMessage

// MarshalJSON writes the timestamp in UTC with millisecond precision.
func (m ChatMessage) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		chatMessageAlias
		Timestamp string `json:"timestamp"`
	}{
		chatMessageAlias: chatMessageAlias(m),
		Timestamp:        FormatTimestamp(m.Timestamp),
	})
}

// UnmarshalJSON accepts RFC 3339 strings, zone-less ISO strings and epoch milliseconds.
// An unrecognized timestamp is logged and left zero so one bad row never hides a conversation.
func (m *ChatMessage) UnmarshalJSON(data []byte) error {
	var aux struct {
		chatMessageAlias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*m = ChatMessage(aux.chatMessageAlias)
	m.Timestamp = lenientTimestamp(aux.Timestamp, m.ID, m.SenderID)
	return nil
}

// Notification is the push event delivered on the private message queue.
// Some backend revisions omit the timestamp.
type Notification struct {
	ID          string     `json:"id,omitempty"`
	ClientID    string     `json:"clientId,omitempty"`
	SenderID    string     `json:"senderId"`
	RecipientID string     `json:"recipientId"`
	Content     string     `json:"content"`
	Timestamp   *time.Time `json:"-"`
}

// UnmarshalJSON decodes the notification, keeping Timestamp nil when absent or unparseable.
func (n *Notification) UnmarshalJSON(data []byte) error {
	type notificationAlias Notification
	var aux struct {
		notificationAlias
		Timestamp json.RawMessage `json:"timestamp"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*n = Notification(aux.notificationAlias)

	if ts := lenientTimestamp(aux.Timestamp, n.ID, n.SenderID); !ts.IsZero() {
		n.Timestamp = &ts
	}
	return nil
}

// lenientTimestamp parses raw, logging and returning the zero time when it cannot.
func lenientTimestamp(raw json.RawMessage, id, sender string) time.Time {
	ts, err := ParseTimestamp(raw)
	if err != nil {
		logx.Warn("Unparseable message timestamp ignored.", "id", id, "sender", sender, "error", err.Error())
		return time.Time{}
	}
	return ts
}

// ToMessage converts the notification to a ChatMessage, stamping now when the push had no timestamp.
func (n Notification) ToMessage(now time.Time) ChatMessage {
	ts := now
	if n.Timestamp != nil {
		ts = *n.Timestamp
	}

	return ChatMessage{
		ID:          n.ID,
		ClientID:    n.ClientID,
		SenderID:    n.SenderID,
		RecipientID: n.RecipientID,
		Content:     n.Content,
		Timestamp:   ts,
	}
}

// InConversation reports whether m was exchanged between a and b, in either direction.
func InConversation(m ChatMessage, a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return (m.SenderID == a && m.RecipientID == b) ||
		(m.SenderID == b && m.RecipientID == a)
}

// FormatTimestamp renders t for the wire.
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(wireTimeLayout)
}

// ParseTimestamp decodes a raw JSON timestamp. Null, missing and empty values yield the zero time.
func ParseTimestamp(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		ms, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("message: invalid numeric timestamp %s: %w", raw, err)
		}
		return time.UnixMilli(ms).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("message: invalid timestamp %s: %w", raw, err)
	}
	if s == "" {
		return time.Time{}, nil
	}

	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("message: unrecognized timestamp format %q", s)
}
