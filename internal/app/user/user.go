/*
Package user contains core data structures related to user identity and presence.

It defines the User struct exchanged with the chat backend over REST and STOMP. Backend
revisions disagree on the name of the unique handle field (`username` in current ones,
`nickName` in older ones); the JSON codec in this package accepts either on input and
writes both on output so that either revision can bind it.
*/
package user

import (
	"encoding/json"
	"strings"
)

// Status is the presence state of a user.
type Status string

const (
	// StatusOnline marks a user connected to the chat service.
	StatusOnline Status = "ONLINE"

	// StatusOffline marks a user that has left the chat service.
	StatusOffline Status = "OFFLINE"
)

// User represents the identity and presence of a chat participant.
type User struct {
	// ID is the backend's storage identifier. Optional; not used for lookups.
	ID string

	// Handle is the unique identifying string of the user.
	Handle string

	// FullName is the display name.
	FullName string

	// Email is optional.
	Email string

	// Status is empty when the backend did not report presence.
	Status Status
}

// wireUser is the JSON shape of User. Handle is emitted under both known keys.
type wireUser struct {
	ID       string `json:"id,omitempty"`
	Username string `json:"username,omitempty"`
	NickName string `json:"nickName,omitempty"`
	FullName string `json:"fullName"`
	Email    string `json:"email,omitempty"`
	Status   Status `json:"status,omitempty"`
}

// MarshalJSON writes the handle as both "username" and "nickName".
func (u User) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireUser{
		ID:       u.ID,
		Username: u.Handle,
		NickName: u.Handle,
		FullName: u.FullName,
		Email:    u.Email,
		Status:   u.Status,
	})
}

// UnmarshalJSON reads the handle from "username", falling back to "nickName".
func (u *User) UnmarshalJSON(data []byte) error {
	var w wireUser
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	handle := w.Username
	if handle == "" {
		handle = w.NickName
	}

	*u = User{
		ID:       w.ID,
		Handle:   handle,
		FullName: w.FullName,
		Email:    w.Email,
		Status:   Status(strings.ToUpper(string(w.Status))),
	}
	return nil
}

// IsOnline reports whether the user is reported ONLINE.
func (u User) IsOnline() bool {
	return u.Status == StatusOnline
}

// IsOffline reports whether the user is explicitly reported OFFLINE.
func (u User) IsOffline() bool {
	return u.Status == StatusOffline
}

// Same reports whether both users carry the same non-empty handle.
func (u User) Same(other User) bool {
	return u.Handle != "" && u.Handle == other.Handle
}

// WithStatus returns a copy of the user with the given status.
func (u User) WithStatus(s Status) User {
	u.Status = s
	return u
}
