package chat

import (
	"stompchat/internal/app/user"
)

// Roster is the ordered set of online peers, keyed by handle.
// It is owned by the session loop and is not safe for concurrent use.
type Roster struct {
	users []user.User
	index map[string]int
}

// NewRoster creates an empty roster.
func NewRoster() *Roster {
	return &Roster{index: make(map[string]int)}
}

// Upsert inserts u at the end or replaces the entry with the same handle in place.
func (r *Roster) Upsert(u user.User) {
	if i, ok := r.index[u.Handle]; ok {
		r.users[i] = u
		return
	}
	r.index[u.Handle] = len(r.users)
	r.users = append(r.users, u)
}

// Remove deletes the entry for handle and reports whether one existed.
func (r *Roster) Remove(handle string) bool {
	i, ok := r.index[handle]
	if !ok {
		return false
	}

	r.users = append(r.users[:i], r.users[i+1:]...)
	delete(r.index, handle)
	for j := i; j < len(r.users); j++ {
		r.index[r.users[j].Handle] = j
	}
	return true
}

// Replace resets the roster to users, keeping their order. Later duplicates replace earlier ones.
func (r *Roster) Replace(users []user.User) {
	r.Reset()
	for _, u := range users {
		r.Upsert(u)
	}
}

// Get returns the entry for handle.
func (r *Roster) Get(handle string) (user.User, bool) {
	i, ok := r.index[handle]
	if !ok {
		return user.User{}, false
	}
	return r.users[i], true
}

// Len returns the number of entries.
func (r *Roster) Len() int {
	return len(r.users)
}

// Users returns a copy of the entries in order.
func (r *Roster) Users() []user.User {
	out := make([]user.User, len(r.users))
	copy(out, r.users)
	return out
}

// Reset empties the roster.
func (r *Roster) Reset() {
	r.users = nil
	r.index = make(map[string]int)
}
