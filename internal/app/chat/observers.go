/*
Package chat contains the client-side session coordinator of the chat client.

This file defines the observer registry. Observers receive an Update after every state change
made by the session loop. Delivery never blocks the loop: an observer whose buffer is full
misses the update, which is logged.
*/
package chat

import (
	"sync"

	"github.com/rs/zerolog"
)

// DefaultObserverBuffer is the capacity of each observer channel.
const DefaultObserverBuffer = 32

// observers tracks the registered observer channels.
type observers struct {
	// subs stores the observer channels, keyed by registration id.
	subs map[uint64]chan Update

	// next is the id handed to the next registration.
	next uint64

	// buffer is the capacity of new observer channels.
	buffer int

	// closed is set once shutdown ran; later registrations get a closed channel.
	closed bool

	// mu protects concurrent access to the subs map.
	mu sync.RWMutex

	logger zerolog.Logger
}

func newObservers(buffer int, logger zerolog.Logger) *observers {
	if buffer <= 0 {
		buffer = DefaultObserverBuffer
	}

	return &observers{
		subs:   make(map[uint64]chan Update),
		buffer: buffer,
		logger: logger,
	}
}

// add registers a new observer and returns its id and channel.
func (o *observers) add() (uint64, chan Update) {
	o.mu.Lock()
	defer o.mu.Unlock()

	ch := make(chan Update, o.buffer)
	if o.closed {
		close(ch)
		return 0, ch
	}

	o.next++
	o.subs[o.next] = ch

	o.logger.Debug().Uint64("observer_id", o.next).Int("total_observers", len(o.subs)).Msg("Observer registered.")
	return o.next, ch
}

// remove unregisters the observer and closes its channel.
func (o *observers) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if ch, ok := o.subs[id]; ok {
		delete(o.subs, id)
		close(ch)
		o.logger.Debug().Uint64("observer_id", id).Msg("Observer removed.")
	}
}

// empty reports whether no observer is registered.
func (o *observers) empty() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.subs) == 0
}

// publish delivers u to every observer without blocking.
func (o *observers) publish(u Update) {
	o.mu.RLock()
	defer o.mu.RUnlock()

	for id, ch := range o.subs {
		select {
		case ch <- u:
		default:
			o.logger.Warn().
				Uint64("observer_id", id).
				Str("update", u.Kind.String()).
				Msg("Observer channel full, dropping update.")
		}
	}
}

// shutdown closes every observer channel.
func (o *observers) shutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	for id, ch := range o.subs {
		close(ch)
		delete(o.subs, id)
	}
	o.closed = true
}
