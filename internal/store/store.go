// Package store holds client-side state for the CozyCabin CLI. Each store
// owns one slice of state, performs backend calls outside its lock and
// announces changes to subscribers.
package store

import (
	"errors"
	"sync"

	"github.com/cozycabin/cozycabin/internal/client"
)

// Change is sent to subscribers after a store mutates its state.
type Change struct {
	Action string
	ID     string
}

// broadcaster fans Change events out to subscriber channels.
type broadcaster struct {
	mutex       sync.Mutex
	subscribers []chan Change
}

// Subscribe returns a channel that receives a Change after every state
// update. Events are dropped when the channel buffer is full; readers
// should re-read the snapshot.
func (b *broadcaster) Subscribe() <-chan Change {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	channel := make(chan Change, 32)
	b.subscribers = append(b.subscribers, channel)
	return channel
}

func (b *broadcaster) notify(action, id string) {
	b.mutex.Lock()
	subscribers := b.subscribers
	b.mutex.Unlock()

	change := Change{Action: action, ID: id}
	for _, subscriber := range subscribers {
		select {
		case subscriber <- change:
		default:
		}
	}
}

// errorText turns a backend error into the message stored in state.
func errorText(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}

// ValidationError is reported for input rejected before any backend call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Message
}

var (
	_ TicketBackend = (*client.Client)(nil)
	_ AuthBackend   = (*client.Client)(nil)
	_ InviteBackend = (*client.Client)(nil)
	_ AgentBackend  = (*client.Client)(nil)
)
