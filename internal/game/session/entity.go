// Package session tracks the players connected to a town and the outbound
// queue registered for each of them.
package session

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutboxClosed is returned by Push after the outbox was closed.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrSlowConsumer is returned by Push once a player's queue has overflowed.
	// The town disconnects such a player instead of skipping frames.
	ErrSlowConsumer = errors.New("slow consumer")
)

// Outbox is the bounded queue of encoded frames between the town event loop
// and one connection's writer goroutine.
//
// Once a push finds the queue full the outbox is overflowed: every later
// push fails with ErrSlowConsumer, so a reader never sees a stream with a
// hole in it.
type Outbox struct {
	playerID string
	frames   chan []byte

	mu         sync.Mutex
	closed     bool
	overflowed bool
	reason     error
}

// NewOutbox creates the outbox of playerID holding at most depth frames.
//
// Precondition: playerID must be non-empty.
// Postcondition: Returns an open, empty Outbox. depth <= 0 selects 64.
func NewOutbox(playerID string, depth int) *Outbox {
	if depth <= 0 {
		depth = 64
	}
	return &Outbox{
		playerID: playerID,
		frames:   make(chan []byte, depth),
	}
}

// PlayerID returns the owning player's ID.
func (o *Outbox) PlayerID() string {
	return o.playerID
}

// Push enqueues frame without blocking.
//
// Postcondition: Returns nil when queued, an error wrapping ErrOutboxClosed
// after Close, or an error wrapping ErrSlowConsumer when the queue is or has
// been full.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("player %s: %w", o.playerID, ErrOutboxClosed)
	}
	if o.overflowed {
		return fmt.Errorf("player %s: %w", o.playerID, ErrSlowConsumer)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		o.overflowed = true
		return fmt.Errorf("player %s: %d frames pending: %w", o.playerID, cap(o.frames), ErrSlowConsumer)
	}
}

// Overflowed reports whether a push has ever found the queue full.
func (o *Outbox) Overflowed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overflowed
}

// Frames returns the queue. The connection writer drains it until it is closed.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close closes the queue without a reason, as on a normal leave.
func (o *Outbox) Close() error {
	o.CloseWith(nil)
	return nil
}

// CloseWith closes the queue and records why the session ended. Frames
// already queued stay readable. Only the first close records its reason.
func (o *Outbox) CloseWith(reason error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}
	o.closed = true
	o.reason = reason
	close(o.frames)
}

// Reason returns the error passed to CloseWith, or nil.
func (o *Outbox) Reason() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reason
}

// IsClosed reports whether the outbox has been closed.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
