// Package sessiontest provides a recording Stream and a reusable conformance
// suite for sessions.Transport implementations.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInjected is returned by a RecordingStream after Fail is called.
var ErrInjected = errors.New("sessiontest: injected stream failure")

// RecordingStream is a sessions.Stream that records every delivered message.
type RecordingStream struct {
	mu       sync.Mutex
	msgs     [][]byte
	failing  bool
	gate     chan struct{}
	entered  chan struct{}
	notifyCh chan struct{}
	inFlight int
	maxConc  int
}

// NewRecordingStream returns an empty recording stream.
func NewRecordingStream() *RecordingStream {
	return &RecordingStream{notifyCh: make(chan struct{}, 1)}
}

// Send implements sessions.Stream.
func (r *RecordingStream) Send(ctx context.Context, msg []byte) error {
	r.mu.Lock()
	r.inFlight++
	if r.inFlight > r.maxConc {
		r.maxConc = r.inFlight
	}
	gate, entered := r.gate, r.entered
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inFlight--
		r.mu.Unlock()
	}()

	if gate != nil {
		if entered != nil {
			select {
			case entered <- struct{}{}:
			default:
			}
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return ErrInjected
	}
	r.msgs = append(r.msgs, append([]byte(nil), msg...))
	select {
	case r.notifyCh <- struct{}{}:
	default:
	}
	return nil
}

// Fail makes every subsequent Send return ErrInjected.
func (r *RecordingStream) Fail() {
	r.mu.Lock()
	r.failing = true
	r.mu.Unlock()
}

// Block makes subsequent Sends wait until the returned release function is
// called. The entered channel receives a value when a Send starts waiting.
func (r *RecordingStream) Block() (entered <-chan struct{}, release func()) {
	gate := make(chan struct{})
	ent := make(chan struct{}, 1)
	r.mu.Lock()
	r.gate = gate
	r.entered = ent
	r.mu.Unlock()

	var once sync.Once
	return ent, func() {
		once.Do(func() {
			r.mu.Lock()
			r.gate = nil
			r.entered = nil
			r.mu.Unlock()
			close(gate)
		})
	}
}

// Messages returns a copy of every message delivered so far.
func (r *RecordingStream) Messages() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]byte, len(r.msgs))
	copy(out, r.msgs)
	return out
}

// MaxConcurrentSends reports the highest number of overlapping Send calls.
func (r *RecordingStream) MaxConcurrentSends() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxConc
}

// WaitForMessages blocks until at least n messages were delivered or the
// timeout elapses. It returns the messages observed.
func (r *RecordingStream) WaitForMessages(n int, timeout time.Duration) [][]byte {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		msgs := r.Messages()
		if len(msgs) >= n {
			return msgs
		}
		select {
		case <-r.notifyCh:
		case <-deadline.C:
			return r.Messages()
		}
	}
}
