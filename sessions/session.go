package sessions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Session is one live transport connection.
type Session struct {
	id     string
	cred   CredentialContext
	stream Stream
	state  atomic.Int32

	writeMu sync.Mutex
	queue   serialQueue
}

func newSession(id string, stream Stream, cred Credential, maxPending int, log *slog.Logger) *Session {
	s := &Session{
		id:     id,
		cred:   CredentialContext{SessionID: id, Credential: cred},
		stream: stream,
	}
	s.queue.limit = maxPending
	s.queue.log = log.With(slog.String("session_id", id))
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Credential returns the credential context bound at open time.
func (s *Session) Credential() CredentialContext { return s.cred }

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Enqueue appends job to the session's FIFO work queue. Jobs for one session
// run one at a time in submission order on a goroutine that exists only while
// the queue is non-empty. It returns ErrQueueFull, without queueing, when the
// session is at its pending-job limit. A panicking job is logged and does not
// stop the jobs behind it.
func (s *Session) Enqueue(job func()) error {
	return s.queue.push(job)
}

// Drain blocks until every job enqueued so far has finished.
func (s *Session) Drain() {
	s.queue.wait()
}

func (s *Session) send(ctx context.Context, msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.State() != StateOpen {
		return ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.stream.Send(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamClosed, err)
	}
	return nil
}

// beginClose moves the session to Closing. Only the first caller wins.
func (s *Session) beginClose() bool {
	return s.state.CompareAndSwap(int32(StateOpen), int32(StateClosing))
}

// awaitWrites waits for an in-flight Send to return. Later sends observe the
// Closing state and fail without touching the stream.
func (s *Session) awaitWrites() {
	s.writeMu.Lock()
	s.writeMu.Unlock()
}

func (s *Session) markClosed() {
	s.state.Store(int32(StateClosed))
}
