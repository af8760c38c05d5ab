package sessions

import "errors"

var (
	// ErrDuplicateSession is returned by Register when the id is already live.
	ErrDuplicateSession = errors.New("sessions: duplicate session id")
	// ErrSessionNotFound is returned when no live session has the given id.
	ErrSessionNotFound = errors.New("sessions: session not found")
	// ErrStreamClosed is returned when a session is closing or its stream
	// write failed.
	ErrStreamClosed = errors.New("sessions: stream closed")
	// ErrInvalidSession is returned when Register receives an empty id or a
	// nil stream.
	ErrInvalidSession = errors.New("sessions: invalid session")
	// ErrQueueFull is returned by Enqueue when the session already has its
	// maximum number of pending jobs.
	ErrQueueFull = errors.New("sessions: too many pending jobs")
)
