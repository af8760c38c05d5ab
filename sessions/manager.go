package sessions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// Transport is the contract every connection topology is built on.
type Transport interface {
	// Open registers stream under a freshly allocated session id.
	Open(ctx context.Context, cred Credential, stream Stream) (*Session, error)
	// Push writes msg to the session's stream. It returns ErrSessionNotFound
	// for unknown ids and ErrStreamClosed when the session is closing or the
	// write fails. Push never retries.
	Push(ctx context.Context, sessionID string, msg []byte) error
	// Close tears the session down. It is idempotent.
	Close(ctx context.Context, sessionID string)
}

// IDAllocator produces session ids. Implementations must be collision
// resistant.
type IDAllocator func() string

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithIDAllocator overrides the default random UUID allocator.
func WithIDAllocator(alloc IDAllocator) ManagerOption {
	return func(m *Manager) {
		if alloc != nil {
			m.newID = alloc
		}
	}
}

// WithRegistry supplies the registry the manager operates on.
func WithRegistry(r *Registry) ManagerOption {
	return func(m *Manager) {
		if r != nil {
			m.reg = r
		}
	}
}

// Manager implements Transport on top of a Registry.
type Manager struct {
	reg   *Registry
	newID IDAllocator
	log   *slog.Logger
}

var _ Transport = (*Manager)(nil)

// NewManager constructs a Manager with its own Registry unless WithRegistry
// is given.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		newID: uuid.NewString,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.reg == nil {
		m.reg = NewRegistry(WithJobLogger(m.log))
	}
	return m
}

// Registry exposes the underlying registry.
func (m *Manager) Registry() *Registry { return m.reg }

// Open implements Transport.
func (m *Manager) Open(ctx context.Context, cred Credential, stream Stream) (*Session, error) {
	return m.OpenWithID(ctx, m.newID(), cred, stream)
}

// OpenWithID registers stream under a caller-chosen id. The direct pipe
// transport uses it for its single fixed-id session. A duplicate id is an
// invariant violation; it is logged and reported, never retried.
func (m *Manager) OpenWithID(ctx context.Context, id string, cred Credential, stream Stream) (*Session, error) {
	s, err := m.reg.Register(id, stream, cred)
	if err != nil {
		if errors.Is(err, ErrDuplicateSession) {
			m.log.ErrorContext(ctx, "session.open.duplicate", slog.String("session_id", id))
		} else {
			m.log.WarnContext(ctx, "session.open.fail", slog.String("err", err.Error()))
		}
		return nil, fmt.Errorf("open session: %w", err)
	}

	m.log.InfoContext(ctx, "session.open.ok", slog.String("session_id", id), slog.Int("live", m.reg.Len()))
	return s, nil
}

// Lookup returns the live session for id.
func (m *Manager) Lookup(id string) (*Session, bool) {
	return m.reg.Lookup(id)
}

// Push implements Transport.
func (m *Manager) Push(ctx context.Context, sessionID string, msg []byte) error {
	s, ok := m.reg.Lookup(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	return s.send(ctx, msg)
}

// Close implements Transport.
func (m *Manager) Close(ctx context.Context, sessionID string) {
	s, ok := m.reg.Lookup(sessionID)
	if !ok {
		return
	}
	m.closeSession(ctx, s)
}

func (m *Manager) closeSession(ctx context.Context, s *Session) {
	if !s.beginClose() {
		return
	}
	s.awaitWrites()
	m.reg.removeSession(s)
	s.markClosed()

	m.log.InfoContext(ctx, "session.close.ok", slog.String("session_id", s.id), slog.Int("live", m.reg.Len()))
}

// CloseAll closes every registered session. It is used on shutdown.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, s := range m.reg.Snapshot() {
		m.closeSession(ctx, s)
	}
}
