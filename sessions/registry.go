package sessions

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

// Registry maps session ids to live sessions. Operations on distinct ids
// contend only when the ids hash to the same shard. The Registry performs no
// stream I/O.
type Registry struct {
	shards [shardCount]registryShard

	maxPending int
	jobLog     *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithMaxPendingJobs caps each session's queued plus running jobs. Zero or
// less removes the cap. Defaults to DefaultMaxPendingJobs.
func WithMaxPendingJobs(n int) RegistryOption {
	return func(r *Registry) { r.maxPending = n }
}

// WithJobLogger sets the logger for panics recovered from session jobs.
func WithJobLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if l != nil {
			r.jobLog = l
		}
	}
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry returns an empty Registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{maxPending: DefaultMaxPendingJobs, jobLog: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	for i := range r.shards {
		r.shards[i].sessions = make(map[string]*Session)
	}
	return r
}

func (r *Registry) shard(id string) *registryShard {
	return &r.shards[xxhash.Sum64String(id)%shardCount]
}

// Register inserts a new Open session. It fails with ErrDuplicateSession if
// id is already live.
func (r *Registry) Register(id string, stream Stream, cred Credential) (*Session, error) {
	if id == "" || stream == nil {
		return nil, ErrInvalidSession
	}

	sh := r.shard(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.sessions[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	s := newSession(id, stream, cred, r.maxPending, r.jobLog)
	sh.sessions[id] = s
	return s, nil
}

// Lookup returns the live session for id. A miss is not an error.
func (r *Registry) Lookup(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	s, ok := sh.sessions[id]
	sh.mu.RUnlock()
	return s, ok
}

// CredentialFor returns the credential context of an Open session. Sessions
// that are closing are reported as absent.
func (r *Registry) CredentialFor(id string) (CredentialContext, bool) {
	s, ok := r.Lookup(id)
	if !ok || s.State() != StateOpen {
		return CredentialContext{}, false
	}
	return s.Credential(), true
}

// Remove deletes id. Removing an absent id is a no-op.
func (r *Registry) Remove(id string) {
	sh := r.shard(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// removeSession deletes s only if it is still the entry registered under its
// id.
func (r *Registry) removeSession(s *Session) {
	sh := r.shard(s.id)
	sh.mu.Lock()
	if cur, ok := sh.sessions[s.id]; ok && cur == s {
		delete(sh.sessions, s.id)
	}
	sh.mu.Unlock()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return n
}

// Snapshot returns the currently registered sessions in no particular order.
func (r *Registry) Snapshot() []*Session {
	var out []*Session
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.sessions {
			out = append(out, s)
		}
		sh.mu.RUnlock()
	}
	return out
}
