package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/raaf/core"
)

// Options configure the in-memory store.
type Options struct {
	// TTL is the idle lifetime of a session, refreshed by Create and Save.
	// Zero keeps sessions until deleted.
	TTL time.Duration
	// Now is the clock; tests replace it.
	Now func() time.Time
}

// InMemoryStore is a volatile SessionStore implementation storing
// sessions in a process local map. It is safe for concurrent access and best
// suited for tests or single-process servers. Each returned session is cloned
// to prevent external mutation of internal state.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*core.Session
	opts     Options
}

// NewInMemoryStore constructs an empty in‑memory session store.
func NewInMemoryStore(optFns ...func(o *Options)) *InMemoryStore {
	opts := Options{Now: time.Now}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &InMemoryStore{sessions: make(map[string]*core.Session), opts: opts}
}

// Create forces the creation (or overwriting) of a session with the given id.
func (s *InMemoryStore) Create(_ context.Context, sessionID string) (*core.Session, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: empty session id", core.ErrInvalidArgument)
	}
	sess := core.NewSession(sessionID)
	sess.Touch(s.opts.Now(), s.opts.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sessionID] = sess
	return sess.Clone(), nil
}

// Get returns a clone of a live session. Unknown and expired sessions yield
// core.ErrSessionNotFound; expired ones are evicted on the way.
func (s *InMemoryStore) Get(_ context.Context, sessionID string) (*core.Session, error) {
	now := s.opts.Now()

	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionNotFound, sessionID)
	}
	if sess.Expired(now) {
		s.mu.Lock()
		if cur, ok := s.sessions[sessionID]; ok && cur == sess {
			delete(s.sessions, sessionID)
		}
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s (expired)", core.ErrSessionNotFound, sessionID)
	}
	return sess.Clone(), nil
}

// Save stores a clone of the provided session snapshot and refreshes its TTL.
func (s *InMemoryStore) Save(_ context.Context, sess *core.Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: session without id", core.ErrInvalidArgument)
	}
	sess.Touch(s.opts.Now(), s.opts.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess.Clone()
	return nil
}

// Delete removes a session. Deleting an unknown session is not an error.
func (s *InMemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// PurgeExpired evicts every expired session and returns how many were removed.
func (s *InMemoryStore) PurgeExpired(context.Context) (int64, error) {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions, expired ones included until purged.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

var (
	_ core.SessionStore = (*InMemoryStore)(nil)
	_ Purger            = (*InMemoryStore)(nil)
)
