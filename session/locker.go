package session

import (
	"fmt"
	"sync"

	"github.com/hupe1980/raaf/core"
)

// Locker grants exclusive, non-blocking ownership of a session id to one run
// at a time. A second TryLock on a held id fails immediately.
type Locker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLocker creates an empty Locker.
func NewLocker() *Locker {
	return &Locker{held: make(map[string]struct{})}
}

// TryLock acquires id or fails with core.ErrSessionLocked. The returned
// unlock function is idempotent.
func (l *Locker) TryLock(id string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[id]; busy {
		return nil, fmt.Errorf("%w: %s", core.ErrSessionLocked, id)
	}
	l.held[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, id)
			l.mu.Unlock()
		})
	}, nil
}

// Locked reports whether id is currently held.
func (l *Locker) Locked(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[id]
	return ok
}
