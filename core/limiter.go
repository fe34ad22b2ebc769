package core

import (
	"fmt"
	"sync"
)

// TurnLimiter enforces the maximum number of provider calls (turns) a run
// may make.
type TurnLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewTurnLimiter creates a limiter allowing max turns. max <= 0 means unlimited.
func NewTurnLimiter(max int) *TurnLimiter {
	return &TurnLimiter{max: max}
}

// Next claims the next turn. It fails with ErrTurnLimitExceeded once every
// turn has been used.
func (l *TurnLimiter) Next() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max > 0 && l.count >= l.max {
		return l.count, fmt.Errorf("%w: max_turns=%d", ErrTurnLimitExceeded, l.max)
	}
	l.count++

	return l.count, nil
}

// Count returns the number of turns claimed so far.
func (l *TurnLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.count
}

// Remaining returns how many turns are left, or -1 when unlimited.
func (l *TurnLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.max <= 0 {
		return -1
	}

	return l.max - l.count
}

// Exhausted reports whether no turns are left.
func (l *TurnLimiter) Exhausted() bool { return l.Remaining() == 0 }
