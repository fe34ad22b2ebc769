package core

import "github.com/google/uuid"

// NewID returns a random UUID string used for runs, messages and tool calls.
func NewID() string { return uuid.NewString() }
