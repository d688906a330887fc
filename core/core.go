package core

import "github.com/google/uuid"

// NewID generates a unique identifier used for threads, runs and messages.
func NewID() string { return uuid.NewString() }
