package domain

import "fmt"

// AttemptStatus is the lifecycle state of an attempt.
type AttemptStatus string

const (
	StatusInProgress AttemptStatus = "in_progress"
	StatusCompleted  AttemptStatus = "completed"
	StatusExpired    AttemptStatus = "expired"
	StatusAbandoned  AttemptStatus = "abandoned"
)

// Terminal reports whether no further transition is allowed.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusExpired, StatusAbandoned:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s AttemptStatus) Valid() bool {
	return s == StatusInProgress || s.Terminal()
}

// CanTransition reports whether an attempt in status s may move to next.
// Only in_progress -> {completed, expired, abandoned} is permitted.
func (s AttemptStatus) CanTransition(next AttemptStatus) bool {
	switch s {
	case StatusInProgress:
		return next.Terminal()
	case StatusCompleted, StatusExpired, StatusAbandoned:
		return false
	default:
		return false
	}
}

// Transition returns next or ErrInvalidTransition.
func (s AttemptStatus) Transition(next AttemptStatus) (AttemptStatus, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, next)
	}
	return next, nil
}
