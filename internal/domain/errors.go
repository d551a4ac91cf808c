package domain

import "errors"

var (
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuizUnavailable is returned when a quiz is missing, inactive or empty.
	ErrQuizUnavailable = errors.New("quiz unavailable")
	// ErrAttemptsExhausted is returned when the participant used up the attempt quota.
	ErrAttemptsExhausted = errors.New("no attempts left for this quiz")
	// ErrNoActiveSession is returned when a participant acts without a live session.
	ErrNoActiveSession = errors.New("no active quiz session")
	// ErrStaleAnswer indicates the submitted question is not the current one.
	ErrStaleAnswer = errors.New("answer does not match the current question")
	// ErrInvalidTransition is returned for an attempt status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid attempt status transition")
	// ErrAttemptFinalized is returned when storage refuses to update a terminal attempt.
	ErrAttemptFinalized = errors.New("attempt already finalized")
	// ErrUserNotFound indicates the participant is not registered.
	ErrUserNotFound = errors.New("user not found")
)
