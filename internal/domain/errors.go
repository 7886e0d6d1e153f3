package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrActivityNotFound is returned when an activity cannot be located.
	ErrActivityNotFound = errors.New("activity not found")
	// ErrUserNotFound is returned when a user cannot be located.
	ErrUserNotFound = errors.New("user not found")
	// ErrCommentNotFound is returned when a comment cannot be located.
	ErrCommentNotFound = errors.New("comment not found")
	// ErrAlreadyRegistered indicates the user already holds a participant
	// record for the activity. Safe to treat as non-fatal.
	ErrAlreadyRegistered = errors.New("user already registered for activity")
	// ErrCapacityExceeded indicates the activity's participant ceiling is
	// reached. Not retryable unless the ceiling changes.
	ErrCapacityExceeded = errors.New("activity participant limit reached")
	// ErrNotRegistered indicates a check-in was attempted without a prior
	// registration.
	ErrNotRegistered = errors.New("user not registered for activity")
	// ErrAlreadyCheckedIn indicates the user has already checked in.
	ErrAlreadyCheckedIn = errors.New("user already checked in")
	// ErrNotCommentAuthor indicates a delete attempt by someone other than
	// the comment's author.
	ErrNotCommentAuthor = errors.New("only the comment author may delete it")
)

// ValidationError reports missing or malformed caller input. Nothing is
// written when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func missingField(field string) *ValidationError {
	return &ValidationError{Field: field, Reason: "required"}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// TransientError wraps storage contention, timeouts, and connectivity
// failures. The operation left no partial state and may be retried with
// identical input.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient storage failure: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
