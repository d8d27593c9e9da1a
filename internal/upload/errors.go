package upload

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSessionNotFound signals that the session is unknown to the registry.
	ErrSessionNotFound = errors.New("upload session not found")
	// ErrSessionNotActive is returned when a chunk arrives for a paused, cancelled or otherwise non-active session.
	ErrSessionNotActive = errors.New("upload session not active")
	// ErrSessionExpired signals that the session's TTL has elapsed.
	ErrSessionExpired = errors.New("upload session expired")
	// ErrInvalidTransition is returned for state changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid session state transition")
)

// ValidationError rejects bad input before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// SizeMismatchError reports a declared/actual byte count disagreement.
// Index is -1 when the mismatch concerns the assembled object.
type SizeMismatchError struct {
	Index    int
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("assembled object size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("chunk %d size mismatch: expected %d bytes, got %d", e.Index, e.Expected, e.Actual)
}

// HashMismatchError reports a declared/computed content hash disagreement.
// Index is -1 when the mismatch concerns the assembled object.
type HashMismatchError struct {
	Index    int
	Expected string
	Actual   string
}

func (e *HashMismatchError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("assembled object hash mismatch: expected %s, got %s", e.Expected, e.Actual)
	}
	return fmt.Sprintf("chunk %d hash mismatch: expected %s, got %s", e.Index, e.Expected, e.Actual)
}

// RetryableError tells the caller to retry the same chunk after the hinted delay.
type RetryableError struct {
	Index      int
	Attempt    int
	RetryAfter time.Duration
	Err        error
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("chunk %d attempt %d: %v (retry in %s)", e.Index, e.Attempt, e.Err, e.RetryAfter)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// TerminalError marks the session failed; a new session is required to proceed.
// Stage is one of "chunk", "reassembly" or "finalize"; Index is -1 when not chunk-scoped.
type TerminalError struct {
	Stage string
	Index int
	Err   error
}

func (e *TerminalError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("upload failed during %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("upload failed during %s at chunk %d: %v", e.Stage, e.Index, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }
