package errs

import (
	"errors"
	"fmt"
)

// Kind classifies where an error happened and how far it propagates.
type Kind string

const (
	// KindMapping is a malformed source record. Record level, skipped.
	KindMapping Kind = "MAPPING_ERROR"
	// KindUpsert is a destination write failure. Record level, skipped.
	KindUpsert Kind = "UPSERT_ERROR"
	// KindSourceOpen means a collection could not be enumerated at all.
	KindSourceOpen Kind = "SOURCE_OPEN_ERROR"
	// KindAlreadyRunning is lock contention. It aborts the attempt, not a run.
	KindAlreadyRunning Kind = "ALREADY_RUNNING"
	// KindOrphanedRunReclaimed is informational.
	KindOrphanedRunReclaimed Kind = "ORPHANED_RUN_RECLAIMED"
)

// Error is the typed error shared by every layer of the engine.
type Error struct {
	Kind    Kind
	Key     string // natural key or collection name, when known
	Message string
	Cause   error
}

func (e *Error) Error() string {
	prefix := string(e.Kind)
	if e.Key != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.Key)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is match on kind alone, e.g. errors.Is(err, ErrAlreadyRunning).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Key == "" && t.Message == ""
}

// ErrAlreadyRunning is the sentinel returned when the run lock is held.
var ErrAlreadyRunning = &Error{Kind: KindAlreadyRunning}

func New(kind Kind, key, message string, cause error) *Error {
	return &Error{Kind: kind, Key: key, Message: message, Cause: cause}
}

func NewMappingError(key, message string) *Error {
	return New(KindMapping, key, message, nil)
}

func NewUpsertError(key string, cause error) *Error {
	return New(KindUpsert, key, "destination upsert failed", cause)
}

func NewSourceOpenError(collection string, cause error) *Error {
	return New(KindSourceOpen, collection, "cannot enumerate source collection", cause)
}

func NewAlreadyRunning(message string) *Error {
	return New(KindAlreadyRunning, "", message, nil)
}

func NewOrphanedRunReclaimed(logID uint, message string) *Error {
	return New(KindOrphanedRunReclaimed, fmt.Sprintf("log:%d", logID), message, nil)
}

// IsKind reports whether any error in err's chain is an *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		if e.Kind == kind {
			return true
		}
		return e.Cause != nil && IsKind(e.Cause, kind)
	}
	return false
}
