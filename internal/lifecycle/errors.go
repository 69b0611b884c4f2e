package lifecycle

import (
	"errors"
	"fmt"
)

// Kind classifies why a lifecycle operation was refused.
type Kind string

const (
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindStaleState       Kind = "STALE_STATE"
	KindValidationFailed Kind = "VALIDATION_FAILED"
	KindHasDependents    Kind = "HAS_DEPENDENTS"
	KindExpired          Kind = "EXPIRED"
	KindInvalidOrExpired Kind = "INVALID_OR_EXPIRED"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindInconsistent     Kind = "INCONSISTENT"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrStaleState       = &Error{Kind: KindStaleState}
	ErrValidationFailed = &Error{Kind: KindValidationFailed}
	ErrHasDependents    = &Error{Kind: KindHasDependents}
	ErrExpired          = &Error{Kind: KindExpired}
	ErrInvalidOrExpired = &Error{Kind: KindInvalidOrExpired}
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrConflict         = &Error{Kind: KindConflict}
	ErrInconsistent     = &Error{Kind: KindInconsistent}
)

// Error is a refused transition. Current is set for StaleState, Field for
// ValidationFailed.
type Error struct {
	Kind     Kind
	Entity   string
	EntityID string
	Current  string
	Field    string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Entity != "" {
		if e.EntityID != "" {
			msg = fmt.Sprintf("%s %s: %s", e.Entity, e.EntityID, msg)
		} else {
			msg = fmt.Sprintf("%s: %s", e.Entity, msg)
		}
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func unauthorized(entity, id, msg string) *Error {
	return &Error{Kind: KindUnauthorized, Entity: entity, EntityID: id, Message: msg}
}

func stale(entity, id, current string) *Error {
	return &Error{
		Kind:     KindStaleState,
		Entity:   entity,
		EntityID: id,
		Current:  current,
		Message:  "not allowed from state " + current,
	}
}

func invalid(field, msg string) *Error {
	return &Error{Kind: KindValidationFailed, Field: field, Message: msg}
}

func notFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Entity: entity, EntityID: id, Message: "not found"}
}

func conflict(entity, id, msg string) *Error {
	return &Error{Kind: KindConflict, Entity: entity, EntityID: id, Message: msg}
}

func hasDependents(entity, id string, n int) *Error {
	return &Error{
		Kind:     KindHasDependents,
		Entity:   entity,
		EntityID: id,
		Message:  fmt.Sprintf("%d active applications", n),
	}
}

// invalidOrExpired is the uniform refusal for invitation responses. When the
// cause was expiry the chain also carries ErrExpired for logging.
func invalidOrExpired(expired bool) *Error {
	e := &Error{Kind: KindInvalidOrExpired, Entity: "invitation", Message: "invalid or expired"}
	if expired {
		e.Err = &Error{Kind: KindExpired, Entity: "invitation", Message: "expired"}
	}
	return e
}
