// README: Error taxonomy shared by the merge engine and its adapters.
package apperr

import (
	"errors"
	"fmt"

	"tripmerge/internal/types"
)

// Kinds. Match with errors.Is.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrStateConflict   = errors.New("state conflict")
	ErrExternalService = errors.New("external service error")
	ErrPersistence     = errors.New("persistence error")
)

// Error carries the kind, the failing operation and the offending booking id.
type Error struct {
	Kind error
	Op   string
	ID   types.ID
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id=%s)", msg, e.ID)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func Validation(op, msg string) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: msg}
}

func NotFound(op string, id types.ID, msg string) error {
	return &Error{Kind: ErrNotFound, Op: op, ID: id, Msg: msg}
}

func Conflict(op string, id types.ID, msg string) error {
	return &Error{Kind: ErrStateConflict, Op: op, ID: id, Msg: msg}
}

func External(op string, err error) error {
	return &Error{Kind: ErrExternalService, Op: op, Err: err}
}

// Persistence wraps a storage failure unless it already carries a kind.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	return &Error{Kind: ErrPersistence, Op: op, Err: err}
}

// KindOf returns the kind sentinel carried by err, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrNotFound, ErrStateConflict, ErrExternalService, ErrPersistence} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// KindName is the wire name used in response envelopes.
func KindName(err error) string {
	switch KindOf(err) {
	case ErrValidation:
		return "validation_error"
	case ErrNotFound:
		return "not_found"
	case ErrStateConflict:
		return "state_conflict"
	case ErrExternalService:
		return "external_service_error"
	case ErrPersistence:
		return "persistence_error"
	default:
		return "internal_error"
	}
}
