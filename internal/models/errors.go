package models

import (
	"errors"
	"fmt"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrPermission       = errors.New("permission denied")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrMediaIO          = errors.New("media i/o failed")
)

// Error carries an error kind plus the operation that failed and the underlying cause
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// Validation returns a validation error for op
func Validation(op, format string, args ...interface{}) error {
	return &Error{Kind: ErrValidation, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// NotFound returns a not-found error naming what was missing
func NotFound(op, what string) error {
	return &Error{Kind: ErrNotFound, Op: op, Msg: what + " not found"}
}

// Permission returns a permission error for op
func Permission(op, msg string) error {
	return &Error{Kind: ErrPermission, Op: op, Msg: msg}
}

// StoreUnavailable wraps a transient store failure
func StoreUnavailable(op string, err error) error {
	return &Error{Kind: ErrStoreUnavailable, Op: op, Err: err}
}

// MediaIO wraps a media collaborator failure
func MediaIO(op string, err error) error {
	return &Error{Kind: ErrMediaIO, Op: op, Err: err}
}

// KindOf returns the error kind of err, or nil if err carries none
func KindOf(err error) error {
	for _, kind := range []error{ErrValidation, ErrNotFound, ErrPermission, ErrStoreUnavailable, ErrMediaIO} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
