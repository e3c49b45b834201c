// Package apperr defines the failure kinds surfaced to users. Every failure of
// an external call (LLM, identity provider, store) is converted into one of
// these kinds at the adapter boundary.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

type Kind string

const (
	KindGeneration  Kind = "generation"
	KindAuth        Kind = "auth"
	KindPersistence Kind = "persistence"
	KindValidation  Kind = "validation"
)

var (
	ErrGeneration  = errors.New("generation failed")
	ErrAuth        = errors.New("authentication failed")
	ErrPersistence = errors.New("persistence failed")
	ErrValidation  = errors.New("invalid input")
)

// Error carries the kind and the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.sentinel())
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.sentinel(), e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	return target == e.sentinel()
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindGeneration:
		return ErrGeneration
	case KindAuth:
		return ErrAuth
	case KindPersistence:
		return ErrPersistence
	case KindValidation:
		return ErrValidation
	}
	return nil
}

func Generation(op string, err error) error  { return wrap(KindGeneration, op, err) }
func Auth(op string, err error) error        { return wrap(KindAuth, op, err) }
func Persistence(op string, err error) error { return wrap(KindPersistence, op, err) }
func Validation(op string, err error) error  { return wrap(KindValidation, op, err) }

// wrap keeps an existing kind when err already carries one.
func wrap(kind Kind, op string, err error) error {
	var existing *Error
	if errors.As(err, &existing) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind carried by err, or "" for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FieldErrors maps form field names to messages.
type FieldErrors map[string]string

func (f FieldErrors) Error() string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+f[k])
	}
	return strings.Join(parts, "; ")
}

// Fields extracts field errors from err, if any.
func Fields(err error) FieldErrors {
	var f FieldErrors
	if errors.As(err, &f) {
		return f
	}
	return nil
}
