// Package apperr defines the failure taxonomy shared by the layer composition core and the
// HTTP surface. Every error carries the component and operation that raised it, and for
// composition failures the stage that was running, so a response can be traced back to its
// origin without parsing messages.
package apperr

import (
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindComposition
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidation:
		return "validation_failed"
	case KindComposition:
		return "composition_failed"
	case KindStorage:
		return "storage_failed"
	default:
		return "internal_error"
	}
}

// Error is a tagged failure. Err holds the cause and keeps its stack when it came from
// pkg/errors.
type Error struct {
	Kind      Kind
	Component string
	Op        string
	Stage     string
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Component)
	if e.Op != "" {
		b.WriteString(".")
		b.WriteString(e.Op)
	}
	if e.Stage != "" {
		b.WriteString("[")
		b.WriteString(e.Stage)
		b.WriteString("]")
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, component, op string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Op: op, Err: cause}
}

func NotFound(component, op, format string, args ...any) error {
	return newError(KindNotFound, component, op, errors.Errorf(format, args...))
}

func Validation(component, op, format string, args ...any) error {
	return newError(KindValidation, component, op, errors.Errorf(format, args...))
}

func Composition(component, op string, cause error) error {
	return newError(KindComposition, component, op, errors.WithStack(cause))
}

func Storage(component, op string, cause error) error {
	return newError(KindStorage, component, op, errors.WithStack(cause))
}

// FromStorage classifies an error returned by a single-row lookup: pgx.ErrNoRows becomes
// NotFound, anything else a storage failure.
func FromStorage(component, op string, err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return newError(KindNotFound, component, op, errors.Wrap(err, what+" not found"))
	}
	return Storage(component, op, errors.Wrap(err, "load "+what))
}

// Wrap retags err with the caller's component, operation and stage while keeping the
// innermost kind. Untagged errors take fallback.
func Wrap(err error, fallback Kind, component, op, stage string) error {
	if err == nil {
		return nil
	}
	kind := fallback
	if k := KindOf(err); k != KindUnknown {
		kind = k
	}
	return &Error{Kind: kind, Component: component, Op: op, Stage: stage, Err: err}
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Origin returns the outermost tag on err.
func Origin(err error) (component, op, stage string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Component, e.Op, e.Stage
	}
	return "", "", ""
}

func StatusCode(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Code is the machine-readable error code written to clients.
func Code(err error) string {
	return KindOf(err).String()
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
