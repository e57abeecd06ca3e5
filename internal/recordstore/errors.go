package recordstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kalambet/jobtrack/internal/application"
	"github.com/kalambet/jobtrack/internal/storage"
)

// ErrUnauthenticated is returned when an operation is attempted without a principal.
var ErrUnauthenticated = errors.New("unauthenticated")

// ValidationError wraps the field errors that blocked a create or update.
type ValidationError struct {
	Fields application.FieldErrors
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Fields.Error()
}

func (e *ValidationError) Unwrap() error { return e.Fields }

// Kind classifies a StoreError.
type Kind string

const (
	NotFound         Kind = "NOT_FOUND"
	PermissionDenied Kind = "PERMISSION_DENIED"
	AlreadyExists    Kind = "ALREADY_EXISTS"
	Unknown          Kind = "UNKNOWN"
)

// StoreError is a failure reported by the persistence layer.
type StoreError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// KindOf returns the StoreError kind of err, or "" if err is not a StoreError.
func KindOf(err error) Kind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsNotFound reports whether err is a NOT_FOUND store error.
func IsNotFound(err error) bool { return KindOf(err) == NotFound }

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	kind := Unknown
	switch {
	case errors.Is(err, storage.ErrNotFound):
		kind = NotFound
	case errors.Is(err, storage.ErrAlreadyExists):
		kind = AlreadyExists
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case strings.Contains(err.Error(), "readonly database"):
		kind = PermissionDenied
	}
	return &StoreError{Kind: kind, Op: op, Err: err}
}
