package consultation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"ophtha-dss/internal/decisiontree"
)

// Kind classifies a failure so callers can decide how to react.
type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidAnswer     Kind = "INVALID_ANSWER"
	KindInvalidTransition Kind = "INVALID_TRANSITION"
	KindInvalidState      Kind = "INVALID_STATE"
	KindMissingDiagnosis  Kind = "MISSING_DIAGNOSIS"
	// The stored path no longer resolves in the running tree.
	KindInconsistentState Kind = "INCONSISTENT_STATE"
	// Optimistic version check or live-session uniqueness failed.
	KindConflict    Kind = "CONFLICT"
	KindPersistence Kind = "PERSISTENCE"
)

// Sentinels for errors.Is. They match any *Error of the same kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidAnswer     = &Error{Kind: KindInvalidAnswer}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition}
	ErrInvalidState      = &Error{Kind: KindInvalidState}
	ErrMissingDiagnosis  = &Error{Kind: KindMissingDiagnosis}
	ErrInconsistentState = &Error{Kind: KindInconsistentState}
	ErrConflict          = &Error{Kind: KindConflict}
	ErrPersistence       = &Error{Kind: KindPersistence}
)

// Error carries the kind of failure plus the context needed to log it.
type Error struct {
	Kind           Kind
	Op             string
	ConsultationID uuid.UUID
	Status         Status
	Path           decisiontree.Path
	Answer         string
	Message        string
	Err            error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		fmt.Fprintf(&b, " %s", e.Op)
	}
	if e.ConsultationID != uuid.Nil {
		fmt.Fprintf(&b, " consultation=%s", e.ConsultationID)
	}
	if e.Status != "" {
		fmt.Fprintf(&b, " status=%s", e.Status)
	}
	if e.Path != nil {
		fmt.Fprintf(&b, " path=%s", e.Path)
	}
	if e.Answer != "" {
		fmt.Fprintf(&b, " answer=%q", e.Answer)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func notFound(op string, id uuid.UUID) *Error {
	return &Error{Kind: KindNotFound, Op: op, ConsultationID: id, Message: "consultation not found"}
}

func persistence(op string, id uuid.UUID, err error) *Error {
	return &Error{Kind: KindPersistence, Op: op, ConsultationID: id, Err: err}
}

func conflict(op string, id uuid.UUID, msg string) *Error {
	return &Error{Kind: KindConflict, Op: op, ConsultationID: id, Message: msg}
}
