package relq

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinels matched by the typed errors below:
//
//	if errors.Is(err, relq.ErrNotFound) { ... }
var (
	ErrNotFound    = errors.New("relq: record not found")
	ErrNotSingular = errors.New("relq: record not singular")
	ErrCycle       = errors.New("relq: cycle detected")
)

// as reports whether err has an error of type T in its chain.
func as[T error](err error) bool {
	var e T
	return err != nil && errors.As(err, &e)
}

// NotFoundError is returned by First, Find and the other single-record
// terminals when nothing matches.
type NotFoundError struct {
	label string
	id    any
}

// NewNotFoundError returns a NotFoundError for the entity label.
func NewNotFoundError(label string) *NotFoundError {
	return &NotFoundError{label: label}
}

// NewNotFoundErrorWithID returns a NotFoundError for the lookup of id.
func NewNotFoundErrorWithID(label string, id any) *NotFoundError {
	return &NotFoundError{label: label, id: id}
}

func (e *NotFoundError) Error() string {
	msg := "relq: " + e.label + " not found"
	if e.id != nil {
		msg += fmt.Sprintf(" (id=%v)", e.id)
	}
	return msg
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// Label returns the entity name.
func (e *NotFoundError) Label() string { return e.label }

// ID returns the looked up identifier, or nil.
func (e *NotFoundError) ID() any { return e.id }

// IsNotFound reports whether err is, or wraps, a NotFoundError or
// ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// NotSingularError is returned by Only when the query matches more than
// one record.
type NotSingularError struct {
	label string
	count int
}

// NewNotSingularError returns a NotSingularError with an unknown count.
func NewNotSingularError(label string) *NotSingularError {
	return &NotSingularError{label: label, count: -1}
}

// NewNotSingularErrorWithCount returns a NotSingularError for count
// matched records.
func NewNotSingularErrorWithCount(label string, count int) *NotSingularError {
	return &NotSingularError{label: label, count: count}
}

func (e *NotSingularError) Error() string {
	if e.count < 0 {
		return "relq: " + e.label + " not singular"
	}
	return fmt.Sprintf("relq: %s not singular (got %d results, expected 1)", e.label, e.count)
}

func (e *NotSingularError) Is(target error) bool { return target == ErrNotSingular }

// Count returns the number of matched records, -1 when unknown.
func (e *NotSingularError) Count() int { return e.count }

// IsNotSingular reports whether err is, or wraps, a NotSingularError or
// ErrNotSingular.
func IsNotSingular(err error) bool {
	return errors.Is(err, ErrNotSingular)
}

// NotLoadedError is returned when reading a relation that was not eager
// loaded on the record.
type NotLoadedError struct {
	relation string
}

// NewNotLoadedError returns a NotLoadedError for relation.
func NewNotLoadedError(relation string) *NotLoadedError {
	return &NotLoadedError{relation: relation}
}

func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("relq: relation %q was not loaded", e.relation)
}

// Relation returns the relation name.
func (e *NotLoadedError) Relation() string { return e.relation }

// IsNotLoaded reports whether err wraps a NotLoadedError.
func IsNotLoaded(err error) bool { return as[*NotLoadedError](err) }

// CycleError is returned when a self-referential hierarchy loops back on
// itself. ID is the identifier seen twice and Path the identifiers walked
// before reaching it again.
type CycleError struct {
	ID   any
	Path []any
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("relq: cycle detected at id %v", e.ID)
	}
	var walk strings.Builder
	for _, id := range e.Path {
		fmt.Fprintf(&walk, "%v -> ", id)
	}
	return fmt.Sprintf("relq: cycle detected at id %v (%s%v)", e.ID, walk.String(), e.ID)
}

func (e *CycleError) Is(target error) bool { return target == ErrCycle }

// IsCycle reports whether err wraps a CycleError.
func IsCycle(err error) bool { return as[*CycleError](err) }

// QueryError is a failed read of Entity. Op is the terminal that failed,
// such as select, count or load.
type QueryError struct {
	Entity string
	Op     string
	Err    error
}

// NewQueryError returns a QueryError.
func NewQueryError(entity, op string, err error) *QueryError {
	return &QueryError{Entity: entity, Op: op, Err: err}
}

func (e *QueryError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("relq: querying %s: %v", e.Entity, e.Err)
	}
	return fmt.Sprintf("relq: querying %s (%s): %v", e.Entity, e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// IsQueryError reports whether err wraps a QueryError.
func IsQueryError(err error) bool { return as[*QueryError](err) }

// MutationError is a failed create, update or delete of Entity.
type MutationError struct {
	Entity string
	Op     string
	Err    error
}

// NewMutationError returns a MutationError.
func NewMutationError(entity, op string, err error) *MutationError {
	return &MutationError{Entity: entity, Op: op, Err: err}
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("relq: %s %s: %v", e.Op, e.Entity, e.Err)
}

func (e *MutationError) Unwrap() error { return e.Err }

// IsMutationError reports whether err wraps a MutationError.
func IsMutationError(err error) bool { return as[*MutationError](err) }

// wrapQuery wraps err in a QueryError unless it is nil or already a
// NotFoundError or NotSingularError, which carry their own context.
func wrapQuery(entity, op string, err error) error {
	if err == nil || IsNotFound(err) || IsNotSingular(err) {
		return err
	}
	return NewQueryError(entity, op, err)
}
