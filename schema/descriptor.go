package schema

import (
	"errors"
	"fmt"

	"github.com/syssam/relq/schema/edge"
)

// RelationKind is the join shape of a resolved relation.
type RelationKind uint8

// Relation kinds.
const (
	OneToOne RelationKind = iota + 1
	OneToMany
	ManyToMany
)

// String returns the name of the kind.
func (k RelationKind) String() string {
	switch k {
	case OneToOne:
		return "OneToOne"
	case OneToMany:
		return "OneToMany"
	case ManyToMany:
		return "ManyToMany"
	default:
		return "Unknown"
	}
}

// Descriptor is a relation resolved to concrete tables and keys.
//
// For OneToOne and OneToMany relations the related rows are those where
// RelatedTable.ForeignKey equals Table.LocalKey. BelongsTo edges resolve
// to OneToOne with ForeignKey being the related key and LocalKey the
// referencing column, so the same rule covers both directions.
//
// For ManyToMany relations PivotTable.PivotForeignKey equals
// Table.LocalKey, and RelatedTable.RelatedPrimaryKey equals
// PivotTable.PivotRelatedKey.
type Descriptor struct {
	Name              string
	Kind              RelationKind
	Edge              edge.Kind
	Table             string
	RelatedEntity     string
	RelatedTable      string
	RelatedPrimaryKey string
	ForeignKey        string
	LocalKey          string
	PivotTable        string
	PivotForeignKey   string
	PivotRelatedKey   string
}

// Single reports whether the relation holds at most one record.
func (d *Descriptor) Single() bool {
	return d.Kind == OneToOne
}

// MatchKey returns the column of the related rows, or of the pivot rows
// for ManyToMany, that holds the value of LocalKey.
func (d *Descriptor) MatchKey() string {
	if d.Kind == ManyToMany {
		return d.PivotForeignKey
	}
	return d.ForeignKey
}

// NotFoundError is returned when an entity or a relation is not
// registered.
type NotFoundError struct {
	Entity   string
	Relation string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	if e.Relation != "" {
		return fmt.Sprintf("schema: relation %q not found on entity %q", e.Relation, e.Entity)
	}
	return fmt.Sprintf("schema: entity %q not found", e.Entity)
}

// IsNotFound reports whether err is a *NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
