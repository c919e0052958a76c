package relq

import (
	"context"
	"errors"

	"github.com/syssam/relq/dialect/sql"
)

// Policy decisions that permit the operation. A policy returns them, or
// errors wrapping them, like nil. The privacy package exports them as
// privacy.Allow and privacy.Skip.
var (
	PolicyAllow = errors.New("privacy: allow rule")
	PolicySkip  = errors.New("privacy: skip rule")
)

// permitted maps the decision of a policy to the error of the operation.
func permitted(decision error) error {
	if errors.Is(decision, PolicyAllow) || errors.Is(decision, PolicySkip) {
		return nil
	}
	return decision
}

// Op is the operation of a Mutation.
type Op uint

// Mutation operations.
const (
	OpCreate Op = 1 << iota
	OpUpdate
	OpDelete
)

// Is reports whether o matches any of the operations in op.
func (o Op) Is(op Op) bool { return o&op != 0 }

// String returns the name of the operation.
func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Mutation describes a write a Policy is asked about.
type Mutation struct {
	Op     Op
	Entity string
	Table  string
	// Values holds the columns set by a create or an update.
	Values sql.Row
	// Query selects the rows of an update or a delete. Rules may narrow
	// it; it is nil for creates.
	Query *Query
}

// Field returns the value set on column by the mutation.
func (m *Mutation) Field(column string) (any, bool) {
	v, ok := m.Values[column]
	return v, ok
}

// Policy decides whether the queries and mutations of an entity may run.
// A nil result, PolicyAllow or PolicySkip allows the operation and any
// other error rejects it. Query
// evaluation receives a copy of the query that rules may narrow with
// additional conditions.
//
// Policies guard the terminal operations of Query. Relations loaded
// with With are not evaluated.
type Policy interface {
	EvalQuery(context.Context, *Query) error
	EvalMutation(context.Context, *Mutation) error
}

// WithPolicy sets the policy of an entity.
func WithPolicy(entity string, p Policy) Option {
	return func(c *Client) {
		if c.policies == nil {
			c.policies = make(map[string]Policy)
		}
		c.policies[entity] = p
	}
}

// authorize evaluates the query policy of the entity on a copy of q and
// returns the copy to run. On rejection q itself is returned.
func (q *Query) authorize(ctx context.Context) (*Query, error) {
	p := q.client.policies[q.entity]
	if p == nil {
		return q, nil
	}
	c := q.Clone()
	if err := permitted(p.EvalQuery(ctx, c)); err != nil {
		return q, err
	}
	return c, nil
}

// authorizeMutation evaluates the mutation policy of the entity. Updates
// and deletes run through the returned query. On rejection q itself is
// returned.
func (q *Query) authorizeMutation(ctx context.Context, op Op, values sql.Row) (*Query, error) {
	p := q.client.policies[q.entity]
	if p == nil {
		return q, nil
	}
	m := &Mutation{Op: op, Entity: q.entity, Table: q.table(), Values: values}
	if op != OpCreate {
		m.Query = q.Clone()
	}
	if err := permitted(p.EvalMutation(ctx, m)); err != nil {
		return q, err
	}
	if m.Query == nil {
		return q, nil
	}
	return m.Query, nil
}
