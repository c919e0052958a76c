package sql

import (
	"reflect"
	"strings"
)

// Conj is the boolean connector placed before a condition.
type Conj string

// Connectors.
const (
	And Conj = "AND"
	Or  Conj = "OR"
)

// Condition is a WHERE predicate. It is either a *Simple comparison or a
// *Special raw, nested or EXISTS condition.
type Condition interface {
	// Conj returns the connector emitted before the condition, unless the
	// condition is the first one rendered in its group.
	Conj() Conj
	condition()
}

// Simple compares a column expression against a value.
//
// IS NULL and IS NOT NULL take no value, BETWEEN reads its upper bound
// from Extra, IN and NOT IN take a slice of values.
type Simple struct {
	Boolean  Conj
	Column   string
	Operator string
	Value    any
	Extra    any
}

// Conj implements Condition.
func (s *Simple) Conj() Conj { return s.Boolean }
func (*Simple) condition()   {}

// SpecialKind enumerates the kinds of Special conditions.
type SpecialKind int

// Special condition kinds.
const (
	KindRaw SpecialKind = iota + 1
	KindNested
	KindExists
	KindNotExists
)

// String returns the kind name.
func (k SpecialKind) String() string {
	switch k {
	case KindRaw:
		return "RAW"
	case KindNested:
		return "NESTED"
	case KindExists:
		return "EXISTS"
	case KindNotExists:
		return "NOT_EXISTS"
	}
	return "UNKNOWN"
}

// Special is a pre-rendered condition. Raw and (Not)Exists carry their SQL
// text and bindings, Nested carries a group rendered in parentheses.
type Special struct {
	Boolean Conj
	Kind    SpecialKind
	SQL     string
	Args    []any
	Group   []Condition
}

// Conj implements Condition.
func (s *Special) Conj() Conj { return s.Boolean }
func (*Special) condition()   {}

// regroup joins a condition group to its parent with conj. A single
// comparison or subquery needs no parentheses; raw fragments and larger
// groups are nested.
func regroup(conj Conj, conds []Condition) []Condition {
	switch len(conds) {
	case 0:
		return nil
	case 1:
		switch c := conds[0].(type) {
		case *Simple:
			cp := *c
			cp.Boolean = conj
			return []Condition{&cp}
		case *Special:
			if c.Kind != KindRaw {
				cp := *c
				cp.Boolean = conj
				return []Condition{&cp}
			}
		}
	}
	return []Condition{&Special{Boolean: conj, Kind: KindNested, Group: conds}}
}

// operators accepted by Simple conditions.
var operators = map[string]struct{}{
	"=": {}, "!=": {}, "<>": {}, "<": {}, ">": {}, "<=": {}, ">=": {}, "<=>": {},
	"LIKE": {}, "NOT LIKE": {}, "ILIKE": {}, "NOT ILIKE": {}, "GLOB": {},
	"IN": {}, "NOT IN": {},
	"BETWEEN": {}, "NOT BETWEEN": {},
	"IS NULL": {}, "IS NOT NULL": {},
}

func normalizeOperator(op string) (string, bool) {
	op = strings.ToUpper(strings.Join(strings.Fields(op), " "))
	_, ok := operators[op]
	return op, ok
}

// anySlice converts any slice or array, except []byte, to []any.
func anySlice(v any) ([]any, bool) {
	switch v := v.(type) {
	case []any:
		return v, true
	case []byte, nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// countPlaceholders counts "?" outside single-quoted literals.
func countPlaceholders(s string) int {
	n, quoted := 0, false
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			quoted = !quoted
		case '?':
			if !quoted {
				n++
			}
		}
	}
	return n
}
