package sql

import "time"

// PredicateFunc is a constraint type for predicate functions. It lets the
// typed fields below build any predicate type whose underlying type is
// func(*Builder), such as the ones generated per entity.
type PredicateFunc interface {
	~func(*Builder)
}

// Number is the constraint of numeric field values.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// FieldWhere returns a predicate adding "column op value".
func FieldWhere(column, op string, v any) Predicate {
	return func(b *Builder) { b.Where(column, op, v) }
}

// All groups predicates in parentheses, joined with AND.
func All[P PredicateFunc](preds ...P) P {
	return P(func(b *Builder) {
		b.WhereNested(func(n *Builder) {
			for _, p := range preds {
				p(n)
			}
		})
	})
}

// Any groups predicates in parentheses, joined with OR. Predicates adding
// several conditions are parenthesised on their own.
func Any[P PredicateFunc](preds ...P) P {
	return P(func(b *Builder) {
		b.WhereNested(func(n *Builder) {
			for _, p := range preds {
				sub := n.sub()
				p(sub)
				n.errs = append(n.errs, sub.errs...)
				n.where = append(n.where, regroup(Or, sub.where)...)
			}
		})
	})
}

// StringField is a string column with type-safe predicates.
//
//	var Email = sql.StringField[predicate.User]("email")
//	users.Where(Email.HasSuffix("@example.com"))
//
// Pattern predicates do not escape % and _ in their argument.
type StringField[P PredicateFunc] string

// Name returns the column name.
func (f StringField[P]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f StringField[P]) EQ(v string) P { return where[P](f.Name(), "=", v) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f StringField[P]) NEQ(v string) P { return where[P](f.Name(), "!=", v) }

// In returns a predicate that checks if the field is one of vs.
func (f StringField[P]) In(vs ...string) P { return where[P](f.Name(), "IN", vs) }

// NotIn returns a predicate that checks if the field is none of vs.
func (f StringField[P]) NotIn(vs ...string) P { return where[P](f.Name(), "NOT IN", vs) }

// GT returns a predicate that checks if the field sorts after v.
func (f StringField[P]) GT(v string) P { return where[P](f.Name(), ">", v) }

// LT returns a predicate that checks if the field sorts before v.
func (f StringField[P]) LT(v string) P { return where[P](f.Name(), "<", v) }

// Contains returns a case-sensitive substring match.
func (f StringField[P]) Contains(v string) P { return like[P](f.Name(), "%"+v+"%", true) }

// ContainsFold returns a case-insensitive substring match.
func (f StringField[P]) ContainsFold(v string) P { return like[P](f.Name(), "%"+v+"%", false) }

// HasPrefix returns a case-sensitive prefix match.
func (f StringField[P]) HasPrefix(v string) P { return like[P](f.Name(), v+"%", true) }

// HasSuffix returns a case-sensitive suffix match.
func (f StringField[P]) HasSuffix(v string) P { return like[P](f.Name(), "%"+v, true) }

// EqualFold returns a case-insensitive equality match.
func (f StringField[P]) EqualFold(v string) P { return like[P](f.Name(), v, false) }

// Like returns a pattern match with explicit case handling.
func (f StringField[P]) Like(pattern string, caseSensitive bool) P {
	return like[P](f.Name(), pattern, caseSensitive)
}

// IsNull returns a predicate that checks if the field is NULL.
func (f StringField[P]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// NotNull returns a predicate that checks if the field is not NULL.
func (f StringField[P]) NotNull() P { return where[P](f.Name(), "IS NOT NULL", nil) }

// NumberField is a numeric column with type-safe predicates.
type NumberField[P PredicateFunc, T Number] string

// Name returns the column name.
func (f NumberField[P, T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f NumberField[P, T]) EQ(v T) P { return where[P](f.Name(), "=", v) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f NumberField[P, T]) NEQ(v T) P { return where[P](f.Name(), "!=", v) }

// In returns a predicate that checks if the field is one of vs.
func (f NumberField[P, T]) In(vs ...T) P { return where[P](f.Name(), "IN", vs) }

// NotIn returns a predicate that checks if the field is none of vs.
func (f NumberField[P, T]) NotIn(vs ...T) P { return where[P](f.Name(), "NOT IN", vs) }

// GT returns a predicate that checks if the field is greater than v.
func (f NumberField[P, T]) GT(v T) P { return where[P](f.Name(), ">", v) }

// GTE returns a predicate that checks if the field is at least v.
func (f NumberField[P, T]) GTE(v T) P { return where[P](f.Name(), ">=", v) }

// LT returns a predicate that checks if the field is less than v.
func (f NumberField[P, T]) LT(v T) P { return where[P](f.Name(), "<", v) }

// LTE returns a predicate that checks if the field is at most v.
func (f NumberField[P, T]) LTE(v T) P { return where[P](f.Name(), "<=", v) }

// Between returns a predicate that checks if the field lies in [from, to].
func (f NumberField[P, T]) Between(from, to T) P {
	return P(func(b *Builder) { b.WhereBetween(f.Name(), from, to) })
}

// IsNull returns a predicate that checks if the field is NULL.
func (f NumberField[P, T]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// NotNull returns a predicate that checks if the field is not NULL.
func (f NumberField[P, T]) NotNull() P { return where[P](f.Name(), "IS NOT NULL", nil) }

// BoolField is a boolean column with type-safe predicates.
type BoolField[P PredicateFunc] string

// Name returns the column name.
func (f BoolField[P]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f BoolField[P]) EQ(v bool) P { return where[P](f.Name(), "=", v) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f BoolField[P]) NEQ(v bool) P { return where[P](f.Name(), "!=", v) }

// IsNull returns a predicate that checks if the field is NULL.
func (f BoolField[P]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// TimeField is a date or timestamp column with type-safe predicates.
type TimeField[P PredicateFunc] string

// Name returns the column name.
func (f TimeField[P]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f TimeField[P]) EQ(v time.Time) P { return where[P](f.Name(), "=", v) }

// GT returns a predicate that checks if the field is after v.
func (f TimeField[P]) GT(v time.Time) P { return where[P](f.Name(), ">", v) }

// GTE returns a predicate that checks if the field is v or after.
func (f TimeField[P]) GTE(v time.Time) P { return where[P](f.Name(), ">=", v) }

// LT returns a predicate that checks if the field is before v.
func (f TimeField[P]) LT(v time.Time) P { return where[P](f.Name(), "<", v) }

// LTE returns a predicate that checks if the field is v or before.
func (f TimeField[P]) LTE(v time.Time) P { return where[P](f.Name(), "<=", v) }

// Between returns a predicate that checks if the field lies in [from, to].
func (f TimeField[P]) Between(from, to time.Time) P {
	return P(func(b *Builder) { b.WhereBetween(f.Name(), from, to) })
}

// OnDate returns a predicate that compares the date part of the field with
// a "YYYY-MM-DD" value.
func (f TimeField[P]) OnDate(op, date string) P {
	return P(func(b *Builder) { b.WhereDate(f.Name(), op, date) })
}

// InYear returns a predicate that checks the year of the field.
func (f TimeField[P]) InYear(year int) P {
	return P(func(b *Builder) { b.WhereYear(f.Name(), "=", year) })
}

// IsNull returns a predicate that checks if the field is NULL.
func (f TimeField[P]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// NotNull returns a predicate that checks if the field is not NULL.
func (f TimeField[P]) NotNull() P { return where[P](f.Name(), "IS NOT NULL", nil) }

// EnumField is a column holding one of a fixed set of string values.
type EnumField[P PredicateFunc, T ~string] string

// Name returns the column name.
func (f EnumField[P, T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f EnumField[P, T]) EQ(v T) P { return where[P](f.Name(), "=", string(v)) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f EnumField[P, T]) NEQ(v T) P { return where[P](f.Name(), "!=", string(v)) }

// In returns a predicate that checks if the field is one of vs.
func (f EnumField[P, T]) In(vs ...T) P { return where[P](f.Name(), "IN", enumValues(vs)) }

// NotIn returns a predicate that checks if the field is none of vs.
func (f EnumField[P, T]) NotIn(vs ...T) P { return where[P](f.Name(), "NOT IN", enumValues(vs)) }

// JSONField is a JSON document column.
type JSONField[P PredicateFunc] string

// Name returns the column name.
func (f JSONField[P]) Name() string { return string(f) }

// Contains returns a predicate that checks if the document at path, or the
// whole document when path is empty, contains v.
func (f JSONField[P]) Contains(path string, v any) P {
	column := f.Name()
	if path != "" {
		column += "->" + path
	}
	return P(func(b *Builder) { b.WhereJSONContains(column, v) })
}

// IsNull returns a predicate that checks if the field is NULL.
func (f JSONField[P]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// ValueField is a column of any comparable Go type, such as uuid.UUID,
// with equality predicates only.
type ValueField[P PredicateFunc, T any] string

// Name returns the column name.
func (f ValueField[P, T]) Name() string { return string(f) }

// EQ returns a predicate that checks if the field equals v.
func (f ValueField[P, T]) EQ(v T) P { return where[P](f.Name(), "=", v) }

// NEQ returns a predicate that checks if the field does not equal v.
func (f ValueField[P, T]) NEQ(v T) P { return where[P](f.Name(), "!=", v) }

// In returns a predicate that checks if the field is one of vs.
func (f ValueField[P, T]) In(vs ...T) P { return where[P](f.Name(), "IN", vs) }

// NotIn returns a predicate that checks if the field is none of vs.
func (f ValueField[P, T]) NotIn(vs ...T) P { return where[P](f.Name(), "NOT IN", vs) }

// IsNull returns a predicate that checks if the field is NULL.
func (f ValueField[P, T]) IsNull() P { return where[P](f.Name(), "IS NULL", nil) }

// NotNull returns a predicate that checks if the field is not NULL.
func (f ValueField[P, T]) NotNull() P { return where[P](f.Name(), "IS NOT NULL", nil) }

func where[P PredicateFunc](column, op string, v any) P {
	return P(FieldWhere(column, op, v))
}

func like[P PredicateFunc](column, pattern string, caseSensitive bool) P {
	return P(func(b *Builder) { b.WhereLike(column, pattern, caseSensitive) })
}

func enumValues[T ~string](vs []T) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
