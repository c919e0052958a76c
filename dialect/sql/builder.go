package sql

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/syssam/relq/dialect"
)

// Row is a scanned result row keyed by column name.
type Row = map[string]any

// Expr is a raw SQL expression used as a value, e.g. in Update.
type Expr struct {
	SQL  string
	Args []any
}

// Raw returns a raw SQL expression with its bindings.
func Raw(sql string, args ...any) Expr {
	return Expr{SQL: sql, Args: args}
}

// Predicate applies conditions to a builder.
type Predicate func(*Builder)

// Builder builds and runs a single-table query. It is not safe for
// concurrent use; branch with Clone before diverging.
type Builder struct {
	ex         dialect.ExecQuerier
	grammar    Grammar
	table      string
	distinct   bool
	fields     []string
	fieldArgs  []any
	joins      []join
	where      []Condition
	groupBy    []string
	having     []Condition
	orders     []order
	limit      *int
	offset     *int
	collations map[string]string
	errs       []error
}

type join struct {
	kind  string
	table string
	on    string
}

type order struct {
	expr string
	args []any
}

var (
	tableRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?( (?i:as) [A-Za-z_][A-Za-z0-9_]*)?$`)
	aliasRe = regexp.MustCompile(`^(.+) (?i:as) ([A-Za-z_][A-Za-z0-9_]*)$`)
)

// NewBuilder returns a builder running on ex and rendering with g.
// ex may be nil for builders that are only compiled.
func NewBuilder(ex dialect.ExecQuerier, g Grammar) *Builder {
	b := &Builder{ex: ex, grammar: g}
	if g == nil {
		b.AddError(NewConfigError("grammar", nil, "builder has no grammar"))
	}
	return b
}

// Dialect returns a compile-only builder factory for the given dialect.
//
//	query, args, err := sql.Dialect(dialect.MySQL).Table("users").Where("id", "=", 1).ToSQL()
func Dialect(name string) *DialectBuilder {
	g, err := GrammarFor(name)
	return &DialectBuilder{grammar: g, err: err}
}

// DialectBuilder creates builders that are not bound to a connection.
type DialectBuilder struct {
	grammar Grammar
	err     error
}

// Table returns a new compile-only builder for table.
func (d *DialectBuilder) Table(name string) *Builder {
	b := NewBuilder(nil, d.grammar)
	if d.err != nil {
		b.errs = []error{d.err}
	}
	return b.From(name)
}

// Table returns a builder for table running on ex. The grammar is taken
// from ex when it exposes one, and derived from its dialect otherwise.
func Table(ex dialect.ExecQuerier, name string) *Builder {
	g, err := GrammarOf(ex)
	b := NewBuilder(ex, g)
	if err != nil {
		b.errs = []error{err}
	}
	return b.From(name)
}

// GrammarOf resolves the grammar of an executor.
func GrammarOf(ex dialect.ExecQuerier) (Grammar, error) {
	if e, ok := ex.(interface{ Grammar() Grammar }); ok {
		if g := e.Grammar(); g != nil {
			return g, nil
		}
	}
	if e, ok := ex.(interface{ Dialect() string }); ok {
		return GrammarFor(e.Dialect())
	}
	return nil, NewConfigError("executor", fmt.Sprintf("%T", ex), "cannot resolve grammar")
}

// AddError records a build error returned by the terminal operation.
func (b *Builder) AddError(err error) *Builder {
	if err != nil {
		b.errs = append(b.errs, err)
	}
	return b
}

// Err returns the errors recorded while building the query.
func (b *Builder) Err() error {
	return errors.Join(b.errs...)
}

// Grammar returns the grammar of the builder.
func (b *Builder) Grammar() Grammar { return b.grammar }

// Executor returns the executor the builder runs on.
func (b *Builder) Executor() dialect.ExecQuerier { return b.ex }

// TableName returns the table the builder selects from.
func (b *Builder) TableName() string { return b.table }

// Conditions returns the WHERE conditions in declaration order.
func (b *Builder) Conditions() []Condition { return b.where }

// New returns an empty builder sharing the executor and grammar of b.
func (b *Builder) New(table string) *Builder {
	return NewBuilder(b.ex, b.grammar).From(table)
}

// Clone returns a deep copy of the builder state. Conditions are immutable
// once added, so they are shared between the copies.
func (b *Builder) Clone() *Builder {
	c := *b
	c.fields = append([]string(nil), b.fields...)
	c.fieldArgs = append([]any(nil), b.fieldArgs...)
	c.joins = append([]join(nil), b.joins...)
	c.where = append([]Condition(nil), b.where...)
	c.groupBy = append([]string(nil), b.groupBy...)
	c.having = append([]Condition(nil), b.having...)
	c.orders = append([]order(nil), b.orders...)
	c.errs = append([]error(nil), b.errs...)
	if b.limit != nil {
		l := *b.limit
		c.limit = &l
	}
	if b.offset != nil {
		o := *b.offset
		c.offset = &o
	}
	return &c
}

// From sets the table of the query. An alias may follow "AS".
func (b *Builder) From(table string) *Builder {
	if !tableRe.MatchString(table) {
		return b.AddError(NewConfigError("table", table, "invalid identifier"))
	}
	b.table = table
	return b
}

// Select replaces the select list. Columns may carry an "AS alias".
func (b *Builder) Select(columns ...string) *Builder {
	b.fields, b.fieldArgs = nil, nil
	return b.AddSelect(columns...)
}

// AddSelect appends columns missing from the select list.
func (b *Builder) AddSelect(columns ...string) *Builder {
	for _, c := range columns {
		if !validSelect(c) {
			b.AddError(NewConfigError("select", c, "invalid identifier"))
			continue
		}
		if !contains(b.fields, c) {
			b.fields = append(b.fields, c)
		}
	}
	return b
}

// SelectRaw appends a raw expression to the select list.
func (b *Builder) SelectRaw(expr string, args ...any) *Builder {
	if !b.checkRaw("select", expr, args) {
		return b
	}
	b.fields = append(b.fields, expr)
	b.fieldArgs = append(b.fieldArgs, args...)
	return b
}

// Distinct makes the query return distinct rows.
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// Join adds an INNER JOIN on "first op second".
func (b *Builder) Join(table, first, op, second string) *Builder {
	return b.addJoin("INNER JOIN", table, first, op, second)
}

// LeftJoin adds a LEFT JOIN on "first op second".
func (b *Builder) LeftJoin(table, first, op, second string) *Builder {
	return b.addJoin("LEFT JOIN", table, first, op, second)
}

func (b *Builder) addJoin(kind, table, first, op, second string) *Builder {
	if !tableRe.MatchString(table) {
		return b.AddError(NewConfigError("join table", table, "invalid identifier"))
	}
	if !isValidColumn(first) || !isValidColumn(second) {
		return b.AddError(NewConfigError("join column", first+" "+op+" "+second, "invalid identifier"))
	}
	if !isComparison(op) {
		return b.AddError(NewConfigError("join operator", op, "unsupported operator"))
	}
	b.joins = append(b.joins, join{kind: kind, table: table, on: first + " " + op + " " + second})
	return b
}

// HasJoin reports whether table is already joined.
func (b *Builder) HasJoin(table string) bool {
	for _, j := range b.joins {
		if j.table == table {
			return true
		}
	}
	return false
}

// Where adds "column op value" joined with AND. A nil value with "=" or
// "!=" is rendered as IS NULL or IS NOT NULL.
func (b *Builder) Where(column, op string, value any) *Builder {
	return b.addWhere(And, column, op, value)
}

// OrWhere adds "column op value" joined with OR.
func (b *Builder) OrWhere(column, op string, value any) *Builder {
	return b.addWhere(Or, column, op, value)
}

// Apply applies predicates in order.
func (b *Builder) Apply(preds ...Predicate) *Builder {
	for _, p := range preds {
		p(b)
	}
	return b
}

func (b *Builder) addWhere(conj Conj, column, op string, value any) *Builder {
	if !isValidColumn(column) {
		return b.AddError(NewConfigError("column", column, "invalid identifier"))
	}
	return b.addSimple(conj, column, op, value)
}

// addSimple adds a condition on an already validated column expression.
func (b *Builder) addSimple(conj Conj, expr, op string, value any) *Builder {
	c, err := comparison(conj, expr, op, value)
	if err != nil {
		return b.AddError(err)
	}
	b.where = append(b.where, c)
	return b
}

// comparison returns the condition comparing expr with value. IN takes a
// set, BETWEEN a pair of bounds, and = or != against nil become NULL tests.
func comparison(conj Conj, expr, op string, value any) (Condition, error) {
	nop, ok := normalizeOperator(op)
	if !ok {
		return nil, NewConfigError("operator", op, "unsupported operator")
	}
	switch nop {
	case "IN", "NOT IN":
		vs, ok := anySlice(value)
		if !ok {
			vs = []any{value}
		}
		return &Simple{Boolean: conj, Column: expr, Operator: nop, Value: vs}, nil
	case "BETWEEN", "NOT BETWEEN":
		vs, ok := anySlice(value)
		if !ok || len(vs) != 2 {
			return nil, NewConfigError("between", value, "expected two bounds")
		}
		return &Simple{Boolean: conj, Column: expr, Operator: nop, Value: vs[0], Extra: vs[1]}, nil
	case "IS NULL", "IS NOT NULL":
		value = nil
	case "=":
		if value == nil {
			nop = "IS NULL"
		}
	case "!=", "<>":
		if value == nil {
			nop = "IS NOT NULL"
		}
	}
	if v, ok := value.(Expr); ok {
		return &Special{Boolean: conj, Kind: KindRaw, SQL: expr + " " + nop + " " + v.SQL, Args: v.Args}, nil
	}
	return &Simple{Boolean: conj, Column: expr, Operator: nop, Value: value}, nil
}

// WhereIn adds "column IN (...)". An empty set matches no rows.
func (b *Builder) WhereIn(column string, values any) *Builder {
	return b.addWhere(And, column, "IN", values)
}

// OrWhereIn adds "column IN (...)" joined with OR.
func (b *Builder) OrWhereIn(column string, values any) *Builder {
	return b.addWhere(Or, column, "IN", values)
}

// WhereNotIn adds "column NOT IN (...)". An empty set matches every row.
func (b *Builder) WhereNotIn(column string, values any) *Builder {
	return b.addWhere(And, column, "NOT IN", values)
}

// WhereBetween adds "column BETWEEN ? AND ?".
func (b *Builder) WhereBetween(column string, from, to any) *Builder {
	return b.addWhere(And, column, "BETWEEN", []any{from, to})
}

// WhereNotBetween adds "column NOT BETWEEN ? AND ?".
func (b *Builder) WhereNotBetween(column string, from, to any) *Builder {
	return b.addWhere(And, column, "NOT BETWEEN", []any{from, to})
}

// WhereNull adds "column IS NULL".
func (b *Builder) WhereNull(column string) *Builder {
	return b.addWhere(And, column, "IS NULL", nil)
}

// OrWhereNull adds "column IS NULL" joined with OR.
func (b *Builder) OrWhereNull(column string) *Builder {
	return b.addWhere(Or, column, "IS NULL", nil)
}

// WhereNotNull adds "column IS NOT NULL".
func (b *Builder) WhereNotNull(column string) *Builder {
	return b.addWhere(And, column, "IS NOT NULL", nil)
}

// WhereColumn compares two columns.
func (b *Builder) WhereColumn(first, op, second string) *Builder {
	if !isValidColumn(first) || !isValidColumn(second) {
		return b.AddError(NewConfigError("column", first+" "+op+" "+second, "invalid identifier"))
	}
	if !isComparison(op) {
		return b.AddError(NewConfigError("operator", op, "unsupported operator"))
	}
	return b.addRaw(And, first+" "+op+" "+second, nil)
}

// WhereRaw adds a raw condition joined with AND.
func (b *Builder) WhereRaw(sql string, args ...any) *Builder {
	if !b.checkRaw("where", sql, args) {
		return b
	}
	return b.addRaw(And, sql, args)
}

// OrWhereRaw adds a raw condition joined with OR.
func (b *Builder) OrWhereRaw(sql string, args ...any) *Builder {
	if !b.checkRaw("where", sql, args) {
		return b
	}
	return b.addRaw(Or, sql, args)
}

func (b *Builder) addRaw(conj Conj, sql string, args []any) *Builder {
	b.where = append(b.where, &Special{Boolean: conj, Kind: KindRaw, SQL: sql, Args: args})
	return b
}

// checkRaw verifies that a raw fragment has one binding per placeholder.
func (b *Builder) checkRaw(option, sql string, args []any) bool {
	if n := countPlaceholders(sql); n != len(args) {
		b.AddError(NewConfigError(option, sql, fmt.Sprintf("%d placeholders with %d bindings", n, len(args))))
		return false
	}
	return true
}

// WhereNested adds a parenthesised group of conditions joined with AND.
func (b *Builder) WhereNested(fn func(*Builder)) *Builder {
	return b.addNested(And, fn)
}

// OrWhereNested adds a parenthesised group of conditions joined with OR.
func (b *Builder) OrWhereNested(fn func(*Builder)) *Builder {
	return b.addNested(Or, fn)
}

func (b *Builder) addNested(conj Conj, fn func(*Builder)) *Builder {
	sub := b.sub()
	fn(sub)
	b.errs = append(b.errs, sub.errs...)
	if len(sub.where) > 0 {
		b.where = append(b.where, &Special{Boolean: conj, Kind: KindNested, Group: sub.where})
	}
	return b
}

// WhereExists adds "EXISTS (subquery)" where fn builds the subquery.
func (b *Builder) WhereExists(fn func(*Builder)) *Builder {
	return b.addExists(And, false, fn)
}

// OrWhereExists adds "EXISTS (subquery)" joined with OR.
func (b *Builder) OrWhereExists(fn func(*Builder)) *Builder {
	return b.addExists(Or, false, fn)
}

// WhereNotExists adds "NOT EXISTS (subquery)".
func (b *Builder) WhereNotExists(fn func(*Builder)) *Builder {
	return b.addExists(And, true, fn)
}

// sub returns an empty builder for a condition group of b.
func (b *Builder) sub() *Builder {
	sub := NewBuilder(b.ex, b.grammar)
	sub.table, sub.collations = b.table, b.collations
	return sub
}

func (b *Builder) addExists(conj Conj, negated bool, fn func(*Builder)) *Builder {
	sub := NewBuilder(b.ex, b.grammar)
	fn(sub)
	query, args, err := sub.ToSQL()
	if err != nil {
		return b.AddError(err)
	}
	return b.WhereExistsRaw(query, args, conj, negated)
}

// WhereExistsRaw adds a pre-rendered EXISTS subquery. Its text and
// bindings are spliced verbatim.
func (b *Builder) WhereExistsRaw(query string, args []any, conj Conj, negated bool) *Builder {
	if !b.checkRaw("exists", query, args) {
		return b
	}
	kind := KindExists
	if negated {
		kind = KindNotExists
	}
	b.where = append(b.where, &Special{Boolean: conj, Kind: kind, SQL: query, Args: args})
	return b
}

// WhereLike adds a pattern match. Case handling follows the grammar and
// the column collation, if loaded with LoadCollations.
func (b *Builder) WhereLike(column, pattern string, caseSensitive bool) *Builder {
	return b.addLike(And, column, pattern, caseSensitive, false)
}

// OrWhereLike adds a pattern match joined with OR.
func (b *Builder) OrWhereLike(column, pattern string, caseSensitive bool) *Builder {
	return b.addLike(Or, column, pattern, caseSensitive, false)
}

// WhereNotLike adds a negated pattern match.
func (b *Builder) WhereNotLike(column, pattern string, caseSensitive bool) *Builder {
	return b.addLike(And, column, pattern, caseSensitive, true)
}

func (b *Builder) addLike(conj Conj, column, pattern string, caseSensitive, not bool) *Builder {
	if !isValidColumn(column) {
		return b.AddError(NewConfigError("column", column, "invalid identifier"))
	}
	if b.grammar == nil {
		return b
	}
	expr, args := b.grammar.Like(column, pattern, caseSensitive, not, b.collation(column))
	return b.addRaw(conj, expr, args)
}

func (b *Builder) collation(column string) string {
	if b.collations == nil {
		return ""
	}
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		column = column[i+1:]
	}
	return b.collations[strings.ToLower(column)]
}

// WhereDate compares the date part of column.
func (b *Builder) WhereDate(column, op string, value any) *Builder {
	return b.WhereDatePart("date", column, op, value)
}

// WhereTime compares the time part of column.
func (b *Builder) WhereTime(column, op string, value any) *Builder {
	return b.WhereDatePart("time", column, op, value)
}

// WhereYear compares the year of column.
func (b *Builder) WhereYear(column, op string, value any) *Builder {
	return b.WhereDatePart("year", column, op, value)
}

// WhereMonth compares the month of column.
func (b *Builder) WhereMonth(column, op string, value any) *Builder {
	return b.WhereDatePart("month", column, op, value)
}

// WhereDay compares the day of month of column.
func (b *Builder) WhereDay(column, op string, value any) *Builder {
	return b.WhereDatePart("day", column, op, value)
}

// WhereHour compares the hour of column.
func (b *Builder) WhereHour(column, op string, value any) *Builder {
	return b.WhereDatePart("hour", column, op, value)
}

// WhereMinute compares the minute of column.
func (b *Builder) WhereMinute(column, op string, value any) *Builder {
	return b.WhereDatePart("minute", column, op, value)
}

// WhereSecond compares the second of column.
func (b *Builder) WhereSecond(column, op string, value any) *Builder {
	return b.WhereDatePart("second", column, op, value)
}

// WhereDatePart compares a date or time component of column. See
// Grammar.DatePart for the supported parts.
func (b *Builder) WhereDatePart(part, column, op string, value any) *Builder {
	if !isValidColumn(column) {
		return b.AddError(NewConfigError("column", column, "invalid identifier"))
	}
	if b.grammar == nil {
		return b
	}
	expr, err := b.grammar.DatePart(part, column)
	if err != nil {
		return b.AddError(err)
	}
	return b.addSimple(And, expr, op, value)
}

// WhereJSONContains adds a JSON containment test. column may address a
// nested path, as in "options->languages".
func (b *Builder) WhereJSONContains(column string, value any) *Builder {
	return b.addJSONContains(And, column, value, false)
}

// OrWhereJSONContains adds a JSON containment test joined with OR.
func (b *Builder) OrWhereJSONContains(column string, value any) *Builder {
	return b.addJSONContains(Or, column, value, false)
}

// WhereJSONDoesntContain adds a negated JSON containment test.
func (b *Builder) WhereJSONDoesntContain(column string, value any) *Builder {
	return b.addJSONContains(And, column, value, true)
}

func (b *Builder) addJSONContains(conj Conj, column string, value any, not bool) *Builder {
	if b.grammar == nil {
		return b
	}
	expr, args, err := b.grammar.JSONContains(column, value, not)
	if err != nil {
		return b.AddError(err)
	}
	return b.addRaw(conj, expr, args)
}

// GroupBy appends GROUP BY columns.
func (b *Builder) GroupBy(columns ...string) *Builder {
	for _, c := range columns {
		if !isValidColumn(c) {
			b.AddError(NewConfigError("group by", c, "invalid identifier"))
			continue
		}
		b.groupBy = append(b.groupBy, c)
	}
	return b
}

// Having adds a HAVING condition joined with AND. column may be an
// aggregate alias.
func (b *Builder) Having(column, op string, value any) *Builder {
	if !isValidColumn(column) {
		return b.AddError(NewConfigError("having", column, "invalid identifier"))
	}
	c, err := comparison(And, column, op, value)
	if err != nil {
		return b.AddError(err)
	}
	b.having = append(b.having, c)
	return b
}

// HavingRaw adds a raw HAVING condition.
func (b *Builder) HavingRaw(sql string, args ...any) *Builder {
	if !b.checkRaw("having", sql, args) {
		return b
	}
	b.having = append(b.having, &Special{Boolean: And, Kind: KindRaw, SQL: sql, Args: args})
	return b
}

// OrderBy appends an ORDER BY column with direction "asc" or "desc".
func (b *Builder) OrderBy(column, direction string) *Builder {
	if !isValidColumn(column) {
		return b.AddError(NewConfigError("order by", column, "invalid identifier"))
	}
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		return b.AddError(NewConfigError("order direction", direction, `expected "asc" or "desc"`))
	}
	b.orders = append(b.orders, order{expr: column + " " + dir})
	return b
}

// OrderByDesc appends a descending ORDER BY column.
func (b *Builder) OrderByDesc(column string) *Builder {
	return b.OrderBy(column, "desc")
}

// OrderByRaw appends a raw ORDER BY expression with its bindings.
func (b *Builder) OrderByRaw(expr string, args ...any) *Builder {
	if !b.checkRaw("order by", expr, args) {
		return b
	}
	b.orders = append(b.orders, order{expr: expr, args: args})
	return b
}

// InRandomOrder orders rows randomly.
func (b *Builder) InRandomOrder() *Builder {
	if b.grammar == nil {
		return b
	}
	b.orders = append(b.orders, order{expr: b.grammar.RandomOrder()})
	return b
}

// Reorder removes every ORDER BY expression.
func (b *Builder) Reorder() *Builder {
	b.orders = nil
	return b
}

// Limit sets the maximum number of rows.
func (b *Builder) Limit(n int) *Builder {
	if n < 0 {
		return b.AddError(NewConfigError("limit", n, "must not be negative"))
	}
	b.limit = &n
	return b
}

// Offset sets the number of rows to skip.
func (b *Builder) Offset(n int) *Builder {
	if n < 0 {
		return b.AddError(NewConfigError("offset", n, "must not be negative"))
	}
	b.offset = &n
	return b
}

// ForPage sets limit and offset for a 1-based page.
func (b *Builder) ForPage(page, perPage int) *Builder {
	if page < 1 {
		page = 1
	}
	return b.Offset((page - 1) * perPage).Limit(perPage)
}

func validSelect(c string) bool {
	if m := aliasRe.FindStringSubmatch(c); m != nil {
		c = m[1]
	}
	return isValidColumn(c)
}

func isComparison(op string) bool {
	switch op {
	case "=", "!=", "<>", "<", ">", "<=", ">=":
		return true
	}
	return false
}

func contains(s []string, v string) bool {
	for _, e := range s {
		if e == v {
			return true
		}
	}
	return false
}
