package sql

import (
	"sort"
	"strings"
)

// ToSQL compiles the builder into a SELECT statement and its bindings.
// Placeholders are "?"; bindings follow their placeholders left to right.
func (b *Builder) ToSQL() (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	if b.table == "" {
		return "", nil, NewConfigError("table", nil, "no table to select from")
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.fields) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(strings.Join(b.fields, ", "))
		args = append(args, b.fieldArgs...)
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.table)
	args = b.compileTail(&sb, args)
	return sb.String(), args, nil
}

// compileTail renders joins, WHERE, GROUP BY, HAVING, ORDER BY and LIMIT.
func (b *Builder) compileTail(sb *strings.Builder, args []any) []any {
	for _, j := range b.joins {
		sb.WriteString(" " + j.kind + " " + j.table + " ON " + j.on)
	}
	args = compileWhere(sb, " WHERE ", b.where, args)
	if len(b.groupBy) > 0 {
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(b.groupBy, ", "))
	}
	args = compileWhere(sb, " HAVING ", b.having, args)
	if len(b.orders) > 0 {
		sb.WriteString(" ORDER BY ")
		for i, o := range b.orders {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(o.expr)
			args = append(args, o.args...)
		}
	}
	if lo := b.grammar.LimitOffset(b.limit, b.offset); lo != "" {
		sb.WriteString(" " + lo)
	}
	return args
}

// CompileWhere renders only the WHERE conditions, without the keyword.
func (b *Builder) CompileWhere() (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	sql, args := CompileConditions(b.where)
	return sql, args, nil
}

func compileWhere(sb *strings.Builder, keyword string, conds []Condition, args []any) []any {
	sql, cargs := CompileConditions(conds)
	if sql == "" {
		return args
	}
	sb.WriteString(keyword)
	sb.WriteString(sql)
	return append(args, cargs...)
}

// CompileConditions renders a condition group. The connector of the first
// rendered condition is omitted; empty nested groups render nothing.
func CompileConditions(conds []Condition) (string, []any) {
	var (
		sb   strings.Builder
		args []any
	)
	for _, c := range conds {
		sql, cargs := compileCondition(c)
		if sql == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" " + string(c.Conj()) + " ")
		}
		sb.WriteString(sql)
		args = append(args, cargs...)
	}
	return sb.String(), args
}

func compileCondition(c Condition) (string, []any) {
	switch c := c.(type) {
	case *Simple:
		return compileSimple(c)
	case *Special:
		switch c.Kind {
		case KindRaw:
			return c.SQL, c.Args
		case KindNested:
			sql, args := CompileConditions(c.Group)
			if sql == "" {
				return "", nil
			}
			return "(" + sql + ")", args
		case KindExists:
			return "EXISTS (" + c.SQL + ")", c.Args
		case KindNotExists:
			return "NOT EXISTS (" + c.SQL + ")", c.Args
		}
	}
	return "", nil
}

func compileSimple(c *Simple) (string, []any) {
	switch c.Operator {
	case "IS NULL", "IS NOT NULL":
		return c.Column + " " + c.Operator, nil
	case "BETWEEN", "NOT BETWEEN":
		return c.Column + " " + c.Operator + " ? AND ?", []any{c.Value, c.Extra}
	case "IN", "NOT IN":
		vs, _ := c.Value.([]any)
		if len(vs) == 0 {
			if c.Operator == "IN" {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}
		return c.Column + " " + c.Operator + " (" + placeholders(len(vs)) + ")", vs
	}
	return c.Column + " " + c.Operator + " ?", []any{c.Value}
}

// InsertSQL compiles a multi-row INSERT. Columns are taken from the first
// row in sorted order; every row must carry the same columns.
func (b *Builder) InsertSQL(rows ...Row) (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	columns, args, err := b.insertValues(rows)
	if err != nil {
		return "", nil, err
	}
	u := &UpsertStatement{Table: b.table, Columns: columns, Rows: len(rows)}
	return u.insertInto("INSERT INTO"), args, nil
}

func (b *Builder) insertValues(rows []Row) ([]string, []any, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, nil, NewConfigError("insert", b.table, "no values to insert")
	}
	columns := sortedKeys(rows[0])
	for _, c := range columns {
		if !isValidColumn(c) {
			return nil, nil, NewConfigError("insert column", c, "invalid identifier")
		}
	}
	args := make([]any, 0, len(columns)*len(rows))
	for i, r := range rows {
		if len(r) != len(columns) {
			return nil, nil, NewConfigError("insert", b.table, "rows have different columns")
		}
		for _, c := range columns {
			v, ok := r[c]
			if !ok {
				return nil, nil, NewConfigError("insert row", i, "missing column "+c)
			}
			args = append(args, v)
		}
	}
	return columns, args, nil
}

// UpdateSQL compiles an UPDATE of the rows matched by the builder. SET
// bindings precede WHERE bindings. Expr values are inlined with their
// own bindings.
func (b *Builder) UpdateSQL(values Row) (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	if len(values) == 0 {
		return "", nil, NewConfigError("update", b.table, "no values to update")
	}
	if err := b.checkWrite("update"); err != nil {
		return "", nil, err
	}
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString("UPDATE " + b.table + " SET ")
	for i, c := range sortedKeys(values) {
		if !isValidColumn(c) {
			return "", nil, NewConfigError("update column", c, "invalid identifier")
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		if e, ok := values[c].(Expr); ok {
			sb.WriteString(c + " = " + e.SQL)
			args = append(args, e.Args...)
			continue
		}
		sb.WriteString(c + " = ?")
		args = append(args, values[c])
	}
	args = compileWhere(&sb, " WHERE ", b.where, args)
	return sb.String(), args, nil
}

// DeleteSQL compiles a DELETE of the rows matched by the builder.
func (b *Builder) DeleteSQL() (string, []any, error) {
	if err := b.Err(); err != nil {
		return "", nil, err
	}
	if err := b.checkWrite("delete"); err != nil {
		return "", nil, err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM " + b.table)
	args := compileWhere(&sb, " WHERE ", b.where, nil)
	return sb.String(), args, nil
}

// checkWrite rejects clauses that UPDATE and DELETE would silently drop.
func (b *Builder) checkWrite(op string) error {
	switch {
	case b.table == "":
		return NewConfigError(op, nil, "no table")
	case len(b.joins) > 0:
		return NewConfigError(op, b.table, "joins are not supported")
	case b.limit != nil || b.offset != nil || len(b.orders) > 0:
		return NewConfigError(op, b.table, "limit, offset and order are not supported")
	}
	return nil
}

func sortedKeys(m Row) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
