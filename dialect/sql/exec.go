package sql

import (
	"context"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Get runs the query and returns every row.
func (b *Builder) Get(ctx context.Context) ([]Row, error) {
	query, args, err := b.ToSQL()
	if err != nil {
		return nil, err
	}
	rows, err := b.query(ctx, "select", query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := ScanRows(rows)
	return out, execError("select", b.table, err)
}

// First returns the first row, or ErrNoRows.
func (b *Builder) First(ctx context.Context) (Row, error) {
	rows, err := b.Clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

// Value returns a single column of the first row, or ErrNoRows.
func (b *Builder) Value(ctx context.Context, column string) (any, error) {
	row, err := b.Clone().Select(column).First(ctx)
	if err != nil {
		return nil, err
	}
	return row[columnKey(column)], nil
}

// Pluck returns a single column of every row.
func (b *Builder) Pluck(ctx context.Context, column string) ([]any, error) {
	rows, err := b.Clone().Select(column).Get(ctx)
	if err != nil {
		return nil, err
	}
	key := columnKey(column)
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r[key]
	}
	return out, nil
}

// Exists reports whether the query matches at least one row.
func (b *Builder) Exists(ctx context.Context) (bool, error) {
	c := b.Clone()
	c.fields, c.fieldArgs, c.orders = []string{"1"}, nil, nil
	c.Limit(1)
	query, args, err := c.ToSQL()
	if err != nil {
		return false, err
	}
	rows, err := b.query(ctx, "exists", query, args)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	return found, execError("exists", b.table, rows.Err())
}

// Insert inserts rows and returns the number of affected rows.
func (b *Builder) Insert(ctx context.Context, rows ...Row) (int64, error) {
	query, args, err := b.InsertSQL(rows...)
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, "insert", query, args)
}

// InsertGetID inserts one row and returns the generated value of key.
// Drivers supporting RETURNING yield the key as scanned, so non-integer
// keys such as uuid come back as their driver value. Other drivers report
// LastInsertId as an int64.
func (b *Builder) InsertGetID(ctx context.Context, row Row, key string) (any, error) {
	query, args, err := b.InsertSQL(row)
	if err != nil {
		return nil, err
	}
	if !isValidColumn(key) {
		return nil, NewConfigError("key", key, "invalid identifier")
	}
	if b.grammar.SupportsReturning() {
		rows, err := b.query(ctx, "insert", query+" RETURNING "+key, args)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		if !rows.Next() {
			return nil, execError("insert", b.table, errors.Join(ErrNoRows, rows.Err()))
		}
		var id any
		if err := rows.Scan(&id); err != nil {
			return nil, execError("insert", b.table, err)
		}
		if raw, ok := id.([]byte); ok {
			id = string(raw)
		}
		return id, nil
	}
	res, err := b.result(ctx, "insert", query, args)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, execError("insert", b.table, err)
	}
	return id, nil
}

// Update updates the matched rows and returns the number of affected rows.
func (b *Builder) Update(ctx context.Context, values Row) (int64, error) {
	query, args, err := b.UpdateSQL(values)
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, "update", query, args)
}

// Increment adds amount to column of the matched rows.
func (b *Builder) Increment(ctx context.Context, column string, amount any) (int64, error) {
	if !isValidColumn(column) {
		return 0, NewConfigError("column", column, "invalid identifier")
	}
	return b.Update(ctx, Row{column: Raw(column+" + ?", amount)})
}

// Delete deletes the matched rows and returns the number of affected rows.
func (b *Builder) Delete(ctx context.Context) (int64, error) {
	query, args, err := b.DeleteSQL()
	if err != nil {
		return 0, err
	}
	return b.exec(ctx, "delete", query, args)
}

// Tables lists the tables of the current database.
func (b *Builder) Tables(ctx context.Context) ([]string, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	query, args := b.grammar.TablesQuery()
	return b.scanStrings(ctx, "introspect", query, args)
}

// Columns lists the columns of the builder table in declaration order.
func (b *Builder) Columns(ctx context.Context) ([]string, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	query, args := b.grammar.ColumnsQuery(baseTable(b.table))
	return b.scanStrings(ctx, "introspect", query, args)
}

// LoadCollations reads the declared collations of the builder table, used
// by subsequent pattern matches to decide how to force case sensitivity.
func (b *Builder) LoadCollations(ctx context.Context) error {
	if err := b.Err(); err != nil {
		return err
	}
	query, args := b.grammar.CollationsQuery(baseTable(b.table))
	if query == "" {
		return nil
	}
	rows, err := b.query(ctx, "introspect", query, args)
	if err != nil {
		return err
	}
	defer rows.Close()
	collations := make(map[string]string)
	for rows.Next() {
		var column, collation NullString
		if err := rows.Scan(&column, &collation); err != nil {
			return execError("introspect", b.table, err)
		}
		collations[strings.ToLower(column.String)] = collation.String
	}
	if err := rows.Err(); err != nil {
		return execError("introspect", b.table, err)
	}
	b.collations = collations
	return nil
}

func (b *Builder) scanStrings(ctx context.Context, op, query string, args []any) ([]string, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	rows, err := b.query(ctx, op, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, execError(op, b.table, err)
		}
		out = append(out, s)
	}
	return out, execError(op, b.table, rows.Err())
}

func (b *Builder) query(ctx context.Context, op, query string, args []any) (*Rows, error) {
	if b.ex == nil {
		return nil, NewConfigError("executor", nil, "builder is not bound to a connection")
	}
	rows := &Rows{}
	if err := b.ex.Query(ctx, query, args, rows); err != nil {
		return nil, execError(op, b.table, err)
	}
	return rows, nil
}

func (b *Builder) exec(ctx context.Context, op, query string, args []any) (int64, error) {
	res, err := b.result(ctx, op, query, args)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return n, execError(op, b.table, err)
}

func (b *Builder) result(ctx context.Context, op, query string, args []any) (Result, error) {
	if b.ex == nil {
		return nil, NewConfigError("executor", nil, "builder is not bound to a connection")
	}
	var res Result
	if err := b.ex.Exec(ctx, query, args, &res); err != nil {
		return nil, execError(op, b.table, err)
	}
	return res, nil
}

// ScanRows scans every remaining row into a map. Byte slices, which MySQL
// returns for textual columns, are converted to strings.
func ScanRows(rows *Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		r, err := ScanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ScanRow scans the current row into a map.
func ScanRow(rows *Rows) (Row, error) {
	r := make(Row)
	if err := sqlx.MapScan(rows, r); err != nil {
		return nil, err
	}
	for k, v := range r {
		if bs, ok := v.([]byte); ok {
			r[k] = string(bs)
		}
	}
	return r, nil
}

// columnKey returns the result key of a select expression.
func columnKey(column string) string {
	if m := aliasRe.FindStringSubmatch(column); m != nil {
		return m[2]
	}
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}

func baseTable(table string) string {
	if i := strings.IndexByte(table, ' '); i >= 0 {
		return table[:i]
	}
	return table
}
