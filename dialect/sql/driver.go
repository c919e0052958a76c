package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	// Register the database/sql drivers of the supported dialects.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/relq/dialect"
)

// Driver is a dialect.Driver backed by a *sql.DB. Statements are written
// with ? placeholders and rebound to the bind style of the dialect when
// they run.
type Driver struct {
	Conn
}

// Open opens a database with the database/sql driver registered under the
// dialect name. Unsupported dialects fail with a ConfigError before the
// database is opened.
func Open(name, source string) (*Driver, error) {
	if _, err := GrammarFor(name); err != nil {
		return nil, err
	}
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(name, db), nil
}

// OpenDB returns a Driver running on db.
func OpenDB(name string, db *sql.DB) *Driver {
	return &Driver{Conn: NewConn(db, name)}
}

// DB returns the underlying *sql.DB.
func (d *Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Table returns a query builder for table running on the driver.
func (d *Driver) Table(name string) *Builder {
	return Table(d, name)
}

// Tx starts a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options. The transaction shares the
// grammar of the driver.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	c := d.Conn
	c.ExecQuerier = tx
	return &Tx{Conn: c, Tx: tx}, nil
}

// Close closes the database.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx is a transaction. Its session variables live until the transaction
// ends.
type Tx struct {
	Conn
	driver.Tx
}

// Table returns a query builder for table running inside the transaction.
func (t *Tx) Table(name string) *Builder {
	return Table(t, name)
}

// Var is a session variable set on the connection before a statement
// runs.
type Var struct {
	Name, Value string
}

type varsKey struct{}

// WithVar returns a context whose statements first set the session
// variable name. MySQL and PostgreSQL support session variables. A later
// value of the same name overrides an earlier one.
//
//	ctx = sql.WithVar(ctx, "app.tenant", "acme")
//	rows, err := drv.Table("orders").Get(ctx)
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(varsKey{}).([]Var)
	return context.WithValue(ctx, varsKey{}, append(slices.Clip(vars), Var{Name: name, Value: value}))
}

// VarFromContext returns the value of the session variable name.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	vars, _ := ctx.Value(varsKey{}).([]Var)
	for i := len(vars) - 1; i >= 0; i-- {
		if vars[i].Name == name {
			return vars[i].Value, true
		}
	}
	return "", false
}

// VarsFromContext returns the session variables of ctx in the order they
// are set.
func VarsFromContext(ctx context.Context) []Var {
	vars, _ := ctx.Value(varsKey{}).([]Var)
	return slices.Clone(vars)
}

// varRe accepts plain and dotted (custom PostgreSQL parameters) names.
var varRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// setVar returns the statement setting v. Values are bound, never
// interpolated. Inside a transaction PostgreSQL variables are local to it.
func setVar(name string, v Var, local bool) (string, []any, error) {
	if !varRe.MatchString(v.Name) || len(v.Name) > 128 {
		return "", nil, NewConfigError("session variable", v.Name, "invalid identifier")
	}
	switch name {
	case dialect.MySQL:
		return "SET " + v.Name + " = ?", []any{v.Value}, nil
	case dialect.Postgres:
		return "SELECT set_config($1, $2, $3)", []any{v.Name, v.Value, local}, nil
	}
	return "", nil, NewConfigError("session variable", v.Name, "not supported by "+name)
}

// resetVar returns the statement restoring name before a pooled
// connection is released.
func resetVar(name, v string) string {
	if name == dialect.Postgres {
		return "RESET " + v
	}
	return "SET " + v + " = NULL"
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier on an ExecQuerier. It carries the
// grammar of its dialect, resolved once when the connection is created.
type Conn struct {
	ExecQuerier
	dialect string
	grammar Grammar
}

// NewConn returns a Conn for the named dialect. Driver aliases such as
// pgx or sqlite3 are mapped to their dialect. The grammar is nil for
// unsupported dialects, and builders on it report a ConfigError.
func NewConn(ex ExecQuerier, name string) Conn {
	g, err := GrammarFor(name)
	if err != nil {
		return Conn{ExecQuerier: ex, dialect: name}
	}
	return Conn{ExecQuerier: ex, dialect: g.Dialect(), grammar: g}
}

// Dialect returns the dialect of the connection.
func (c Conn) Dialect() string { return c.dialect }

// Grammar returns the grammar of the connection dialect.
func (c Conn) Grammar() Grammar { return c.grammar }

// rebind converts "?" placeholders to the bind style of the dialect.
func (c Conn) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(c.dialect), query)
}

// Exec implements dialect.ExecQuerier. v is nil or a *Result.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	var res *Result
	switch v := v.(type) {
	case nil:
	case *Result:
		res = v
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	ex, release, err := c.session(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	defer func() { rerr = errors.Join(rerr, release()) }()
	r, err := ex.ExecContext(ctx, c.rebind(query), argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if res != nil {
		*res = r
	}
	return nil
}

// Query implements dialect.ExecQuerier. v must be a *Rows. A connection
// pinned for session variables is released when the rows are closed.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, release, err := c.session(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, c.rebind(query), argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", errors.Join(err, release()))
	}
	*vr = Rows{rowsWithCloser{rows, release}}
	return nil
}

func nop() error { return nil }

// session returns the executor for a statement under ctx. Without session
// variables it is c itself. Otherwise the variables are set on a pinned
// connection, or on the transaction, and release resets and returns the
// pinned connection to the pool.
func (c Conn) session(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(varsKey{}).([]Var)
	if len(vars) == 0 {
		return c.ExecQuerier, nop, nil
	}
	var (
		ex      ExecQuerier
		release = nop
		local   bool
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex, local = e, true
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, release = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	var reset []string
	for _, v := range vars {
		query, args, err := setVar(c.dialect, v, local)
		if err == nil {
			_, err = ex.ExecContext(ctx, query, args...)
		}
		if err != nil {
			return nil, nil, errors.Join(err, release())
		}
		if stmt := resetVar(c.dialect, v.Name); !local && !slices.Contains(reset, stmt) {
			reset = append(reset, stmt)
		}
	}
	if len(reset) == 0 {
		return ex, release, nil
	}
	// The reset runs on its own deadline so that a canceled statement
	// still returns a clean connection.
	return ex, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, stmt := range reset {
			if _, err := ex.ExecContext(ctx, stmt); err != nil {
				return errors.Join(err, release())
			}
		}
		return release()
	}, nil
}

var (
	_ dialect.Driver = (*Driver)(nil)
	_ dialect.Tx     = (*Tx)(nil)
)

type (
	// Rows wraps sql.Rows to avoid copying its locks.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
	// NullString is an alias to sql.NullString.
	NullString = sql.NullString
)

// ColumnScanner is the subset of *sql.Rows used for scanning.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser releases a pinned connection after the rows close.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the rows and calls the closer.
func (r rowsWithCloser) Close() error {
	return errors.Join(r.ColumnScanner.Close(), r.closer())
}
