// Package sql provides the SQL driver, the per-dialect grammars and the
// query builder of relq.
//
// A query is a list of conditions accumulated by a Builder and compiled to
// SQL text with "?" placeholders and an ordered binding list. The driver
// rebinds placeholders for PostgreSQL ($1, $2, ...) just before execution,
// so ToSQL output is the same for every dialect except for the fragments
// rendered by the Grammar.
//
// # Builder
//
//	drv, err := sql.Open(dialect.MySQL, dsn)
//	rows, err := drv.Table("users").
//	    Where("status", "=", "active").
//	    WhereNested(func(b *sql.Builder) {
//	        b.Where("age", ">", 18).OrWhere("verified", "=", true)
//	    }).
//	    OrderByDesc("created_at").
//	    Limit(10).
//	    Get(ctx)
//
// Compile-only builders are created with Dialect:
//
//	query, args, err := sql.Dialect(dialect.Postgres).Table("users").
//	    WhereIn("id", []int{1, 2, 3}).
//	    ToSQL()
//	// SELECT * FROM users WHERE id IN (?, ?, ?)
//
// Errors found while building (invalid identifiers, unsupported operators,
// raw fragments whose placeholders do not match their bindings) are
// collected and returned by the terminal call as a *ConfigError.
//
// # Conditions
//
// An empty IN list compiles to "1 = 0" and an empty NOT IN list to "1 = 1".
// Nested groups are parenthesised, and empty nested groups are dropped.
// Bindings appear in the order their placeholders appear in the text,
// including bindings of SelectRaw and OrderByRaw fragments.
//
// # Grammars
//
// MySQLGrammar, PostgresGrammar and SQLiteGrammar render random ordering,
// LIMIT/OFFSET, date parts, JSON containment, group concatenation,
// variance, case-aware LIKE and upserts. SQLite has no square root, so
// StdDev selects the variance and takes the root in Go.
//
// # Aggregates
//
//	n, err := drv.Table("orders").Where("paid", "=", true).Count(ctx)
//	sd, err := drv.Table("orders").StdDev(ctx, "total")
//
// Aggregates run on a copy of the builder and never change it.
//
// # Iteration and transactions
//
//	err := drv.Table("users").OrderBy("id", "asc").Chunk(ctx, 500, func(ctx context.Context, rows []sql.Row) error {
//	    return process(rows)
//	})
//
//	err = drv.Transaction(ctx, func(ctx context.Context, tx dialect.Tx) error {
//	    _, err := sql.Table(tx, "accounts").Where("id", "=", 1).Increment(ctx, "balance", 10)
//	    return err
//	}, sql.WithRetries(3))
//
// Returning ErrStop from an iteration callback ends the iteration without
// error. Transactions re-run their whole body on deadlocks, lock timeouts
// and serialization failures when retries are enabled.
package sql
