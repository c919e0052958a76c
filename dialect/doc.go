// Package dialect provides the database dialect abstraction for relq.
//
// A dialect names the SQL engine behind a connection and selects the
// grammar used to render driver-specific SQL fragments.
//
// # Supported Dialects
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// Tx is an ExecQuerier with Commit and Rollback. Both Driver and Tx satisfy
// ExecQuerier, which is all a query builder needs to run statements.
//
// # Usage
//
//	import (
//	    "github.com/syssam/relq/dialect"
//	    "github.com/syssam/relq/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	rows, err := drv.Table("users").Where("status", "=", "active").Get(ctx)
//
// # Sub-packages
//
//   - dialect/sql: driver, grammars, query builder and aggregates
//   - dialect/sql/sqlgraph: relationship resolution and constraint errors
package dialect
