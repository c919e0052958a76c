package sql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
)

// Sentinel errors.
var (
	// ErrStop is returned by an iteration callback to end the iteration
	// early. Chunk, Each and ChunkConcurrent treat it as a clean exit.
	ErrStop = errors.New("dialect/sql: stop iteration")

	// ErrNoRows is returned by First and Value when the query matched nothing.
	ErrNoRows = errors.New("dialect/sql: no rows in result set")

	// ErrInvalidConfig is matched by every ConfigError.
	ErrInvalidConfig = errors.New("dialect/sql: invalid configuration")
)

// ConfigError reports a query that cannot be built: an unsupported driver,
// an invalid identifier or operator, an upsert without columns to update,
// or a raw fragment whose placeholders do not match its bindings.
type ConfigError struct {
	Option  string
	Value   any
	Message string
	Err     error // underlying cause, if any
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("dialect/sql: config error for %q (value: %v): %s", e.Option, e.Value, e.Message)
	}
	return fmt.Sprintf("dialect/sql: config error for %q: %s", e.Option, e.Message)
}

// Is reports whether the target matches ErrInvalidConfig.
func (e *ConfigError) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Unwrap returns the underlying cause.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(option string, value any, message string) *ConfigError {
	return &ConfigError{Option: option, Value: value, Message: message}
}

// IsConfigError returns true if the error is a ConfigError.
func IsConfigError(err error) bool {
	var e *ConfigError
	return errors.As(err, &e)
}

// ExecError wraps a driver failure with the operation and table it belongs to.
type ExecError struct {
	Op    string // select, insert, update, delete, upsert, aggregate, ...
	Table string
	Err   error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Table == "" {
		return fmt.Sprintf("dialect/sql: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("dialect/sql: %s %s: %v", e.Op, e.Table, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *ExecError) Unwrap() error {
	return e.Err
}

func execError(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &ExecError{Op: op, Table: table, Err: err}
}

// MySQL error numbers for transient lock failures.
const (
	mysqlDeadlock    = 1213
	mysqlLockTimeout = 1205
)

// PostgreSQL SQLSTATE codes for transient lock failures.
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgLockNotAvailable     = "55P03"
)

// SQLite primary result codes for transient lock failures.
const (
	sqliteBusy   = 5
	sqliteLocked = 6
)

// IsRetryable reports whether err is a transient lock failure (deadlock,
// lock wait timeout, serialization failure or a busy database) after which
// re-running the whole transaction may succeed.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockTimeout
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return isRetryableState(string(pqErr.Code))
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isRetryableState(pgErr.Code)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code() & 0xff
		return code == sqliteBusy || code == sqliteLocked
	}
	msg := err.Error()
	for _, s := range []string{"Deadlock found", "Lock wait timeout", "deadlock detected", "could not serialize access", "database is locked"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func isRetryableState(code string) bool {
	switch code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable:
		return true
	}
	return false
}
