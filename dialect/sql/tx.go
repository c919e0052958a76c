package sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/relq/dialect"
)

// ErrTxStarted is returned by Transaction when the driver is already a
// transaction.
var ErrTxStarted = errors.New("dialect/sql: cannot start a transaction within a transaction")

// TxOption configures Transaction.
type TxOption func(*txConfig)

type txConfig struct {
	attempts int
	backoff  time.Duration
	opts     *TxOptions
	logger   *slog.Logger
}

// WithRetries re-runs the transaction body up to n more times when it fails
// with a transient lock error. The body must be safe to run again.
func WithRetries(n int) TxOption {
	return func(c *txConfig) {
		if n > 0 {
			c.attempts = n + 1
		}
	}
}

// WithBackoff sets the delay before the first retry. It grows linearly with
// every attempt. Default is 50ms.
func WithBackoff(d time.Duration) TxOption {
	return func(c *txConfig) {
		c.backoff = d
	}
}

// WithTxOptions sets the isolation level and read-only flag of the
// transaction.
func WithTxOptions(opts *TxOptions) TxOption {
	return func(c *txConfig) {
		c.opts = opts
	}
}

// WithTxLogger sets the logger used to report retries. Default is
// slog.Default().
func WithTxLogger(l *slog.Logger) TxOption {
	return func(c *txConfig) {
		c.logger = l
	}
}

// Transaction runs fn inside a transaction of drv. The transaction is
// committed when fn returns nil, and rolled back when it returns an error
// or panics. Transient lock failures re-run the whole body when retries
// are enabled with WithRetries.
func Transaction(ctx context.Context, drv dialect.Driver, fn func(context.Context, dialect.Tx) error, opts ...TxOption) error {
	if _, ok := drv.(dialect.Tx); ok {
		return ErrTxStarted
	}
	cfg := txConfig{attempts: 1, backoff: 50 * time.Millisecond, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := uuid.NewString()
	var err error
	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		if err = runTx(ctx, drv, cfg.opts, fn); err == nil || !IsRetryable(err) || attempt == cfg.attempts {
			break
		}
		cfg.logger.WarnContext(ctx, "retrying transaction", "tx_id", id, "attempt", attempt, "error", err)
		select {
		case <-time.After(cfg.backoff * time.Duration(attempt)):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
	}
	return err
}

// Transaction runs fn inside a transaction of the driver. See the
// package-level Transaction.
func (d *Driver) Transaction(ctx context.Context, fn func(context.Context, dialect.Tx) error, opts ...TxOption) error {
	return Transaction(ctx, d, fn, opts...)
}

func runTx(ctx context.Context, drv dialect.Driver, opts *TxOptions, fn func(context.Context, dialect.Tx) error) (err error) {
	tx, err := beginTx(ctx, drv, opts)
	if err != nil {
		return fmt.Errorf("dialect/sql: begin transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(ctx, tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("dialect/sql: rollback transaction: %w", rerr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("dialect/sql: commit transaction: %w", err)
	}
	return nil
}

func beginTx(ctx context.Context, drv dialect.Driver, opts *TxOptions) (dialect.Tx, error) {
	if opts != nil {
		if b, ok := drv.(interface {
			BeginTx(context.Context, *TxOptions) (dialect.Tx, error)
		}); ok {
			return b.BeginTx(ctx, opts)
		}
	}
	return drv.Tx(ctx)
}
