package sql

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syssam/relq/dialect"
)

// Statement is a statement seen by a StatsDriver or a DebugDriver.
type Statement struct {
	// Op is one of query, exec, begin, commit or rollback.
	Op    string
	Query string
	Args  []any
	// Tx reports whether the statement runs inside a transaction.
	Tx bool
}

// String formats the statement for logs.
func (s Statement) String() string {
	switch s.Op {
	case "query", "exec":
		op := s.Op
		if s.Tx {
			op = "tx " + op
		}
		return fmt.Sprintf("%s: %s args: %v", op, s.Query, s.Args)
	}
	return s.Op + " transaction"
}

// interceptor wraps run, which sends st to the database.
type interceptor func(ctx context.Context, st Statement, run func() error) error

// observer passes the statements of a driver or a transaction through an
// interceptor.
type observer struct {
	intercept interceptor
	inTx      bool
}

func (o observer) query(ctx context.Context, ex dialect.ExecQuerier, query string, args, v any) error {
	argv, _ := args.([]any)
	return o.intercept(ctx, Statement{Op: "query", Query: query, Args: argv, Tx: o.inTx}, func() error {
		return ex.Query(ctx, query, args, v)
	})
}

func (o observer) exec(ctx context.Context, ex dialect.ExecQuerier, query string, args, v any) error {
	argv, _ := args.([]any)
	return o.intercept(ctx, Statement{Op: "exec", Query: query, Args: argv, Tx: o.inTx}, func() error {
		return ex.Exec(ctx, query, args, v)
	})
}

func (o observer) begin(ctx context.Context, drv *Driver, opts *TxOptions) (dialect.Tx, error) {
	var tx dialect.Tx
	err := o.intercept(ctx, Statement{Op: "begin"}, func() (err error) {
		tx, err = drv.BeginTx(ctx, opts)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &observedTx{Tx: tx, observer: observer{intercept: o.intercept, inTx: true}, grammar: drv.Grammar()}, nil
}

// observedTx is a transaction started by a StatsDriver or a DebugDriver.
type observedTx struct {
	dialect.Tx
	observer
	grammar Grammar
}

func (tx *observedTx) Grammar() Grammar { return tx.grammar }

func (tx *observedTx) Table(name string) *Builder { return Table(tx, name) }

func (tx *observedTx) Query(ctx context.Context, query string, args, v any) error {
	return tx.query(ctx, tx.Tx, query, args, v)
}

func (tx *observedTx) Exec(ctx context.Context, query string, args, v any) error {
	return tx.exec(ctx, tx.Tx, query, args, v)
}

func (tx *observedTx) Commit() error {
	return tx.intercept(context.Background(), Statement{Op: "commit", Tx: true}, tx.Tx.Commit)
}

func (tx *observedTx) Rollback() error {
	return tx.intercept(context.Background(), Statement{Op: "rollback", Tx: true}, tx.Tx.Rollback)
}

// QueryStats holds the counters of a StatsDriver. The counters are safe
// for concurrent use.
type QueryStats struct {
	TotalQueries atomic.Int64
	TotalExecs   atomic.Int64
	// TotalDuration is in nanoseconds.
	TotalDuration atomic.Int64
	SlowQueries   atomic.Int64
	Errors        atomic.Int64

	mu       sync.Mutex
	keywords map[string]int64
}

func (s *QueryStats) count(query string) {
	kw := statementVerb(query)
	s.mu.Lock()
	if s.keywords == nil {
		s.keywords = make(map[string]int64)
	}
	s.keywords[kw]++
	s.mu.Unlock()
}

// Statements returns the number of statements run per leading keyword,
// e.g. SELECT or INSERT.
func (s *QueryStats) Statements() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.keywords)
}

// statementVerb returns the upper-cased leading keyword of query.
func statementVerb(query string) string {
	query = strings.TrimLeft(query, " \t\n(")
	if i := strings.IndexAny(query, " \t\n"); i > 0 {
		query = query[:i]
	}
	return strings.ToUpper(query)
}

// Stats returns a snapshot of the counters.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
		Statements:    s.Statements(),
	}
}

// Reset zeroes the counters.
func (s *QueryStats) Reset() {
	for _, c := range []*atomic.Int64{&s.TotalQueries, &s.TotalExecs, &s.TotalDuration, &s.SlowQueries, &s.Errors} {
		c.Store(0)
	}
	s.mu.Lock()
	s.keywords = nil
	s.mu.Unlock()
}

// StatsSnapshot is a copy of the counters at one point in time.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
	Statements    map[string]int64
}

// AvgQueryDuration returns the mean duration of queries and execs.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	if n := s.TotalQueries + s.TotalExecs; n > 0 {
		return s.TotalDuration / time.Duration(n)
	}
	return 0
}

func (s StatsSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(), s.SlowQueries, s.Errors)
	for _, kw := range slices.Sorted(maps.Keys(s.Statements)) {
		fmt.Fprintf(&b, " %s=%d", strings.ToLower(kw), s.Statements[kw])
	}
	return b.String()
}

// SlowQueryHook is called with each statement slower than the threshold
// of a StatsDriver.
type SlowQueryHook func(ctx context.Context, query string, args []any, took time.Duration)

// StatsDriver is a Driver that counts its statements and reports the slow
// ones. Statements of its transactions are counted too.
type StatsDriver struct {
	*Driver
	observer
	stats     *QueryStats
	threshold atomic.Int64
	hook      SlowQueryHook
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement is slow. The
// default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold.Store(int64(d)) }
}

// WithSlowQueryHook sets the function called with slow statements.
func WithSlowQueryHook(hook SlowQueryHook) StatsOption {
	return func(s *StatsDriver) { s.hook = hook }
}

// WithSlowQueryLog logs slow statements to logger at warn level. The
// bound values are not logged, only their count.
func WithSlowQueryLog(logger *slog.Logger) StatsOption {
	if logger == nil {
		logger = slog.Default()
	}
	return WithSlowQueryHook(func(ctx context.Context, query string, args []any, took time.Duration) {
		logger.WarnContext(ctx, "slow query detected", "duration", took, "query", query, "args", len(args))
	})
}

// NewStatsDriver returns drv with statement statistics.
//
//	drv := sql.NewStatsDriver(base,
//		sql.WithSlowThreshold(200*time.Millisecond),
//		sql.WithSlowQueryLog(logger),
//	)
//	users, err := drv.Table("users").Where("active", "=", true).Get(ctx)
//	fmt.Println(drv.QueryStats().Stats())
func NewStatsDriver(drv *Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{Driver: drv, stats: &QueryStats{}}
	s.threshold.Store(int64(100 * time.Millisecond))
	for _, opt := range opts {
		opt(s)
	}
	s.observer = observer{intercept: s.record}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// SlowThreshold returns the slow statement threshold.
func (d *StatsDriver) SlowThreshold() time.Duration {
	return time.Duration(d.threshold.Load())
}

// SetSlowThreshold changes the slow statement threshold of a running
// driver.
func (d *StatsDriver) SetSlowThreshold(threshold time.Duration) {
	d.threshold.Store(int64(threshold))
}

func (d *StatsDriver) record(ctx context.Context, st Statement, run func() error) error {
	start := time.Now()
	err := run()
	took := time.Since(start)
	switch st.Op {
	case "query":
		d.stats.TotalQueries.Add(1)
	case "exec":
		d.stats.TotalExecs.Add(1)
	default:
		return err
	}
	d.stats.TotalDuration.Add(int64(took))
	d.stats.count(st.Query)
	if err != nil {
		d.stats.Errors.Add(1)
	}
	if took > d.SlowThreshold() {
		d.stats.SlowQueries.Add(1)
		if d.hook != nil {
			d.hook(ctx, st.Query, st.Args, took)
		}
	}
	return err
}

func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.query(ctx, d.Driver, query, args, v)
}

func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.exec(ctx, d.Driver, query, args, v)
}

// Table returns a query builder whose statements are counted.
func (d *StatsDriver) Table(name string) *Builder { return Table(d, name) }

func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) { return d.BeginTx(ctx, nil) }

// BeginTx starts a transaction whose statements are counted.
func (d *StatsDriver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	return d.begin(ctx, d.Driver, opts)
}

// Transaction runs fn in a transaction whose statements are counted.
func (d *StatsDriver) Transaction(ctx context.Context, fn func(context.Context, dialect.Tx) error, opts ...TxOption) error {
	return Transaction(ctx, d, fn, opts...)
}

// DebugDriver is a Driver that logs every statement before it runs.
type DebugDriver struct {
	*Driver
	observer
	log func(context.Context, ...any)
}

// DebugOption configures a DebugDriver.
type DebugOption func(*DebugDriver)

// DebugWithLog sets the log function. It receives the formatted Statement.
func DebugWithLog(fn func(context.Context, ...any)) DebugOption {
	return func(d *DebugDriver) { d.log = fn }
}

// NewDebugDriver returns drv with statement logging. Without DebugWithLog
// statements go to the default slog logger.
func NewDebugDriver(drv *Driver, opts ...DebugOption) *DebugDriver {
	d := &DebugDriver{
		Driver: drv,
		log: func(ctx context.Context, v ...any) {
			slog.InfoContext(ctx, fmt.Sprint(v...))
		},
	}
	for _, opt := range opts {
		opt(d)
	}
	d.observer = observer{intercept: func(ctx context.Context, st Statement, run func() error) error {
		d.log(ctx, st.String())
		return run()
	}}
	return d
}

func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	return d.query(ctx, d.Driver, query, args, v)
}

func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	return d.exec(ctx, d.Driver, query, args, v)
}

// Table returns a query builder whose statements are logged.
func (d *DebugDriver) Table(name string) *Builder { return Table(d, name) }

func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) { return d.BeginTx(ctx, nil) }

// BeginTx starts a transaction whose statements are logged.
func (d *DebugDriver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	return d.begin(ctx, d.Driver, opts)
}

// Transaction runs fn in a transaction whose statements are logged.
func (d *DebugDriver) Transaction(ctx context.Context, fn func(context.Context, dialect.Tx) error, opts ...TxOption) error {
	return Transaction(ctx, d, fn, opts...)
}

var (
	_ dialect.Driver = (*StatsDriver)(nil)
	_ dialect.Driver = (*DebugDriver)(nil)
	_ dialect.Tx     = (*observedTx)(nil)
)
