package relq

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/syssam/relq/dialect"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/dialect/sql/sqlgraph"
	"github.com/syssam/relq/schema"
)

// Client runs entity queries described by a schema registry.
type Client struct {
	drv       dialect.Driver
	ex        dialect.ExecQuerier
	reg       *schema.Registry
	resolver  *sqlgraph.Resolver
	log       *slog.Logger
	cache     Cache
	policies  map[string]Policy
	loadLimit int
	inTx      bool
	// written is set on transaction clients.
	written *writeSet
}

// writeSet collects the tables written inside a transaction.
type writeSet struct {
	mu     sync.Mutex
	tables []string
}

func (w *writeSet) add(table string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !slices.Contains(w.tables, table) {
		w.tables = append(w.tables, table)
	}
}

func (w *writeSet) list() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return slices.Clone(w.tables)
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger of the client. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithCache enables Query.Remember with the given cache.
func WithCache(cache Cache) Option {
	return func(c *Client) { c.cache = cache }
}

// WithLoadConcurrency bounds the number of relation queries an eager load
// runs at once. Default is 4; values below 1 are ignored.
func WithLoadConcurrency(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.loadLimit = n
		}
	}
}

// NewClient returns a client running on drv.
//
//	drv, _ := sql.Open(dialect.SQLite, "file:app.db")
//	client := relq.NewClient(drv, registry, relq.WithLoadConcurrency(8))
//	users, err := client.Query("User").With("posts.comments").Get(ctx)
func NewClient(drv dialect.Driver, reg *schema.Registry, opts ...Option) *Client {
	c := &Client{
		drv:       drv,
		ex:        drv,
		reg:       reg,
		resolver:  sqlgraph.NewResolver(reg),
		log:       slog.Default(),
		loadLimit: 4,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Driver returns the driver of the client.
func (c *Client) Driver() dialect.Driver { return c.drv }

// Registry returns the schema registry of the client.
func (c *Client) Registry() *schema.Registry { return c.reg }

// Query starts a query on the records of entity.
func (c *Client) Query(entity string) *Query {
	q := &Query{client: c, entity: entity}
	e, err := c.reg.Entity(entity)
	if err != nil {
		g, _ := sql.GrammarOf(c.ex)
		q.b = sql.NewBuilder(c.ex, g).AddError(err)
		return q
	}
	q.pk = e.PrimaryKey
	table, _ := c.reg.Table(entity)
	q.b = sql.Table(c.ex, table)
	return q
}

// Transaction runs fn with a client bound to a new transaction. The
// transaction is committed when fn returns nil and rolled back otherwise.
// Query results are not cached inside the transaction, and the tables it
// writes are flushed from the cache after the commit.
func (c *Client) Transaction(ctx context.Context, fn func(context.Context, *Client) error, opts ...sql.TxOption) error {
	if c.inTx {
		return sql.ErrTxStarted
	}
	written := &writeSet{}
	err := sql.Transaction(ctx, c.drv, func(ctx context.Context, tx dialect.Tx) error {
		cc := *c
		cc.ex, cc.cache, cc.inTx, cc.written = tx, nil, true, written
		return fn(ctx, &cc)
	}, append([]sql.TxOption{sql.WithTxLogger(c.log)}, opts...)...)
	if err != nil {
		return err
	}
	if tables := written.list(); len(tables) > 0 {
		if err := c.Flush(ctx, tables...); err != nil {
			c.log.WarnContext(ctx, "cache flush failed", "tables", tables, "error", err)
		}
	}
	return nil
}

// Flush removes the cached results of the given tables. Without tables the
// whole cache is cleared.
func (c *Client) Flush(ctx context.Context, tables ...string) error {
	if c.cache == nil {
		return nil
	}
	if len(tables) == 0 {
		return c.cache.Clear(ctx)
	}
	for _, t := range tables {
		if err := c.cache.DeletePrefix(ctx, t+":"); err != nil {
			return err
		}
	}
	return nil
}

// Load eager loads relation paths on the records of coll, which must share
// one entity. See Query.With.
func (c *Client) Load(ctx context.Context, coll *Collection, paths ...string) error {
	if coll.Len() == 0 || len(paths) == 0 {
		return nil
	}
	root := &pathNode{}
	for _, p := range paths {
		if err := root.add(p, nil); err != nil {
			return NewQueryError(coll.Entity, "load", err)
		}
	}
	return wrapQuery(coll.Entity, "load", c.load(ctx, coll.Records, coll.Entity, root))
}

// records converts scanned rows of entity to records.
func (c *Client) records(entity, table, pk string, rows []sql.Row) *Collection {
	coll := &Collection{Entity: entity, Records: make([]*Record, len(rows))}
	for i, r := range rows {
		coll.Records[i] = NewRecord(entity, table, pk, r)
	}
	return coll
}
