package relq

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/dialect/sql/sqlgraph"
)

// Query is the builder of entity queries. It wraps a *sql.Builder over the
// entity table and adds relation filters, eager loading and result
// caching. A Query is not safe for concurrent use; branch with Clone.
type Query struct {
	client *Client
	entity string
	pk     string
	b      *sql.Builder
	with   *pathNode
	ttl    time.Duration
	cached bool
	// related lists the other tables read by relation filters.
	related []string
}

// Builder returns the underlying builder, for clauses Query does not wrap.
func (q *Query) Builder() *sql.Builder { return q.b }

// Entity returns the queried entity.
func (q *Query) Entity() string { return q.entity }

// Clone returns a copy of the query that can be changed independently.
func (q *Query) Clone() *Query {
	c := *q
	c.b = q.b.Clone()
	c.with = q.with.clone()
	c.related = slices.Clone(q.related)
	return &c
}

// ToSQL compiles the query without eager loads.
func (q *Query) ToSQL() (string, []any, error) { return q.b.ToSQL() }

// Where adds an AND condition.
func (q *Query) Where(column, op string, value any) *Query {
	q.b.Where(column, op, value)
	return q
}

// OrWhere adds an OR condition.
func (q *Query) OrWhere(column, op string, value any) *Query {
	q.b.OrWhere(column, op, value)
	return q
}

// WhereIn adds "column IN (...)".
func (q *Query) WhereIn(column string, values any) *Query {
	q.b.WhereIn(column, values)
	return q
}

// WhereNotIn adds "column NOT IN (...)".
func (q *Query) WhereNotIn(column string, values any) *Query {
	q.b.WhereNotIn(column, values)
	return q
}

// WhereNull adds "column IS NULL".
func (q *Query) WhereNull(column string) *Query {
	q.b.WhereNull(column)
	return q
}

// WhereNotNull adds "column IS NOT NULL".
func (q *Query) WhereNotNull(column string) *Query {
	q.b.WhereNotNull(column)
	return q
}

// WhereBetween adds "column BETWEEN from AND to".
func (q *Query) WhereBetween(column string, from, to any) *Query {
	q.b.WhereBetween(column, from, to)
	return q
}

// WhereLike adds a pattern match on column.
func (q *Query) WhereLike(column, pattern string, caseSensitive bool) *Query {
	q.b.WhereLike(column, pattern, caseSensitive)
	return q
}

// WhereRaw adds a raw condition.
func (q *Query) WhereRaw(expr string, args ...any) *Query {
	q.b.WhereRaw(expr, args...)
	return q
}

// WhereNested adds a parenthesized group of conditions.
func (q *Query) WhereNested(fn func(*sql.Builder)) *Query {
	q.b.WhereNested(fn)
	return q
}

// Apply adds typed predicates.
func (q *Query) Apply(preds ...sql.Predicate) *Query {
	q.b.Apply(preds...)
	return q
}

// WhereBy adds "column = value", where column is mapped from an attribute
// name of the entity, e.g. WhereBy("Email", v) filters on "email".
func (q *Query) WhereBy(name string, value any) *Query {
	col, err := q.client.reg.Column(q.entity, name)
	if err != nil {
		q.b.AddError(err)
		return q
	}
	q.b.Where(col, "=", value)
	return q
}

// Select narrows the selected columns.
func (q *Query) Select(columns ...string) *Query {
	q.b.Select(columns...)
	return q
}

// OrderBy adds an ORDER BY clause.
func (q *Query) OrderBy(column, direction string) *Query {
	q.b.OrderBy(column, direction)
	return q
}

// OrderByDesc adds a descending ORDER BY clause.
func (q *Query) OrderByDesc(column string) *Query {
	q.b.OrderByDesc(column)
	return q
}

// Limit sets the maximum number of records.
func (q *Query) Limit(n int) *Query {
	q.b.Limit(n)
	return q
}

// Offset skips the first n records.
func (q *Query) Offset(n int) *Query {
	q.b.Offset(n)
	return q
}

// ForPage selects page (1-based) of perPage records.
func (q *Query) ForPage(page, perPage int) *Query {
	q.b.ForPage(page, perPage)
	return q
}

// With eager loads relation paths, such as "posts" or "posts.comments",
// on the records returned by Get, First, Find and Chunk. Every path
// segment costs one query whatever the number of records.
func (q *Query) With(paths ...string) *Query {
	for _, p := range paths {
		q.WithQuery(p, nil)
	}
	return q
}

// WithQuery eager loads path, constraining the query of its last segment
// with fn. Columns shared with a pivot table must be qualified.
func (q *Query) WithQuery(path string, fn func(*sql.Builder)) *Query {
	if q.with == nil {
		q.with = &pathNode{}
	}
	q.b.AddError(q.with.add(path, fn))
	return q
}

// WhereHas keeps records with at least one related record through path
// matching the conditions added by fn, which may be nil.
//
//	client.Query("User").WhereHas("posts.comments", func(b *sql.Builder) {
//	    b.Where("approved", "=", true)
//	})
func (q *Query) WhereHas(path string, fn func(*sql.Builder)) *Query {
	return q.relate(path, q.client.resolver.Exists(q.b, q.entity, path, fn, sql.And, false))
}

// OrWhereHas is like WhereHas, joined with OR.
func (q *Query) OrWhereHas(path string, fn func(*sql.Builder)) *Query {
	return q.relate(path, q.client.resolver.Exists(q.b, q.entity, path, fn, sql.Or, false))
}

// WhereDoesntHave keeps records without any related record through path
// matching the conditions added by fn.
func (q *Query) WhereDoesntHave(path string, fn func(*sql.Builder)) *Query {
	return q.relate(path, q.client.resolver.Exists(q.b, q.entity, path, fn, sql.And, true))
}

// OrWhereDoesntHave is like WhereDoesntHave, joined with OR.
func (q *Query) OrWhereDoesntHave(path string, fn func(*sql.Builder)) *Query {
	return q.relate(path, q.client.resolver.Exists(q.b, q.entity, path, fn, sql.Or, true))
}

// Has keeps records whose number of related records through path compares
// to n with op, e.g. Has("posts", ">=", 3).
func (q *Query) Has(path, op string, n int) *Query {
	return q.relate(path, q.client.resolver.Count(q.b, q.entity, path, nil, sql.And, op, n))
}

// WhereLinked joins path and filters on a column of the last related
// table. Each record is returned once.
func (q *Query) WhereLinked(path, column, op string, value any) *Query {
	return q.relate(path, q.client.resolver.Linked(q.b, q.entity, path, column, op, value))
}

// relate records err and the tables read through path. Flushing one of
// them invalidates the cached results of the query.
func (q *Query) relate(path string, err error) *Query {
	q.b.AddError(err)
	if err != nil {
		return q
	}
	c, err := q.client.resolver.Chain(q.entity, path)
	if err != nil {
		return q
	}
	for _, t := range c.Tables() {
		if t != q.table() && !slices.Contains(q.related, t) {
			q.related = append(q.related, t)
		}
	}
	return q
}

// Remember caches the rows returned by Get for ttl, when the client has a
// cache. Eager loaded relations are not cached. Results are flushed by
// writes to the entity table and to the tables read by WhereHas, Has and
// WhereLinked; tables joined directly through Builder are not tracked.
func (q *Query) Remember(ttl time.Duration) *Query {
	q.cached, q.ttl = true, ttl
	return q
}

// Get returns the matching records with their eager loaded relations.
func (q *Query) Get(ctx context.Context) (*Collection, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return nil, wrapQuery(q.entity, "select", err)
	}
	rows, err := q.rows(ctx)
	if err != nil {
		return nil, wrapQuery(q.entity, "select", err)
	}
	coll := q.client.records(q.entity, q.table(), q.pk, rows)
	if err := q.load(ctx, coll); err != nil {
		return nil, err
	}
	return coll, nil
}

// First returns the first matching record, or a NotFoundError.
func (q *Query) First(ctx context.Context) (*Record, error) {
	coll, err := q.Clone().Limit(1).Get(ctx)
	if err != nil {
		return nil, err
	}
	if coll.Len() == 0 {
		return nil, NewNotFoundError(q.entity)
	}
	return coll.First(), nil
}

// Find returns the record with the given primary key, or a NotFoundError.
func (q *Query) Find(ctx context.Context, id any) (*Record, error) {
	rec, err := q.Clone().Where(q.table()+"."+q.pk, "=", id).First(ctx)
	if IsNotFound(err) {
		return nil, NewNotFoundErrorWithID(q.entity, id)
	}
	return rec, err
}

// Only returns the single matching record. It fails with a NotFoundError
// when nothing matches and a NotSingularError when more than one does.
func (q *Query) Only(ctx context.Context) (*Record, error) {
	coll, err := q.Clone().Limit(2).Get(ctx)
	if err != nil {
		return nil, err
	}
	switch coll.Len() {
	case 0:
		return nil, NewNotFoundError(q.entity)
	case 1:
		return coll.First(), nil
	default:
		return nil, NewNotSingularError(q.entity)
	}
}

// Chunk runs the query page by page and calls fn with the records of each
// page, eager loads included. The query should be ordered. Returning
// sql.ErrStop from fn ends the iteration without error.
func (q *Query) Chunk(ctx context.Context, size int, fn func(context.Context, *Collection) error) error {
	q, err := q.authorize(ctx)
	if err != nil {
		return wrapQuery(q.entity, "chunk", err)
	}
	return wrapQuery(q.entity, "chunk", q.b.Chunk(ctx, size, q.chunkFunc(fn)))
}

// ChunkByID is like Chunk, paging on the primary key instead of offsets.
func (q *Query) ChunkByID(ctx context.Context, size int, fn func(context.Context, *Collection) error) error {
	q, err := q.authorize(ctx)
	if err != nil {
		return wrapQuery(q.entity, "chunk", err)
	}
	return wrapQuery(q.entity, "chunk", q.b.ChunkByID(ctx, size, q.table()+"."+q.pk, q.chunkFunc(fn)))
}

func (q *Query) chunkFunc(fn func(context.Context, *Collection) error) func(context.Context, []sql.Row) error {
	return func(ctx context.Context, rows []sql.Row) error {
		coll := q.client.records(q.entity, q.table(), q.pk, rows)
		if err := q.load(ctx, coll); err != nil {
			return err
		}
		return fn(ctx, coll)
	}
}

// Pluck returns a single column of every matching record.
func (q *Query) Pluck(ctx context.Context, column string) ([]any, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return nil, wrapQuery(q.entity, "pluck", err)
	}
	v, err := q.b.Pluck(ctx, column)
	return v, wrapQuery(q.entity, "pluck", err)
}

// Exists reports whether any record matches.
func (q *Query) Exists(ctx context.Context) (bool, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return false, wrapQuery(q.entity, "exists", err)
	}
	ok, err := q.b.Exists(ctx)
	return ok, wrapQuery(q.entity, "exists", err)
}

// Count returns the number of matching records. Eager loads are ignored by
// aggregates.
func (q *Query) Count(ctx context.Context) (int64, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return 0, wrapQuery(q.entity, "count", err)
	}
	n, err := q.b.Count(ctx)
	return n, wrapQuery(q.entity, "count", err)
}

// Sum returns the sum of column.
func (q *Query) Sum(ctx context.Context, column string) (float64, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return 0, wrapQuery(q.entity, "sum", err)
	}
	v, err := q.b.Sum(ctx, column)
	return v, wrapQuery(q.entity, "sum", err)
}

// Avg returns the average of column.
func (q *Query) Avg(ctx context.Context, column string) (float64, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return 0, wrapQuery(q.entity, "avg", err)
	}
	v, err := q.b.Avg(ctx, column)
	return v, wrapQuery(q.entity, "avg", err)
}

// Min returns the smallest value of column.
func (q *Query) Min(ctx context.Context, column string) (any, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return nil, wrapQuery(q.entity, "min", err)
	}
	v, err := q.b.Min(ctx, column)
	return v, wrapQuery(q.entity, "min", err)
}

// Max returns the largest value of column.
func (q *Query) Max(ctx context.Context, column string) (any, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return nil, wrapQuery(q.entity, "max", err)
	}
	v, err := q.b.Max(ctx, column)
	return v, wrapQuery(q.entity, "max", err)
}

// StdDev returns the sample standard deviation of column.
func (q *Query) StdDev(ctx context.Context, column string) (float64, error) {
	q, err := q.authorize(ctx)
	if err != nil {
		return 0, wrapQuery(q.entity, "stddev", err)
	}
	v, err := q.b.StdDev(ctx, column)
	return v, wrapQuery(q.entity, "stddev", err)
}

// Create inserts a record and returns it. Unless values holds the primary
// key, the generated key is read back and set on the record.
func (q *Query) Create(ctx context.Context, values sql.Row) (*Record, error) {
	if err := q.b.Err(); err != nil {
		return nil, NewMutationError(q.entity, "create", err)
	}
	if _, err := q.authorizeMutation(ctx, OpCreate, values); err != nil {
		return nil, NewMutationError(q.entity, "create", err)
	}
	b := q.b.New(q.table())
	rec := NewRecord(q.entity, q.table(), q.pk, values)
	if _, ok := values[q.pk]; ok {
		if _, err := b.Insert(ctx, values); err != nil {
			return nil, q.mutationError("create", err)
		}
	} else {
		id, err := b.InsertGetID(ctx, values, q.pk)
		if err != nil {
			return nil, q.mutationError("create", err)
		}
		rec.Set(q.pk, id)
	}
	q.flush(ctx)
	return rec, nil
}

// Update sets values on the matching records and returns their number.
func (q *Query) Update(ctx context.Context, values sql.Row) (int64, error) {
	q, err := q.authorizeMutation(ctx, OpUpdate, values)
	if err != nil {
		return 0, NewMutationError(q.entity, "update", err)
	}
	n, err := q.b.Update(ctx, values)
	if err != nil {
		return 0, q.mutationError("update", err)
	}
	q.flush(ctx)
	return n, nil
}

// Delete removes the matching records and returns their number.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	q, err := q.authorizeMutation(ctx, OpDelete, nil)
	if err != nil {
		return 0, NewMutationError(q.entity, "delete", err)
	}
	n, err := q.b.Delete(ctx)
	if err != nil {
		return 0, q.mutationError("delete", err)
	}
	q.flush(ctx)
	return n, nil
}

func (q *Query) mutationError(op string, err error) error {
	if sqlgraph.IsConstraintError(err) {
		err = sqlgraph.NewConstraintError("constraint failed", err)
	}
	return NewMutationError(q.entity, op, err)
}

// flush drops the cached results of the table after a write. Inside a
// transaction the table is recorded and flushed once it commits.
func (q *Query) flush(ctx context.Context) {
	if q.client.written != nil {
		q.client.written.add(q.table())
		return
	}
	if err := q.client.Flush(ctx, q.table()); err != nil {
		q.client.log.WarnContext(ctx, "cache flush failed", "table", q.table(), "error", err)
	}
}

func (q *Query) table() string { return q.b.TableName() }

func (q *Query) load(ctx context.Context, coll *Collection) error {
	if q.with == nil || coll.Len() == 0 {
		return nil
	}
	return wrapQuery(q.entity, "load", q.client.load(ctx, coll.Records, q.entity, q.with))
}

// rows runs the query, through the cache when Remember was called.
func (q *Query) rows(ctx context.Context) ([]sql.Row, error) {
	cache := q.client.cache
	if !q.cached || cache == nil {
		return q.b.Get(ctx)
	}
	query, args, err := q.b.ToSQL()
	if err != nil {
		return nil, err
	}
	key := CacheKey{
		Table:     q.table(),
		Operation: "select",
		SQL:       query,
		Args:      args,
		Related:   q.generations(ctx, cache),
	}.String()
	if b, err := cache.Get(ctx, key); err != nil {
		q.client.log.WarnContext(ctx, "cache read failed", "key", key, "error", err)
	} else if b != nil {
		if rows, err := decodeRows(b); err == nil {
			return rows, nil
		}
	}
	rows, err := q.b.Get(ctx)
	if err != nil {
		return nil, err
	}
	if b, err := encodeRows(rows); err == nil {
		if err := cache.Set(ctx, key, b, q.ttl); err != nil {
			q.client.log.WarnContext(ctx, "cache write failed", "key", key, "error", err)
		}
	}
	return rows, nil
}

// generations returns a "table=token" entry per related table. Flushing a
// table deletes its token, so keys derived from the old one are not read
// again.
func (q *Query) generations(ctx context.Context, cache Cache) []string {
	gens := make([]string, 0, len(q.related))
	for _, t := range q.related {
		key := t + ":generation"
		b, err := cache.Get(ctx, key)
		if err != nil || b == nil {
			b = []byte(uuid.NewString())
			if err := cache.Set(ctx, key, b, 0); err != nil {
				q.client.log.WarnContext(ctx, "cache write failed", "key", key, "error", err)
			}
		}
		gens = append(gens, t+"="+string(b))
	}
	return gens
}
