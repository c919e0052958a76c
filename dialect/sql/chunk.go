package sql

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"
)

// Chunk runs the query page by page with LIMIT and OFFSET and calls fn with
// every non-empty page, in order. Returning ErrStop from fn ends the
// iteration without error. The query should be ordered for pages to be
// stable.
func (b *Builder) Chunk(ctx context.Context, size int, fn func(context.Context, []Row) error) error {
	if size <= 0 {
		return NewConfigError("chunk size", size, "must be positive")
	}
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rows, err := b.Clone().ForPage(page, size).Get(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(ctx, rows); err != nil {
			return stopped(err)
		}
		if len(rows) < size {
			return nil
		}
	}
}

// ChunkByID pages through the query by the values of column, which must be
// unique and sortable. It is not affected by rows inserted or deleted
// between pages, unlike Chunk.
func (b *Builder) ChunkByID(ctx context.Context, size int, column string, fn func(context.Context, []Row) error) error {
	if size <= 0 {
		return NewConfigError("chunk size", size, "must be positive")
	}
	if !isValidColumn(column) {
		return NewConfigError("chunk column", column, "invalid identifier")
	}
	var (
		key  = columnKey(column)
		last any
	)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q := b.Clone().Reorder().OrderBy(column, "asc").Limit(size)
		q.offset = nil
		if last != nil {
			q.Where(column, ">", last)
		}
		rows, err := q.Get(ctx)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		if err := fn(ctx, rows); err != nil {
			return stopped(err)
		}
		if len(rows) < size {
			return nil
		}
		v, ok := rows[len(rows)-1][key]
		if !ok || v == nil {
			return NewConfigError("chunk column", column, "missing from the selected columns")
		}
		last = v
	}
}

// Each streams the result set row by row to fn.
func (b *Builder) Each(ctx context.Context, fn func(Row) error) error {
	query, args, err := b.ToSQL()
	if err != nil {
		return err
	}
	rows, err := b.query(ctx, "select", query, args)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		r, err := ScanRow(rows)
		if err != nil {
			return execError("select", b.table, err)
		}
		if err := fn(r); err != nil {
			return stopped(err)
		}
	}
	return execError("select", b.table, rows.Err())
}

// ChunkConcurrent pages through the query like Chunk, fetching the next
// page while the rows of the current one are processed by at most limit
// goroutines. Pages are processed in order; rows within a page are not.
// Returning ErrStop from fn ends the iteration after the page in flight.
func (b *Builder) ChunkConcurrent(ctx context.Context, size, limit int, fn func(context.Context, Row) error) error {
	if limit <= 0 {
		limit = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	pages := make(chan []Row, 1)
	g.Go(func() error {
		defer close(pages)
		return b.Chunk(ctx, size, func(ctx context.Context, rows []Row) error {
			select {
			case pages <- rows:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	})
	g.Go(func() error {
		for rows := range pages {
			pg, pctx := errgroup.WithContext(ctx)
			pg.SetLimit(limit)
			for _, r := range rows {
				pg.Go(func() error { return fn(pctx, r) })
			}
			if err := pg.Wait(); err != nil {
				return err
			}
		}
		return nil
	})
	return stopped(g.Wait())
}

func stopped(err error) error {
	if errors.Is(err, ErrStop) {
		return nil
	}
	return err
}
