package sql

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func itemsDB(t *testing.T) *Driver {
	return openSQLite(t,
		"CREATE TABLE items (id INTEGER PRIMARY KEY, name TEXT NOT NULL)",
		"INSERT INTO items (name) VALUES ('a'), ('b'), ('c'), ('d'), ('e'), ('f'), ('g')",
	)
}

func ids(rows []Row) []int64 {
	out := make([]int64, len(rows))
	for i, r := range rows {
		out[i] = r["id"].(int64)
	}
	return out
}

func TestBuilder_Chunk(t *testing.T) {
	ctx := context.Background()
	drv := itemsDB(t)

	t.Run("pages", func(t *testing.T) {
		var pages [][]int64
		err := drv.Table("items").OrderBy("id", "asc").Chunk(ctx, 3, func(_ context.Context, rows []Row) error {
			pages = append(pages, ids(rows))
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, [][]int64{{1, 2, 3}, {4, 5, 6}, {7}}, pages)
	})
	t.Run("stop", func(t *testing.T) {
		calls := 0
		err := drv.Table("items").OrderBy("id", "asc").Chunk(ctx, 3, func(context.Context, []Row) error {
			calls++
			if calls == 2 {
				return ErrStop
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})
	t.Run("error", func(t *testing.T) {
		err := drv.Table("items").Chunk(ctx, 3, func(context.Context, []Row) error {
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
	})
	t.Run("invalid size", func(t *testing.T) {
		err := drv.Table("items").Chunk(ctx, 0, func(context.Context, []Row) error { return nil })
		assert.True(t, IsConfigError(err))
	})
}

func TestBuilder_ChunkByID(t *testing.T) {
	ctx := context.Background()
	drv := itemsDB(t)

	var pages [][]int64
	err := drv.Table("items").Where("name", "!=", "b").ChunkByID(ctx, 2, "id", func(_ context.Context, rows []Row) error {
		pages = append(pages, ids(rows))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{1, 3}, {4, 5}, {6, 7}}, pages)

	err = drv.Table("items").Select("name").ChunkByID(ctx, 2, "id", func(context.Context, []Row) error { return nil })
	assert.True(t, IsConfigError(err), "the paging column must be selected")
}

func TestBuilder_Each(t *testing.T) {
	ctx := context.Background()
	drv := itemsDB(t)

	var names []string
	err := drv.Table("items").OrderByDesc("id").Each(ctx, func(r Row) error {
		names = append(names, r["name"].(string))
		if len(names) == 3 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"g", "f", "e"}, names)
}

func TestBuilder_ChunkConcurrent(t *testing.T) {
	ctx := context.Background()
	drv := itemsDB(t)

	t.Run("all rows", func(t *testing.T) {
		var (
			mu   sync.Mutex
			seen []int
			sum  atomic.Int64
		)
		err := drv.Table("items").OrderBy("id", "asc").ChunkConcurrent(ctx, 3, 2, func(_ context.Context, r Row) error {
			id := r["id"].(int64)
			sum.Add(id)
			mu.Lock()
			seen = append(seen, int(id))
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		sort.Ints(seen)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7}, seen)
		assert.EqualValues(t, 28, sum.Load())
	})
	t.Run("stop", func(t *testing.T) {
		var calls atomic.Int64
		err := drv.Table("items").OrderBy("id", "asc").ChunkConcurrent(ctx, 2, 1, func(_ context.Context, r Row) error {
			calls.Add(1)
			if r["id"].(int64) == 3 {
				return ErrStop
			}
			return nil
		})
		require.NoError(t, err)
		assert.Less(t, calls.Load(), int64(7))
	})
	t.Run("error", func(t *testing.T) {
		boom := errors.New("boom")
		err := drv.Table("items").ChunkConcurrent(ctx, 2, 4, func(context.Context, Row) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
	})
}
