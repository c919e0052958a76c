package cache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq"
	"github.com/syssam/relq/cache"
	"github.com/syssam/relq/dialect"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/schema"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Add(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := cache.NewMemory(cache.WithClock(clk.Now), cache.WithSweepInterval(0))
	defer m.Close()

	v, err := m.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	value := []byte("rows")
	require.NoError(t, m.Set(ctx, "users:select:a", value, time.Minute))
	require.NoError(t, m.Set(ctx, "users:select:b", []byte("b"), 0))
	require.NoError(t, m.Set(ctx, "posts:select:a", []byte("p"), 0))
	value[0] = 'R'
	v, err = m.Get(ctx, "users:select:a")
	require.NoError(t, err)
	assert.Equal(t, []byte("rows"), v, "values are copied")

	clk.Add(2 * time.Minute)
	v, err = m.Get(ctx, "users:select:a")
	require.NoError(t, err)
	assert.Nil(t, v, "expired")
	v, err = m.Get(ctx, "users:select:b")
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), v, "no ttl never expires")

	require.NoError(t, m.DeletePrefix(ctx, "users:"))
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Delete(ctx, "posts:select:a"))
	assert.Zero(t, m.Len())

	require.NoError(t, m.Set(ctx, "x", nil, 0))
	require.NoError(t, m.Clear(ctx))
	assert.Zero(t, m.Len())
}

func TestMemory_Sweep(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := cache.NewMemory(cache.WithSweepInterval(5 * time.Millisecond))
	defer m.Close()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), time.Millisecond))
	require.NoError(t, m.Set(ctx, "long", []byte("v"), time.Hour))
	assert.Eventually(t, func() bool { return m.Len() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close(), "close is idempotent")
}

func TestMemory_Client(t *testing.T) {
	ctx := context.Background()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	defer drv.Close()
	_, err = drv.DB().Exec("CREATE TABLE tags (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	require.NoError(t, err)
	_, err = drv.DB().Exec("INSERT INTO tags (name) VALUES ('go'), ('sql')")
	require.NoError(t, err)

	m := cache.NewMemory()
	defer m.Close()
	reg := schema.NewRegistry().MustRegister(&schema.Entity{Name: "Tag"})
	stats := sql.NewStatsDriver(drv)
	client := relq.NewClient(stats, reg, relq.WithCache(m))

	for range 3 {
		tags, err := client.Query("Tag").OrderBy("id", "asc").Remember(time.Minute).Get(ctx)
		require.NoError(t, err)
		assert.Equal(t, []any{"go", "sql"}, tags.Pluck("name"))
	}
	assert.Equal(t, int64(1), stats.QueryStats().Stats().TotalQueries)
	assert.Equal(t, 1, m.Len())

	_, err = client.Query("Tag").Create(ctx, sql.Row{"name": "redis"})
	require.NoError(t, err)
	assert.Zero(t, m.Len(), "writes flush the table")
}
