package sql

import (
	"context"
	"math"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq/dialect"
)

// openSQLite opens a private in-memory database.
func openSQLite(t *testing.T, stmts ...string) *Driver {
	t.Helper()
	drv, err := Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = drv.Close() })
	for _, stmt := range stmts {
		_, err := drv.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
	return drv
}

func ordersDB(t *testing.T) *Driver {
	return openSQLite(t,
		"CREATE TABLE orders (id INTEGER PRIMARY KEY, total INTEGER NOT NULL, status TEXT NOT NULL, paid INTEGER NOT NULL)",
		`INSERT INTO orders (total, status, paid) VALUES
			(2, 'new', 0), (4, 'new', 1), (4, 'shipped', 1), (4, 'shipped', 1),
			(5, 'shipped', 1), (5, 'done', 1), (7, 'done', 0), (9, 'done', 1)`,
	)
}

func sum(c string) string { return "SUM(" + c + ")" }

func TestBuilder_AggregateSQL(t *testing.T) {
	t.Parallel()
	orders := func() *Builder { return Dialect(dialect.MySQL).Table("orders") }
	tests := []struct {
		name   string
		input  *Builder
		column string
		want   string
	}{
		{
			name:   "orders cleared",
			input:  orders().Where("paid", "=", true).OrderBy("id", "asc"),
			column: "total",
			want:   "SELECT SUM(total) AS aggregate FROM orders WHERE paid = ?",
		},
		{
			name:   "distinct limit wrapped",
			input:  orders().Distinct().Limit(5),
			column: "total",
			want:   "SELECT SUM(aggregate_table.total) AS aggregate FROM (SELECT DISTINCT total FROM orders LIMIT 5) AS aggregate_table",
		},
		{
			name:   "group by wrapped",
			input:  orders().Select("status").GroupBy("status"),
			column: "status",
			want:   "SELECT SUM(aggregate_table.status) AS aggregate FROM (SELECT status FROM orders GROUP BY status) AS aggregate_table",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			before, beforeArgs, err := tt.input.ToSQL()
			require.NoError(t, err)
			query, _, err := tt.input.AggregateSQL(tt.column, sum)
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)

			after, afterArgs, err := tt.input.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, before, after, "aggregates must not change the builder")
			assert.Equal(t, beforeArgs, afterArgs)
		})
	}
}

func TestBuilder_Aggregates(t *testing.T) {
	ctx := context.Background()
	drv := ordersDB(t)

	count, err := drv.Table("orders").Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 8, count)

	count, err = drv.Table("orders").Where("paid", "=", 1).Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 6, count)

	groups, err := drv.Table("orders").Select("status").GroupBy("status").Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, groups)

	total, err := drv.Table("orders").Sum(ctx, "total")
	require.NoError(t, err)
	assert.InDelta(t, 40, total, 1e-9)

	avg, err := drv.Table("orders").Avg(ctx, "total")
	require.NoError(t, err)
	assert.InDelta(t, 5, avg, 1e-9)

	minV, err := drv.Table("orders").Min(ctx, "total")
	require.NoError(t, err)
	assert.EqualValues(t, 2, minV)

	maxV, err := drv.Table("orders").Max(ctx, "total")
	require.NoError(t, err)
	assert.EqualValues(t, 9, maxV)

	empty, err := drv.Table("orders").Where("total", ">", 100).Sum(ctx, "total")
	require.NoError(t, err)
	assert.Zero(t, empty)

	_, err = drv.Table("orders").Aggregate(ctx, "median", "total")
	assert.True(t, IsConfigError(err))
}

func TestBuilder_StdDevClientSide(t *testing.T) {
	ctx := context.Background()
	drv := ordersDB(t)

	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	var mean, ss float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	native := math.Sqrt(ss / float64(len(values)-1))

	variance, err := drv.Table("orders").Variance(ctx, "total")
	require.NoError(t, err)
	assert.InDelta(t, 32.0/7, variance, 1e-9)

	sd, err := drv.Table("orders").StdDev(ctx, "total")
	require.NoError(t, err)
	assert.InDelta(t, native, sd, 1e-9)

	single, err := drv.Table("orders").Where("id", "=", 1).StdDev(ctx, "total")
	require.NoError(t, err)
	assert.Zero(t, single, "sample deviation of one row is NULL")
}

func TestBuilder_StdDevDegenerate(t *testing.T) {
	g := &SQLiteGrammar{}
	query := escape("SELECT " + g.Variance("total") + " AS aggregate FROM orders")
	for name, v := range map[string]any{"negative": -0.5, "null": nil, "text": "abc"} {
		t.Run(name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(v))

			sd, err := OpenDB(dialect.SQLite, db).Table("orders").StdDev(context.Background(), "total")
			require.NoError(t, err)
			assert.Zero(t, sd)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBuilder_AggregatesMock(t *testing.T) {
	ctx := context.Background()

	t.Run("mysql stddev", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(escape("SELECT STDDEV_SAMP(total) AS aggregate FROM orders")).
			WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(2.5))
		sd, err := OpenDB(dialect.MySQL, db).Table("orders").StdDev(ctx, "total")
		require.NoError(t, err)
		assert.InDelta(t, 2.5, sd, 1e-9)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("mysql implode", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(escape("SELECT GROUP_CONCAT(name SEPARATOR ', ') AS aggregate FROM users")).
			WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow([]byte("a, b")))
		s, err := OpenDB(dialect.MySQL, db).Table("users").Implode(ctx, "name", ", ")
		require.NoError(t, err)
		assert.Equal(t, "a, b", s)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("postgres count", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery(escape("SELECT COUNT(*) AS aggregate FROM users WHERE active = $1")).
			WithArgs(true).
			WillReturnRows(sqlmock.NewRows([]string{"aggregate"}).AddRow(3))
		n, err := OpenDB(dialect.Postgres, db).Table("users").Where("active", "=", true).Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})
	t.Run("execution error", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()
		mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
		_, err = OpenDB(dialect.Postgres, db).Table("users").Sum(ctx, "score")
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, "aggregate", execErr.Op)
		assert.Equal(t, "users", execErr.Table)
		assert.ErrorIs(t, err, assert.AnError)
	})
}

func TestBuilder_UnknownDialect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	orders := func() *Builder { return Dialect("oracle").Table("orders") }
	terminals := map[string]func() error{
		"variance": func() error { _, err := orders().Variance(ctx, "total"); return err },
		"stddev":   func() error { _, err := orders().StdDev(ctx, "total"); return err },
		"implode":  func() error { _, err := orders().Implode(ctx, "status", ","); return err },
		"columns":  func() error { _, err := orders().Columns(ctx); return err },
		"tables":   func() error { _, err := orders().Tables(ctx); return err },
		"collate":  func() error { return orders().LoadCollations(ctx) },
		"insert":   func() error { _, err := orders().InsertGetID(ctx, Row{"total": 1}, "id"); return err },
	}
	for name, run := range terminals {
		t.Run(name, func(t *testing.T) {
			var err error
			require.NotPanics(t, func() { err = run() })
			assert.True(t, IsConfigError(err), "got %v", err)
		})
	}
}
