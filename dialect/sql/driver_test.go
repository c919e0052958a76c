package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq/dialect"
)

func TestWithVar(t *testing.T) {
	ctx := WithVar(context.Background(), "app.tenant", "acme")
	ctx2 := WithVar(ctx, "app.tenant", "globex")
	ctx3 := WithVar(ctx, "search_path", "public")

	v, ok := VarFromContext(ctx2, "app.tenant")
	assert.True(t, ok)
	assert.Equal(t, "globex", v, "the later value wins")
	v, _ = VarFromContext(ctx, "app.tenant")
	assert.Equal(t, "acme", v, "parent context is unchanged")
	_, ok = VarFromContext(ctx, "search_path")
	assert.False(t, ok)
	assert.Equal(t, []Var{{"app.tenant", "acme"}, {"search_path", "public"}}, VarsFromContext(ctx3))
	assert.Len(t, VarsFromContext(ctx2), 2)
	assert.Empty(t, VarsFromContext(context.Background()))
}

func TestSessionVars_Postgres(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)
	ctx := WithVar(context.Background(), "app.tenant", "it's acme")

	t.Run("query", func(t *testing.T) {
		mock.ExpectExec(escape("SELECT set_config($1, $2, $3)")).
			WithArgs("app.tenant", "it's acme", false).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(escape("SELECT id FROM orders WHERE total > $1")).
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectExec(escape("RESET app.tenant")).WillReturnResult(sqlmock.NewResult(0, 0))

		rows := &Rows{}
		require.NoError(t, drv.Query(ctx, "SELECT id FROM orders WHERE total > ?", []any{10}, rows))
		require.NoError(t, rows.Close(), "closing the rows resets and releases the connection")
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_sets_each_value_once_resets_once", func(t *testing.T) {
		ctx := WithVar(ctx, "app.tenant", "globex")
		mock.ExpectExec(escape("SELECT set_config($1, $2, $3)")).
			WithArgs("app.tenant", "it's acme", false).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(escape("SELECT set_config($1, $2, $3)")).
			WithArgs("app.tenant", "globex", false).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(escape("DELETE FROM orders")).WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(escape("RESET app.tenant")).WillReturnResult(sqlmock.NewResult(0, 0))

		var res Result
		require.NoError(t, drv.Exec(ctx, "DELETE FROM orders", []any{}, &res))
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("transaction_local", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(escape("SELECT set_config($1, $2, $3)")).
			WithArgs("app.tenant", "it's acme", true).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(escape("SELECT 1")).WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		rows := &Rows{}
		require.NoError(t, tx.Query(ctx, "SELECT 1", []any{}, rows))
		require.NoError(t, rows.Close())
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSessionVars_MySQL(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.MySQL, db)

	mock.ExpectExec(escape("SET time_zone = ?")).WithArgs("+00:00").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(escape("INSERT INTO events (name) VALUES (?)")).WithArgs("x").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(escape("SET time_zone = NULL")).WillReturnResult(sqlmock.NewResult(0, 0))
	ctx := WithVar(context.Background(), "time_zone", "+00:00")
	require.NoError(t, drv.Exec(ctx, "INSERT INTO events (name) VALUES (?)", []any{"x"}, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionVars_Errors(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		varName string
		msg     string
	}{
		{"injection", dialect.Postgres, "foo; DROP TABLE users; --", "invalid identifier"},
		{"quote", dialect.MySQL, "foo'bar", "invalid identifier"},
		{"three_parts", dialect.Postgres, "a.b.c", "invalid identifier"},
		{"sqlite", dialect.SQLite, "foo", "not supported by sqlite"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			drv := OpenDB(tt.dialect, db)
			rows := &Rows{}
			err = drv.Query(WithVar(context.Background(), tt.varName, "x"), "SELECT 1", []any{}, rows)
			require.Error(t, err)
			assert.True(t, IsConfigError(err))
			assert.Contains(t, err.Error(), tt.msg)
			require.NoError(t, mock.ExpectationsWereMet(), "nothing runs")
		})
	}
}

func TestOpenDB(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{dialect.Postgres, dialect.Postgres},
		{"pgx", dialect.Postgres},
		{dialect.MySQL, dialect.MySQL},
		{dialect.SQLite, dialect.SQLite},
		{"sqlite3", dialect.SQLite},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.name, db)
			assert.Equal(t, tt.want, drv.Dialect())
			assert.Same(t, db, drv.DB())
			require.NotNil(t, drv.Grammar())
			assert.Equal(t, tt.want, drv.Grammar().Dialect())
			assert.Equal(t, drv.Grammar(), drv.Table("users").Grammar())
		})
	}

	_, err := Open("oracle", "dsn")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestConn_Rebind(t *testing.T) {
	tests := []struct {
		dialect string
		want    string
	}{
		{dialect.Postgres, "SELECT name FROM users WHERE id = $1 AND status = $2"},
		{dialect.MySQL, "SELECT name FROM users WHERE id = ? AND status = ?"},
		{dialect.SQLite, "SELECT name FROM users WHERE id = ? AND status = ?"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			drv := OpenDB(tt.dialect, db)

			mock.ExpectQuery(escape(tt.want)).
				WithArgs(1, "active").
				WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))
			rows := &Rows{}
			require.NoError(t, drv.Query(context.Background(), "SELECT name FROM users WHERE id = ? AND status = ?", []any{1, "active"}, rows))
			out, err := ScanRows(rows)
			require.NoError(t, err)
			assert.Equal(t, []Row{{"name": "Alice"}}, out)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestConn_InvalidArguments(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)
	ctx := context.Background()

	err = drv.Query(ctx, "SELECT 1", []any{}, new(int))
	assert.EqualError(t, err, "dialect/sql: invalid type *int. expect *sql.Rows")
	err = drv.Query(ctx, "SELECT 1", "x", &Rows{})
	assert.EqualError(t, err, "dialect/sql: invalid type string. expect []any for args")
	err = drv.Exec(ctx, "DELETE FROM t", []any{}, new(int))
	assert.EqualError(t, err, "dialect/sql: invalid type *int. expect *sql.Result")
	err = drv.Exec(ctx, "DELETE FROM t", nil, nil)
	assert.EqualError(t, err, "dialect/sql: invalid type <nil>. expect []any for args")
}

func TestConn_Errors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)
	boom := errors.New("constraint violation")

	mock.ExpectExec("DELETE").WillReturnError(boom)
	err = drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dialect/sql: exec: ")

	mock.ExpectQuery("SELECT").WillReturnError(boom)
	err = drv.Query(context.Background(), "SELECT 1", []any{}, &Rows{})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "dialect/sql: query: ")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = drv.Query(ctx, "SELECT 1", []any{}, &Rows{})
	assert.Error(t, err)
}

func TestDriver_Tx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)

	t.Run("commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(escape("UPDATE users SET name = ? WHERE id = ?")).
			WithArgs("Alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		n, err := tx.(*Tx).Table("users").Where("id", "=", 1).Update(context.Background(), Row{"name": "Alice"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "INSERT INTO users (name) VALUES (?)", []any{"x"}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("grammar_is_shared", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectRollback()
		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		assert.Equal(t, drv.Grammar(), tx.(*Tx).Grammar())
		assert.Equal(t, dialect.MySQL, tx.(*Tx).Dialect())
		require.NoError(t, tx.Rollback())
	})
}
