package sql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq/dialect"
)

func TestGrammarFor(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]string{
		"mysql":    dialect.MySQL,
		"postgres": dialect.Postgres,
		"pgx":      dialect.Postgres,
		"sqlite":   dialect.SQLite,
		"sqlite3":  dialect.SQLite,
	} {
		g, err := GrammarFor(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, g.Dialect(), name)
	}
	_, err := GrammarFor("mssql")
	require.Error(t, err)
	assert.True(t, IsConfigError(err))
}

func TestGrammar_Like(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name          string
		dialect       string
		caseSensitive bool
		not           bool
		want          string
		arg           string
	}{
		{"postgres insensitive", dialect.Postgres, false, false, "SELECT * FROM users WHERE name ILIKE ?", "a_b%"},
		{"postgres sensitive", dialect.Postgres, true, false, "SELECT * FROM users WHERE name LIKE ?", "a_b%"},
		{"postgres not", dialect.Postgres, false, true, "SELECT * FROM users WHERE name NOT ILIKE ?", "a_b%"},
		{"sqlite insensitive", dialect.SQLite, false, false, "SELECT * FROM users WHERE name LIKE ?", "a_b%"},
		{"sqlite sensitive", dialect.SQLite, true, false, "SELECT * FROM users WHERE name GLOB ?", "a?b*"},
		{"sqlite not", dialect.SQLite, true, true, "SELECT * FROM users WHERE name NOT GLOB ?", "a?b*"},
		{"mysql insensitive", dialect.MySQL, false, false, "SELECT * FROM users WHERE LOWER(name) LIKE LOWER(?)", "a_b%"},
		{"mysql sensitive", dialect.MySQL, true, false, "SELECT * FROM users WHERE name LIKE BINARY ?", "a_b%"},
		{"mysql not", dialect.MySQL, true, true, "SELECT * FROM users WHERE name NOT LIKE BINARY ?", "a_b%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Dialect(tt.dialect).Table("users")
			if tt.not {
				b.WhereNotLike("name", "a_b%", tt.caseSensitive)
			} else {
				b.WhereLike("name", "a_b%", tt.caseSensitive)
			}
			query, args, err := b.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
			assert.Equal(t, []any{tt.arg}, args)
		})
	}
}

func TestLikeToGlob(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a?b*[[]x][*][?]", likeToGlob("a_b%[x]*?"))
	assert.Equal(t, "*@example.com", likeToGlob("%@example.com"))
}

func TestMySQL_LikeCollations(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.MySQL, db)

	query, _ := MySQLGrammar{}.CollationsQuery("users")
	mock.ExpectQuery(escape(query)).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "collation_name"}).
			AddRow("name", "utf8mb4_0900_ai_ci").
			AddRow("Code", "utf8mb4_bin").
			AddRow("bio", nil))

	b := drv.Table("users")
	require.NoError(t, b.LoadCollations(context.Background()))
	b.WhereLike("name", "a%", false).
		WhereLike("code", "X%", true).
		WhereLike("email", "%@x", false)
	sql, args, err := b.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM users WHERE name LIKE ? AND code LIKE ? AND LOWER(email) LIKE LOWER(?)", sql)
	assert.Equal(t, []any{"a%", "X%", "%@x"}, args)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrammar_DatePart(t *testing.T) {
	t.Parallel()
	tests := []struct {
		dialect string
		part    string
		want    string
	}{
		{dialect.MySQL, "date", "DATE(created_at) = ?"},
		{dialect.MySQL, "month", "MONTH(created_at) = ?"},
		{dialect.Postgres, "date", "created_at::date = ?"},
		{dialect.Postgres, "time", "created_at::time = ?"},
		{dialect.Postgres, "year", "EXTRACT(YEAR FROM created_at) = ?"},
		{dialect.Postgres, "dayofweek", "EXTRACT(DOW FROM created_at) = ?"},
		{dialect.SQLite, "date", "date(created_at) = ?"},
		{dialect.SQLite, "month", "CAST(strftime('%m', created_at) AS INTEGER) = ?"},
		{dialect.SQLite, "quarter", "((CAST(strftime('%m', created_at) AS INTEGER) + 2) / 3) = ?"},
	}
	for _, tt := range tests {
		t.Run(tt.dialect+"/"+tt.part, func(t *testing.T) {
			t.Parallel()
			query, args, err := Dialect(tt.dialect).Table("users").WhereDatePart(tt.part, "created_at", "=", 1).ToSQL()
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM users WHERE "+tt.want, query)
			assert.Equal(t, []any{1}, args)
		})
	}
	t.Run("shorthands", func(t *testing.T) {
		t.Parallel()
		query, args, err := Dialect(dialect.MySQL).Table("events").
			WhereDate("starts_at", ">=", "2024-01-01").
			WhereYear("starts_at", "=", 2024).
			WhereHour("starts_at", "<", 12).
			ToSQL()
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM events WHERE DATE(starts_at) >= ? AND YEAR(starts_at) = ? AND HOUR(starts_at) < ?", query)
		assert.Equal(t, []any{"2024-01-01", 2024, 12}, args)
	})
}

func TestGrammar_JSONContains(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		dialect string
		column  string
		value   any
		not     bool
		want    string
		args    []any
	}{
		{
			name: "mysql path", dialect: dialect.MySQL, column: "options->languages", value: "en",
			want: `JSON_CONTAINS(options, ?, '$."languages"')`, args: []any{`"en"`},
		},
		{
			name: "mysql not", dialect: dialect.MySQL, column: "tags", value: 1, not: true,
			want: `NOT JSON_CONTAINS(tags, ?)`, args: []any{`1`},
		},
		{
			name: "postgres path", dialect: dialect.Postgres, column: "options->languages", value: []string{"en", "de"},
			want: `(options->'languages')::jsonb @> ?`, args: []any{`["en","de"]`},
		},
		{
			name: "postgres index", dialect: dialect.Postgres, column: "options->items->0", value: map[string]int{"id": 1},
			want: `(options->'items'->0)::jsonb @> ?`, args: []any{`{"id":1}`},
		},
		{
			name: "sqlite single", dialect: dialect.SQLite, column: "options->languages", value: "en",
			want: `EXISTS (SELECT 1 FROM json_each(json_extract(options, '$."languages"')) WHERE json_each.value = ?)`,
			args: []any{"en"},
		},
		{
			name: "sqlite many", dialect: dialect.SQLite, column: "tags", value: []string{"a", "b"}, not: true,
			want: `NOT (EXISTS (SELECT 1 FROM json_each(tags) WHERE json_each.value = ?) AND EXISTS (SELECT 1 FROM json_each(tags) WHERE json_each.value = ?))`,
			args: []any{"a", "b"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := Dialect(tt.dialect).Table("users")
			if tt.not {
				b.WhereJSONDoesntContain(tt.column, tt.value)
			} else {
				b.WhereJSONContains(tt.column, tt.value)
			}
			query, args, err := b.ToSQL()
			require.NoError(t, err)
			assert.Equal(t, "SELECT * FROM users WHERE "+tt.want, query)
			assert.Equal(t, tt.args, args)
		})
	}
	t.Run("sqlite nested document", func(t *testing.T) {
		t.Parallel()
		_, _, err := Dialect(dialect.SQLite).Table("users").WhereJSONContains("options", map[string]any{"a": 1}).ToSQL()
		assert.True(t, IsConfigError(err))
	})
	t.Run("invalid path", func(t *testing.T) {
		t.Parallel()
		_, _, err := Dialect(dialect.MySQL).Table("users").WhereJSONContains("options->'x", 1).ToSQL()
		assert.True(t, IsConfigError(err))
	})
}

func TestGrammar_Upsert(t *testing.T) {
	t.Parallel()
	const values = "INSERT INTO users (email, name) VALUES (?, ?), (?, ?)"
	stmt := func(ignore bool) *UpsertStatement {
		return &UpsertStatement{
			Table:    "users",
			Columns:  []string{"email", "name"},
			Rows:     2,
			UniqueBy: []string{"email"},
			Update:   []string{"name"},
			Ignore:   ignore,
		}
	}
	old := &SQLiteGrammar{}
	old.SetVersion("3.22.0")
	recent := &SQLiteGrammar{}
	recent.SetVersion("3.45.1")
	tests := []struct {
		name    string
		grammar Grammar
		ignore  bool
		want    string
	}{
		{"mysql update", MySQLGrammar{}, false, values + " ON DUPLICATE KEY UPDATE name = VALUES(name)"},
		{"mysql ignore", MySQLGrammar{}, true, "INSERT IGNORE INTO users (email, name) VALUES (?, ?), (?, ?)"},
		{"postgres update", PostgresGrammar{}, false, values + " ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name"},
		{"postgres ignore", PostgresGrammar{}, true, values + " ON CONFLICT (email) DO NOTHING"},
		{"sqlite update", recent, false, values + " ON CONFLICT (email) DO UPDATE SET name = excluded.name"},
		{"sqlite ignore", recent, true, values + " ON CONFLICT (email) DO NOTHING"},
		{"old sqlite update", old, false, "INSERT OR REPLACE INTO users (email, name) VALUES (?, ?), (?, ?)"},
		{"old sqlite ignore", old, true, "INSERT OR IGNORE INTO users (email, name) VALUES (?, ?), (?, ?)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			query, err := tt.grammar.Upsert(stmt(tt.ignore))
			require.NoError(t, err)
			assert.Equal(t, tt.want, query)
		})
	}
	t.Run("expressions", func(t *testing.T) {
		t.Parallel()
		u := stmt(false)
		u.UpdateExprs = map[string]string{"visits": "users.visits + 1"}
		query, err := PostgresGrammar{}.Upsert(u)
		require.NoError(t, err)
		assert.Equal(t, values+" ON CONFLICT (email) DO UPDATE SET name = EXCLUDED.name, visits = users.visits + 1", query)
	})
	t.Run("nothing to update", func(t *testing.T) {
		t.Parallel()
		u := stmt(false)
		u.Update = nil
		_, err := MySQLGrammar{}.Upsert(u)
		assert.True(t, IsConfigError(err))
	})
	t.Run("missing conflict target", func(t *testing.T) {
		t.Parallel()
		u := stmt(false)
		u.UniqueBy = nil
		_, err := PostgresGrammar{}.Upsert(u)
		assert.True(t, IsConfigError(err))
	})
}

func TestSQLiteGrammar_Version(t *testing.T) {
	t.Parallel()
	g := &SQLiteGrammar{}
	assert.True(t, g.supportsUpsert(), "unknown versions are assumed recent")
	g.SetVersion("3.24.0")
	assert.True(t, g.supportsUpsert())
	g.SetVersion("3.8.11")
	assert.False(t, g.supportsUpsert())
	g.SetVersion("garbage")
	assert.True(t, g.supportsUpsert())
}
