package sql

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/syssam/relq/dialect"
)

// Grammar renders the driver-specific fragments of a query. One Grammar is
// selected per connection by GrammarFor; the methods are pure, except for
// the server version the SQLite grammar learns once per connection.
type Grammar interface {
	// Dialect returns the dialect name the grammar renders for.
	Dialect() string
	// RandomOrder returns the expression used by InRandomOrder.
	RandomOrder() string
	// LimitOffset renders the LIMIT/OFFSET tail, or "" when both are nil.
	LimitOffset(limit, offset *int) string
	// TablesQuery lists the tables of the current database.
	TablesQuery() (string, []any)
	// ColumnsQuery lists the columns of table in declaration order.
	ColumnsQuery(table string) (string, []any)
	// CollationsQuery returns (column, collation) pairs of table, or an
	// empty query if the engine does not expose declared collations.
	CollationsQuery(table string) (string, []any)
	// DatePart extracts a date or time component of column.
	DatePart(part, column string) (string, error)
	// JSONContains renders a containment test of value inside column. The
	// column may address a nested path with "->" separators.
	JSONContains(column string, value any, not bool) (string, []any, error)
	// GroupConcat concatenates column values of a group with separator.
	GroupConcat(column, separator string) string
	// Variance returns the sample variance expression of column.
	Variance(column string) string
	// StdDev returns the sample standard deviation expression of column.
	StdDev(column string) string
	// ComputeStdDevClientSide reports that the engine has no square root,
	// and callers should select Variance and take the root themselves.
	ComputeStdDevClientSide() bool
	// Like renders a pattern match. collation is the declared collation of
	// the column when known, and "" otherwise.
	Like(column, pattern string, caseSensitive, not bool, collation string) (string, []any)
	// Upsert renders an INSERT statement that resolves unique-key conflicts.
	Upsert(u *UpsertStatement) (string, error)
	// SupportsReturning reports whether INSERT ... RETURNING is used to read
	// back generated keys.
	SupportsReturning() bool
}

// GrammarFor returns the Grammar of the given dialect. Names are matched by
// prefix, so "sqlite3" or "mysql-wrapped" resolve like their base dialect.
func GrammarFor(name string) (Grammar, error) {
	switch {
	case strings.HasPrefix(name, dialect.MySQL):
		return MySQLGrammar{}, nil
	case strings.HasPrefix(name, dialect.Postgres), name == "pgx":
		return PostgresGrammar{}, nil
	case strings.HasPrefix(name, dialect.SQLite):
		return &SQLiteGrammar{}, nil
	}
	return nil, NewConfigError("dialect", name, "unsupported driver")
}

// UpsertStatement describes an INSERT that resolves conflicts on UniqueBy.
type UpsertStatement struct {
	Table    string
	Columns  []string
	Rows     int      // number of value groups
	UniqueBy []string // conflict target
	// Update lists the columns that take the inserted value on conflict.
	Update []string
	// UpdateExprs maps a column to a raw SQL expression assigned on conflict.
	UpdateExprs map[string]string
	// Ignore skips conflicting rows instead of updating them.
	Ignore bool
}

func (u *UpsertStatement) validate() error {
	if len(u.Columns) == 0 || u.Rows == 0 {
		return NewConfigError("upsert", u.Table, "no values to insert")
	}
	if !u.Ignore && len(u.Update) == 0 && len(u.UpdateExprs) == 0 {
		return NewConfigError("upsert", u.Table, "no columns to update on conflict")
	}
	for _, c := range append(append(append([]string{}, u.Columns...), u.UniqueBy...), u.Update...) {
		if !isValidColumn(c) {
			return NewConfigError("upsert column", c, "invalid identifier")
		}
	}
	for c := range u.UpdateExprs {
		if !isValidColumn(c) {
			return NewConfigError("upsert column", c, "invalid identifier")
		}
	}
	return nil
}

// insertInto renders "<verb> t (a, b) VALUES (?, ?), (?, ?)".
func (u *UpsertStatement) insertInto(verb string) string {
	var b strings.Builder
	b.WriteString(verb)
	b.WriteString(" ")
	b.WriteString(u.Table)
	b.WriteString(" (")
	b.WriteString(strings.Join(u.Columns, ", "))
	b.WriteString(") VALUES ")
	group := "(" + placeholders(len(u.Columns)) + ")"
	for i := 0; i < u.Rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(group)
	}
	return b.String()
}

// assignments renders the update list; inserted renders the reference to
// the value proposed for insertion of a column.
func (u *UpsertStatement) assignments(inserted func(string) string) string {
	set := make([]string, 0, len(u.Update)+len(u.UpdateExprs))
	for _, c := range u.Update {
		set = append(set, c+" = "+inserted(c))
	}
	keys := make([]string, 0, len(u.UpdateExprs))
	for c := range u.UpdateExprs {
		keys = append(keys, c)
	}
	sort.Strings(keys)
	for _, c := range keys {
		set = append(set, c+" = "+u.UpdateExprs[c])
	}
	return strings.Join(set, ", ")
}

// onConflict renders the ON CONFLICT clause shared by PostgreSQL and SQLite.
func (u *UpsertStatement) onConflict(excluded string) (string, error) {
	target := ""
	if len(u.UniqueBy) > 0 {
		target = " (" + strings.Join(u.UniqueBy, ", ") + ")"
	}
	if u.Ignore {
		return " ON CONFLICT" + target + " DO NOTHING", nil
	}
	if target == "" {
		return "", NewConfigError("upsert", u.Table, "conflict target required to update on conflict")
	}
	return " ON CONFLICT" + target + " DO UPDATE SET " + u.assignments(func(c string) string {
		return excluded + "." + c
	}), nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

var (
	columnRe   = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.([A-Za-z_][A-Za-z0-9_]*|\*))?$`)
	jsonPathRe = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*|[0-9]+)$`)
)

// isValidColumn reports whether s is a plain or table-qualified column name.
func isValidColumn(s string) bool {
	return s != "" && len(s) <= 128 && (s == "*" || columnRe.MatchString(s))
}

// quoteString renders s as a single-quoted SQL literal.
func quoteString(s string, backslash bool) string {
	if backslash {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// jsonPath splits "options->languages->en" into the column and its path.
func jsonPath(column string) (string, []string, error) {
	parts := strings.Split(strings.ReplaceAll(column, "->>", "->"), "->")
	col := strings.TrimSpace(parts[0])
	if !isValidColumn(col) {
		return "", nil, NewConfigError("json column", column, "invalid identifier")
	}
	path := make([]string, 0, len(parts)-1)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if !jsonPathRe.MatchString(p) {
			return "", nil, NewConfigError("json path", column, "invalid path segment")
		}
		path = append(path, p)
	}
	return col, path, nil
}

// dollarPath renders a path as the '$."a"[0]' literal used by MySQL and SQLite.
func dollarPath(path []string) string {
	var b strings.Builder
	b.WriteString("'$")
	for _, p := range path {
		if _, err := strconv.Atoi(p); err == nil {
			b.WriteString("[" + p + "]")
			continue
		}
		b.WriteString(`."` + p + `"`)
	}
	b.WriteString("'")
	return b.String()
}

func jsonValue(v any) (string, error) {
	buf, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("dialect/sql: encode json value: %w", err)
	}
	return string(buf), nil
}

func unsupportedPart(g Grammar, part string) error {
	return NewConfigError("date part", part, "unsupported by "+g.Dialect())
}
