package sql

import (
	"reflect"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/syssam/relq/dialect"
)

// SQLiteGrammar renders SQLite fragments. It carries the server version,
// learned once per connection, to pick the upsert syntax.
type SQLiteGrammar struct {
	mu      sync.RWMutex
	version string
}

// sqliteUpsertVersion is the first release supporting ON CONFLICT clauses.
const sqliteUpsertVersion = "v3.24.0"

var sqliteDateFormats = map[string]string{
	"year":      "%Y",
	"month":     "%m",
	"day":       "%d",
	"hour":      "%H",
	"minute":    "%M",
	"second":    "%S",
	"week":      "%W",
	"dayofweek": "%w",
	"dayofyear": "%j",
}

// Dialect implements Grammar.
func (*SQLiteGrammar) Dialect() string { return dialect.SQLite }

// VersionQuery returns the statement reporting the server version.
func (*SQLiteGrammar) VersionQuery() string { return "SELECT sqlite_version()" }

// Version returns the server version, or "" if not yet known.
func (g *SQLiteGrammar) Version() string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.version
}

// SetVersion records the server version, e.g. "3.45.1".
func (g *SQLiteGrammar) SetVersion(v string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.version = v
}

// supportsUpsert reports whether the server understands ON CONFLICT.
// Unknown or unparsable versions are assumed recent.
func (g *SQLiteGrammar) supportsUpsert() bool {
	v := g.Version()
	if v == "" || !semver.IsValid("v"+v) {
		return true
	}
	return semver.Compare("v"+v, sqliteUpsertVersion) >= 0
}

// RandomOrder implements Grammar.
func (*SQLiteGrammar) RandomOrder() string { return "RANDOM()" }

// LimitOffset implements Grammar.
func (*SQLiteGrammar) LimitOffset(limit, offset *int) string {
	switch {
	case limit != nil && offset != nil:
		return "LIMIT " + strconv.Itoa(*limit) + " OFFSET " + strconv.Itoa(*offset)
	case limit != nil:
		return "LIMIT " + strconv.Itoa(*limit)
	case offset != nil:
		return "LIMIT -1 OFFSET " + strconv.Itoa(*offset)
	}
	return ""
}

// TablesQuery implements Grammar.
func (*SQLiteGrammar) TablesQuery() (string, []any) {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name", nil
}

// ColumnsQuery implements Grammar.
func (*SQLiteGrammar) ColumnsQuery(table string) (string, []any) {
	return "SELECT name FROM pragma_table_info(?) ORDER BY cid", []any{table}
}

// CollationsQuery implements Grammar. SQLite does not expose declared
// column collations, and LIKE ignores them.
func (*SQLiteGrammar) CollationsQuery(string) (string, []any) {
	return "", nil
}

// DatePart implements Grammar.
func (g *SQLiteGrammar) DatePart(part, column string) (string, error) {
	switch p := strings.ToLower(part); p {
	case "date":
		return "date(" + column + ")", nil
	case "time":
		return "time(" + column + ")", nil
	case "quarter":
		return "((CAST(strftime('%m', " + column + ") AS INTEGER) + 2) / 3)", nil
	default:
		f, ok := sqliteDateFormats[p]
		if !ok {
			return "", unsupportedPart(g, part)
		}
		return "CAST(strftime('" + f + "', " + column + ") AS INTEGER)", nil
	}
}

// JSONContains implements Grammar. SQLite has no containment operator, so
// every scalar is looked up among the elements of the extracted document.
func (*SQLiteGrammar) JSONContains(column string, value any, not bool) (string, []any, error) {
	col, path, err := jsonPath(column)
	if err != nil {
		return "", nil, err
	}
	source := col
	if len(path) > 0 {
		source = "json_extract(" + col + ", " + dollarPath(path) + ")"
	}
	values, ok := anySlice(value)
	if !ok {
		values = []any{value}
	}
	exprs := make([]string, 0, len(values))
	for _, v := range values {
		if _, nested := anySlice(v); nested || isMap(v) {
			return "", nil, NewConfigError("json value", v, "nested documents are not supported by sqlite")
		}
		exprs = append(exprs, "EXISTS (SELECT 1 FROM json_each("+source+") WHERE json_each.value = ?)")
	}
	expr := strings.Join(exprs, " AND ")
	if len(exprs) > 1 {
		expr = "(" + expr + ")"
	}
	if not {
		expr = "NOT " + expr
	}
	return expr, values, nil
}

// GroupConcat implements Grammar.
func (*SQLiteGrammar) GroupConcat(column, separator string) string {
	return "GROUP_CONCAT(" + column + ", " + quoteString(separator, false) + ")"
}

// Variance implements Grammar. SQLite has no variance aggregate; the sample
// variance is derived from sums, and is NULL for fewer than two rows.
func (*SQLiteGrammar) Variance(column string) string {
	x := column + " * 1.0"
	return "((SUM(" + x + " * " + column + ") - SUM(" + x + ") * SUM(" + x + ") / COUNT(" + column + ")) / (COUNT(" + column + ") - 1))"
}

// StdDev implements Grammar. It requires a build with math functions;
// ComputeStdDevClientSide steers callers away from it.
func (g *SQLiteGrammar) StdDev(column string) string {
	return "SQRT(" + g.Variance(column) + ")"
}

// ComputeStdDevClientSide implements Grammar.
func (*SQLiteGrammar) ComputeStdDevClientSide() bool { return true }

// Like implements Grammar. LIKE is case insensitive in SQLite; case-sensitive
// matches are rewritten to GLOB.
func (*SQLiteGrammar) Like(column, pattern string, caseSensitive, not bool, _ string) (string, []any) {
	op := "LIKE"
	if caseSensitive {
		op, pattern = "GLOB", likeToGlob(pattern)
	}
	if not {
		op = "NOT " + op
	}
	return column + " " + op + " ?", []any{pattern}
}

func isMap(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Map
}

// likeToGlob converts a LIKE pattern to GLOB syntax. GLOB metacharacters in
// the input are bracketed first, so they match literally.
func likeToGlob(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*', '?', '[':
			b.WriteString("[" + string(r) + "]")
		case '%':
			b.WriteByte('*')
		case '_':
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Upsert implements Grammar. Servers older than 3.24.0 fall back to
// INSERT OR REPLACE, which rewrites the whole conflicting row.
func (g *SQLiteGrammar) Upsert(u *UpsertStatement) (string, error) {
	if err := u.validate(); err != nil {
		return "", err
	}
	if !g.supportsUpsert() {
		if u.Ignore {
			return u.insertInto("INSERT OR IGNORE INTO"), nil
		}
		return u.insertInto("INSERT OR REPLACE INTO"), nil
	}
	clause, err := u.onConflict("excluded")
	if err != nil {
		return "", err
	}
	return u.insertInto("INSERT INTO") + clause, nil
}

// SupportsReturning implements Grammar.
func (*SQLiteGrammar) SupportsReturning() bool { return false }
