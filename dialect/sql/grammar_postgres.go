package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/relq/dialect"
)

// PostgresGrammar renders PostgreSQL fragments.
type PostgresGrammar struct{}

var postgresDateKeywords = map[string]string{
	"year":      "YEAR",
	"month":     "MONTH",
	"day":       "DAY",
	"hour":      "HOUR",
	"minute":    "MINUTE",
	"second":    "SECOND",
	"week":      "WEEK",
	"quarter":   "QUARTER",
	"dayofweek": "DOW",
	"dayofyear": "DOY",
}

// Dialect implements Grammar.
func (PostgresGrammar) Dialect() string { return dialect.Postgres }

// RandomOrder implements Grammar.
func (PostgresGrammar) RandomOrder() string { return "RANDOM()" }

// LimitOffset implements Grammar.
func (PostgresGrammar) LimitOffset(limit, offset *int) string {
	var parts []string
	if limit != nil {
		parts = append(parts, "LIMIT "+strconv.Itoa(*limit))
	}
	if offset != nil {
		parts = append(parts, "OFFSET "+strconv.Itoa(*offset))
	}
	return strings.Join(parts, " ")
}

// TablesQuery implements Grammar.
func (PostgresGrammar) TablesQuery() (string, []any) {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = current_schema() AND table_type = 'BASE TABLE' ORDER BY table_name", nil
}

// ColumnsQuery implements Grammar.
func (PostgresGrammar) ColumnsQuery(table string) (string, []any) {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? ORDER BY ordinal_position", []any{table}
}

// CollationsQuery implements Grammar.
func (PostgresGrammar) CollationsQuery(table string) (string, []any) {
	return "SELECT column_name, collation_name FROM information_schema.columns WHERE table_schema = current_schema() AND table_name = ? AND collation_name IS NOT NULL", []any{table}
}

// DatePart implements Grammar.
func (g PostgresGrammar) DatePart(part, column string) (string, error) {
	switch p := strings.ToLower(part); p {
	case "date":
		return column + "::date", nil
	case "time":
		return column + "::time", nil
	default:
		kw, ok := postgresDateKeywords[p]
		if !ok {
			return "", unsupportedPart(g, part)
		}
		return "EXTRACT(" + kw + " FROM " + column + ")", nil
	}
}

// JSONContains implements Grammar.
func (PostgresGrammar) JSONContains(column string, value any, not bool) (string, []any, error) {
	col, path, err := jsonPath(column)
	if err != nil {
		return "", nil, err
	}
	v, err := jsonValue(value)
	if err != nil {
		return "", nil, err
	}
	target := col
	if len(path) > 0 {
		var b strings.Builder
		b.WriteString("(" + col)
		for _, p := range path {
			if _, err := strconv.Atoi(p); err == nil {
				b.WriteString("->" + p)
				continue
			}
			b.WriteString("->'" + p + "'")
		}
		b.WriteString(")")
		target = b.String()
	}
	expr := target + "::jsonb @> ?"
	if not {
		expr = "NOT " + expr
	}
	return expr, []any{v}, nil
}

// GroupConcat implements Grammar.
func (PostgresGrammar) GroupConcat(column, separator string) string {
	return "STRING_AGG(CAST(" + column + " AS TEXT), " + quoteString(separator, false) + ")"
}

// Variance implements Grammar.
func (PostgresGrammar) Variance(column string) string { return "VAR_SAMP(" + column + ")" }

// StdDev implements Grammar.
func (PostgresGrammar) StdDev(column string) string { return "STDDEV_SAMP(" + column + ")" }

// ComputeStdDevClientSide implements Grammar.
func (PostgresGrammar) ComputeStdDevClientSide() bool { return false }

// Like implements Grammar. PostgreSQL compares case sensitively and has a
// native case-insensitive operator.
func (PostgresGrammar) Like(column, pattern string, caseSensitive, not bool, _ string) (string, []any) {
	op := "LIKE"
	if !caseSensitive {
		op = "ILIKE"
	}
	if not {
		op = "NOT " + op
	}
	return column + " " + op + " ?", []any{pattern}
}

// Upsert implements Grammar.
func (PostgresGrammar) Upsert(u *UpsertStatement) (string, error) {
	if err := u.validate(); err != nil {
		return "", err
	}
	clause, err := u.onConflict("EXCLUDED")
	if err != nil {
		return "", err
	}
	return u.insertInto("INSERT INTO") + clause, nil
}

// SupportsReturning implements Grammar.
func (PostgresGrammar) SupportsReturning() bool { return true }
