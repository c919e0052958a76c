package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/relq/dialect"
)

// MySQLGrammar renders MySQL and MariaDB fragments.
type MySQLGrammar struct{}

var mysqlDateFuncs = map[string]string{
	"date":      "DATE",
	"time":      "TIME",
	"year":      "YEAR",
	"month":     "MONTH",
	"day":       "DAY",
	"hour":      "HOUR",
	"minute":    "MINUTE",
	"second":    "SECOND",
	"week":      "WEEK",
	"quarter":   "QUARTER",
	"dayofweek": "DAYOFWEEK",
	"dayofyear": "DAYOFYEAR",
}

// mysqlMaxLimit is the largest LIMIT accepted by MySQL; it stands in for
// "no limit" when only an offset is set.
const mysqlMaxLimit = "18446744073709551615"

// Dialect implements Grammar.
func (MySQLGrammar) Dialect() string { return dialect.MySQL }

// RandomOrder implements Grammar.
func (MySQLGrammar) RandomOrder() string { return "RAND()" }

// LimitOffset implements Grammar.
func (MySQLGrammar) LimitOffset(limit, offset *int) string {
	switch {
	case limit != nil && offset != nil:
		return "LIMIT " + strconv.Itoa(*limit) + " OFFSET " + strconv.Itoa(*offset)
	case limit != nil:
		return "LIMIT " + strconv.Itoa(*limit)
	case offset != nil:
		return "LIMIT " + mysqlMaxLimit + " OFFSET " + strconv.Itoa(*offset)
	}
	return ""
}

// TablesQuery implements Grammar.
func (MySQLGrammar) TablesQuery() (string, []any) {
	return "SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name", nil
}

// ColumnsQuery implements Grammar.
func (MySQLGrammar) ColumnsQuery(table string) (string, []any) {
	return "SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? ORDER BY ordinal_position", []any{table}
}

// CollationsQuery implements Grammar.
func (MySQLGrammar) CollationsQuery(table string) (string, []any) {
	return "SELECT column_name, collation_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ? AND collation_name IS NOT NULL", []any{table}
}

// DatePart implements Grammar.
func (g MySQLGrammar) DatePart(part, column string) (string, error) {
	fn, ok := mysqlDateFuncs[strings.ToLower(part)]
	if !ok {
		return "", unsupportedPart(g, part)
	}
	return fn + "(" + column + ")", nil
}

// JSONContains implements Grammar.
func (MySQLGrammar) JSONContains(column string, value any, not bool) (string, []any, error) {
	col, path, err := jsonPath(column)
	if err != nil {
		return "", nil, err
	}
	v, err := jsonValue(value)
	if err != nil {
		return "", nil, err
	}
	expr := "JSON_CONTAINS(" + col + ", ?"
	if len(path) > 0 {
		expr += ", " + dollarPath(path)
	}
	expr += ")"
	if not {
		expr = "NOT " + expr
	}
	return expr, []any{v}, nil
}

// GroupConcat implements Grammar.
func (MySQLGrammar) GroupConcat(column, separator string) string {
	return "GROUP_CONCAT(" + column + " SEPARATOR " + quoteString(separator, true) + ")"
}

// Variance implements Grammar.
func (MySQLGrammar) Variance(column string) string { return "VAR_SAMP(" + column + ")" }

// StdDev implements Grammar.
func (MySQLGrammar) StdDev(column string) string { return "STDDEV_SAMP(" + column + ")" }

// ComputeStdDevClientSide implements Grammar.
func (MySQLGrammar) ComputeStdDevClientSide() bool { return false }

// Like implements Grammar. The default MySQL collations compare case
// insensitively, so case-sensitive matches compare binary strings unless
// the column collation is already case sensitive.
func (MySQLGrammar) Like(column, pattern string, caseSensitive, not bool, collation string) (string, []any) {
	op := " LIKE "
	if not {
		op = " NOT LIKE "
	}
	cs := mysqlCaseSensitive(collation)
	switch {
	case caseSensitive && cs:
		return column + op + "?", []any{pattern}
	case caseSensitive:
		return column + op + "BINARY ?", []any{pattern}
	case collation != "" && !cs:
		return column + op + "?", []any{pattern}
	default:
		return "LOWER(" + column + ")" + op + "LOWER(?)", []any{pattern}
	}
}

func mysqlCaseSensitive(collation string) bool {
	c := strings.ToLower(collation)
	return c == "binary" || strings.HasSuffix(c, "_bin") || strings.HasSuffix(c, "_cs")
}

// Upsert implements Grammar.
func (MySQLGrammar) Upsert(u *UpsertStatement) (string, error) {
	if err := u.validate(); err != nil {
		return "", err
	}
	if u.Ignore {
		return u.insertInto("INSERT IGNORE INTO"), nil
	}
	return u.insertInto("INSERT INTO") + " ON DUPLICATE KEY UPDATE " + u.assignments(func(c string) string {
		return "VALUES(" + c + ")"
	}), nil
}

// SupportsReturning implements Grammar.
func (MySQLGrammar) SupportsReturning() bool { return false }
