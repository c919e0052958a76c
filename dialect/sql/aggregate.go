package sql

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// aggregates accepted by Aggregate.
var aggregates = map[string]struct{}{
	"COUNT": {}, "SUM": {}, "AVG": {}, "MIN": {}, "MAX": {},
}

// AggregateSQL compiles a query selecting expr(column) as "aggregate" on a
// snapshot of the builder. Queries whose row set depends on DISTINCT,
// GROUP BY, LIMIT or OFFSET are wrapped in a derived table first.
func (b *Builder) AggregateSQL(column string, expr func(string) string) (string, []any, error) {
	if column != "*" && !isValidColumn(column) {
		return "", nil, NewConfigError("aggregate column", column, "invalid identifier")
	}
	c := b.Clone()
	if c.distinct || len(c.groupBy) > 0 || c.limit != nil || c.offset != nil {
		outer := "*"
		if column != "*" {
			c.fields, c.fieldArgs = []string{column}, nil
			outer = "aggregate_table." + columnKey(column)
		}
		inner, args, err := c.ToSQL()
		if err != nil {
			return "", nil, err
		}
		return "SELECT " + expr(outer) + " AS aggregate FROM (" + inner + ") AS aggregate_table", args, nil
	}
	c.fields, c.fieldArgs, c.orders = []string{expr(column) + " AS aggregate"}, nil, nil
	return c.ToSQL()
}

// Aggregate runs fn (COUNT, SUM, AVG, MIN or MAX) over column and returns
// the raw scalar, nil when NULL.
func (b *Builder) Aggregate(ctx context.Context, fn, column string) (any, error) {
	fn = strings.ToUpper(fn)
	if _, ok := aggregates[fn]; !ok {
		return nil, NewConfigError("aggregate", fn, "unsupported function")
	}
	return b.scalar(ctx, column, func(c string) string { return fn + "(" + c + ")" })
}

// Count returns the number of matched rows, or of non-NULL values of the
// given column.
func (b *Builder) Count(ctx context.Context, column ...string) (int64, error) {
	col := "*"
	if len(column) > 0 {
		col = column[0]
	}
	v, err := b.Aggregate(ctx, "COUNT", col)
	if err != nil {
		return 0, err
	}
	f, _ := toFloat(v)
	return int64(f), nil
}

// Sum returns the sum of column, 0 for no rows.
func (b *Builder) Sum(ctx context.Context, column string) (float64, error) {
	return b.numeric(ctx, "SUM", column)
}

// Avg returns the average of column, 0 for no rows.
func (b *Builder) Avg(ctx context.Context, column string) (float64, error) {
	return b.numeric(ctx, "AVG", column)
}

// Min returns the smallest value of column, nil for no rows.
func (b *Builder) Min(ctx context.Context, column string) (any, error) {
	return b.Aggregate(ctx, "MIN", column)
}

// Max returns the largest value of column, nil for no rows.
func (b *Builder) Max(ctx context.Context, column string) (any, error) {
	return b.Aggregate(ctx, "MAX", column)
}

// Variance returns the sample variance of column. NULL, negative and
// non-numeric results are reported as 0.
func (b *Builder) Variance(ctx context.Context, column string) (float64, error) {
	v, err := b.scalar(ctx, column, func(c string) string { return b.grammar.Variance(c) })
	if err != nil {
		return 0, err
	}
	return nonNegative(v), nil
}

// StdDev returns the sample standard deviation of column. When the grammar
// has no square root, the variance is selected and the root is taken here.
// NULL, negative and non-numeric intermediates are reported as 0.
func (b *Builder) StdDev(ctx context.Context, column string) (float64, error) {
	if b.grammar != nil && b.grammar.ComputeStdDevClientSide() {
		v, err := b.Variance(ctx, column)
		if err != nil {
			return 0, err
		}
		return math.Sqrt(v), nil
	}
	v, err := b.scalar(ctx, column, func(c string) string { return b.grammar.StdDev(c) })
	if err != nil {
		return 0, err
	}
	return nonNegative(v), nil
}

// Implode concatenates the values of column with separator.
func (b *Builder) Implode(ctx context.Context, column, separator string) (string, error) {
	v, err := b.scalar(ctx, column, func(c string) string { return b.grammar.GroupConcat(c, separator) })
	if err != nil || v == nil {
		return "", err
	}
	switch v := v.(type) {
	case string:
		return v, nil
	default:
		f, _ := toFloat(v)
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
}

func (b *Builder) numeric(ctx context.Context, fn, column string) (float64, error) {
	v, err := b.Aggregate(ctx, fn, column)
	if err != nil {
		return 0, err
	}
	f, _ := toFloat(v)
	return f, nil
}

func (b *Builder) scalar(ctx context.Context, column string, expr func(string) string) (any, error) {
	if err := b.Err(); err != nil {
		return nil, err
	}
	query, args, err := b.AggregateSQL(column, expr)
	if err != nil {
		return nil, err
	}
	rows, err := b.query(ctx, "aggregate", query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var v any
	if rows.Next() {
		if err := rows.Scan(&v); err != nil {
			return nil, execError("aggregate", b.table, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, execError("aggregate", b.table, err)
	}
	if bs, ok := v.([]byte); ok {
		v = string(bs)
	}
	return v, nil
}

// toFloat converts a scanned scalar to float64.
func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case []byte:
		return toFloat(string(v))
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func nonNegative(v any) float64 {
	f, ok := toFloat(v)
	if !ok || f < 0 || math.IsNaN(f) {
		return 0
	}
	return f
}
