package sqlgraph

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/schema"
)

// Resolver turns dotted relation paths, such as "posts.comments", into
// join chains and correlated subqueries.
type Resolver struct {
	reg *schema.Registry
}

// NewResolver returns a resolver over the relations of reg.
func NewResolver(reg *schema.Registry) *Resolver {
	return &Resolver{reg: reg}
}

// Registry returns the registry relations are resolved from.
func (r *Resolver) Registry() *schema.Registry { return r.reg }

// Hop is one resolved segment of a relation path.
type Hop struct {
	Relation *schema.Descriptor
	// Prev references the table the hop starts from.
	Prev string
	// Table references the related rows. It is the related table name,
	// or an alias when the table already appears earlier in the chain.
	Table string
	From  string // "table" or "table AS alias"
	// Pivot and PivotFrom are set for ManyToMany hops.
	Pivot     string
	PivotFrom string
}

// Link returns the columns correlating the hop with the previous table:
// the related (or pivot) column and the previous local key.
func (h *Hop) Link() (string, string) {
	d := h.Relation
	if d.Kind == schema.ManyToMany {
		return h.Pivot + "." + d.PivotForeignKey, h.Prev + "." + d.LocalKey
	}
	return h.Table + "." + d.ForeignKey, h.Prev + "." + d.LocalKey
}

// PivotLink returns the columns joining the related table to the pivot
// table of a ManyToMany hop.
func (h *Hop) PivotLink() (string, string) {
	d := h.Relation
	return h.Table + "." + d.RelatedPrimaryKey, h.Pivot + "." + d.PivotRelatedKey
}

// Chain is a relation path resolved from an origin entity.
type Chain struct {
	Entity string
	Origin string // reference of the origin table
	Hops   []*Hop
}

// Last returns the final hop.
func (c *Chain) Last() *Hop { return c.Hops[len(c.Hops)-1] }

// Target returns the reference of the final related table.
func (c *Chain) Target() string { return c.Last().Table }

// Tables returns the tables the chain reads, pivot tables included, in
// hop order.
func (c *Chain) Tables() []string {
	var tables []string
	for _, h := range c.Hops {
		if h.Relation.Kind == schema.ManyToMany {
			tables = append(tables, h.Relation.PivotTable)
		}
		tables = append(tables, h.Relation.RelatedTable)
	}
	return tables
}

// TargetEntity returns the entity reached by the path.
func (c *Chain) TargetEntity() string { return c.Last().Relation.RelatedEntity }

// Chain resolves path from entity, starting at the entity's table.
func (r *Resolver) Chain(entity, path string) (*Chain, error) {
	table, err := r.reg.Table(entity)
	if err != nil {
		return nil, relationError(path, err)
	}
	return r.chain(entity, table, table, path)
}

func (r *Resolver) chain(entity, origin, base, path string) (*Chain, error) {
	if path == "" {
		return nil, sql.NewConfigError("relation", path, "empty relation path")
	}
	used := map[string]int{base: 1, origin: 1}
	ref := func(table string) (string, string) {
		n := used[table]
		used[table]++
		if n == 0 {
			return table, table
		}
		alias := table + "_" + strconv.Itoa(n)
		return alias, table + " AS " + alias
	}
	c := &Chain{Entity: entity, Origin: origin}
	current, prev := entity, origin
	for _, name := range strings.Split(path, ".") {
		d, err := r.reg.Describe(current, name)
		if err != nil {
			return nil, relationError(path, err)
		}
		h := &Hop{Relation: d, Prev: prev}
		if d.Kind == schema.ManyToMany {
			h.Pivot, h.PivotFrom = ref(d.PivotTable)
		}
		h.Table, h.From = ref(d.RelatedTable)
		c.Hops = append(c.Hops, h)
		current, prev = d.RelatedEntity, h.Table
	}
	return c, nil
}

func relationError(path string, err error) error {
	return &sql.ConfigError{Option: "relation", Value: path, Message: err.Error(), Err: err}
}

// Exists adds a correlated "EXISTS (SELECT 1 ...)" filter to b, matching
// rows of entity with at least one related row at the end of path. When fn
// is not nil, the conditions it adds are applied to the final related
// table; plain column names are qualified with it.
//
// An unknown relation is returned as an error. Failures of the builder
// calls made on b are recorded on b.
func (r *Resolver) Exists(b *sql.Builder, entity, path string, fn func(*sql.Builder), conj sql.Conj, negated bool) error {
	q, err := r.Subquery(b, entity, path, fn)
	if err != nil {
		return err
	}
	query, args, err := q.SelectRaw("1").Limit(1).ToSQL()
	if err != nil {
		return err
	}
	b.WhereExistsRaw(query, args, conj, negated)
	return nil
}

// Count adds "(SELECT COUNT(*) ...) op n" to b, comparing the number of
// rows related through path with n.
func (r *Resolver) Count(b *sql.Builder, entity, path string, fn func(*sql.Builder), conj sql.Conj, op string, n int) error {
	switch op {
	case "=", "!=", "<>", "<", ">", "<=", ">=":
	default:
		return sql.NewConfigError("operator", op, "unsupported operator")
	}
	q, err := r.Subquery(b, entity, path, fn)
	if err != nil {
		return err
	}
	query, args, err := q.SelectRaw("COUNT(*)").ToSQL()
	if err != nil {
		return err
	}
	expr := "(" + query + ") " + op + " ?"
	if conj == sql.Or {
		b.OrWhereRaw(expr, append(args, n)...)
	} else {
		b.WhereRaw(expr, append(args, n)...)
	}
	return nil
}

// Subquery returns a builder over the rows related through path,
// correlated with the table of b. The select list is left empty.
func (r *Resolver) Subquery(b *sql.Builder, entity, path string, fn func(*sql.Builder)) (*sql.Builder, error) {
	origin, base := splitAlias(b.TableName())
	c, err := r.chain(entity, origin, base, path)
	if err != nil {
		return nil, err
	}
	first := c.Hops[0]
	var q *sql.Builder
	if first.Relation.Kind == schema.ManyToMany {
		related, pivot := first.PivotLink()
		q = b.New(first.PivotFrom).Join(first.From, related, "=", pivot)
	} else {
		q = b.New(first.From)
	}
	for _, h := range c.Hops[1:] {
		join(q, h)
	}
	col, local := first.Link()
	q.WhereColumn(col, "=", local)
	if fn != nil {
		inner := q.New(c.Target())
		fn(inner)
		q.AddError(inner.Err())
		conds := Qualify(inner.Conditions(), c.Target())
		if s, args := sql.CompileConditions(conds); s != "" {
			if len(conds) > 1 || isRaw(conds[0]) {
				s = "(" + s + ")"
			}
			q.WhereRaw(s, args...)
		}
	}
	return q, q.Err()
}

// Linked joins the chain of path to b and filters on a column of the final
// related table. The select list is narrowed to the origin columns and
// made distinct, as one origin row may link to many related rows.
func (r *Resolver) Linked(b *sql.Builder, entity, path, column, op string, value any) error {
	origin, base := splitAlias(b.TableName())
	c, err := r.chain(entity, origin, base, path)
	if err != nil {
		return err
	}
	for _, h := range c.Hops {
		join(b, h)
	}
	b.Where(c.Target()+"."+column, op, value)
	b.Select(origin + ".*").Distinct()
	return nil
}

// join adds the joins reaching the related table of h.
func join(b *sql.Builder, h *Hop) {
	if h.Relation.Kind == schema.ManyToMany {
		if !b.HasJoin(h.PivotFrom) {
			first, second := h.Link()
			b.Join(h.PivotFrom, first, "=", second)
		}
		if !b.HasJoin(h.From) {
			first, second := h.PivotLink()
			b.Join(h.From, first, "=", second)
		}
		return
	}
	if !b.HasJoin(h.From) {
		first, second := h.Link()
		b.Join(h.From, first, "=", second)
	}
}

// isRaw reports whether c is a raw fragment, which may hold its own
// connectors.
func isRaw(c sql.Condition) bool {
	s, ok := c.(*sql.Special)
	return ok && s.Kind == sql.KindRaw
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Qualify prefixes the plain column names of conds with table. Raw
// fragments and expressions are kept as written.
func Qualify(conds []sql.Condition, table string) []sql.Condition {
	out := make([]sql.Condition, len(conds))
	for i, c := range conds {
		switch c := c.(type) {
		case *sql.Simple:
			if identRe.MatchString(c.Column) {
				cp := *c
				cp.Column = table + "." + c.Column
				out[i] = &cp
				continue
			}
		case *sql.Special:
			if c.Kind == sql.KindNested {
				cp := *c
				cp.Group = Qualify(c.Group, table)
				out[i] = &cp
				continue
			}
		}
		out[i] = c
	}
	return out
}

// splitAlias returns the reference and the base name of a table
// expression such as "users AS u".
func splitAlias(table string) (string, string) {
	if i := strings.LastIndex(strings.ToLower(table), " as "); i > 0 {
		return strings.TrimSpace(table[i+4:]), strings.TrimSpace(table[:i])
	}
	return table, table
}
