package relq

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/syssam/relq/contrib/dataloader"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/schema"
)

// pathNode is a tree of eager load paths. Paths sharing a prefix, such as
// "posts.comments" and "posts.tags", share the "posts" node and load it
// once.
type pathNode struct {
	name     string
	fn       func(*sql.Builder)
	children []*pathNode
}

func (n *pathNode) child(name string) *pathNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	c := &pathNode{name: name}
	n.children = append(n.children, c)
	return c
}

// add registers path. fn, when not nil, constrains the query of the last
// segment.
func (n *pathNode) add(path string, fn func(*sql.Builder)) error {
	if path == "" {
		return sql.NewConfigError("relation", path, "empty relation path")
	}
	cur := n
	for _, name := range strings.Split(path, ".") {
		if name == "" {
			return sql.NewConfigError("relation", path, "empty relation segment")
		}
		cur = cur.child(name)
	}
	if fn != nil {
		cur.fn = fn
	}
	return nil
}

func (n *pathNode) clone() *pathNode {
	if n == nil {
		return nil
	}
	c := &pathNode{name: n.name, fn: n.fn, children: make([]*pathNode, len(n.children))}
	for i, ch := range n.children {
		c.children[i] = ch.clone()
	}
	return c
}

// batch is the eager load of one relation for a set of parent records.
type batch struct {
	node    *pathNode
	desc    *schema.Descriptor
	parents []*Record
	related []*Record
}

// load resolves the children of node on records of entity. The relations
// of one level are queried concurrently, one query each, and attached in
// declaration order once every query has returned. Nested levels follow.
func (c *Client) load(ctx context.Context, records []*Record, entity string, node *pathNode) error {
	batches := make([]*batch, len(node.children))
	for i, child := range node.children {
		d, err := c.reg.Describe(entity, child.name)
		if err != nil {
			return &sql.ConfigError{Option: "relation", Value: child.name, Message: err.Error(), Err: err}
		}
		batches[i] = &batch{node: child, desc: d, parents: missing(records, child.name)}
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.loadLimit)
	for _, b := range batches {
		if len(b.parents) == 0 {
			continue
		}
		g.Go(func() error { return c.fetch(gctx, b) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, b := range batches {
		b.attach()
	}
	for _, b := range batches {
		if len(b.node.children) == 0 {
			continue
		}
		if next := related(records, b.node.name); len(next) > 0 {
			if err := c.load(ctx, next, b.desc.RelatedEntity, b.node); err != nil {
				return err
			}
		}
	}
	return nil
}

// missing returns the records that do not have relation loaded yet.
func missing(records []*Record, relation string) []*Record {
	var out []*Record
	for _, r := range records {
		if !r.Loaded(relation) {
			out = append(out, r)
		}
	}
	return out
}

// pivotColumn is the result alias of the pivot key selected with the
// related rows of a many-to-many relation.
func pivotColumn(key string) string { return "pivot_" + key }

// fetch runs the single query of a batch: every related row of the
// parents, matched by "IN" on the foreign key, or on the pivot key for
// many-to-many relations.
func (c *Client) fetch(ctx context.Context, b *batch) error {
	d := b.desc
	keys := make([]any, len(b.parents))
	for i, r := range b.parents {
		keys[i] = r.Values[d.LocalKey]
	}
	if keys = dataloader.UniqueKeys(keys); len(keys) == 0 {
		return nil
	}
	q := sql.Table(c.ex, d.RelatedTable)
	if d.Kind == schema.ManyToMany {
		q.Select(d.RelatedTable+".*").
			AddSelect(d.PivotTable+"."+d.PivotForeignKey+" AS "+pivotColumn(d.PivotForeignKey)).
			Join(d.PivotTable, d.RelatedTable+"."+d.RelatedPrimaryKey, "=", d.PivotTable+"."+d.PivotRelatedKey).
			WhereIn(d.PivotTable+"."+d.PivotForeignKey, keys)
	} else {
		q.WhereIn(d.RelatedTable+"."+d.ForeignKey, keys)
	}
	if b.node.fn != nil {
		b.node.fn(q)
	}
	rows, err := q.OrderBy(d.RelatedTable+"."+d.RelatedPrimaryKey, "asc").Get(ctx)
	if err != nil {
		return err
	}
	c.log.DebugContext(ctx, "eager load", "relation", d.Name, "table", d.RelatedTable, "keys", len(keys), "rows", len(rows))
	b.related = make([]*Record, len(rows))
	for i, row := range rows {
		rec := NewRecord(d.RelatedEntity, d.RelatedTable, d.RelatedPrimaryKey, row)
		if d.Kind == schema.ManyToMany {
			alias := pivotColumn(d.PivotForeignKey)
			rec.Pivot = sql.Row{d.PivotForeignKey: row[alias], d.PivotRelatedKey: row[d.RelatedPrimaryKey]}
			delete(row, alias)
		}
		b.related[i] = rec
	}
	return nil
}

// attach sets the relation on every parent of the batch: the matching
// record or nil for single relations, a possibly empty collection
// otherwise.
func (b *batch) attach() {
	d := b.desc
	groups := dataloader.GroupByKey(b.related, func(r *Record) any {
		if d.Kind == schema.ManyToMany {
			return dataloader.Normalize(r.Pivot[d.PivotForeignKey])
		}
		return dataloader.Normalize(r.Values[d.ForeignKey])
	})
	for _, p := range b.parents {
		group := groups[dataloader.Normalize(p.Values[d.LocalKey])]
		if d.Single() {
			if len(group) > 0 {
				p.SetRelation(d.Name, group[0])
			} else {
				p.SetRelation(d.Name, nil)
			}
			continue
		}
		p.SetRelation(d.Name, &Collection{Entity: d.RelatedEntity, Records: group})
	}
}
