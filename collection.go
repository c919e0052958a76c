package relq

import (
	"sort"

	"github.com/syssam/relq/contrib/dataloader"
	"github.com/syssam/relq/dialect/sql"
)

// Record is one row of an entity together with its loaded relations.
type Record struct {
	Entity     string
	Table      string
	PrimaryKey string
	Values     sql.Row
	// Pivot holds the pivot columns of a record loaded through a
	// many-to-many relation.
	Pivot sql.Row

	relations map[string]any
}

// NewRecord returns a record of entity stored in table.
func NewRecord(entity, table, primaryKey string, values sql.Row) *Record {
	if values == nil {
		values = make(sql.Row)
	}
	return &Record{Entity: entity, Table: table, PrimaryKey: primaryKey, Values: values}
}

// ID returns the primary key value.
func (r *Record) ID() any { return r.Values[r.PrimaryKey] }

// Get returns the value of a column.
func (r *Record) Get(column string) any { return r.Values[column] }

// Set sets the value of a column.
func (r *Record) Set(column string, v any) { r.Values[column] = v }

// SetRelation attaches a loaded relation. v is a *Record, a *Collection or
// nil for an absent single relation.
func (r *Record) SetRelation(name string, v any) {
	if r.relations == nil {
		r.relations = make(map[string]any)
	}
	switch v := v.(type) {
	case *Record:
		if v == nil {
			r.relations[name] = nil
			return
		}
	case *Collection:
		if v == nil {
			v = &Collection{}
		}
		r.relations[name] = v
		return
	}
	r.relations[name] = v
}

// Loaded reports whether the relation was loaded.
func (r *Record) Loaded(name string) bool {
	_, ok := r.relations[name]
	return ok
}

// Relations returns the names of the loaded relations, sorted.
func (r *Record) Relations() []string {
	names := make([]string, 0, len(r.relations))
	for n := range r.relations {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Relation returns a loaded relation: a *Record, a *Collection or nil.
// It fails with a NotLoadedError when the relation was not loaded.
func (r *Record) Relation(name string) (any, error) {
	v, ok := r.relations[name]
	if !ok {
		return nil, NewNotLoadedError(name)
	}
	return v, nil
}

// One returns a loaded single relation. The record is nil when no related
// row exists.
func (r *Record) One(name string) (*Record, error) {
	v, err := r.Relation(name)
	if err != nil {
		return nil, err
	}
	rec, _ := v.(*Record)
	return rec, nil
}

// Many returns a loaded relation as a collection. A single relation is
// returned as a collection of zero or one record.
func (r *Record) Many(name string) (*Collection, error) {
	v, err := r.Relation(name)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case *Collection:
		return v, nil
	case *Record:
		return &Collection{Entity: v.Entity, Records: []*Record{v}}, nil
	}
	return &Collection{}, nil
}

// Map returns the column values merged with the loaded relations, which
// are converted recursively. The record itself is not modified.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.Values)+len(r.relations))
	for k, v := range r.Values {
		out[k] = v
	}
	for name, v := range r.relations {
		switch v := v.(type) {
		case *Record:
			out[name] = v.Map()
		case *Collection:
			out[name] = v.Maps()
		default:
			out[name] = nil
		}
	}
	return out
}

// Collection is an ordered list of records of one entity.
type Collection struct {
	Entity  string
	Records []*Record
}

// Of returns a collection holding records. The entity is taken from the
// first record.
func Of(records ...*Record) *Collection {
	c := &Collection{Records: records}
	if len(records) > 0 {
		c.Entity = records[0].Entity
	}
	return c
}

// Len returns the number of records.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}

// First returns the first record, or nil when the collection is empty.
func (c *Collection) First() *Record {
	if c.Len() == 0 {
		return nil
	}
	return c.Records[0]
}

// Pluck returns the values of column in record order.
func (c *Collection) Pluck(column string) []any {
	out := make([]any, 0, c.Len())
	for _, r := range c.Records {
		out = append(out, r.Values[column])
	}
	return out
}

// IDs returns the primary key values in record order.
func (c *Collection) IDs() []any {
	out := make([]any, 0, c.Len())
	for _, r := range c.Records {
		out = append(out, r.ID())
	}
	return out
}

// Find returns the record with the given primary key. Keys are compared
// after normalization, so 1, int64(1) and "1" match the same record.
func (c *Collection) Find(id any) *Record {
	key := dataloader.Normalize(id)
	for _, r := range c.Records {
		if dataloader.Normalize(r.ID()) == key {
			return r
		}
	}
	return nil
}

// Filter returns the records for which fn returns true.
func (c *Collection) Filter(fn func(*Record) bool) *Collection {
	out := &Collection{Entity: c.Entity}
	for _, r := range c.Records {
		if fn(r) {
			out.Records = append(out.Records, r)
		}
	}
	return out
}

// Maps returns every record converted with Record.Map.
func (c *Collection) Maps() []map[string]any {
	out := make([]map[string]any, 0, c.Len())
	for _, r := range c.Records {
		out = append(out, r.Map())
	}
	return out
}

// Collect flattens the values of relation loaded on every record of c into
// one list. Records reached more than once are returned once, identified by
// their table and primary key. Records without the relation are skipped.
func Collect(c *Collection, relation string) []*Record {
	var (
		out  []*Record
		seen = make(map[recordKey]struct{})
	)
	add := func(r *Record) {
		if r == nil {
			return
		}
		k := recordKey{table: r.Table, id: dataloader.Normalize(r.ID())}
		if k.id != nil {
			if _, ok := seen[k]; ok {
				return
			}
			seen[k] = struct{}{}
		}
		out = append(out, r)
	}
	for _, r := range c.Records {
		v, ok := r.relations[relation]
		if !ok {
			continue
		}
		switch v := v.(type) {
		case *Record:
			add(v)
		case *Collection:
			for _, rr := range v.Records {
				add(rr)
			}
		}
	}
	return out
}

type recordKey struct {
	table string
	id    any
}

// related returns every record instance attached under relation. Unlike
// Collect, rows with equal keys are all kept as each instance must receive
// the nested relations.
func related(records []*Record, relation string) []*Record {
	var (
		out  []*Record
		seen = make(map[*Record]struct{})
	)
	add := func(r *Record) {
		if _, ok := seen[r]; r != nil && !ok {
			seen[r] = struct{}{}
			out = append(out, r)
		}
	}
	for _, r := range records {
		switch v := r.relations[relation].(type) {
		case *Record:
			add(v)
		case *Collection:
			for _, rr := range v.Records {
				add(rr)
			}
		}
	}
	return out
}
