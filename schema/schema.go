package schema

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/go-openapi/inflect"

	"github.com/syssam/relq/schema/edge"
)

// Edge is implemented by the edge builders.
type Edge interface {
	Descriptor() *edge.Descriptor
}

// Entity describes a table and its relations.
type Entity struct {
	// Name identifies the entity in relation paths and edges, e.g. "User".
	Name string
	// Table defaults to the plural snake-cased name ("users").
	Table string
	// PrimaryKey defaults to "id".
	PrimaryKey string
	// Columns maps attribute names to column names for lookups by name.
	// Names missing from the map are snake-cased.
	Columns map[string]string
	Edges   []Edge
}

// Registry holds the entities of an application. It is built once at
// startup, usually by generated code, and is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	prefix   string
	entities map[string]*Entity
}

// Option configures a Registry.
type Option func(*Registry)

// WithTablePrefix prepends prefix to every table name the registry
// reports, pivot tables included.
func WithTablePrefix(prefix string) Option {
	return func(r *Registry) { r.prefix = prefix }
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{entities: make(map[string]*Entity)}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetTablePrefix changes the table prefix of the registry.
func (r *Registry) SetTablePrefix(prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefix = prefix
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Register adds entities to the registry. Edges are checked when they are
// described, so entities may be registered in any order.
func (r *Registry) Register(entities ...*Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entities {
		if err := r.add(e); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(entities ...*Entity) *Registry {
	if err := r.Register(entities...); err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) add(e *Entity) error {
	if e == nil || e.Name == "" {
		return errors.New("schema: entity without a name")
	}
	if _, ok := r.entities[e.Name]; ok {
		return fmt.Errorf("schema: entity %q registered twice", e.Name)
	}
	cp := *e
	if cp.Table == "" {
		cp.Table = inflect.Pluralize(inflect.Underscore(cp.Name))
	}
	if cp.PrimaryKey == "" {
		cp.PrimaryKey = "id"
	}
	idents := []string{cp.Table, cp.PrimaryKey}
	for _, c := range cp.Columns {
		idents = append(idents, c)
	}
	names := make(map[string]struct{}, len(cp.Edges))
	for _, ed := range cp.Edges {
		d := ed.Descriptor()
		if d.Name == "" || d.Type == "" {
			return fmt.Errorf("schema: entity %q: edge without a name or type", cp.Name)
		}
		if _, ok := names[d.Name]; ok {
			return fmt.Errorf("schema: entity %q: edge %q declared twice", cp.Name, d.Name)
		}
		names[d.Name] = struct{}{}
		idents = append(idents, d.ForeignKey, d.LocalKey, d.OwnerKey, d.Through, d.PivotForeignKey, d.PivotRelatedKey)
	}
	for _, id := range idents {
		if id != "" && !identRe.MatchString(id) {
			return fmt.Errorf("schema: entity %q: invalid identifier %q", cp.Name, id)
		}
	}
	r.entities[cp.Name] = &cp
	return nil
}

// Entity returns the registered entity with the given name.
func (r *Registry) Entity(name string) (*Entity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[name]
	if !ok {
		return nil, &NotFoundError{Entity: name}
	}
	return e, nil
}

// Entities returns the names of the registered entities, sorted.
func (r *Registry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for n := range r.entities {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Table returns the prefixed table name of an entity.
func (r *Registry) Table(entity string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entities[entity]
	if !ok {
		return "", &NotFoundError{Entity: entity}
	}
	return r.prefix + e.Table, nil
}

// Column maps an attribute name of an entity to its column.
func (r *Registry) Column(entity, name string) (string, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return "", err
	}
	if c, ok := e.Columns[name]; ok {
		return c, nil
	}
	return inflect.Underscore(name), nil
}

// Relations returns the edge names of an entity in declaration order.
func (r *Registry) Relations(entity string) ([]string, error) {
	e, err := r.Entity(entity)
	if err != nil {
		return nil, err
	}
	names := make([]string, len(e.Edges))
	for i, ed := range e.Edges {
		names[i] = ed.Descriptor().Name
	}
	return names, nil
}

// Describe resolves a relation of an entity to its join keys. The result
// depends on the current table prefix and is computed on every call.
func (r *Registry) Describe(entity, relation string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.entities[entity]
	if !ok {
		return nil, &NotFoundError{Entity: entity}
	}
	var ed *edge.Descriptor
	for _, e := range owner.Edges {
		if d := e.Descriptor(); d.Name == relation {
			ed = d
			break
		}
	}
	if ed == nil {
		return nil, &NotFoundError{Entity: entity, Relation: relation}
	}
	related, ok := r.entities[ed.Type]
	if !ok {
		return nil, &NotFoundError{Entity: ed.Type}
	}
	d := &Descriptor{
		Name:              relation,
		Edge:              ed.Kind,
		Table:             r.prefix + owner.Table,
		RelatedEntity:     related.Name,
		RelatedTable:      r.prefix + related.Table,
		RelatedPrimaryKey: related.PrimaryKey,
	}
	switch ed.Kind {
	case edge.HasOneKind, edge.HasManyKind:
		d.Kind = OneToMany
		if ed.Kind == edge.HasOneKind {
			d.Kind = OneToOne
		}
		d.ForeignKey = or(ed.ForeignKey, foreignKey(owner.Name))
		d.LocalKey = or(ed.LocalKey, owner.PrimaryKey)
	case edge.BelongsToKind:
		d.Kind = OneToOne
		d.ForeignKey = or(ed.OwnerKey, related.PrimaryKey)
		d.LocalKey = or(ed.ForeignKey, inflect.Underscore(relation)+"_"+related.PrimaryKey)
	case edge.BelongsToManyKind:
		d.Kind = ManyToMany
		d.RelatedPrimaryKey = or(ed.OwnerKey, related.PrimaryKey)
		d.LocalKey = or(ed.LocalKey, owner.PrimaryKey)
		d.PivotTable = r.prefix + or(ed.Through, pivotTable(owner.Name, related.Name))
		d.PivotForeignKey = or(ed.PivotForeignKey, foreignKey(owner.Name))
		d.PivotRelatedKey = or(ed.PivotRelatedKey, foreignKey(related.Name))
		if d.PivotForeignKey == d.PivotRelatedKey {
			return nil, fmt.Errorf("schema: %s.%s: pivot keys are both %q", entity, relation, d.PivotForeignKey)
		}
	default:
		return nil, fmt.Errorf("schema: %s.%s: unknown edge kind %d", entity, relation, ed.Kind)
	}
	return d, nil
}

func or(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

func singular(name string) string {
	return inflect.Underscore(inflect.Singularize(name))
}

func foreignKey(entity string) string {
	return singular(entity) + "_id"
}

func pivotTable(a, b string) string {
	names := []string{singular(a), singular(b)}
	sort.Strings(names)
	return names[0] + "_" + names[1]
}
