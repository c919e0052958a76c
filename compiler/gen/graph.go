package gen

import (
	"fmt"
	"go/token"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/relq/schema"
	"github.com/syssam/relq/schema/edge"
)

// Graph holds the validated entities of a Spec.
type Graph struct {
	*Config
	Nodes []*Type

	registry *schema.Registry
}

// Type is an entity of the graph.
type Type struct {
	Name       string
	Table      string
	PrimaryKey string
	Comment    string
	ID         *Field
	Fields     []*Field
	Edges      []*Edge
}

// Field is a column of a Type.
type Field struct {
	Name     string
	Column   string
	Type     string
	Enum     []string
	Optional bool
	Comment  string
}

// Edge is a relation of a Type, resolved against the registry.
type Edge struct {
	Name    string
	Kind    edge.Kind
	Type    string
	Comment string
	Spec    EdgeSpec
	Rel     *schema.Descriptor
}

var fieldTypes = []string{
	"string", "text",
	"int", "int8", "int16", "int32", "int64",
	"uint", "uint8", "uint16", "uint32", "uint64",
	"float32", "float64",
	"bool", "time", "enum", "json", "uuid",
}

var edgeKinds = map[string]edge.Kind{
	"has_one":         edge.HasOneKind,
	"has_many":        edge.HasManyKind,
	"belongs_to":      edge.BelongsToKind,
	"belongs_to_many": edge.BelongsToManyKind,
}

// Names used by the generated files that entity packages must not shadow.
var reservedPackages = []string{"relq", "sql", "schema", "edge", "uuid", "time"}

// Identifiers declared by every generated entity package.
var reservedIdents = []string{
	"Entity", "Table", "Columns", "ValidColumn", "Query",
	"Predicate", "Where", "And", "Or",
}

func validIDType(t string) bool {
	switch t {
	case "int", "int64", "uint64", "string", "uuid":
		return true
	}
	return false
}

// NewGraph validates s and resolves its relations.
func NewGraph(c *Config, s *Spec) (*Graph, error) {
	if c == nil {
		return nil, NewConfigError("Config", nil, "config is required")
	}
	if name := c.PackageName(); !token.IsIdentifier(name) || slices.Contains(reservedPackages, name) {
		return nil, NewConfigError("Package", c.Package, "package name must be a valid Go identifier and not shadow a generated import")
	}
	idType := c.IDType
	if s.IDType != "" {
		idType = s.IDType
	}
	g := &Graph{Config: c}
	var (
		names    = make(map[string]bool)
		pkgs     = make(map[string]bool)
		entities = make([]*schema.Entity, 0, len(s.Entities))
	)
	for _, es := range s.Entities {
		t, err := newType(es, idType)
		if err != nil {
			return nil, err
		}
		pkg := strings.ToLower(t.Name)
		switch {
		case names[t.Name]:
			return nil, NewSchemaError(t.Name, "", "entity declared twice", nil)
		case pkgs[pkg]:
			return nil, NewSchemaError(t.Name, "", fmt.Sprintf("package %q is generated twice", pkg), nil)
		case pkg == c.PackageName() || slices.Contains(reservedPackages, pkg):
			return nil, NewSchemaError(t.Name, "", fmt.Sprintf("package %q is reserved", pkg), nil)
		}
		names[t.Name], pkgs[pkg] = true, true
		g.Nodes = append(g.Nodes, t)
		entities = append(entities, t.entity())
	}
	for _, t := range g.Nodes {
		for _, e := range t.Edges {
			if !names[e.Type] {
				return nil, NewEdgeError(t.Name, e.Type, e.Name, "unknown entity", nil)
			}
		}
	}
	g.registry = schema.NewRegistry()
	if err := g.registry.Register(entities...); err != nil {
		return nil, NewSchemaError("", "", "register", err)
	}
	for _, t := range g.Nodes {
		for _, e := range t.Edges {
			rel, err := g.registry.Describe(t.Name, e.Name)
			if err != nil {
				return nil, NewEdgeError(t.Name, e.Type, e.Name, "resolve keys", err)
			}
			e.Rel = rel
		}
	}
	return g, nil
}

// Registry returns the registry the graph was resolved with.
func (g *Graph) Registry() *schema.Registry { return g.registry }

// Node returns the type with the given name, or nil.
func (g *Graph) Node(name string) *Type {
	for _, t := range g.Nodes {
		if t.Name == name {
			return t
		}
	}
	return nil
}

func newType(es EntitySpec, idType string) (*Type, error) {
	if !token.IsIdentifier(es.Name) || !token.IsExported(es.Name) {
		return nil, NewSchemaError(es.Name, "", "entity name must be an exported Go identifier", nil)
	}
	if es.IDType != "" {
		idType = es.IDType
	}
	if !validIDType(idType) {
		return nil, NewSchemaError(es.Name, "id_type", fmt.Sprintf("unsupported ID type %q", idType), nil)
	}
	t := &Type{
		Name:       es.Name,
		Table:      es.Table,
		PrimaryKey: es.PrimaryKey,
		Comment:    es.Comment,
	}
	if t.Table == "" {
		t.Table = tableName(t.Name)
	}
	if t.PrimaryKey == "" {
		t.PrimaryKey = "id"
	}
	t.ID = &Field{Name: "id", Column: t.PrimaryKey, Type: idType}
	idents := map[string]bool{"ID": true}
	columns := map[string]bool{t.PrimaryKey: true}
	for _, fs := range es.Fields {
		f, err := newField(t.Name, fs)
		if err != nil {
			return nil, err
		}
		ident := pascal(f.Name)
		switch {
		case idents[ident]:
			return nil, NewSchemaError(t.Name, f.Name, fmt.Sprintf("identifier %q declared twice", ident), nil)
		case columns[f.Column]:
			return nil, NewSchemaError(t.Name, f.Name, fmt.Sprintf("column %q declared twice", f.Column), nil)
		}
		idents[ident], columns[f.Column] = true, true
		t.Fields = append(t.Fields, f)
	}
	edges := make(map[string]bool)
	for _, s := range es.Edges {
		kind, ok := edgeKinds[inflect.Underscore(s.Kind)]
		switch {
		case s.Name == "" || pascal(s.Name) == "":
			return nil, NewEdgeError(t.Name, s.Entity, s.Name, "missing name", nil)
		case !ok:
			return nil, NewEdgeError(t.Name, s.Entity, s.Name, fmt.Sprintf("unknown kind %q", s.Kind), nil)
		case s.Entity == "":
			return nil, NewEdgeError(t.Name, "", s.Name, "missing entity", nil)
		case edges[s.Name]:
			return nil, NewEdgeError(t.Name, s.Entity, s.Name, "edge declared twice", nil)
		case kind != edge.BelongsToManyKind && (s.Through != "" || s.PivotForeignKey != "" || s.PivotRelatedKey != ""):
			return nil, NewEdgeError(t.Name, s.Entity, s.Name, "pivot keys are only valid on belongs_to_many edges", nil)
		}
		edges[s.Name] = true
		t.Edges = append(t.Edges, &Edge{Name: s.Name, Kind: kind, Type: s.Entity, Comment: s.Comment, Spec: s})
	}
	return t, nil
}

func newField(entity string, fs FieldSpec) (*Field, error) {
	f := &Field{
		Name:     fs.Name,
		Column:   fs.Column,
		Type:     fs.Type,
		Enum:     fs.Values,
		Optional: fs.Optional,
		Comment:  fs.Comment,
	}
	if f.Name == "" || !token.IsIdentifier(pascal(f.Name)) {
		return nil, NewSchemaError(entity, f.Name, "invalid field name", nil)
	}
	if !slices.Contains(fieldTypes, f.Type) {
		return nil, NewSchemaError(entity, f.Name, fmt.Sprintf("unsupported type %q", f.Type), nil)
	}
	if f.Column == "" {
		f.Column = snake(f.Name)
	}
	if f.Type != "enum" {
		if len(f.Enum) > 0 {
			return nil, NewSchemaError(entity, f.Name, "values are only valid on enum fields", nil)
		}
		return f, nil
	}
	if len(f.Enum) == 0 {
		return nil, NewSchemaError(entity, f.Name, "enum without values", nil)
	}
	if slices.Contains(reservedIdents, f.EnumType()) {
		return nil, NewSchemaError(entity, f.Name, fmt.Sprintf("enum type %q is reserved", f.EnumType()), nil)
	}
	seen := make(map[string]bool, len(f.Enum))
	for _, v := range f.Enum {
		ident := pascal(v)
		switch {
		case v == "" || !token.IsIdentifier(ident):
			return nil, NewSchemaError(entity, f.Name, fmt.Sprintf("enum value %q is not a valid identifier", v), nil)
		case seen[ident]:
			return nil, NewSchemaError(entity, f.Name, fmt.Sprintf("enum value %q declared twice", v), nil)
		}
		seen[ident] = true
	}
	return f, nil
}

// entity returns the registry form of t.
func (t *Type) entity() *schema.Entity {
	e := &schema.Entity{
		Name:       t.Name,
		Table:      t.Table,
		PrimaryKey: t.PrimaryKey,
		Columns:    make(map[string]string, len(t.Fields)),
	}
	for _, f := range t.Fields {
		e.Columns[f.Name] = f.Column
	}
	for _, ed := range t.Edges {
		e.Edges = append(e.Edges, ed.builder())
	}
	return e
}

// Package returns the name of the package generated for t.
func (t *Type) Package() string { return strings.ToLower(t.Name) }

// HasEnum reports whether t declares an enum field.
func (t *Type) HasEnum() bool {
	return slices.ContainsFunc(t.Fields, func(f *Field) bool { return f.Type == "enum" })
}

func (e *Edge) builder() *edge.Builder {
	var b *edge.Builder
	switch e.Kind {
	case edge.HasOneKind:
		b = edge.HasOne(e.Name, e.Type)
	case edge.HasManyKind:
		b = edge.HasMany(e.Name, e.Type)
	case edge.BelongsToKind:
		b = edge.BelongsTo(e.Name, e.Type)
	default:
		b = edge.BelongsToMany(e.Name, e.Type)
	}
	s := e.Spec
	if s.ForeignKey != "" {
		b.ForeignKey(s.ForeignKey)
	}
	if s.LocalKey != "" {
		b.LocalKey(s.LocalKey)
	}
	if s.OwnerKey != "" {
		b.OwnerKey(s.OwnerKey)
	}
	if s.Through != "" || s.PivotForeignKey != "" || s.PivotRelatedKey != "" {
		b.Through(s.Through, s.PivotForeignKey, s.PivotRelatedKey)
	}
	if e.Comment != "" {
		b.Comment(e.Comment)
	}
	return b
}

// Const returns the name of the generated field constant.
func (f *Field) Const() string { return "Field" + pascal(f.Name) }

// Var returns the name of the generated predicate field variable.
func (f *Field) Var() string { return pascal(f.Name) + "Field" }

// EnumType returns the name of the generated enum type.
func (f *Field) EnumType() string { return pascal(f.Name) }

// Const returns the name of the generated edge constant.
func (e *Edge) Const() string { return "Edge" + pascal(e.Name) }
