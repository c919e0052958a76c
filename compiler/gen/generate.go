package gen

import (
	"context"
	"fmt"
	"path"
	"sort"

	"github.com/dave/jennifer/jen"

	"github.com/syssam/relq/schema/edge"
)

const (
	relqPkg   = "github.com/syssam/relq"
	sqlPkg    = "github.com/syssam/relq/dialect/sql"
	schemaPkg = "github.com/syssam/relq/schema"
	edgePkg   = "github.com/syssam/relq/schema/edge"
	dialPkg   = "github.com/syssam/relq/dialect"
	uuidPkg   = "github.com/google/uuid"
)

// Generate validates s and writes its code to the target directory. The
// package of s is used unless an option sets one.
func Generate(ctx context.Context, s *Spec, opts ...Option) (*WriterMetrics, error) {
	if s.Package != "" {
		opts = append([]Option{WithPackage(s.Package)}, opts...)
	}
	c, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}
	g, err := NewGraph(c, s)
	if err != nil {
		return nil, err
	}
	return g.Gen(ctx)
}

// Gen writes the code of the graph to the target directory.
func (g *Graph) Gen(ctx context.Context) (*WriterMetrics, error) {
	w := NewWriter(g.Target, g.Workers)
	tasks := []fileTask{{name: "registry.go", phase: "registry", render: g.genRegistry}}
	for _, t := range g.Nodes {
		tasks = append(tasks,
			fileTask{name: path.Join(t.Package(), t.Package()+".go"), phase: "entity", render: func() *jen.File { return g.genEntity(t) }},
			fileTask{name: path.Join(t.Package(), "where.go"), phase: "where", render: func() *jen.File { return g.genWhere(t) }},
		)
	}
	if err := w.WriteAll(ctx, tasks); err != nil {
		return nil, err
	}
	return w.Metrics(), nil
}

func (g *Graph) newFile(pkg string) *jen.File {
	f := jen.NewFile(pkg)
	if g.Header != "" {
		f.HeaderComment(g.Header)
	}
	return f
}

func (g *Graph) pkgPath(t *Type) string {
	return g.Package + "/" + t.Package()
}

// genRegistry generates the registry of all entities and a client
// constructor bound to it.
func (g *Graph) genRegistry() *jen.File {
	f := g.newFile(g.PackageName())
	var entities []jen.Code
	for _, t := range g.Nodes {
		pkg := g.pkgPath(t)
		columns := jen.Dict{}
		for _, fd := range t.Fields {
			columns[jen.Lit(fd.Name)] = jen.Qual(pkg, fd.Const())
		}
		var edges []jen.Code
		for _, e := range t.Edges {
			edges = append(edges, g.edgeBuilder(t, e))
		}
		entity := jen.Dict{
			jen.Id("Name"):       jen.Qual(pkg, "Entity"),
			jen.Id("Table"):      jen.Qual(pkg, "Table"),
			jen.Id("PrimaryKey"): jen.Qual(pkg, t.ID.Const()),
		}
		if len(columns) > 0 {
			entity[jen.Id("Columns")] = jen.Map(jen.String()).String().Values(columns)
		}
		if len(edges) > 0 {
			entity[jen.Id("Edges")] = jen.Index().Qual(schemaPkg, "Edge").ValuesFunc(func(grp *jen.Group) {
				for _, e := range edges {
					grp.Line().Add(e)
				}
				grp.Line()
			})
		}
		entities = append(entities, jen.Line().Op("&").Qual(schemaPkg, "Entity").Values(entity))
	}
	entities = append(entities, jen.Line())

	f.Comment("Registry returns a registry holding every entity of the package.")
	f.Func().Id("Registry").Params(jen.Id("opts").Op("...").Qual(schemaPkg, "Option")).Op("*").Qual(schemaPkg, "Registry").Block(
		jen.Return(jen.Qual(schemaPkg, "NewRegistry").Call(jen.Id("opts").Op("...")).Dot("MustRegister").Call(entities...)),
	)
	f.Comment("NewClient returns a client querying the entities of the package through drv.")
	f.Func().Id("NewClient").Params(
		jen.Id("drv").Qual(dialPkg, "Driver"),
		jen.Id("opts").Op("...").Qual(relqPkg, "Option"),
	).Op("*").Qual(relqPkg, "Client").Block(
		jen.Return(jen.Qual(relqPkg, "NewClient").Call(jen.Id("drv"), jen.Id("Registry").Call(), jen.Id("opts").Op("..."))),
	)
	return f
}

// edgeBuilder renders the edge declaration of e. Keys left empty keep
// the defaults the registry derives.
func (g *Graph) edgeBuilder(t *Type, e *Edge) jen.Code {
	target := jen.Qual(g.pkgPath(g.Node(e.Type)), "Entity")
	name := jen.Qual(g.pkgPath(t), e.Const())
	var c *jen.Statement
	switch e.Kind {
	case edge.HasOneKind:
		c = jen.Qual(edgePkg, "HasOne").Call(name, target)
	case edge.HasManyKind:
		c = jen.Qual(edgePkg, "HasMany").Call(name, target)
	case edge.BelongsToKind:
		c = jen.Qual(edgePkg, "BelongsTo").Call(name, target)
	default:
		c = jen.Qual(edgePkg, "BelongsToMany").Call(name, target)
	}
	s := e.Spec
	if s.ForeignKey != "" {
		c = c.Dot("ForeignKey").Call(jen.Lit(s.ForeignKey))
	}
	if s.LocalKey != "" {
		c = c.Dot("LocalKey").Call(jen.Lit(s.LocalKey))
	}
	if s.OwnerKey != "" {
		c = c.Dot("OwnerKey").Call(jen.Lit(s.OwnerKey))
	}
	if s.Through != "" || s.PivotForeignKey != "" || s.PivotRelatedKey != "" {
		c = c.Dot("Through").Call(jen.Lit(s.Through), jen.Lit(s.PivotForeignKey), jen.Lit(s.PivotRelatedKey))
	}
	if e.Comment != "" {
		c = c.Dot("Comment").Call(jen.Lit(e.Comment))
	}
	return c
}

// genEntity generates the constants, enum types and query constructor
// of t ({entity}/{entity}.go).
func (g *Graph) genEntity(t *Type) *jen.File {
	f := g.newFile(t.Package())
	if t.Comment != "" {
		f.PackageComment(fmt.Sprintf("Package %s: %s", t.Package(), t.Comment))
	}
	f.Const().Defs(
		jen.Comment(fmt.Sprintf("Entity is the name of the %s entity.", t.Name)),
		jen.Id("Entity").Op("=").Lit(t.Name),
		jen.Comment("Table holds the table name of the entity in the database."),
		jen.Id("Table").Op("=").Lit(t.Table),
	)

	f.Const().DefsFunc(func(grp *jen.Group) {
		grp.Comment(fmt.Sprintf("%s holds the primary key column of the entity.", t.ID.Const()))
		grp.Id(t.ID.Const()).Op("=").Lit(t.ID.Column)
		for _, fd := range t.Fields {
			comment := fmt.Sprintf("%s holds the column of the %q field.", fd.Const(), fd.Name)
			if fd.Comment != "" {
				comment += " " + fd.Comment
			}
			grp.Comment(comment)
			grp.Id(fd.Const()).Op("=").Lit(fd.Column)
		}
	})
	if len(t.Edges) > 0 {
		f.Const().DefsFunc(func(grp *jen.Group) {
			for _, e := range t.Edges {
				grp.Comment(fmt.Sprintf("%s holds the name of the %q relation to %s (%s).", e.Const(), e.Name, e.Type, e.Rel.Kind))
				grp.Id(e.Const()).Op("=").Lit(e.Name)
			}
		})
	}

	f.Comment("Columns holds all SQL columns of the entity.")
	f.Var().Id("Columns").Op("=").Index().String().ValuesFunc(func(grp *jen.Group) {
		grp.Id(t.ID.Const())
		for _, fd := range t.Fields {
			grp.Id(fd.Const())
		}
	})
	f.Comment("ValidColumn reports if the column name is one of the table columns.")
	f.Func().Id("ValidColumn").Params(jen.Id("column").String()).Bool().Block(
		jen.Return(jen.Qual("slices", "Contains").Call(jen.Id("Columns"), jen.Id("column"))),
	)

	for _, fd := range t.Fields {
		if fd.Type == "enum" {
			g.genEnum(f, t, fd)
		}
	}

	f.Comment(fmt.Sprintf("Query returns a query of the %s entity.", t.Name))
	f.Func().Id("Query").Params(jen.Id("c").Op("*").Qual(relqPkg, "Client")).Op("*").Qual(relqPkg, "Query").Block(
		jen.Return(jen.Id("c").Dot("Query").Call(jen.Id("Entity"))),
	)
	return f
}

func (g *Graph) genEnum(f *jen.File, t *Type, fd *Field) {
	typ := fd.EnumType()
	f.Comment(fmt.Sprintf("%s defines the type for the %q enum field.", typ, fd.Name))
	f.Type().Id(typ).String()
	f.Const().DefsFunc(func(grp *jen.Group) {
		for _, v := range fd.Enum {
			grp.Id(typ + pascal(v)).Id(typ).Op("=").Lit(v)
		}
	})
	r := receiver(typ)
	f.Func().Params(jen.Id(r).Id(typ)).Id("String").Params().String().Block(
		jen.Return(jen.String().Call(jen.Id(r))),
	)
	f.Comment(fmt.Sprintf("Values returns the values of %s in declaration order.", typ))
	f.Func().Params(jen.Id(typ)).Id("Values").Params().Index().Id(typ).Block(
		jen.Return(jen.Index().Id(typ).ValuesFunc(func(grp *jen.Group) {
			for _, v := range fd.Enum {
				grp.Id(typ + pascal(v))
			}
		})),
	)
	f.Comment(fmt.Sprintf("%sValidator is a validator for the %q field enum values.", typ, fd.Name))
	f.Func().Id(typ+"Validator").Params(jen.Id(r).Id(typ)).Error().Block(
		jen.Switch(jen.Id(r)).Block(
			jen.CaseFunc(func(grp *jen.Group) {
				for _, v := range fd.Enum {
					grp.Id(typ + pascal(v))
				}
			}).Block(jen.Return(jen.Nil())),
			jen.Default().Block(
				jen.Return(jen.Qual("fmt", "Errorf").Call(jen.Lit(fmt.Sprintf("%s: invalid enum value for %s field: %%q", t.Package(), fd.Name)), jen.Id(r))),
			),
		),
	)
}

// genWhere generates the typed predicates of t ({entity}/where.go):
//
//	user.Query(client).Apply(user.Where(user.NameField.HasPrefix("a"))...)
func (g *Graph) genWhere(t *Type) *jen.File {
	f := g.newFile(t.Package())
	f.Comment(fmt.Sprintf("Predicate is a condition on the %s entity.", t.Name))
	f.Type().Id("Predicate").Func().Params(jen.Op("*").Qual(sqlPkg, "Builder"))

	// Enum constants take precedence over field variables of the same name.
	taken := make(map[string]bool)
	for _, fd := range t.Fields {
		for _, v := range fd.Enum {
			taken[fd.EnumType()+pascal(v)] = true
		}
	}
	f.Var().DefsFunc(func(grp *jen.Group) {
		grp.Comment("IDField is the predicate for the primary key.")
		grp.Id("IDField").Op("=").Add(fieldType(t.ID)).Call(jen.Id(t.ID.Const()))
		for _, fd := range t.Fields {
			name := fd.Var()
			if taken[name] {
				name = pascal(fd.Name) + "Pred"
			}
			grp.Comment(fmt.Sprintf("%s is the predicate for the %q field.", name, fd.Name))
			grp.Id(name).Op("=").Add(fieldType(fd)).Call(jen.Id(fd.Const()))
		}
	})

	preds := jen.Id("preds").Op("...").Id("Predicate")
	f.Comment("And groups predicates with the AND operator between them.")
	f.Func().Id("And").Params(preds.Clone()).Id("Predicate").Block(
		jen.Return(jen.Qual(sqlPkg, "All").Call(jen.Id("preds").Op("..."))),
	)
	f.Comment("Or groups predicates with the OR operator between them.")
	f.Func().Id("Or").Params(preds.Clone()).Id("Predicate").Block(
		jen.Return(jen.Qual(sqlPkg, "Any").Call(jen.Id("preds").Op("..."))),
	)
	f.Comment("Where converts predicates for relq.Query.Apply.")
	f.Func().Id("Where").Params(preds.Clone()).Index().Qual(sqlPkg, "Predicate").Block(
		jen.Id("out").Op(":=").Make(jen.Index().Qual(sqlPkg, "Predicate"), jen.Len(jen.Id("preds"))),
		jen.For(jen.List(jen.Id("i"), jen.Id("p")).Op(":=").Range().Id("preds")).Block(
			jen.Id("out").Index(jen.Id("i")).Op("=").Qual(sqlPkg, "Predicate").Call(jen.Id("p")),
		),
		jen.Return(jen.Id("out")),
	)
	return f
}

// fieldType returns the generic predicate field type of fd.
func fieldType(fd *Field) *jen.Statement {
	pred := jen.Id("Predicate")
	switch fd.Type {
	case "string", "text":
		return jen.Qual(sqlPkg, "StringField").Types(pred)
	case "bool":
		return jen.Qual(sqlPkg, "BoolField").Types(pred)
	case "time":
		return jen.Qual(sqlPkg, "TimeField").Types(pred)
	case "json":
		return jen.Qual(sqlPkg, "JSONField").Types(pred)
	case "enum":
		return jen.Qual(sqlPkg, "EnumField").Types(pred, jen.Id(fd.EnumType()))
	case "uuid":
		return jen.Qual(sqlPkg, "ValueField").Types(pred, jen.Qual(uuidPkg, "UUID"))
	default:
		return jen.Qual(sqlPkg, "NumberField").Types(pred, jen.Id(fd.Type))
	}
}

// Files returns the paths, relative to the target, that Gen writes.
func (g *Graph) Files() []string {
	files := []string{"registry.go"}
	for _, t := range g.Nodes {
		files = append(files, path.Join(t.Package(), t.Package()+".go"), path.Join(t.Package(), "where.go"))
	}
	sort.Strings(files)
	return files
}
