package edge

// Kind is the cardinality of an edge as declared by its builder.
type Kind uint8

// Edge kinds.
const (
	HasOneKind Kind = iota + 1
	HasManyKind
	BelongsToKind
	BelongsToManyKind
)

// String returns the builder name of the kind.
func (k Kind) String() string {
	switch k {
	case HasOneKind:
		return "HasOne"
	case HasManyKind:
		return "HasMany"
	case BelongsToKind:
		return "BelongsTo"
	case BelongsToManyKind:
		return "BelongsToMany"
	default:
		return "Unknown"
	}
}

// A Descriptor holds the edge information as declared. Empty key fields
// are resolved to their conventional names by the schema registry.
type Descriptor struct {
	Name    string // accessor name, e.g. "posts"
	Kind    Kind   // declared cardinality
	Type    string // related entity name, e.g. "Post"
	Comment string

	// ForeignKey is the column holding the reference. It lives on the
	// related table for HasOne and HasMany, and on the declaring table
	// for BelongsTo.
	ForeignKey string
	// LocalKey is the referenced column of the declaring entity for
	// HasOne, HasMany and BelongsToMany.
	LocalKey string
	// OwnerKey is the referenced column of the related entity for
	// BelongsTo and BelongsToMany.
	OwnerKey string

	// Through is the pivot table of a BelongsToMany edge with its key
	// pair: the column pointing at the declaring entity and the one
	// pointing at the related entity.
	Through         string
	PivotForeignKey string
	PivotRelatedKey string
}

// Builder configures an edge.
type Builder struct {
	desc *Descriptor
}

// HasOne declares that one row of entity refers to the declaring row.
//
//	edge.HasOne("profile", "Profile")
func HasOne(name, entity string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: HasOneKind, Type: entity}}
}

// HasMany declares that any number of rows of entity refer to the
// declaring row.
//
//	edge.HasMany("posts", "Post").ForeignKey("author_id")
func HasMany(name, entity string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: HasManyKind, Type: entity}}
}

// BelongsTo declares that the declaring row refers to one row of entity.
//
//	edge.BelongsTo("author", "User").ForeignKey("author_id")
func BelongsTo(name, entity string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: BelongsToKind, Type: entity}}
}

// BelongsToMany declares a many-to-many edge through a pivot table.
//
//	edge.BelongsToMany("roles", "Role").Through("role_user", "user_id", "role_id")
func BelongsToMany(name, entity string) *Builder {
	return &Builder{desc: &Descriptor{Name: name, Kind: BelongsToManyKind, Type: entity}}
}

// ForeignKey sets the referencing column.
func (b *Builder) ForeignKey(column string) *Builder {
	b.desc.ForeignKey = column
	return b
}

// LocalKey sets the referenced column of the declaring entity.
func (b *Builder) LocalKey(column string) *Builder {
	b.desc.LocalKey = column
	return b
}

// OwnerKey sets the referenced column of the related entity.
func (b *Builder) OwnerKey(column string) *Builder {
	b.desc.OwnerKey = column
	return b
}

// Through sets the pivot table of a many-to-many edge. Empty key names
// keep their defaults.
func (b *Builder) Through(table, foreignKey, relatedKey string) *Builder {
	b.desc.Through = table
	b.desc.PivotForeignKey = foreignKey
	b.desc.PivotRelatedKey = relatedKey
	return b
}

// Comment sets the comment of the edge.
func (b *Builder) Comment(c string) *Builder {
	b.desc.Comment = c
	return b
}

// Descriptor implements the schema.Edge interface by returning its descriptor.
func (b *Builder) Descriptor() *Descriptor {
	return b.desc
}
