// Package schema holds the entity registry used to resolve relation paths.
//
// Entities are registered once at startup, by hand or by code generated
// with relqgen:
//
//	reg := schema.NewRegistry()
//	reg.MustRegister(
//	    &schema.Entity{
//	        Name: "User",
//	        Edges: []schema.Edge{
//	            edge.HasMany("posts", "Post").ForeignKey("author_id"),
//	            edge.BelongsToMany("roles", "Role"),
//	        },
//	    },
//	    &schema.Entity{
//	        Name: "Post",
//	        Edges: []schema.Edge{
//	            edge.BelongsTo("author", "User").ForeignKey("author_id"),
//	            edge.HasMany("comments", "Comment"),
//	        },
//	    },
//	    &schema.Entity{Name: "Comment"},
//	    &schema.Entity{Name: "Role"},
//	)
//
// Describe turns an edge into a Descriptor carrying concrete table and
// key names:
//
//	d, err := reg.Describe("User", "roles")
//	// d.Kind == schema.ManyToMany
//	// d.PivotTable == "role_user", d.PivotForeignKey == "user_id", d.PivotRelatedKey == "role_id"
//
// Unknown entities and relations yield a *NotFoundError.
package schema
