// Package edge provides fluent builders for declaring relations between
// entities registered in a schema.Registry.
//
// # Edge Types
//
//	// One-to-One: profiles.user_id references users.id
//	edge.HasOne("profile", "Profile")
//
//	// One-to-Many: posts.user_id references users.id
//	edge.HasMany("posts", "Post")
//
//	// Inverse of the above, declared on Post: posts.author_id references users.id
//	edge.BelongsTo("author", "User").ForeignKey("author_id")
//
//	// Many-to-Many through the role_user pivot table
//	edge.BelongsToMany("roles", "Role")
//
// # Key Conventions
//
// Keys left empty are named by the registry when the edge is described:
//
//   - HasOne, HasMany: ForeignKey is the singular snake-cased declaring
//     entity name followed by "_id"; LocalKey is the declaring primary key.
//   - BelongsTo: ForeignKey is the snake-cased edge name followed by "_id";
//     OwnerKey is the related primary key.
//   - BelongsToMany: the pivot table joins both singular snake-cased
//     entity names in alphabetical order ("role_user"); its keys are the
//     singular names followed by "_id".
//
// Self-referential edges are declared like any other:
//
//	edge.BelongsTo("parent", "Category").ForeignKey("parent_id")
//	edge.HasMany("children", "Category").ForeignKey("parent_id")
package edge
