// Package relq runs entity queries over the dialect/sql builder and
// resolves the relations declared in a schema.Registry.
//
// Relations are filtered with WhereHas, WhereDoesntHave, Has and
// WhereLinked, and loaded in batches with With:
//
//	users, err := client.Query("User").
//		WhereHas("posts", func(b *sql.Builder) { b.Where("published", "=", true) }).
//		With("posts.comments", "roles").
//		Get(ctx)
//
// Every segment of an eager load path costs a single "IN" query whatever
// the number of parent records, so the query above runs four statements.
// Loaded relations are read back with Record.One and Record.Many.
package relq
