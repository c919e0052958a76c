// Package gen generates typed entity packages from a YAML description.
//
// The pipeline follows this flow:
//
//	spec.yaml
//	    ↓  LoadSpec
//	 Spec
//	    ↓  NewGraph (validation, key resolution through schema.Registry)
//	 Graph
//	    ↓  Gen (jennifer, goimports)
//	 <target>/registry.go, <target>/<entity>/{<entity>,where}.go
//
// The root package exposes Registry and NewClient. Each entity package
// holds its table, column and relation constants, its enum types, and
// typed predicates built on the generic fields of dialect/sql:
//
//	users, err := user.Query(client).
//		Apply(user.Where(user.StatusField.EQ(user.StatusActive))...).
//		With(user.EdgePosts).
//		Get(ctx)
package gen
