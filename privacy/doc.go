// Package privacy provides rules and policies that authorize relq queries
// and mutations before they reach the database.
//
// A policy is a list of rules evaluated in order. Each rule returns one of
// the decisions Allow, Deny or Skip, possibly wrapped:
//
//   - Allow ends the evaluation and permits the operation.
//   - Deny ends the evaluation and rejects it.
//   - Skip passes the decision to the next rule.
//
// An operation whose rules all skip is allowed, so policies that should
// reject by default end with AlwaysDenyRule.
//
// # Attaching policies
//
// Policies are attached per entity when the client is created:
//
//	client := relq.NewClient(drv, reg,
//		relq.WithPolicy("Post", privacy.Policy{
//			Query: privacy.QueryPolicy{
//				privacy.TenantFilter("tenant_id"),
//			},
//			Mutation: privacy.MutationPolicy{
//				privacy.DenyIfNoViewer(),
//				privacy.HasRole("admin"),
//				privacy.IsOwner("author_id"),
//				privacy.AlwaysDenyRule(),
//			},
//		}),
//	)
//
// Rejections surface from the terminal operations of relq.Query wrapped in
// relq.QueryError or relq.MutationError, and match the decision with
// errors.Is:
//
//	if errors.Is(err, privacy.Deny) { ... }
//
// # Filtering
//
// FilterFunc rules narrow the rows a query, update or delete can reach by
// adding conditions to its builder. TenantFilter and OwnerFilter are the
// built-in filters for multi-tenant and per-user isolation.
//
// # Viewer
//
// Rules read the acting user from the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//		UserID:   "42",
//		Roles:    []string{"editor"},
//		TenantID: "acme",
//	})
//
// Background jobs skip the policies with a fixed decision:
//
//	ctx = privacy.DecisionContext(ctx, privacy.Allow)
package privacy
