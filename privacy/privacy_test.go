package privacy_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq"
	"github.com/syssam/relq/dialect"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/privacy"
	"github.com/syssam/relq/schema"
)

func TestDecisionErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		msg      string
	}{
		{"allowf", privacy.Allowf("admin %s", "bypass"), privacy.Allow, "admin bypass: privacy: allow rule"},
		{"denyf", privacy.Denyf("tenant %d", 7), privacy.Deny, "tenant 7: privacy: deny rule"},
		{"skipf", privacy.Skipf("no viewer"), privacy.Skip, "no viewer: privacy: skip rule"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.EqualError(t, tt.err, tt.msg)
		})
	}
}

func TestAlwaysRules(t *testing.T) {
	ctx := context.Background()
	m := &relq.Mutation{Op: relq.OpCreate}
	assert.ErrorIs(t, privacy.AlwaysAllowRule().EvalQuery(ctx, nil), privacy.Allow)
	assert.ErrorIs(t, privacy.AlwaysAllowRule().EvalMutation(ctx, m), privacy.Allow)
	assert.ErrorIs(t, privacy.AlwaysDenyRule().EvalQuery(ctx, nil), privacy.Deny)
	assert.ErrorIs(t, privacy.AlwaysDenyRule().EvalMutation(ctx, m), privacy.Deny)
}

func TestContextQueryMutationRule(t *testing.T) {
	type key struct{}
	rule := privacy.ContextQueryMutationRule(func(ctx context.Context) error {
		if ctx.Value(key{}) == nil {
			return privacy.Denyf("missing key")
		}
		return privacy.Skip
	})
	ctx := context.Background()
	assert.ErrorIs(t, rule.EvalQuery(ctx, nil), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(context.WithValue(ctx, key{}, 1), &relq.Mutation{}), privacy.Skip)
}

func TestOnMutationOperation(t *testing.T) {
	tests := []struct {
		name string
		op   relq.Op
		rule privacy.MutationRule
		want error
	}{
		{"deny_matching_op", relq.OpDelete, privacy.DenyMutationOperationRule(relq.OpDelete), privacy.Deny},
		{"deny_skips_other_op", relq.OpUpdate, privacy.DenyMutationOperationRule(relq.OpDelete), privacy.Skip},
		{"deny_op_set", relq.OpUpdate, privacy.DenyMutationOperationRule(relq.OpUpdate | relq.OpDelete), privacy.Deny},
		{"allow_matching_op", relq.OpCreate, privacy.AllowMutationOperationRule(relq.OpCreate), privacy.Allow},
		{"allow_skips_other_op", relq.OpDelete, privacy.AllowMutationOperationRule(relq.OpCreate), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rule.EvalMutation(context.Background(), &relq.Mutation{Op: tt.op})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	err := privacy.DenyMutationOperationRule(relq.OpDelete).EvalMutation(context.Background(), &relq.Mutation{Op: relq.OpDelete})
	assert.EqualError(t, err, "privacy: operation delete is not allowed: privacy: deny rule")
}

func TestDecisionContext(t *testing.T) {
	ctx := context.Background()

	_, ok := privacy.DecisionFromContext(ctx)
	assert.False(t, ok)

	decision, ok := privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Allow))
	assert.True(t, ok)
	assert.NoError(t, decision, "allow is reported as nil")

	decision, ok = privacy.DecisionFromContext(privacy.DecisionContext(ctx, privacy.Denyf("maintenance")))
	assert.True(t, ok)
	assert.ErrorIs(t, decision, privacy.Deny)

	assert.Equal(t, ctx, privacy.DecisionContext(ctx, privacy.Skip))
	assert.Equal(t, ctx, privacy.DecisionContext(ctx, nil))
}

func TestQueryPolicy(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		policy privacy.QueryPolicy
		want   error
	}{
		{"empty", nil, nil},
		{"guards_without_viewer", privacy.QueryPolicy{privacy.OwnerQueryRule(), privacy.TenantQueryRule()}, privacy.Deny},
		{"first_decision_wins", privacy.QueryPolicy{privacy.AlwaysAllowRule(), privacy.AlwaysDenyRule()}, privacy.Allow},
		{"skip_then_deny", privacy.QueryPolicy{
			privacy.QueryRuleFunc(func(context.Context, *relq.Query) error { return nil }),
			privacy.AlwaysDenyRule(),
		}, privacy.Deny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.EvalQuery(ctx, nil)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestMutationPolicy(t *testing.T) {
	ctx := context.Background()
	m := &relq.Mutation{Op: relq.OpUpdate}
	policy := privacy.MutationPolicy{
		privacy.DenyMutationOperationRule(relq.OpDelete),
		privacy.MutationRuleFunc(func(_ context.Context, m *relq.Mutation) error {
			if m.Op.Is(relq.OpUpdate) {
				return privacy.Allowf("updates are open")
			}
			return privacy.Skip
		}),
		privacy.AlwaysDenyRule(),
	}
	assert.ErrorIs(t, policy.EvalMutation(ctx, m), privacy.Allow)
	assert.ErrorIs(t, policy.EvalMutation(ctx, &relq.Mutation{Op: relq.OpDelete}), privacy.Deny)
	assert.ErrorIs(t, policy.EvalMutation(ctx, &relq.Mutation{Op: relq.OpCreate}), privacy.Deny)
}

func TestPolicy(t *testing.T) {
	ctx := context.Background()
	policy := privacy.Policy{
		Query:    privacy.QueryPolicy{privacy.AlwaysAllowRule()},
		Mutation: privacy.MutationPolicy{privacy.AlwaysDenyRule()},
	}
	t.Run("allow_is_returned", func(t *testing.T) {
		assert.ErrorIs(t, policy.EvalQuery(ctx, nil), privacy.Allow)
	})
	t.Run("deny_is_returned", func(t *testing.T) {
		assert.ErrorIs(t, policy.EvalMutation(ctx, &relq.Mutation{}), privacy.Deny)
	})
	t.Run("all_skip_is_nil", func(t *testing.T) {
		assert.NoError(t, privacy.Policy{}.EvalMutation(ctx, &relq.Mutation{}))
	})
	t.Run("context_decision_overrides_rules", func(t *testing.T) {
		ctx := privacy.DecisionContext(ctx, privacy.Allow)
		assert.NoError(t, policy.EvalMutation(ctx, &relq.Mutation{}))
		ctx = privacy.DecisionContext(ctx, privacy.Deny)
		assert.ErrorIs(t, policy.EvalQuery(ctx, nil), privacy.Deny)
	})
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	allow := privacy.Policy{Query: privacy.QueryPolicy{privacy.AlwaysAllowRule()}}
	deny := privacy.Policy{Query: privacy.QueryPolicy{privacy.AlwaysDenyRule()}}
	skip := privacy.QueryPolicy{privacy.QueryRuleFunc(func(context.Context, *relq.Query) error {
		return privacy.Skip
	})}
	t.Run("allow_from_one_policy_stops_evaluation", func(t *testing.T) {
		assert.NoError(t, privacy.Policies{allow, deny}.EvalQuery(ctx, nil))
	})
	t.Run("deny_from_one_policy_stops_evaluation", func(t *testing.T) {
		assert.ErrorIs(t, privacy.Policies{deny, allow}.EvalQuery(ctx, nil), privacy.Deny)
	})
	t.Run("skip_continues_to_next_policy", func(t *testing.T) {
		p := privacy.Policy{Query: skip}
		assert.ErrorIs(t, privacy.Policies{p, deny}.EvalQuery(ctx, nil), privacy.Deny)
	})
	t.Run("context_decision_overrides_policies", func(t *testing.T) {
		ctx := privacy.DecisionContext(ctx, privacy.Allow)
		assert.NoError(t, privacy.Policies{deny}.EvalQuery(ctx, nil))
	})
	t.Run("client_runs_allowed_queries", func(t *testing.T) {
		client := posts(t, privacy.Policies{allow, deny})
		n, err := client.Query("Post").Count(ctx)
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)

		client = posts(t, allow)
		_, err = client.Query("Post").Get(ctx)
		require.NoError(t, err, "an allowing policy permits the query")
		_, err = client.Query("Post").Where("id", "=", 1).Delete(ctx)
		require.NoError(t, err, "a policy whose rules all skip permits the mutation")
	})
}

// posts opens an in-memory database holding the posts of two tenants and
// returns a client guarded by policy.
func posts(t *testing.T, policy relq.Policy) *relq.Client {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { _ = drv.Close() })
	for _, stmt := range []string{
		"CREATE TABLE posts (id INTEGER PRIMARY KEY, tenant_id TEXT NOT NULL, author_id TEXT NOT NULL, title TEXT NOT NULL)",
		`INSERT INTO posts (id, tenant_id, author_id, title) VALUES
			(1, 'acme', '1', 'a'), (2, 'acme', '2', 'b'), (3, 'globex', '3', 'c')`,
	} {
		_, err := drv.DB().Exec(stmt)
		require.NoError(t, err, stmt)
	}
	reg := schema.NewRegistry()
	require.NoError(t, reg.Register(&schema.Entity{Name: "Post"}))
	return relq.NewClient(drv, reg, relq.WithPolicy("Post", policy))
}

func TestPolicy_Client(t *testing.T) {
	client := posts(t, privacy.Policy{
		Query: privacy.QueryPolicy{privacy.TenantFilter("tenant_id")},
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.TenantFilter("tenant_id"),
			privacy.TenantRule("tenant_id"),
		},
	})
	bg := context.Background()
	acme := privacy.WithViewer(bg, &privacy.SimpleViewer{UserID: "1", TenantID: "acme"})
	globex := privacy.WithViewer(bg, &privacy.SimpleViewer{UserID: "3", TenantID: "globex"})
	internal := privacy.DecisionContext(bg, privacy.Allow)

	t.Run("query_is_narrowed", func(t *testing.T) {
		coll, err := client.Query("Post").OrderBy("id", "asc").Get(acme)
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b"}, coll.Pluck("title"))

		n, err := client.Query("Post").Count(globex)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = client.Query("Post").Find(acme, 3)
		assert.True(t, relq.IsNotFound(err))
	})

	t.Run("query_without_viewer_is_denied", func(t *testing.T) {
		_, err := client.Query("Post").Get(bg)
		require.Error(t, err)
		assert.ErrorIs(t, err, privacy.Deny)
		var qe *relq.QueryError
		require.True(t, errors.As(err, &qe))
		assert.Equal(t, "Post", qe.Entity)

		_, err = client.Query("Post").Exists(bg)
		assert.ErrorIs(t, err, privacy.Deny)
	})

	t.Run("query_does_not_change_the_caller", func(t *testing.T) {
		q := client.Query("Post")
		_, err := q.Count(acme)
		require.NoError(t, err)
		query, _, err := q.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM posts", query)
	})

	t.Run("create_checks_tenant", func(t *testing.T) {
		_, err := client.Query("Post").Create(acme, sql.Row{"tenant_id": "globex", "author_id": "1", "title": "x"})
		require.Error(t, err)
		assert.ErrorIs(t, err, privacy.Deny)
		assert.True(t, relq.IsMutationError(err))

		rec, err := client.Query("Post").Create(acme, sql.Row{"tenant_id": "acme", "author_id": "1", "title": "d"})
		require.NoError(t, err)
		assert.Equal(t, int64(4), rec.ID())
	})

	t.Run("update_and_delete_are_narrowed", func(t *testing.T) {
		n, err := client.Query("Post").Update(globex, sql.Row{"title": "z"})
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		n, err = client.Query("Post").Where("title", "=", "a").Delete(globex)
		require.NoError(t, err)
		assert.Zero(t, n)

		_, err = client.Query("Post").Delete(bg)
		assert.ErrorIs(t, err, privacy.Deny)

		titles, err := client.Query("Post").OrderBy("id", "asc").Pluck(internal, "title")
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "z", "d"}, titles)
	})
}
