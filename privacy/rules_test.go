package privacy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/relq"
	"github.com/syssam/relq/dialect"
	"github.com/syssam/relq/dialect/sql"
	"github.com/syssam/relq/privacy"
)

func viewer(id, tenant string, roles ...string) context.Context {
	return privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: id, Roles: roles, TenantID: tenant})
}

func TestSimpleViewer(t *testing.T) {
	v := &privacy.SimpleViewer{
		UserID:   "user-123",
		Roles:    []string{"admin", "user"},
		TenantID: "tenant-abc",
	}
	assert.Equal(t, "user-123", v.GetID())
	assert.Equal(t, []string{"admin", "user"}, v.GetRoles())
	assert.Equal(t, "tenant-abc", v.GetTenantID())
}

func TestViewerContext(t *testing.T) {
	t.Run("WithViewer_and_ViewerFromContext", func(t *testing.T) {
		retrieved := privacy.ViewerFromContext(viewer("user-123", ""))
		require.NotNil(t, retrieved)
		assert.Equal(t, "user-123", retrieved.GetID())
	})
	t.Run("ViewerFromContext_returns_nil_without_viewer", func(t *testing.T) {
		assert.Nil(t, privacy.ViewerFromContext(context.Background()))
	})
}

func TestDenyIfNoViewer(t *testing.T) {
	rule := privacy.DenyIfNoViewer()
	assert.ErrorIs(t, rule.EvalQuery(context.Background(), nil), privacy.Deny)
	assert.ErrorIs(t, rule.EvalMutation(context.Background(), &relq.Mutation{}), privacy.Deny)
	assert.ErrorIs(t, rule.EvalQuery(viewer("1", ""), nil), privacy.Skip)
}

func TestHasRole(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		rule privacy.QueryMutationRule
		want error
	}{
		{"has_role", viewer("1", "", "admin"), privacy.HasRole("admin"), privacy.Allow},
		{"missing_role", viewer("1", "", "user"), privacy.HasRole("admin"), privacy.Skip},
		{"no_viewer", context.Background(), privacy.HasRole("admin"), privacy.Skip},
		{"any_role", viewer("1", "", "moderator"), privacy.HasAnyRole("admin", "moderator"), privacy.Allow},
		{"none_of_roles", viewer("1", "", "user"), privacy.HasAnyRole("admin", "moderator"), privacy.Skip},
		{"any_no_viewer", context.Background(), privacy.HasAnyRole("admin"), privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.rule.EvalQuery(tt.ctx, nil), tt.want)
			assert.ErrorIs(t, tt.rule.EvalMutation(tt.ctx, &relq.Mutation{}), tt.want)
		})
	}
}

func TestIsOwner(t *testing.T) {
	rule := privacy.IsOwner("author_id")
	tests := []struct {
		name   string
		ctx    context.Context
		values sql.Row
		want   error
	}{
		{"string_owner", viewer("42", ""), sql.Row{"author_id": "42"}, privacy.Allow},
		{"int64_owner", viewer("42", ""), sql.Row{"author_id": int64(42)}, privacy.Allow},
		{"int_owner", viewer("42", ""), sql.Row{"author_id": 42}, privacy.Allow},
		{"other_type", viewer("42", ""), sql.Row{"author_id": uint8(42)}, privacy.Allow},
		{"not_owner", viewer("42", ""), sql.Row{"author_id": "7"}, privacy.Skip},
		{"field_not_set", viewer("42", ""), sql.Row{"title": "x"}, privacy.Skip},
		{"no_viewer", context.Background(), sql.Row{"author_id": "42"}, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &relq.Mutation{Op: relq.OpCreate, Entity: "Post", Values: tt.values}
			assert.ErrorIs(t, rule.EvalMutation(tt.ctx, m), tt.want)
		})
	}
}

func TestTenantRule(t *testing.T) {
	rule := privacy.TenantRule("tenant_id")
	tests := []struct {
		name   string
		ctx    context.Context
		values sql.Row
		want   error
	}{
		{"same_tenant", viewer("1", "acme"), sql.Row{"tenant_id": "acme"}, privacy.Allow},
		{"numeric_tenant", viewer("1", "9"), sql.Row{"tenant_id": 9}, privacy.Allow},
		{"other_tenant", viewer("1", "acme"), sql.Row{"tenant_id": "globex"}, privacy.Deny},
		{"field_not_set", viewer("1", "acme"), nil, privacy.Skip},
		{"viewer_without_tenant", viewer("1", ""), sql.Row{"tenant_id": "acme"}, privacy.Skip},
		{"no_viewer", context.Background(), sql.Row{"tenant_id": "acme"}, privacy.Skip},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &relq.Mutation{Op: relq.OpUpdate, Values: tt.values}
			assert.ErrorIs(t, rule.EvalMutation(tt.ctx, m), tt.want)
		})
	}
}

func TestQueryGuards(t *testing.T) {
	assert.ErrorIs(t, privacy.OwnerQueryRule().EvalQuery(context.Background(), nil), privacy.Deny)
	assert.ErrorIs(t, privacy.OwnerQueryRule().EvalQuery(viewer("1", ""), nil), privacy.Skip)
	assert.ErrorIs(t, privacy.TenantQueryRule().EvalQuery(context.Background(), nil), privacy.Deny)
	assert.ErrorIs(t, privacy.TenantQueryRule().EvalQuery(viewer("1", ""), nil), privacy.Deny)
	assert.ErrorIs(t, privacy.TenantQueryRule().EvalQuery(viewer("1", "acme"), nil), privacy.Skip)
}

func TestFilters(t *testing.T) {
	t.Run("tenant_filter_adds_condition", func(t *testing.T) {
		b := sql.Dialect(dialect.SQLite).Table("posts")
		err := privacy.TenantFilter("tenant_id")(viewer("1", "acme"), b)
		assert.ErrorIs(t, err, privacy.Skip)
		query, args, err := b.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM posts WHERE tenant_id = ?", query)
		assert.Equal(t, []any{"acme"}, args)
	})
	t.Run("owner_filter_adds_condition", func(t *testing.T) {
		b := sql.Dialect(dialect.SQLite).Table("posts")
		assert.ErrorIs(t, privacy.OwnerFilter("author_id")(viewer("42", ""), b), privacy.Skip)
		_, args, err := b.ToSQL()
		require.NoError(t, err)
		assert.Equal(t, []any{"42"}, args)
	})
	t.Run("filters_deny_without_viewer", func(t *testing.T) {
		b := sql.Dialect(dialect.SQLite).Table("posts")
		assert.ErrorIs(t, privacy.TenantFilter("tenant_id")(context.Background(), b), privacy.Deny)
		assert.ErrorIs(t, privacy.TenantFilter("tenant_id")(viewer("1", ""), b), privacy.Deny)
		assert.ErrorIs(t, privacy.OwnerFilter("author_id")(context.Background(), b), privacy.Deny)
	})
	t.Run("creates_are_skipped", func(t *testing.T) {
		m := &relq.Mutation{Op: relq.OpCreate}
		assert.ErrorIs(t, privacy.TenantFilter("tenant_id").EvalMutation(context.Background(), m), privacy.Skip)
	})
}

func TestIntegratedPolicyChain(t *testing.T) {
	policy := privacy.Policy{
		Mutation: privacy.MutationPolicy{
			privacy.DenyIfNoViewer(),
			privacy.HasRole("admin"),
			privacy.IsOwner("author_id"),
			privacy.AlwaysDenyRule(),
		},
	}
	m := &relq.Mutation{Op: relq.OpCreate, Values: sql.Row{"author_id": "42"}}
	assert.ErrorIs(t, policy.EvalMutation(context.Background(), m), privacy.Deny)
	assert.NoError(t, policy.EvalMutation(viewer("1", "", "admin"), m))
	assert.NoError(t, policy.EvalMutation(viewer("42", ""), m))
	assert.ErrorIs(t, policy.EvalMutation(viewer("7", "", "user"), m), privacy.Deny)
}
