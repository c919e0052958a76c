package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/relq"
	"github.com/syssam/relq/dialect/sql"
)

// Viewer is the caller on whose behalf queries and mutations run.
// Applications implement it on their own user type.
type Viewer interface {
	GetID() string
	GetRoles() []string
	// GetTenantID returns "" outside multi-tenant setups.
	GetTenantID() string
}

type viewerKey struct{}

// WithViewer attaches v to ctx.
func WithViewer(ctx context.Context, v Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFromContext returns the viewer of ctx, or nil.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerKey{}).(Viewer)
	return v
}

// SimpleViewer is a Viewer holding its fields, for tests and small
// applications.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

func (v *SimpleViewer) GetID() string       { return v.UserID }
func (v *SimpleViewer) GetRoles() []string  { return v.Roles }
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// viewerRule is a rule deciding on the viewer alone. It is not called
// without a viewer, and the rule returns orElse instead.
func viewerRule(orElse error, eval func(Viewer) error) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if v := ViewerFromContext(ctx); v != nil {
			return eval(v)
		}
		return orElse
	})
}

// DenyIfNoViewer denies requests without a viewer. It usually opens a
// policy:
//
//	privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.AlwaysDenyRule(),
//	}
func DenyIfNoViewer() QueryMutationRule {
	return viewerRule(Denyf("privacy: viewer required"), func(Viewer) error { return Skip })
}

// HasRole allows viewers having role.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole allows viewers having one of roles.
func HasAnyRole(roles ...string) QueryMutationRule {
	return viewerRule(Skip, func(v Viewer) error {
		if slices.ContainsFunc(roles, func(r string) bool { return slices.Contains(v.GetRoles(), r) }) {
			return Allow
		}
		return Skip
	})
}

// fieldEquals reports whether the value of field in m, compared in its
// decimal or %v form, is want. ok is false when m does not set field.
func fieldEquals(m *relq.Mutation, field, want string) (eq, ok bool) {
	value, ok := m.Field(field)
	if !ok {
		return false, false
	}
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case int64, int:
		s = fmt.Sprintf("%d", v)
	default:
		s = fmt.Sprint(v)
	}
	return s == want, true
}

// IsOwner allows mutations whose field holds the ID of the viewer. Values
// are compared as strings, so integer keys match too.
//
//	privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.IsOwner("author_id"),
//		privacy.AlwaysDenyRule(),
//	}
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *relq.Mutation) error {
		v := ViewerFromContext(ctx)
		if v == nil {
			return Skip
		}
		if eq, _ := fieldEquals(m, field, v.GetID()); eq {
			return Allow
		}
		return Skip
	})
}

// TenantRule allows mutations whose field holds the tenant of the viewer
// and denies the ones writing another tenant. It skips when the field is
// not set or the viewer has no tenant.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *relq.Mutation) error {
		v := ViewerFromContext(ctx)
		if v == nil || v.GetTenantID() == "" {
			return Skip
		}
		switch eq, ok := fieldEquals(m, field, v.GetTenantID()); {
		case !ok:
			return Skip
		case eq:
			return Allow
		}
		return Denyf("privacy: tenant mismatch")
	})
}

// OwnerQueryRule denies queries without a viewer. Pair it with
// OwnerFilter, which does the narrowing.
func OwnerQueryRule() QueryRule {
	return viewerRule(Denyf("privacy: viewer required for owner-filtered query"), func(Viewer) error { return Skip })
}

// TenantQueryRule denies queries without a viewer or a tenant.
func TenantQueryRule() QueryRule {
	return viewerRule(Denyf("privacy: viewer required for tenant-filtered query"), func(v Viewer) error {
		if v.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		return Skip
	})
}

// TenantFilter restricts queries, updates and deletes to the rows whose
// column holds the tenant of the viewer. It denies without a tenant.
//
//	privacy.QueryPolicy{privacy.TenantFilter("tenant_id")}
func TenantFilter(column string) FilterFunc {
	return func(ctx context.Context, b *sql.Builder) error {
		v := ViewerFromContext(ctx)
		if v == nil || v.GetTenantID() == "" {
			return Denyf("privacy: tenant required")
		}
		b.Where(column, "=", v.GetTenantID())
		return Skip
	}
}

// OwnerFilter restricts queries, updates and deletes to the rows whose
// column holds the ID of the viewer. It denies without a viewer.
func OwnerFilter(column string) FilterFunc {
	return func(ctx context.Context, b *sql.Builder) error {
		v := ViewerFromContext(ctx)
		if v == nil {
			return Denyf("privacy: viewer required")
		}
		b.Where(column, "=", v.GetID())
		return Skip
	}
}
