package privacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/relq"
	"github.com/syssam/relq/dialect/sql"
)

// Policy decision sentinel errors. Rules return them, possibly wrapped, to
// steer the evaluation:
//
//	if errors.Is(err, privacy.Deny) { ... }
var (
	// Allow ends the evaluation and permits the operation.
	Allow = relq.PolicyAllow

	// Deny ends the evaluation and rejects the operation.
	Deny = errors.New("privacy: deny rule")

	// Skip passes the decision to the next rule.
	Skip = relq.PolicySkip
)

// Allowf returns a formatted error wrapping Allow.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted error wrapping Deny.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted error wrapping Skip.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// AlwaysAllowRule returns a rule that always allows.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always denies.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a rule from a function of the context.
// A nil result is treated as Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

type (
	// QueryRule decides whether a query may run and may narrow it.
	QueryRule interface {
		EvalQuery(context.Context, *relq.Query) error
	}

	// QueryPolicy is a list of query rules evaluated in order.
	QueryPolicy []QueryRule

	// MutationRule decides whether a mutation may run.
	MutationRule interface {
		EvalMutation(context.Context, *relq.Mutation) error
	}

	// MutationPolicy is a list of mutation rules evaluated in order.
	MutationPolicy []MutationRule

	// QueryMutationRule is both a query and a mutation rule.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc is an adapter to use ordinary functions as query rules.
type QueryRuleFunc func(context.Context, *relq.Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q *relq.Query) error {
	return f(ctx, q)
}

// MutationRuleFunc is an adapter to use ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *relq.Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m *relq.Mutation) error {
	return f(ctx, m)
}

// OnMutationOperation evaluates rule only on the given operations.
func OnMutationOperation(rule MutationRule, op relq.Op) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *relq.Mutation) error {
		if m.Op.Is(op) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyMutationOperationRule returns a rule denying the given operations.
func DenyMutationOperationRule(op relq.Op) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m *relq.Mutation) error {
		return Denyf("privacy: operation %s is not allowed", m.Op)
	})
	return OnMutationOperation(rule, op)
}

// AllowMutationOperationRule returns a rule allowing the given operations.
func AllowMutationOperationRule(op relq.Op) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *relq.Mutation) error {
		return Allow
	})
	return OnMutationOperation(rule, op)
}

// Policy groups the query and mutation policies of an entity. It
// implements relq.Policy:
//
//	client := relq.NewClient(drv, reg, relq.WithPolicy("Post", privacy.Policy{
//		Query: privacy.QueryPolicy{privacy.TenantFilter("tenant_id")},
//		Mutation: privacy.MutationPolicy{
//			privacy.DenyIfNoViewer(),
//			privacy.HasRole("editor"),
//			privacy.AlwaysDenyRule(),
//		},
//	}))
//
// An operation whose rules all skip is allowed. A decision attached to
// the context with DecisionContext takes precedence over the rules.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery evaluates the query policy.
func (p Policy) EvalQuery(ctx context.Context, q *relq.Query) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation evaluates the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m *relq.Mutation) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	return p.Mutation.EvalMutation(ctx, m)
}

// Policies combines the policies of several sources. Evaluation stops at
// the first policy that allows or denies.
type Policies []relq.Policy

// EvalQuery evaluates the query policies.
func (policies Policies) EvalQuery(ctx context.Context, q *relq.Query) error {
	return policies.eval(ctx, func(policy relq.Policy) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies.
func (policies Policies) EvalMutation(ctx context.Context, m *relq.Mutation) error {
	return policies.eval(ctx, func(policy relq.Policy) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(relq.Policy) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates the rules in order and returns the first decision
// other than Skip.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q *relq.Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates the rules in order and returns the first
// decision other than Skip.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m *relq.Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext returns a context carrying a decision that bypasses the
// policies, such as Allow for internal jobs.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the decision attached by DecisionContext.
// Allow is reported as nil.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *relq.Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *relq.Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *relq.Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *relq.Mutation) error {
	return c.eval(ctx)
}

// FilterFunc is a rule narrowing queries, updates and deletes with
// conditions on their builder. Creates are skipped.
//
//	privacy.FilterFunc(func(ctx context.Context, b *sql.Builder) error {
//		b.Where("workspace_id", "=", workspaceID(ctx))
//		return privacy.Skip
//	})
type FilterFunc func(context.Context, *sql.Builder) error

// EvalQuery calls f with the builder of q.
func (f FilterFunc) EvalQuery(ctx context.Context, q *relq.Query) error {
	return f(ctx, q.Builder())
}

// EvalMutation calls f with the builder of the rows m changes.
func (f FilterFunc) EvalMutation(ctx context.Context, m *relq.Mutation) error {
	if m.Query == nil {
		return Skip
	}
	return f(ctx, m.Query.Builder())
}

var (
	_ QueryMutationRule = FilterFunc(nil)
	_ relq.Policy       = Policy{}
	_ relq.Policy       = Policies(nil)
)
