package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.uber.org/zap"

	"org-access-core/backend/internal/platform/rbac"
)

// overrideQuery is the rule every access policy module must define.
const overrideQuery = "data.orgaccess.authz.admin_override"

// DefaultPolicy grants global admins the override; owner-only checks additionally need
// input.config.admin_overrides_owner.
const DefaultPolicy = `package orgaccess.authz

default admin_override := false

admin_override if {
	input.user.global_role == "admin"
	input.request.min_role != "owner"
}

admin_override if {
	input.user.global_role == "admin"
	input.request.min_role == "owner"
	input.config.admin_overrides_owner
}
`

// ErrUndefinedDecision is returned when the policy does not produce a boolean admin_override.
var ErrUndefinedDecision = errors.New("policy: admin_override undefined or not boolean")

// Options configures NewOPAEvaluator.
type Options struct {
	// Policy is the Rego module source. Empty uses DefaultPolicy.
	Policy              string
	AdminOverridesOwner bool
	Logger              *zap.Logger
}

// OPAEvaluator evaluates the admin-override rule with a query prepared once at construction.
type OPAEvaluator struct {
	query               rego.PreparedEvalQuery
	adminOverridesOwner bool
	log                 *zap.Logger
}

var _ Evaluator = (*OPAEvaluator)(nil)

// NewOPAEvaluator compiles the policy and prepares the query. Returns an error for invalid Rego.
func NewOPAEvaluator(ctx context.Context, opts Options) (*OPAEvaluator, error) {
	src := opts.Policy
	if src == "" {
		src = DefaultPolicy
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	pq, err := rego.New(
		rego.Query(overrideQuery),
		rego.Module("access.rego", src),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile access policy: %w", err)
	}
	return &OPAEvaluator{query: pq, adminOverridesOwner: opts.AdminOverridesOwner, log: log}, nil
}

// AdminOverride implements rbac.Decider.
func (e *OPAEvaluator) AdminOverride(ctx context.Context, req rbac.AccessRequest) (bool, error) {
	rs, err := e.query.Eval(ctx, rego.EvalInput(e.input(req)))
	if err != nil {
		e.log.Warn("policy: evaluation failed", zap.String("org_id", req.OrgID), zap.Error(err))
		return false, fmt.Errorf("evaluate access policy: %w", err)
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, ErrUndefinedDecision
	}
	allowed, ok := rs[0].Expressions[0].Value.(bool)
	if !ok {
		return false, ErrUndefinedDecision
	}
	return allowed, nil
}

// HealthCheck evaluates the prepared query against a non-admin request; it must yield false.
func (e *OPAEvaluator) HealthCheck(ctx context.Context) error {
	allowed, err := e.AdminOverride(ctx, rbac.AccessRequest{GlobalRole: "user", MinRole: "member"})
	if err != nil {
		return err
	}
	if allowed {
		return errors.New("policy: non-admin granted admin override")
	}
	return nil
}

func (e *OPAEvaluator) input(req rbac.AccessRequest) map[string]any {
	minRole := string(req.MinRole)
	if minRole == "" {
		minRole = "member"
	}
	return map[string]any{
		"user": map[string]any{
			"id":          req.UserID,
			"global_role": string(req.GlobalRole),
		},
		"request": map[string]any{
			"org_id":   req.OrgID,
			"min_role": minRole,
		},
		"config": map[string]any{
			"admin_overrides_owner": e.adminOverridesOwner,
		},
	}
}
