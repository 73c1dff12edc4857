// Package engine evaluates organization access policy with OPA Rego. OPAEvaluator implements
// rbac.Decider so the guard can delegate the admin-override decision to a policy file.
package engine

import (
	"context"
	"fmt"
	"os"

	"org-access-core/backend/internal/platform/rbac"
)

// Evaluator is an rbac.Decider that can also verify it is able to evaluate at all.
type Evaluator interface {
	rbac.Decider
	HealthCheck(ctx context.Context) error
}

// LoadPolicyFile reads a Rego module from path. An empty path returns "" so the default policy applies.
func LoadPolicyFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read policy file: %w", err)
	}
	return string(b), nil
}
