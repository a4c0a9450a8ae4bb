// Package policy evaluates negotiation admission rules with OPA.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"github.com/xiaot623/dealroom/internal/domain"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allow   bool
	Reasons []string
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine with the given policy content. The
// module must define data.negotiation.admission.decision.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.negotiation.admission.decision"),
		rego.Module("admission.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Admit checks whether buyer and seller may negotiate with each other.
func (e *Engine) Admit(ctx context.Context, buyer, seller domain.AgentIdentity) (Decision, error) {
	input := map[string]interface{}{
		"buyer":  agentInput(buyer),
		"seller": agentInput(seller),
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to evaluate policy: %w", err)
	}
	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return Decision{Reasons: []string{"policy produced no decision"}}, nil
	}

	obj, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return Decision{}, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	var d Decision
	d.Allow, _ = obj["allow"].(bool)
	if reasons, ok := obj["reasons"].([]interface{}); ok {
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				d.Reasons = append(d.Reasons, s)
			}
		}
	}
	return d, nil
}

func agentInput(a domain.AgentIdentity) map[string]interface{} {
	return map[string]interface{}{
		"agentId":         a.AgentID,
		"role":            string(a.Role),
		"status":          string(a.Status),
		"reputationScore": a.ReputationScore,
	}
}

// DefaultPolicy is the default admission policy.
const DefaultPolicy = `
package negotiation.admission

buyer_roles := {"buyer", "both"}

seller_roles := {"seller", "both"}

deny contains msg if {
	not buyer_roles[input.buyer.role]
	msg := sprintf("agent %s cannot act as buyer (role %s)", [input.buyer.agentId, input.buyer.role])
}

deny contains msg if {
	not seller_roles[input.seller.role]
	msg := sprintf("agent %s cannot act as seller (role %s)", [input.seller.agentId, input.seller.role])
}

deny contains msg if {
	input.buyer.status != "active"
	msg := sprintf("buyer %s is %s", [input.buyer.agentId, input.buyer.status])
}

deny contains msg if {
	input.seller.status != "active"
	msg := sprintf("seller %s is %s", [input.seller.agentId, input.seller.status])
}

deny contains "buyer and seller must be different agents" if {
	input.buyer.agentId == input.seller.agentId
}

decision := {
	"allow": count(deny) == 0,
	"reasons": sort(deny),
}
`
