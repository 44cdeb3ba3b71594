package policy

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"
)

// Decision is the resolved effect for one tool call.
type Decision string

const (
	DecisionAllow           Decision = "allow"
	DecisionDeny            Decision = "deny"
	DecisionRequireApproval Decision = "require_approval"
)

// Caller identifies who (account) and through what (client) a tool call is
// being made.
type Caller struct {
	AccountID string
	ClientID  string
}

// Evaluation is the outcome of resolving one tool path against the
// caller's visible rules.
type Evaluation struct {
	Decision Decision
	// Rule is the winning rule, nil when the decision fell back to the
	// tool's own declared default.
	Rule *Rule
}

// RuleSource supplies every rule visible to a caller: workspace-owned,
// organization-owned, and account-targeted tiers, read once per decision.
type RuleSource interface {
	RulesFor(ctx context.Context, caller Caller) ([]Rule, error)
}

// Resolver turns overlapping scoped rules into one deterministic decision.
type Resolver struct {
	source RuleSource
}

// NewResolver creates a resolver over a rule source.
func NewResolver(source RuleSource) *Resolver {
	return &Resolver{source: source}
}

// Resolve evaluates a tool path for a caller. requiresApproval is the
// tool's own declared default, used only when no rule matches.
//
// The snapshot of rules is read once; a concurrent rule edit never
// produces a partially-consistent decision.
func (r *Resolver) Resolve(ctx context.Context, toolPath string, caller Caller, input map[string]any, requiresApproval bool) (Evaluation, error) {
	rules, err := r.source.RulesFor(ctx, caller)
	if err != nil {
		return Evaluation{}, err
	}
	return ResolveSnapshot(rules, toolPath, caller, input, requiresApproval), nil
}

// ResolveSnapshot resolves purely from an in-memory snapshot. Evaluation
// is deterministic regardless of rule iteration or memory order.
func ResolveSnapshot(rules []Rule, toolPath string, caller Caller, input map[string]any, requiresApproval bool) Evaluation {
	applicable := make([]*Rule, 0, len(rules))
	for i := range rules {
		rule := &rules[i]
		if rule.TargetAccountID != "" && rule.TargetAccountID != caller.AccountID {
			continue
		}
		if rule.ClientID != "" && rule.ClientID != caller.ClientID {
			continue
		}
		if !rule.MatchesPath(toolPath) {
			continue
		}
		if !rule.MatchesArguments(input) {
			continue
		}
		applicable = append(applicable, rule)
	}

	if len(applicable) == 0 {
		if requiresApproval {
			return Evaluation{Decision: DecisionRequireApproval}
		}
		return Evaluation{Decision: DecisionAllow}
	}

	sort.SliceStable(applicable, func(i, j int) bool {
		return moreSpecific(applicable[i], applicable[j], caller)
	})
	winner := applicable[0]

	log.Debug().
		Str("tool_path", toolPath).
		Str("rule_id", winner.ID).
		Str("effect", string(winner.Effect)).
		Msg("Policy rule matched")

	return Evaluation{Decision: decisionFor(winner), Rule: winner}
}

// decisionFor maps a winning rule to a decision.
func decisionFor(rule *Rule) Decision {
	if rule.Effect == EffectDeny {
		return DecisionDeny
	}
	if rule.ApprovalMode == ApprovalRequired {
		return DecisionRequireApproval
	}
	return DecisionAllow
}

// moreSpecific orders rules by specificity: an account constraint
// outweighs a client constraint, which outweighs the pattern's literal
// character count, which outweighs the explicit numeric priority. Residual
// ties break by earliest creation time. The relative ordering is the
// contract; the individual weights are not.
func moreSpecific(a, b *Rule, caller Caller) bool {
	am, bm := a.TargetAccountID != "", b.TargetAccountID != ""
	if am != bm {
		return am
	}
	am, bm = a.ClientID != "", b.ClientID != ""
	if am != bm {
		return am
	}
	if la, lb := a.literalLength(), b.literalLength(); la != lb {
		return la > lb
	}
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
