package policy

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ScopeType is the ownership tier a rule belongs to.
type ScopeType string

const (
	ScopeWorkspace    ScopeType = "workspace"
	ScopeOrganization ScopeType = "organization"
	ScopeAccount      ScopeType = "account"
)

// Effect is a rule's base decision.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// ApprovalMode controls whether an allowed call still needs human sign-off.
type ApprovalMode string

const (
	ApprovalAuto     ApprovalMode = "auto"
	ApprovalRequired ApprovalMode = "required"
)

// MatchType selects how ResourcePattern is interpreted.
type MatchType string

const (
	MatchGlob  MatchType = "glob"
	MatchExact MatchType = "exact"
)

// ArgumentCondition constrains a rule to calls whose named argument equals
// a specific value.
type ArgumentCondition struct {
	Argument string `json:"argument"`
	Equals   string `json:"equals"`
}

// Rule is one scoped, pattern-matched authorization rule. Rules are
// upserted by ID and evaluated together across every scope tier visible to
// the caller.
type Rule struct {
	ID                 string              `json:"id"`
	ScopeType          ScopeType           `json:"scope_type"`
	TargetAccountID    string              `json:"target_account_id,omitempty"`
	ClientID           string              `json:"client_id,omitempty"`
	ResourcePattern    string              `json:"resource_pattern"`
	MatchType          MatchType           `json:"match_type"`
	Effect             Effect              `json:"effect"`
	ApprovalMode       ApprovalMode        `json:"approval_mode"`
	ArgumentConditions []ArgumentCondition `json:"argument_conditions,omitempty"`
	Priority           int                 `json:"priority"`
	CreatedAt          time.Time           `json:"created_at"`

	compiled *regexp.Regexp
}

// Validate checks the rule's fields and compiles its pattern.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("rule id cannot be empty")
	}
	switch r.ScopeType {
	case ScopeWorkspace, ScopeOrganization, ScopeAccount:
	default:
		return fmt.Errorf("rule %s: invalid scope type %q", r.ID, r.ScopeType)
	}
	switch r.Effect {
	case EffectAllow, EffectDeny:
	default:
		return fmt.Errorf("rule %s: invalid effect %q", r.ID, r.Effect)
	}
	if r.ResourcePattern == "" {
		return fmt.Errorf("rule %s: resource pattern cannot be empty", r.ID)
	}
	_, err := r.pattern()
	return err
}

// pattern lazily compiles the rule's glob into an anchored regexp.
func (r *Rule) pattern() (*regexp.Regexp, error) {
	if r.compiled != nil {
		return r.compiled, nil
	}
	var expr string
	if r.MatchType == MatchExact {
		expr = "^" + regexp.QuoteMeta(r.ResourcePattern) + "$"
	} else {
		expr = globToRegex(r.ResourcePattern)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid pattern %q: %w", r.ID, r.ResourcePattern, err)
	}
	r.compiled = re
	return re, nil
}

// MatchesPath reports whether the rule's pattern matches the full tool
// path. Unanchored partial matches never apply.
func (r *Rule) MatchesPath(path string) bool {
	re, err := r.pattern()
	if err != nil {
		return false
	}
	return re.MatchString(path)
}

// MatchesArguments checks the rule's argument conditions against a call's
// input. A rule without conditions matches any input.
func (r *Rule) MatchesArguments(input map[string]any) bool {
	for _, cond := range r.ArgumentConditions {
		v, ok := input[cond.Argument]
		if !ok {
			return false
		}
		if fmt.Sprintf("%v", v) != cond.Equals {
			return false
		}
	}
	return true
}

// literalLength counts the pattern's non-wildcard characters, used as the
// specificity tiebreaker between patterns.
func (r *Rule) literalLength() int {
	n := 0
	for _, c := range r.ResourcePattern {
		if c != '*' && c != '?' {
			n++
		}
	}
	return n
}

// globToRegex converts a glob pattern to an anchored regular expression.
// `*` matches any run of characters and `?` matches exactly one.
func globToRegex(pattern string) string {
	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, ".*")
	escaped = strings.ReplaceAll(escaped, `\?`, ".")
	return "^" + escaped + "$"
}
