package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/RhysSullivan/assistant-sub002/pkg/policy"
)

// UpsertRule inserts or replaces a policy rule by id.
func (s *Store) UpsertRule(ctx context.Context, rule policy.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	conditions, err := json.Marshal(rule.ArgumentConditions)
	if err != nil {
		return fmt.Errorf("failed to encode argument conditions: %w", err)
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now().UTC()
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO policy_rules (id, scope_type, target_account_id, client_id, resource_pattern,
			match_type, effect, approval_mode, argument_conditions, priority, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			scope_type = excluded.scope_type,
			target_account_id = excluded.target_account_id,
			client_id = excluded.client_id,
			resource_pattern = excluded.resource_pattern,
			match_type = excluded.match_type,
			effect = excluded.effect,
			approval_mode = excluded.approval_mode,
			argument_conditions = excluded.argument_conditions,
			priority = excluded.priority`,
		rule.ID, rule.ScopeType, rule.TargetAccountID, rule.ClientID, rule.ResourcePattern,
		rule.MatchType, rule.Effect, rule.ApprovalMode, string(conditions), rule.Priority,
		rule.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to upsert rule: %w", err)
	}
	return nil
}

// DeleteRule removes a rule by id.
func (s *Store) DeleteRule(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM policy_rules WHERE id = ?`, id)
	return err
}

// RulesFor implements policy.RuleSource: every workspace- and
// organization-owned rule plus the rules targeted at the caller's account,
// read in one query so a decision sees a consistent snapshot.
func (s *Store) RulesFor(ctx context.Context, caller policy.Caller) ([]policy.Rule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope_type, target_account_id, client_id, resource_pattern,
			match_type, effect, approval_mode, argument_conditions, priority, created_at
		FROM policy_rules
		WHERE target_account_id = '' OR target_account_id = ?`,
		caller.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []policy.Rule
	for rows.Next() {
		var rule policy.Rule
		var conditions string
		var createdAt int64
		if err := rows.Scan(
			&rule.ID, &rule.ScopeType, &rule.TargetAccountID, &rule.ClientID, &rule.ResourcePattern,
			&rule.MatchType, &rule.Effect, &rule.ApprovalMode, &conditions, &rule.Priority, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		if err := json.Unmarshal([]byte(conditions), &rule.ArgumentConditions); err != nil {
			return nil, fmt.Errorf("rule %s has corrupt argument conditions: %w", rule.ID, err)
		}
		rule.CreatedAt = time.UnixMilli(createdAt).UTC()
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}
