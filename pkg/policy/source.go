package policy

import (
	"context"
	"sync"
)

// StaticSource serves a fixed rule set. Useful for tests and for callers
// that assemble snapshots themselves.
type StaticSource struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewStaticSource creates a source over the given rules.
func NewStaticSource(rules ...Rule) *StaticSource {
	s := &StaticSource{}
	s.Replace(rules)
	return s
}

// RulesFor returns a copy of the current rule set. The copy is the
// caller's snapshot; later edits never leak into an in-flight decision.
func (s *StaticSource) RulesFor(ctx context.Context, caller Caller) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Rule, len(s.rules))
	copy(out, s.rules)
	return out, nil
}

// Replace atomically swaps the rule set.
func (s *StaticSource) Replace(rules []Rule) {
	out := make([]Rule, len(rules))
	copy(out, rules)
	s.mu.Lock()
	s.rules = out
	s.mu.Unlock()
}

// Upsert inserts or replaces a rule by ID.
func (s *StaticSource) Upsert(rule Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			s.rules[i] = rule
			return
		}
	}
	s.rules = append(s.rules, rule)
}

// MultiSource concatenates rules from several tiers (workspace,
// organization, account) into one visible set per decision.
type MultiSource struct {
	sources []RuleSource
}

// NewMultiSource combines rule sources.
func NewMultiSource(sources ...RuleSource) *MultiSource {
	return &MultiSource{sources: sources}
}

// RulesFor reads every tier once and returns the combined snapshot.
func (m *MultiSource) RulesFor(ctx context.Context, caller Caller) ([]Rule, error) {
	var all []Rule
	for _, src := range m.sources {
		rules, err := src.RulesFor(ctx, caller)
		if err != nil {
			return nil, err
		}
		all = append(all, rules...)
	}
	return all, nil
}
