package rules

import (
	"fmt"

	"tapecheck/internal/errors"
)

// Registry holds named validation rules in registration order. A registry is
// built once before a run and read-only afterwards; build one per rule set
// rather than sharing ambient state, so versioned catalogues can coexist and
// tests can assemble minimal registries.
type Registry struct {
	rules []Rule
	byID  map[string]int
}

// NewRegistry creates an empty rule registry
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

// Register adds a rule. Registering a duplicate id, an empty id, or a rule
// without exactly one evaluation function is a RuleDefinitionError.
func (r *Registry) Register(rule Rule) error {
	if rule.ID == "" {
		return errors.NewRuleDefinitionError("rule id must not be empty")
	}
	if (rule.Check == nil) == (rule.CheckSet == nil) {
		return errors.NewRuleDefinitionError(
			fmt.Sprintf("rule %q must define exactly one of Check and CheckSet", rule.ID))
	}
	switch rule.Severity {
	case SeverityError, SeverityWarning, SeverityInfo:
	default:
		return errors.NewRuleDefinitionError(
			fmt.Sprintf("rule %q has unknown severity %q", rule.ID, rule.Severity))
	}
	if _, exists := r.byID[rule.ID]; exists {
		return errors.NewRuleDefinitionError(fmt.Sprintf("duplicate rule id %q", rule.ID))
	}
	r.byID[rule.ID] = len(r.rules)
	r.rules = append(r.rules, rule)
	return nil
}

// MustRegister is like Register but panics on error. Use for the built-in
// catalogue where a definition error is a programming bug.
func (r *Registry) MustRegister(rule Rule) {
	if err := r.Register(rule); err != nil {
		panic(err)
	}
}

// All returns every rule in registration order, so report ordering is
// deterministic.
func (r *Registry) All() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Get looks up a rule by id
func (r *Registry) Get(id string) (Rule, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Rule{}, false
	}
	return r.rules[i], true
}

// ForField returns the rules that reference the given field, in registration
// order. Used for targeted re-validation and diagnostics.
func (r *Registry) ForField(field string) []Rule {
	var out []Rule
	for _, rule := range r.rules {
		if rule.References(field) {
			out = append(out, rule)
		}
	}
	return out
}

// Len returns the number of registered rules
func (r *Registry) Len() int {
	return len(r.rules)
}
