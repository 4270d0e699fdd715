package engine

import (
	"tapecheck/internal/rules"
)

// RuleError records a rule whose evaluation panicked during a run. The panic
// is converted into Fail outcomes so the run continues; the rule is listed
// here so the report can flag it separately from ordinary data failures.
type RuleError struct {
	RuleID   string `json:"rule_id"`
	RecordID string `json:"record_id,omitempty"`
	Message  string `json:"message"`
}

// ResultSet is the complete, ordered output of one validation run.
// Outcomes are ordered rule-major in registry order, records in tape order,
// so the same inputs always produce the same result set.
type ResultSet struct {
	Outcomes     []rules.Outcome `json:"outcomes"`
	ErroredRules []RuleError     `json:"errored_rules,omitempty"`
	RecordCount  int             `json:"record_count"`
	RuleCount    int             `json:"rule_count"`
}

// CountByStatus returns the number of outcomes per status
func (rs *ResultSet) CountByStatus() map[rules.Status]int {
	counts := make(map[rules.Status]int, 3)
	for _, o := range rs.Outcomes {
		counts[o.Status]++
	}
	return counts
}

// CountBySeverity returns failed-outcome counts keyed by the severity of the
// rule that produced them. Outcomes whose rule is missing from the registry
// count as errors.
func (rs *ResultSet) CountBySeverity(reg *rules.Registry) map[rules.Severity]int {
	counts := make(map[rules.Severity]int, 3)
	for _, o := range rs.Outcomes {
		if o.Status != rules.StatusFail {
			continue
		}
		sev := rules.SeverityError
		if rule, ok := reg.Get(o.RuleID); ok {
			sev = rule.Severity
		}
		counts[sev]++
	}
	return counts
}

// Failures returns the failed outcomes in result order
func (rs *ResultSet) Failures() []rules.Outcome {
	var out []rules.Outcome
	for _, o := range rs.Outcomes {
		if o.Status == rules.StatusFail {
			out = append(out, o)
		}
	}
	return out
}

// FailuresByRule groups failed outcomes by rule id, preserving result order
// within each group.
func (rs *ResultSet) FailuresByRule() map[string][]rules.Outcome {
	out := make(map[string][]rules.Outcome)
	for _, o := range rs.Outcomes {
		if o.Status == rules.StatusFail {
			out[o.RuleID] = append(out[o.RuleID], o)
		}
	}
	return out
}

// FailureCount returns the number of failed outcomes for one rule
func (rs *ResultSet) FailureCount(ruleID string) int {
	n := 0
	for _, o := range rs.Outcomes {
		if o.RuleID == ruleID && o.Status == rules.StatusFail {
			n++
		}
	}
	return n
}

// Clean reports whether the run produced no failures and no errored rules
func (rs *ResultSet) Clean() bool {
	return len(rs.ErroredRules) == 0 && len(rs.Failures()) == 0
}
