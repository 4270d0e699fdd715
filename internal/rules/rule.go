package rules

import (
	"fmt"

	"tapecheck/internal/tape"
)

// Severity classifies how a failed outcome is reported
type Severity string

const (
	// SeverityError is a data defect that must be resolved
	SeverityError Severity = "error"
	// SeverityWarning is a suspicious value worth review
	SeverityWarning Severity = "warning"
	// SeverityInfo is informational only
	SeverityInfo Severity = "info"
)

// Status is the result of evaluating one rule against one record
type Status string

const (
	// StatusPass means the record satisfies the rule
	StatusPass Status = "pass"
	// StatusFail means the record violates the rule (or the rule itself errored)
	StatusFail Status = "fail"
	// StatusNotApplicable means the rule does not bind on this record
	StatusNotApplicable Status = "not_applicable"
)

// Outcome is one (record, rule) evaluation result. RecordID and RuleID are
// filled in by the engine for per-record rules; cross-row rules set RecordID
// themselves so every offending record is individually identifiable.
type Outcome struct {
	RecordID string `json:"record_id"`
	RuleID   string `json:"rule_id"`
	Status   Status `json:"status"`
	Detail   string `json:"detail,omitempty"`
}

// Pass constructs a passing outcome
func Pass() Outcome {
	return Outcome{Status: StatusPass}
}

// Fail constructs a failing outcome with a detail message
func Fail(detail string) Outcome {
	return Outcome{Status: StatusFail, Detail: detail}
}

// Failf constructs a failing outcome with a formatted detail message
func Failf(format string, args ...interface{}) Outcome {
	return Outcome{Status: StatusFail, Detail: fmt.Sprintf(format, args...)}
}

// NotApplicable constructs a not-applicable outcome
func NotApplicable() Outcome {
	return Outcome{Status: StatusNotApplicable}
}

// For attributes an outcome to a record; used by cross-row rules
func (o Outcome) For(recordID string) Outcome {
	o.RecordID = recordID
	return o
}

// Rule is a named, versioned predicate over one record or, for cross-row
// rules, over the whole record set. A rule is inert data plus a pure
// evaluation function: it must not depend on mutable state outside the
// record(s) it receives, so re-running the engine on the same inputs is
// deterministic.
//
// Exactly one of Check and CheckSet must be set.
type Rule struct {
	// ID uniquely identifies the rule within a registry
	ID string
	// Severity classifies failed outcomes of this rule
	Severity Severity
	// Description is the human-readable summary shown in the report
	Description string
	// Version tracks the rule definition, not the data
	Version string
	// Fields lists the tape fields the rule reads, for targeted lookup
	Fields []string
	// Applies is an optional applicability predicate; nil means all records
	Applies func(tape.Record) bool
	// Check evaluates the rule against one record
	Check func(tape.Record) Outcome
	// CheckSet evaluates a cross-row rule against the full record set and
	// may emit zero, one or many outcomes
	CheckSet func([]tape.Record) []Outcome
}

// CrossRow reports whether the rule evaluates the whole record set at once
func (r Rule) CrossRow() bool {
	return r.CheckSet != nil
}

// AppliesTo evaluates the applicability predicate for one record
func (r Rule) AppliesTo(rec tape.Record) bool {
	if r.Applies == nil {
		return true
	}
	return r.Applies(rec)
}

// References reports whether the rule reads the given field
func (r Rule) References(field string) bool {
	name := tape.NormalizeColumn(field)
	for _, f := range r.Fields {
		if f == name {
			return true
		}
	}
	return false
}
