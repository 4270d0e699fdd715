// Package engine evaluates a rule registry against an ingested loan tape and
// collects the outcomes into a deterministic result set.
//
// Per-record rules are evaluated concurrently across records with a bounded
// worker group; outcomes are written into preallocated slots keyed by record
// position, so the output order never depends on goroutine scheduling. Pairs
// a rule's applicability predicate rejects produce no outcome at all.
// Cross-row rules run sequentially after the per-record pass. A panic inside
// a rule is converted into Fail outcomes and the run continues.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"golang.org/x/sync/errgroup"

	"tapecheck/internal/rules"
	"tapecheck/internal/tape"
)

// Engine runs rule registries over record sets
type Engine struct {
	logger  *slog.Logger
	workers int
}

// New creates an engine with the given worker bound. Workers below 1 are
// treated as 1, which makes evaluation fully sequential.
func New(logger *slog.Logger, workers int) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	return &Engine{logger: logger, workers: workers}
}

// Validate evaluates every rule in the registry against every record and
// returns the ordered result set. The only error returned is context
// cancellation; rule failures and rule panics are reported inside the
// result set, never as an error.
func (e *Engine) Validate(ctx context.Context, records []tape.Record, reg *rules.Registry) (*ResultSet, error) {
	ruleList := reg.All()

	var perRecord, crossRow []rules.Rule
	for _, r := range ruleList {
		if r.CrossRow() {
			crossRow = append(crossRow, r)
		} else {
			perRecord = append(perRecord, r)
		}
	}

	e.logger.InfoContext(ctx, "validation started",
		slog.Int("records", len(records)),
		slog.Int("rules", len(ruleList)),
		slog.Int("workers", e.workers))

	// slots[i] holds record i's outcomes in per-record rule order and
	// errSlots[i] its rule errors, so the flattened result is identical
	// regardless of evaluation interleaving
	slots := make([][]rules.Outcome, len(records))
	errSlots := make([][]RuleError, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range records {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rec := records[i]
			outcomes := make([]rules.Outcome, len(perRecord))
			for ri, rule := range perRecord {
				o, recorded, rerr := e.evalRecordRule(rule, rec)
				if recorded {
					outcomes[ri] = o
				}
				if rerr != nil {
					errSlots[i] = append(errSlots[i], *rerr)
				}
			}
			slots[i] = outcomes
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rs := &ResultSet{
		RecordCount: len(records),
		RuleCount:   len(ruleList),
	}

	// flatten rule-major: all records for rule 0, then rule 1, and so on,
	// matching the report's grouping. A zero slot marks a pair the rule's
	// applicability predicate skipped; those pairs have no outcome.
	for ri := range perRecord {
		for i := range records {
			if slots[i][ri].Status != "" {
				rs.Outcomes = append(rs.Outcomes, slots[i][ri])
			}
		}
	}

	var errored []RuleError
	for i := range records {
		errored = append(errored, errSlots[i]...)
	}

	for _, rule := range crossRow {
		outcomes, rerr := e.evalCrossRowRule(rule, records)
		rs.Outcomes = append(rs.Outcomes, outcomes...)
		if rerr != nil {
			errored = append(errored, *rerr)
		}
	}
	rs.ErroredRules = errored

	counts := rs.CountByStatus()
	e.logger.InfoContext(ctx, "validation finished",
		slog.Int("outcomes", len(rs.Outcomes)),
		slog.Int("pass", counts[rules.StatusPass]),
		slog.Int("fail", counts[rules.StatusFail]),
		slog.Int("not_applicable", counts[rules.StatusNotApplicable]),
		slog.Int("errored_rules", len(errored)))

	return rs, nil
}

// evalRecordRule evaluates one per-record rule against one record, converting
// panics into Fail outcomes. Records the applicability predicate rejects are
// not recorded; a rule may still return NotApplicable itself for records it
// applies to.
func (e *Engine) evalRecordRule(rule rules.Rule, rec tape.Record) (outcome rules.Outcome, recorded bool, rerr *RuleError) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("rule panicked: %v", r)
			e.logger.Error("rule evaluation panicked",
				slog.String("rule", rule.ID),
				slog.String("record", rec.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			outcome = rules.Fail(msg).For(rec.ID())
			outcome.RuleID = rule.ID
			recorded = true
			rerr = &RuleError{RuleID: rule.ID, RecordID: rec.ID(), Message: msg}
		}
	}()

	if !rule.AppliesTo(rec) {
		return rules.Outcome{}, false, nil
	}
	outcome = rule.Check(rec)
	outcome.RecordID = rec.ID()
	outcome.RuleID = rule.ID
	return outcome, true, nil
}

// evalCrossRowRule evaluates one cross-row rule against the full record set.
// On panic the whole rule is reported as a single pool-level failure.
func (e *Engine) evalCrossRowRule(rule rules.Rule, records []tape.Record) (outcomes []rules.Outcome, rerr *RuleError) {
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("rule panicked: %v", r)
			e.logger.Error("cross-row rule evaluation panicked",
				slog.String("rule", rule.ID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			o := rules.Fail(msg).For("POOL")
			o.RuleID = rule.ID
			outcomes = []rules.Outcome{o}
			rerr = &RuleError{RuleID: rule.ID, Message: msg}
		}
	}()

	raw := rule.CheckSet(records)
	outcomes = make([]rules.Outcome, 0, len(raw))
	for _, o := range raw {
		o.RuleID = rule.ID
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}
