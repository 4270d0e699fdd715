// Package report renders a validation run into an xlsx workbook: a run
// summary, per-rule failure counts, the individual findings and warnings,
// and one sheet per stratification table.
package report

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"tapecheck/internal/engine"
	"tapecheck/internal/errors"
	"tapecheck/internal/rules"
	"tapecheck/internal/strats"
)

// Sheet names in workbook order
const (
	sheetSummary     = "Summary"
	sheetRuleSummary = "Rule Summary"
	sheetFindings    = "Findings"
	sheetWarnings    = "Warnings"
)

// column width bounds for autofit
const (
	minColWidth = 10
	maxColWidth = 60
)

// RunInfo identifies one validation run on the summary sheet
type RunInfo struct {
	RunID        string
	InputPath    string
	StartedAt    time.Time
	FinishedAt   time.Time
	SkippedRules []string
}

// Writer renders result sets into workbooks
type Writer struct {
	logger *slog.Logger
	// IncludeNotApplicable adds not-applicable outcomes to the findings sheet
	IncludeNotApplicable bool
}

// NewWriter creates a report writer
func NewWriter(logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{logger: logger}
}

// Write renders the run to path. The registry supplies rule descriptions and
// severities; tables may be empty when stratification was skipped.
func (w *Writer) Write(path string, info RunInfo, rs *engine.ResultSet, reg *rules.Registry, tables []*strats.SummaryTable) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := w.writeSummary(f, info, rs, reg); err != nil {
		return err
	}
	if err := w.writeRuleSummary(f, rs, reg); err != nil {
		return err
	}
	if err := w.writeOutcomes(f, sheetFindings, rs, reg, rules.SeverityError); err != nil {
		return err
	}
	if err := w.writeOutcomes(f, sheetWarnings, rs, reg, rules.SeverityWarning); err != nil {
		return err
	}
	for _, table := range tables {
		if err := w.writeStrat(f, table); err != nil {
			return err
		}
	}

	// drop the default sheet excelize creates and land on the summary;
	// a leftover Sheet1 is cosmetic only
	_ = f.DeleteSheet("Sheet1")
	if idx, err := f.GetSheetIndex(sheetSummary); err == nil {
		f.SetActiveSheet(idx)
	}

	if err := f.SaveAs(path); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to save report to %s", path), err)
	}
	w.logger.Info("report written",
		slog.String("path", path),
		slog.Int("strat_sheets", len(tables)))
	return nil
}

// writeSummary renders the run identity and headline counts
func (w *Writer) writeSummary(f *excelize.File, info RunInfo, rs *engine.ResultSet, reg *rules.Registry) error {
	if _, err := f.NewSheet(sheetSummary); err != nil {
		return errors.NewStorageError("failed to create summary sheet", err)
	}

	counts := rs.CountByStatus()
	severities := rs.CountBySeverity(reg)
	rows := [][]interface{}{
		{"Run ID", info.RunID},
		{"Input", info.InputPath},
		{"Started", info.StartedAt.Format(time.RFC3339)},
		{"Finished", info.FinishedAt.Format(time.RFC3339)},
		{"Duration", info.FinishedAt.Sub(info.StartedAt).Round(time.Millisecond).String()},
		{},
		{"Records", rs.RecordCount},
		{"Rules", rs.RuleCount},
		{"Outcomes", len(rs.Outcomes)},
		{"Passed", counts[rules.StatusPass]},
		{"Failed", counts[rules.StatusFail]},
		{"Failed (error)", severities[rules.SeverityError]},
		{"Failed (warning)", severities[rules.SeverityWarning]},
		{"Failed (info)", severities[rules.SeverityInfo]},
		{"Not Applicable", counts[rules.StatusNotApplicable]},
		{"Errored Rules", len(rs.ErroredRules)},
	}
	if len(info.SkippedRules) > 0 {
		rows = append(rows, []interface{}{"Skipped Rules", strings.Join(info.SkippedRules, ", ")})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetSummary, cell, &row); err != nil {
			return errors.NewStorageError("failed to write summary row", err)
		}
	}
	autofit(f, sheetSummary, rows)
	return nil
}

// writeRuleSummary renders one line per rule with its failure count, worst
// offenders first, rules that never failed at the bottom in registry order.
func (w *Writer) writeRuleSummary(f *excelize.File, rs *engine.ResultSet, reg *rules.Registry) error {
	if _, err := f.NewSheet(sheetRuleSummary); err != nil {
		return errors.NewStorageError("failed to create rule summary sheet", err)
	}

	errored := make(map[string]bool, len(rs.ErroredRules))
	for _, re := range rs.ErroredRules {
		errored[re.RuleID] = true
	}

	type line struct {
		rule  rules.Rule
		fails int
		order int
	}
	var lines []line
	for i, rule := range reg.All() {
		lines = append(lines, line{rule: rule, fails: rs.FailureCount(rule.ID), order: i})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if lines[i].fails != lines[j].fails {
			return lines[i].fails > lines[j].fails
		}
		return lines[i].order < lines[j].order
	})

	rows := [][]interface{}{{"Rule", "Severity", "Description", "Failures", "Errored"}}
	for _, l := range lines {
		erroredMark := ""
		if errored[l.rule.ID] {
			erroredMark = "yes"
		}
		rows = append(rows, []interface{}{
			l.rule.ID, string(l.rule.Severity), l.rule.Description, l.fails, erroredMark,
		})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheetRuleSummary, cell, &row); err != nil {
			return errors.NewStorageError("failed to write rule summary row", err)
		}
	}
	autofit(f, sheetRuleSummary, rows)
	return nil
}

// writeOutcomes renders the failed outcomes of one severity, in result order.
// With IncludeNotApplicable set, not-applicable outcomes are appended to the
// findings sheet.
func (w *Writer) writeOutcomes(f *excelize.File, sheet string, rs *engine.ResultSet, reg *rules.Registry, sev rules.Severity) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to create %s sheet", sheet), err)
	}

	severityOf := func(ruleID string) rules.Severity {
		if rule, ok := reg.Get(ruleID); ok {
			return rule.Severity
		}
		return rules.SeverityError
	}

	rows := [][]interface{}{{"Loan Number", "Rule", "Status", "Detail"}}
	for _, o := range rs.Outcomes {
		include := o.Status == rules.StatusFail && severityOf(o.RuleID) == sev
		if w.IncludeNotApplicable && sev == rules.SeverityError && o.Status == rules.StatusNotApplicable {
			include = true
		}
		if !include {
			continue
		}
		rows = append(rows, []interface{}{o.RecordID, o.RuleID, string(o.Status), o.Detail})
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.NewStorageError(fmt.Sprintf("failed to write %s row", sheet), err)
		}
	}
	autofit(f, sheet, rows)
	return nil
}

// writeStrat renders one stratification table on its own sheet
func (w *Writer) writeStrat(f *excelize.File, table *strats.SummaryTable) error {
	sheet := sanitizeSheetName("Strat - " + table.Dimension)
	if _, err := f.NewSheet(sheet); err != nil {
		return errors.NewStorageError(fmt.Sprintf("failed to create strat sheet %q", sheet), err)
	}

	header := []interface{}{table.Dimension, "Count"}
	for _, col := range table.Columns {
		header = append(header, col)
	}
	rows := [][]interface{}{header}
	for _, row := range table.Rows {
		line := []interface{}{row.Label, row.Count}
		for _, v := range row.Values {
			line = append(line, v)
		}
		rows = append(rows, line)
	}
	total := []interface{}{"Total", table.TotalCount()}
	rows = append(rows, total)

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return errors.NewStorageError(fmt.Sprintf("failed to write strat row on %q", sheet), err)
		}
	}
	autofit(f, sheet, rows)
	return nil
}

// autofit sizes columns to their longest rendered cell, within bounds
func autofit(f *excelize.File, sheet string, rows [][]interface{}) {
	widths := make(map[int]int)
	for _, row := range rows {
		for c, cell := range row {
			n := len(fmt.Sprintf("%v", cell))
			if n > widths[c] {
				widths[c] = n
			}
		}
	}
	for c, n := range widths {
		width := float64(n + 2)
		if width < minColWidth {
			width = minColWidth
		}
		if width > maxColWidth {
			width = maxColWidth
		}
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			continue
		}
		// width errors are cosmetic only
		_ = f.SetColWidth(sheet, name, name, width)
	}
}

// sanitizeSheetName keeps sheet names within xlsx limits
func sanitizeSheetName(name string) string {
	const limit = 31
	if len(name) > limit {
		return name[:limit]
	}
	return name
}
