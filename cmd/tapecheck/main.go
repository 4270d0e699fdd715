// Command tapecheck validates a residential loan tape against the built-in
// rule catalogue and writes an xlsx report with findings, warnings and
// stratification tables.
//
// Usage:
//
//	tapecheck [flags] <tape.xlsx|tape.csv>
//
// The process exits 0 when the run completes, regardless of how many rules
// failed; the report is the verdict. A non-zero exit means the run itself
// could not finish.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"tapecheck/internal/config"
	"tapecheck/internal/engine"
	"tapecheck/internal/errors"
	"tapecheck/internal/infrastructure"
	"tapecheck/internal/ingest"
	"tapecheck/internal/report"
	"tapecheck/internal/rules"
	"tapecheck/internal/strats"
	"tapecheck/internal/tape"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tapecheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		outPath     = flag.String("out", "", "report output path (default: alongside the input)")
		configPath  = flag.String("config", "", "path to a YAML config file")
		stratsPath  = flag.String("strats", "", "path to a YAML stratification dimensions file")
		logLevel    = flag.String("log-level", "", "log level override (debug, info, warn, error)")
		poolBalance = flag.Float64("pool-balance", 0, "stated pool balance to reconcile the tape against")
		workers     = flag.Int("workers", 0, "concurrent record evaluation bound override")
		skipRules   = flag.String("skip-rules", "", "comma-separated rule ids to exclude from the run")
		noStrats    = flag.Bool("no-strats", false, "skip stratification tables")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <tape.xlsx|tape.csv>\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("exactly one input tape is required")
	}
	inputPath := flag.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *poolBalance > 0 {
		cfg.Validation.PoolBalance = *poolBalance
	}
	if *workers > 0 {
		cfg.Validation.Workers = *workers
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	runID := uuid.New().String()
	ctx := infrastructure.WithRunID(context.Background(), runID)
	started := time.Now()

	logger.InfoContext(ctx, "run started",
		slog.String("input", inputPath),
		slog.Float64("pool_balance", cfg.Validation.PoolBalance))

	schema := tape.LoanTapeSchema()
	records, err := ingest.NewReader(schema, logger).ReadTape(inputPath)
	if err != nil {
		return err
	}
	logger.InfoContext(ctx, "tape ingested", slog.Int("records", len(records)))

	params := rules.Params{
		Epsilon:           cfg.Validation.Epsilon,
		RelativeTolerance: cfg.Validation.RelativeTolerance,
		PoolBalance:       cfg.Validation.PoolBalance,
		AsOf:              started,
	}
	registry := rules.NewLoanTapeRegistry(schema, params)

	skipped, err := splitSkipList(*skipRules, registry)
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		registry, err = withoutRules(registry, skipped)
		if err != nil {
			return err
		}
		logger.InfoContext(ctx, "rules skipped by configuration", slog.Any("rules", skipped))
	}

	rs, err := engine.New(logger, cfg.Validation.Workers).Validate(ctx, records, registry)
	if err != nil {
		return err
	}

	var tables []*strats.SummaryTable
	if !*noStrats {
		dims := strats.DefaultDimensions()
		if *stratsPath != "" {
			dims, err = strats.LoadDimensions(*stratsPath)
			if err != nil {
				return err
			}
		}
		tables, err = strats.SummarizeAll(records, dims)
		if err != nil {
			return err
		}
	}

	out := *outPath
	if out == "" {
		out = defaultOutputPath(inputPath, started, cfg.Report.TimestampSuffix)
	}

	writer := report.NewWriter(logger)
	writer.IncludeNotApplicable = cfg.Report.IncludeNotApplicable
	info := report.RunInfo{
		RunID:        runID,
		InputPath:    inputPath,
		StartedAt:    started,
		FinishedAt:   time.Now(),
		SkippedRules: skipped,
	}
	if err := writer.Write(out, info, rs, registry, tables); err != nil {
		return err
	}

	counts := rs.CountByStatus()
	logger.InfoContext(ctx, "run finished",
		slog.String("report", out),
		slog.Int("failures", counts[rules.StatusFail]),
		slog.Duration("elapsed", time.Since(started)))
	fmt.Printf("validated %d records against %d rules: %d failures, report at %s\n",
		rs.RecordCount, rs.RuleCount, counts[rules.StatusFail], out)
	return nil
}

// splitSkipList parses the -skip-rules flag and rejects ids the registry does
// not know, so a typo surfaces as a fatal error instead of a silently active
// rule.
func splitSkipList(raw string, reg *rules.Registry) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, ok := reg.Get(id); !ok {
			return nil, errors.NewRuleDefinitionError(fmt.Sprintf("unknown rule id %q in -skip-rules", id))
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// withoutRules rebuilds a registry minus the skipped ids, preserving order
func withoutRules(reg *rules.Registry, skipped []string) (*rules.Registry, error) {
	skip := make(map[string]bool, len(skipped))
	for _, id := range skipped {
		skip[id] = true
	}
	out := rules.NewRegistry()
	for _, rule := range reg.All() {
		if skip[rule.ID] {
			continue
		}
		if err := out.Register(rule); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// defaultOutputPath derives the report name from the input tape, optionally
// suffixed with the run start time so reruns never clobber each other.
func defaultOutputPath(inputPath string, started time.Time, timestamped bool) string {
	dir := filepath.Dir(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	name := base + "_validation"
	if timestamped {
		name += "_" + started.Format("20060102_150405")
	}
	return filepath.Join(dir, name+".xlsx")
}
