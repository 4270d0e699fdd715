package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config represents the complete application configuration
type Config struct {
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Validation ValidationConfig `yaml:"validation" envconfig:"VALIDATION"`
	Report     ReportConfig     `yaml:"report" envconfig:"REPORT"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level    string `yaml:"level" envconfig:"LEVEL" default:"info"`
	Format   string `yaml:"format" envconfig:"FORMAT" default:"json"`
	Output   string `yaml:"output" envconfig:"OUTPUT" default:"console"`
	FilePath string `yaml:"file_path" envconfig:"FILE_PATH" default:"logs/tapecheck.log"`
}

// ValidationConfig contains the knobs shared by the rule catalogue and the
// validation engine.
type ValidationConfig struct {
	// Epsilon is the absolute currency tolerance for sum checks (0.01 = one cent)
	Epsilon float64 `yaml:"epsilon" envconfig:"EPSILON" default:"0.01"`
	// RelativeTolerance is the relative tolerance for ratio consistency checks
	RelativeTolerance float64 `yaml:"relative_tolerance" envconfig:"RELATIVE_TOLERANCE" default:"0.0001"`
	// Workers bounds concurrent per-record rule evaluation; 1 disables it
	Workers int `yaml:"workers" envconfig:"WORKERS" default:"4"`
	// PoolBalance is the stated pool balance the tape must sum to; 0 skips the check
	PoolBalance float64 `yaml:"pool_balance" envconfig:"POOL_BALANCE" default:"0"`
}

// ReportConfig contains report output configuration
type ReportConfig struct {
	// TimestampSuffix appends a run timestamp to the output file name
	TimestampSuffix bool `yaml:"timestamp_suffix" envconfig:"TIMESTAMP_SUFFIX" default:"true"`
	// IncludeNotApplicable adds not-applicable outcomes to the findings sheet
	IncludeNotApplicable bool `yaml:"include_not_applicable" envconfig:"INCLUDE_NOT_APPLICABLE" default:"false"`
}

// Load loads configuration from environment variables and an optional YAML
// file. File values fill in what the environment left at defaults; the
// environment always wins.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process("TAPECHECK", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		fileCfg, err := loadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
		cfg = mergeConfigs(*fileCfg, cfg)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Output:   "console",
			FilePath: "logs/tapecheck.log",
		},
		Validation: ValidationConfig{
			Epsilon:           0.01,
			RelativeTolerance: 0.0001,
			Workers:           4,
		},
		Report: ReportConfig{
			TimestampSuffix: true,
		},
	}
}

// fileConfig mirrors Config with pointer fields so a key absent from the
// YAML file is distinguishable from one explicitly set to a zero value.
type fileConfig struct {
	Logging struct {
		Level    *string `yaml:"level"`
		Format   *string `yaml:"format"`
		Output   *string `yaml:"output"`
		FilePath *string `yaml:"file_path"`
	} `yaml:"logging"`
	Validation struct {
		Epsilon           *float64 `yaml:"epsilon"`
		RelativeTolerance *float64 `yaml:"relative_tolerance"`
		Workers           *int     `yaml:"workers"`
		PoolBalance       *float64 `yaml:"pool_balance"`
	} `yaml:"validation"`
	Report struct {
		TimestampSuffix      *bool `yaml:"timestamp_suffix"`
		IncludeNotApplicable *bool `yaml:"include_not_applicable"`
	} `yaml:"report"`
}

// loadFromFile loads configuration from YAML file
func loadFromFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// mergeConfigs merges file config with env config. A file value applies only
// where the environment left the default, so the environment always wins.
func mergeConfigs(fileCfg fileConfig, envCfg Config) Config {
	def := Default()

	if v := fileCfg.Logging.Level; v != nil && envCfg.Logging.Level == def.Logging.Level {
		envCfg.Logging.Level = *v
	}
	if v := fileCfg.Logging.Format; v != nil && envCfg.Logging.Format == def.Logging.Format {
		envCfg.Logging.Format = *v
	}
	if v := fileCfg.Logging.Output; v != nil && envCfg.Logging.Output == def.Logging.Output {
		envCfg.Logging.Output = *v
	}
	if v := fileCfg.Logging.FilePath; v != nil && envCfg.Logging.FilePath == def.Logging.FilePath {
		envCfg.Logging.FilePath = *v
	}

	if v := fileCfg.Validation.Epsilon; v != nil && envCfg.Validation.Epsilon == def.Validation.Epsilon {
		envCfg.Validation.Epsilon = *v
	}
	if v := fileCfg.Validation.RelativeTolerance; v != nil && envCfg.Validation.RelativeTolerance == def.Validation.RelativeTolerance {
		envCfg.Validation.RelativeTolerance = *v
	}
	if v := fileCfg.Validation.Workers; v != nil && envCfg.Validation.Workers == def.Validation.Workers {
		envCfg.Validation.Workers = *v
	}
	if v := fileCfg.Validation.PoolBalance; v != nil && envCfg.Validation.PoolBalance == def.Validation.PoolBalance {
		envCfg.Validation.PoolBalance = *v
	}

	if v := fileCfg.Report.TimestampSuffix; v != nil && envCfg.Report.TimestampSuffix == def.Report.TimestampSuffix {
		envCfg.Report.TimestampSuffix = *v
	}
	if v := fileCfg.Report.IncludeNotApplicable; v != nil && envCfg.Report.IncludeNotApplicable == def.Report.IncludeNotApplicable {
		envCfg.Report.IncludeNotApplicable = *v
	}

	return envCfg
}

// validate checks configuration invariants
func (c *Config) validate() error {
	if c.Validation.Epsilon < 0 {
		return fmt.Errorf("validation.epsilon must be non-negative, got %g", c.Validation.Epsilon)
	}
	if c.Validation.RelativeTolerance < 0 {
		return fmt.Errorf("validation.relative_tolerance must be non-negative, got %g", c.Validation.RelativeTolerance)
	}
	if c.Validation.Workers < 1 {
		return fmt.Errorf("validation.workers must be at least 1, got %d", c.Validation.Workers)
	}
	if c.Validation.PoolBalance < 0 {
		return fmt.Errorf("validation.pool_balance must be non-negative, got %g", c.Validation.PoolBalance)
	}
	switch c.Logging.Output {
	case "console", "file", "both":
	default:
		return fmt.Errorf("logging.output must be console, file or both, got %q", c.Logging.Output)
	}
	return nil
}
