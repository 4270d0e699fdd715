package strats

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"tapecheck/internal/errors"
)

func fp(f float64) *float64 { return &f }

// balanceAggregates are the standard columns every default stratification
// carries: total current balance and the balance-weighted coupon.
func balanceAggregates() []AggregateSpec {
	return []AggregateSpec{
		{Name: "Current Balance", Field: "current_loan_amount", Op: OpSum},
		{Name: "WAC", Field: "current_interest_rate", Op: OpWavg, WeightField: "current_loan_amount"},
	}
}

// DefaultDimensions returns the built-in stratifications: FICO bands, LTV
// bands, coupon bands and state. Used when no dimensions file is supplied.
func DefaultDimensions() []DimensionSpec {
	return []DimensionSpec{
		{
			Name:  "FICO",
			Field: "original_primary_borrower_fico",
			Kind:  KindRange,
			Buckets: []BucketDef{
				{Label: "< 620", Upper: fp(620)},
				{Label: "620-679", Lower: fp(620), Upper: fp(680)},
				{Label: "680-719", Lower: fp(680), Upper: fp(720)},
				{Label: "720-759", Lower: fp(720), Upper: fp(760)},
				{Label: "760+", Lower: fp(760)},
			},
			Aggregates: balanceAggregates(),
		},
		{
			Name:  "Original LTV",
			Field: "original_ltv",
			Kind:  KindRange,
			Buckets: []BucketDef{
				{Label: "< 60%", Upper: fp(0.60)},
				{Label: "60-70%", Lower: fp(0.60), Upper: fp(0.70)},
				{Label: "70-80%", Lower: fp(0.70), Upper: fp(0.80)},
				{Label: "80-90%", Lower: fp(0.80), Upper: fp(0.90)},
				{Label: "90%+", Lower: fp(0.90)},
			},
			Aggregates: balanceAggregates(),
		},
		{
			Name:  "Gross Coupon",
			Field: "current_interest_rate",
			Kind:  KindRange,
			Buckets: []BucketDef{
				{Label: "< 4%", Upper: fp(0.04)},
				{Label: "4-5%", Lower: fp(0.04), Upper: fp(0.05)},
				{Label: "5-6%", Lower: fp(0.05), Upper: fp(0.06)},
				{Label: "6-7%", Lower: fp(0.06), Upper: fp(0.07)},
				{Label: "7%+", Lower: fp(0.07)},
			},
			Aggregates: balanceAggregates(),
		},
		{
			Name:  "State",
			Field: "state",
			Kind:  KindCategorical,
			Buckets: []BucketDef{
				{Label: "CA", Values: []string{"CA"}},
				{Label: "TX", Values: []string{"TX"}},
				{Label: "FL", Values: []string{"FL"}},
				{Label: "NY", Values: []string{"NY"}},
				{Label: "WA", Values: []string{"WA"}},
			},
			OverflowLabel: "Other",
			Aggregates:    balanceAggregates(),
		},
	}
}

// dimensionsFile is the YAML layout of a dimensions file
type dimensionsFile struct {
	Dimensions []DimensionSpec `yaml:"dimensions"`
}

// LoadDimensions reads stratification dimensions from a YAML file and
// validates each one. A file declaring no dimensions is a ConfigError.
func LoadDimensions(path string) ([]DimensionSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("dimensions file %s: %v", path, err))
	}

	var f dimensionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("dimensions file %s: %v", path, err))
	}
	if len(f.Dimensions) == 0 {
		return nil, errors.NewConfigError(fmt.Sprintf("dimensions file %s declares no dimensions", path))
	}

	names := make(map[string]bool, len(f.Dimensions))
	for _, d := range f.Dimensions {
		if err := d.Validate(); err != nil {
			return nil, err
		}
		if names[d.Name] {
			return nil, errors.NewConfigError(fmt.Sprintf("duplicate dimension name %q", d.Name))
		}
		names[d.Name] = true
	}
	return f.Dimensions, nil
}
