// Package strats aggregates a loan tape into stratification tables: records
// bucketed along a dimension (FICO bands, LTV bands, state) with per-bucket
// counts and aggregates (balance sums, weighted-average coupons).
package strats

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"tapecheck/internal/errors"
)

// Aggregate operations
const (
	// OpSum totals the aggregate field across the bucket
	OpSum = "sum"
	// OpWavg computes the weighted average of the aggregate field, weighted
	// by WeightField
	OpWavg = "wavg"
)

// Dimension kinds
const (
	// KindRange buckets a numeric field into half-open intervals
	KindRange = "range"
	// KindCategorical buckets a text field by exact value
	KindCategorical = "categorical"
)

// BucketDef is one bucket of a dimension. Range buckets use Lower and Upper
// as a half-open interval [Lower, Upper); a nil bound is unbounded on that
// side. Categorical buckets match any of Values exactly.
type BucketDef struct {
	Label  string   `yaml:"label" validate:"required"`
	Lower  *float64 `yaml:"lower"`
	Upper  *float64 `yaml:"upper"`
	Values []string `yaml:"values"`
}

// AggregateSpec is one aggregate column of a stratification table
type AggregateSpec struct {
	Name        string `yaml:"name" validate:"required"`
	Field       string `yaml:"field" validate:"required"`
	Op          string `yaml:"op" validate:"required,oneof=sum wavg"`
	WeightField string `yaml:"weight_field" validate:"required_if=Op wavg"`
}

// DimensionSpec declares one stratification: the field to bucket on, the
// buckets, and the aggregate columns. Records that are missing the field or
// fall outside every bucket land in an overflow bucket named OverflowLabel,
// so bucket counts always sum to the record count.
type DimensionSpec struct {
	Name          string          `yaml:"name" validate:"required"`
	Field         string          `yaml:"field" validate:"required"`
	Kind          string          `yaml:"kind" validate:"required,oneof=range categorical"`
	Buckets       []BucketDef     `yaml:"buckets" validate:"required,min=1,dive"`
	OverflowLabel string          `yaml:"overflow_label"`
	Aggregates    []AggregateSpec `yaml:"aggregates" validate:"dive"`
}

// DefaultOverflowLabel names the overflow bucket when a spec does not
const DefaultOverflowLabel = "Other/Missing"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the structural tags and then the dimension invariants:
// range buckets must be mutually exclusive with no gaps between declared
// bounds, and categorical buckets must not claim the same value twice.
func (d *DimensionSpec) Validate() error {
	if err := validate.Struct(d); err != nil {
		return errors.NewConfigError(fmt.Sprintf("dimension %q: %v", d.Name, err))
	}
	switch d.Kind {
	case KindRange:
		return d.validateRangeBuckets()
	case KindCategorical:
		return d.validateCategoricalBuckets()
	}
	return nil
}

func (d *DimensionSpec) validateRangeBuckets() error {
	for i, b := range d.Buckets {
		if len(b.Values) > 0 {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q bucket %q: range buckets must not list values", d.Name, b.Label))
		}
		if b.Lower != nil && b.Upper != nil && *b.Lower >= *b.Upper {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q bucket %q: lower %g not below upper %g", d.Name, b.Label, *b.Lower, *b.Upper))
		}
		if i == 0 {
			continue
		}
		prev := d.Buckets[i-1]
		if prev.Upper == nil {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q: bucket %q is unbounded above but not last", d.Name, prev.Label))
		}
		if b.Lower == nil || *b.Lower != *prev.Upper {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q: bucket %q does not start where %q ends", d.Name, b.Label, prev.Label))
		}
	}
	return nil
}

func (d *DimensionSpec) validateCategoricalBuckets() error {
	seen := make(map[string]string)
	for _, b := range d.Buckets {
		if b.Lower != nil || b.Upper != nil {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q bucket %q: categorical buckets must not set bounds", d.Name, b.Label))
		}
		if len(b.Values) == 0 {
			return errors.NewConfigError(fmt.Sprintf(
				"dimension %q bucket %q: categorical bucket lists no values", d.Name, b.Label))
		}
		for _, v := range b.Values {
			if other, dup := seen[v]; dup {
				return errors.NewConfigError(fmt.Sprintf(
					"dimension %q: value %q claimed by both %q and %q", d.Name, v, other, b.Label))
			}
			seen[v] = b.Label
		}
	}
	return nil
}

// overflow returns the label for records no declared bucket claims
func (d *DimensionSpec) overflow() string {
	if d.OverflowLabel != "" {
		return d.OverflowLabel
	}
	return DefaultOverflowLabel
}

// SummaryRow is one bucket's line of a stratification table
type SummaryRow struct {
	Label  string    `json:"label"`
	Count  int       `json:"count"`
	Values []float64 `json:"values"`
}

// SummaryTable is one completed stratification: bucket rows in declaration
// order with the overflow bucket last, aggregate columns in spec order.
type SummaryTable struct {
	Dimension string       `json:"dimension"`
	Field     string       `json:"field"`
	Columns   []string     `json:"columns"`
	Rows      []SummaryRow `json:"rows"`
}

// TotalCount sums bucket counts; always equals the summarized record count
func (t *SummaryTable) TotalCount() int {
	n := 0
	for _, row := range t.Rows {
		n += row.Count
	}
	return n
}

// Row looks up a bucket row by label
func (t *SummaryTable) Row(label string) (SummaryRow, bool) {
	for _, row := range t.Rows {
		if row.Label == label {
			return row, true
		}
	}
	return SummaryRow{}, false
}
