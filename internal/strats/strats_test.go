package strats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapecheck/internal/errors"
	"tapecheck/internal/tape"
)

func ficoDimension() DimensionSpec {
	return DimensionSpec{
		Name:  "FICO",
		Field: "original_primary_borrower_fico",
		Kind:  KindRange,
		Buckets: []BucketDef{
			{Label: "< 620", Upper: fp(620)},
			{Label: "620-679", Lower: fp(620), Upper: fp(680)},
			{Label: "680+", Lower: fp(680)},
		},
	}
}

func ficoRecord(id string, fico *float64) tape.Record {
	values := map[string]tape.Value{}
	if fico != nil {
		values["original_primary_borrower_fico"] = tape.DecimalValue(*fico)
	} else {
		values["original_primary_borrower_fico"] = tape.MissingValue(tape.TypeDecimal, "")
	}
	return tape.NewRecord(id, values)
}

func TestSummarizeRangeBucketing(t *testing.T) {
	tests := []struct {
		name     string
		fico     *float64
		expected string
	}{
		{name: "below first boundary", fico: fp(619), expected: "< 620"},
		{name: "lower bound is inclusive", fico: fp(620), expected: "620-679"},
		{name: "upper bound is exclusive", fico: fp(679), expected: "620-679"},
		{name: "boundary value rolls up", fico: fp(680), expected: "680+"},
		{name: "missing goes to overflow", fico: nil, expected: DefaultOverflowLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Summarize([]tape.Record{ficoRecord("L1", tt.fico)}, ficoDimension())
			require.NoError(t, err)

			row, ok := table.Row(tt.expected)
			require.True(t, ok)
			assert.Equal(t, 1, row.Count, "record should land in %q", tt.expected)
			assert.Equal(t, 1, table.TotalCount())
		})
	}
}

func TestSummarizeCountsAlwaysSumToRecordCount(t *testing.T) {
	records := []tape.Record{
		ficoRecord("L1", fp(580)),
		ficoRecord("L2", fp(620)),
		ficoRecord("L3", fp(679)),
		ficoRecord("L4", fp(801)),
		ficoRecord("L5", nil),
	}

	table, err := Summarize(records, ficoDimension())
	require.NoError(t, err)
	assert.Equal(t, len(records), table.TotalCount())

	// rows stay in declaration order with overflow last
	labels := make([]string, len(table.Rows))
	for i, row := range table.Rows {
		labels[i] = row.Label
	}
	assert.Equal(t, []string{"< 620", "620-679", "680+", DefaultOverflowLabel}, labels)
}

func TestSummarizeWeightedAverage(t *testing.T) {
	dim := DimensionSpec{
		Name:  "All",
		Field: "current_interest_rate",
		Kind:  KindRange,
		Buckets: []BucketDef{
			{Label: "all"},
		},
		Aggregates: []AggregateSpec{
			{Name: "WAC", Field: "current_interest_rate", Op: OpWavg, WeightField: "current_loan_amount"},
			{Name: "Balance", Field: "current_loan_amount", Op: OpSum},
		},
	}

	mk := func(id string, rate float64, balance tape.Value) tape.Record {
		return tape.NewRecord(id, map[string]tape.Value{
			"current_interest_rate": tape.DecimalValue(rate),
			"current_loan_amount":   balance,
		})
	}

	records := []tape.Record{
		mk("L1", 5.0, tape.DecimalValue(100)),
		mk("L2", 6.0, tape.DecimalValue(200)),
		mk("L3", 7.0, tape.MissingValue(tape.TypeDecimal, "")),
	}

	table, err := Summarize(records, dim)
	require.NoError(t, err)

	row, ok := table.Row("all")
	require.True(t, ok)
	// the missing-weight record is counted but excluded from the average
	assert.Equal(t, 3, row.Count)
	assert.InDelta(t, (5.0*100+6.0*200)/300, row.Values[0], 1e-9)
	assert.InDelta(t, 300, row.Values[1], 1e-9)
}

func TestSummarizeZeroWeightBucket(t *testing.T) {
	dim := DimensionSpec{
		Name:    "All",
		Field:   "current_interest_rate",
		Kind:    KindRange,
		Buckets: []BucketDef{{Label: "all"}},
		Aggregates: []AggregateSpec{
			{Name: "WAC", Field: "current_interest_rate", Op: OpWavg, WeightField: "current_loan_amount"},
		},
	}
	rec := tape.NewRecord("L1", map[string]tape.Value{
		"current_interest_rate": tape.DecimalValue(6.0),
		"current_loan_amount":   tape.DecimalValue(0),
	})

	table, err := Summarize([]tape.Record{rec}, dim)
	require.NoError(t, err)

	row, _ := table.Row("all")
	assert.Equal(t, 1, row.Count)
	assert.Equal(t, 0.0, row.Values[0], "zero total weight reports 0, not NaN")
}

func TestSummarizeCategorical(t *testing.T) {
	dim := DimensionSpec{
		Name:  "State",
		Field: "state",
		Kind:  KindCategorical,
		Buckets: []BucketDef{
			{Label: "CA", Values: []string{"CA"}},
			{Label: "TX", Values: []string{"TX"}},
		},
		OverflowLabel: "Other",
	}

	mk := func(id, state string) tape.Record {
		return tape.NewRecord(id, map[string]tape.Value{"state": tape.StringValue(state)})
	}
	records := []tape.Record{mk("L1", "CA"), mk("L2", "TX"), mk("L3", "FL"), mk("L4", "CA")}

	table, err := Summarize(records, dim)
	require.NoError(t, err)

	ca, _ := table.Row("CA")
	other, _ := table.Row("Other")
	assert.Equal(t, 2, ca.Count)
	assert.Equal(t, 1, other.Count)
	assert.Equal(t, 4, table.TotalCount())
}

func TestDimensionValidate(t *testing.T) {
	tests := []struct {
		name string
		dim  DimensionSpec
	}{
		{
			name: "missing name",
			dim: DimensionSpec{
				Field: "x", Kind: KindRange,
				Buckets: []BucketDef{{Label: "all"}},
			},
		},
		{
			name: "unknown kind",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: "histogram",
				Buckets: []BucketDef{{Label: "all"}},
			},
		},
		{
			name: "inverted bounds",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: KindRange,
				Buckets: []BucketDef{{Label: "bad", Lower: fp(10), Upper: fp(5)}},
			},
		},
		{
			name: "gap between buckets",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: KindRange,
				Buckets: []BucketDef{
					{Label: "a", Upper: fp(10)},
					{Label: "b", Lower: fp(20)},
				},
			},
		},
		{
			name: "unbounded bucket not last",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: KindRange,
				Buckets: []BucketDef{
					{Label: "a", Lower: fp(0)},
					{Label: "b", Lower: fp(10), Upper: fp(20)},
				},
			},
		},
		{
			name: "categorical value claimed twice",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: KindCategorical,
				Buckets: []BucketDef{
					{Label: "a", Values: []string{"CA", "TX"}},
					{Label: "b", Values: []string{"TX"}},
				},
			},
		},
		{
			name: "wavg without weight field",
			dim: DimensionSpec{
				Name: "d", Field: "x", Kind: KindRange,
				Buckets: []BucketDef{{Label: "all"}},
				Aggregates: []AggregateSpec{
					{Name: "w", Field: "x", Op: OpWavg},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.dim.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
		})
	}
}

func TestDefaultDimensionsAreValid(t *testing.T) {
	dims := DefaultDimensions()
	require.NotEmpty(t, dims)
	for _, d := range dims {
		assert.NoError(t, d.Validate(), "default dimension %q must validate", d.Name)
	}
}

func TestLoadDimensions(t *testing.T) {
	t.Run("valid file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strats.yaml")
		content := `dimensions:
  - name: FICO
    field: original_primary_borrower_fico
    kind: range
    buckets:
      - label: "< 700"
        upper: 700
      - label: "700+"
        lower: 700
    aggregates:
      - name: Balance
        field: current_loan_amount
        op: sum
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		dims, err := LoadDimensions(path)
		require.NoError(t, err)
		require.Len(t, dims, 1)
		assert.Equal(t, "FICO", dims[0].Name)
		require.Len(t, dims[0].Buckets, 2)
		require.NotNil(t, dims[0].Buckets[0].Upper)
		assert.Equal(t, 700.0, *dims[0].Buckets[0].Upper)
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strats.yaml")
		require.NoError(t, os.WriteFile(path, []byte("dimensions: []\n"), 0644))

		_, err := LoadDimensions(path)
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDimensions(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("duplicate dimension names", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "strats.yaml")
		content := `dimensions:
  - name: FICO
    field: a
    kind: range
    buckets:
      - label: all
  - name: FICO
    field: b
    kind: range
    buckets:
      - label: all
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))

		_, err := LoadDimensions(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate dimension")
	})
}
