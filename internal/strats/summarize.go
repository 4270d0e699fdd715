package strats

import (
	"math"

	"tapecheck/internal/tape"
)

// accumulator collects one bucket's running aggregate state
type accumulator struct {
	count int
	sums  []float64
	// wavg keeps weighted numerator and weight denominator per column
	num []float64
	den []float64
}

func newAccumulator(aggs []AggregateSpec) *accumulator {
	return &accumulator{
		sums: make([]float64, len(aggs)),
		num:  make([]float64, len(aggs)),
		den:  make([]float64, len(aggs)),
	}
}

// add folds one record into the bucket. A record always increments the
// count; it contributes to an aggregate column only when the needed fields
// are present, and to a weighted average only when the weight is non-zero.
func (a *accumulator) add(rec tape.Record, aggs []AggregateSpec) {
	a.count++
	for i, agg := range aggs {
		v, ok := rec.Float(agg.Field)
		if !ok {
			continue
		}
		switch agg.Op {
		case OpSum:
			a.sums[i] += v
		case OpWavg:
			w, ok := rec.Float(agg.WeightField)
			if !ok || w == 0 {
				continue
			}
			a.num[i] += v * w
			a.den[i] += w
		}
	}
}

// values finalizes the aggregate columns. A weighted average over an empty
// or zero-weight bucket is reported as 0.
func (a *accumulator) values(aggs []AggregateSpec) []float64 {
	out := make([]float64, len(aggs))
	for i, agg := range aggs {
		switch agg.Op {
		case OpSum:
			out[i] = a.sums[i]
		case OpWavg:
			if a.den[i] != 0 {
				out[i] = a.num[i] / a.den[i]
			}
		}
	}
	return out
}

// Summarize buckets the records along the dimension and computes its
// aggregate columns. Every record lands in exactly one bucket, with records
// missing the field or outside every declared bucket collected in the
// overflow bucket, so the table's counts sum to len(records). Summarize is
// read-only over the records and deterministic for a given input order.
func Summarize(records []tape.Record, dim DimensionSpec) (*SummaryTable, error) {
	if err := dim.Validate(); err != nil {
		return nil, err
	}

	accs := make([]*accumulator, len(dim.Buckets)+1)
	for i := range accs {
		accs[i] = newAccumulator(dim.Aggregates)
	}
	overflowIdx := len(dim.Buckets)

	for _, rec := range records {
		idx := overflowIdx
		switch dim.Kind {
		case KindRange:
			if v, ok := rec.Float(dim.Field); ok && !math.IsNaN(v) {
				if i, found := rangeBucket(dim.Buckets, v); found {
					idx = i
				}
			}
		case KindCategorical:
			if s, ok := rec.Text(dim.Field); ok {
				if i, found := categoricalBucket(dim.Buckets, s); found {
					idx = i
				}
			}
		}
		accs[idx].add(rec, dim.Aggregates)
	}

	table := &SummaryTable{
		Dimension: dim.Name,
		Field:     dim.Field,
		Columns:   make([]string, len(dim.Aggregates)),
		Rows:      make([]SummaryRow, 0, len(accs)),
	}
	for i, agg := range dim.Aggregates {
		table.Columns[i] = agg.Name
	}
	for i, b := range dim.Buckets {
		table.Rows = append(table.Rows, SummaryRow{
			Label:  b.Label,
			Count:  accs[i].count,
			Values: accs[i].values(dim.Aggregates),
		})
	}
	table.Rows = append(table.Rows, SummaryRow{
		Label:  dim.overflow(),
		Count:  accs[overflowIdx].count,
		Values: accs[overflowIdx].values(dim.Aggregates),
	})
	return table, nil
}

// SummarizeAll runs every dimension over the same records, in order
func SummarizeAll(records []tape.Record, dims []DimensionSpec) ([]*SummaryTable, error) {
	tables := make([]*SummaryTable, 0, len(dims))
	for _, dim := range dims {
		t, err := Summarize(records, dim)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, nil
}

// rangeBucket finds the bucket whose half-open interval [lower, upper)
// contains v.
func rangeBucket(buckets []BucketDef, v float64) (int, bool) {
	for i, b := range buckets {
		if b.Lower != nil && v < *b.Lower {
			continue
		}
		if b.Upper != nil && v >= *b.Upper {
			continue
		}
		return i, true
	}
	return 0, false
}

// categoricalBucket finds the bucket claiming the exact value
func categoricalBucket(buckets []BucketDef, s string) (int, bool) {
	for i, b := range buckets {
		for _, v := range b.Values {
			if v == s {
				return i, true
			}
		}
	}
	return 0, false
}
