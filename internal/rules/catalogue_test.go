package rules

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tapecheck/internal/tape"
)

func date(y int, m time.Month, d int) tape.Value {
	return tape.DateValue(time.Date(y, m, d, 0, 0, 0, 0, time.UTC))
}

// cleanLoan returns the field set of a loan that satisfies the whole
// catalogue: a fixed-rate Texas purchase loan with consistent ratios.
func cleanLoan() map[string]tape.Value {
	return map[string]tape.Value{
		"loan_number":      tape.StringValue("10012345"),
		"originator":       tape.StringValue("Acme Lending"),
		"primary_servicer": tape.StringValue("ServCo"),
		"servicing_fee":    tape.DecimalValue(0.0025),
		"channel":          tape.IntValue(1),

		"amortization_type":       tape.IntValue(1),
		"interest_type_indicator": tape.IntValue(2),
		"lien_position":           tape.IntValue(1),
		"heloc_indicator":         tape.IntValue(0),
		"loan_purpose":            tape.IntValue(7),
		"cash_out_amount":         tape.DecimalValue(0),
		"escrow_indicator":        tape.BoolValue(true),

		"origination_date":                 date(2024, time.January, 15),
		"first_payment_date_of_loan":       date(2024, time.March, 1),
		"maturity_date":                    date(2054, time.March, 1),
		"application_received_date":        date(2023, time.December, 1),
		"original_property_valuation_date": date(2023, time.December, 20),

		"original_loan_amount":          tape.DecimalValue(400000),
		"current_loan_amount":           tape.DecimalValue(398000),
		"original_interest_rate":        tape.DecimalValue(0.065),
		"current_interest_rate":         tape.DecimalValue(0.065),
		"original_amortization_term":    tape.IntValue(360),
		"original_term_to_maturity":     tape.IntValue(360),
		"current_payment_amount_due":    tape.DecimalValue(2528.27),
		"current_other_monthly_payment": tape.DecimalValue(310),

		"original_appraised_property_value": tape.DecimalValue(500000),
		"sales_price":                       tape.DecimalValue(500000),
		"original_ltv":                      tape.DecimalValue(0.8),
		"original_cltv":                     tape.DecimalValue(0.8),
		"property_type":                     tape.IntValue(1),
		"occupancy":                         tape.IntValue(1),
		"city":                              tape.StringValue("Austin"),
		"state":                             tape.StringValue("TX"),
		"postal_code":                       tape.StringValue("73301"),

		"original_primary_borrower_fico": tape.IntValue(740),
		"fico_model_used":                tape.IntValue(2),
		"originator_dti":                 tape.DecimalValue(0.35),
		"monthly_debt_all_borrowers":     tape.DecimalValue(4200),
		"total_number_of_borrowers":      tape.IntValue(2),
		"self_employment_flag":           tape.IntValue(0),
		"length_of_employment_borrower":  tape.DecimalValue(5),
		"years_in_home":                  tape.DecimalValue(0),
		"liquid_cash_reserves":           tape.DecimalValue(25000),

		"primary_borrower_wage_income":  tape.DecimalValue(8000),
		"co_borrower_wage_income":       tape.DecimalValue(3000),
		"primary_borrower_other_income": tape.DecimalValue(500),
		"co_borrower_other_income":      tape.DecimalValue(500),
		"all_borrower_wage_income":      tape.DecimalValue(11000),
		"all_borrower_total_income":     tape.DecimalValue(12000),
	}
}

// loan builds a record from the clean baseline with overrides applied.
// A nil override deletes the field.
func loan(id string, overrides map[string]*tape.Value) tape.Record {
	values := cleanLoan()
	for name, v := range overrides {
		if v == nil {
			delete(values, name)
		} else {
			values[name] = *v
		}
	}
	return tape.NewRecord(id, values)
}

func vp(v tape.Value) *tape.Value { return &v }

// evalAll runs every per-record rule against one record and returns outcomes
// keyed by rule id.
func evalAll(t *testing.T, reg *Registry, rec tape.Record) map[string]Outcome {
	t.Helper()
	out := make(map[string]Outcome)
	for _, rule := range reg.All() {
		if rule.CrossRow() {
			continue
		}
		if !rule.AppliesTo(rec) {
			out[rule.ID] = NotApplicable()
			continue
		}
		out[rule.ID] = rule.Check(rec)
	}
	return out
}

func TestCleanLoanPassesCatalogue(t *testing.T) {
	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	outcomes := evalAll(t, reg, loan("10012345", nil))

	for id, o := range outcomes {
		assert.NotEqual(t, StatusFail, o.Status, "rule %s failed: %s", id, o.Detail)
	}
}

func TestCatalogueFailures(t *testing.T) {
	tests := []struct {
		name      string
		ruleID    string
		overrides map[string]*tape.Value
	}{
		{
			name:   "short loan number",
			ruleID: "loan-number-length",
			overrides: map[string]*tape.Value{
				"loan_number": vp(tape.StringValue("123")),
			},
		},
		{
			name:   "fico below floor",
			ruleID: "fico-range",
			overrides: map[string]*tape.Value{
				"original_primary_borrower_fico": vp(tape.IntValue(300)),
			},
		},
		{
			name:   "classic model score above 850",
			ruleID: "fico-model-range",
			overrides: map[string]*tape.Value{
				"original_primary_borrower_fico": vp(tape.IntValue(900)),
			},
		},
		{
			name:   "dti above cap",
			ruleID: "dti-range",
			overrides: map[string]*tape.Value{
				"originator_dti": vp(tape.DecimalValue(0.65)),
			},
		},
		{
			name:   "dti inconsistent with components",
			ruleID: "dti-consistency",
			overrides: map[string]*tape.Value{
				"originator_dti": vp(tape.DecimalValue(0.50)),
			},
		},
		{
			name:   "income components off by a dollar",
			ruleID: "total-income-sum",
			overrides: map[string]*tape.Value{
				"all_borrower_total_income": vp(tape.DecimalValue(12001)),
			},
		},
		{
			name:   "wage rollup mismatch",
			ruleID: "wage-income-sum",
			overrides: map[string]*tape.Value{
				"all_borrower_wage_income": vp(tape.DecimalValue(10000)),
			},
		},
		{
			name:   "negative co-borrower income",
			ruleID: "negative-incomes",
			overrides: map[string]*tape.Value{
				"co_borrower_other_income": vp(tape.DecimalValue(-100)),
			},
		},
		{
			name:   "unknown channel code",
			ruleID: "channel-domain",
			overrides: map[string]*tape.Value{
				"channel": vp(tape.IntValue(4)),
			},
		},
		{
			name:   "interest type indicator not 2",
			ruleID: "interest-type-indicator",
			overrides: map[string]*tape.Value{
				"interest_type_indicator": vp(tape.IntValue(1)),
			},
		},
		{
			name:   "heloc flagged",
			ruleID: "heloc-indicator-zero",
			overrides: map[string]*tape.Value{
				"heloc_indicator": vp(tape.IntValue(1)),
			},
		},
		{
			name:   "three-letter state",
			ruleID: "state-code",
			overrides: map[string]*tape.Value{
				"state": vp(tape.StringValue("TEX")),
			},
		},
		{
			name:   "alphanumeric zip",
			ruleID: "zip-code",
			overrides: map[string]*tape.Value{
				"postal_code": vp(tape.StringValue("7330A")),
			},
		},
		{
			name:   "servicing fee too high",
			ruleID: "servicing-fee-range",
			overrides: map[string]*tape.Value{
				"servicing_fee": vp(tape.DecimalValue(0.01)),
			},
		},
		{
			name:   "balance grew past original",
			ruleID: "scheduled-upb",
			overrides: map[string]*tape.Value{
				"current_loan_amount": vp(tape.DecimalValue(410000)),
			},
		},
		{
			name:   "appraisal below current balance",
			ruleID: "appraised-vs-current-balance",
			overrides: map[string]*tape.Value{
				"original_appraised_property_value": vp(tape.DecimalValue(300000)),
			},
		},
		{
			name:   "reported ltv does not match components",
			ruleID: "ltv-consistency",
			overrides: map[string]*tape.Value{
				"original_ltv": vp(tape.DecimalValue(0.75)),
			},
		},
		{
			name:   "cltv below ltv",
			ruleID: "cltv-not-below-ltv",
			overrides: map[string]*tape.Value{
				"original_cltv": vp(tape.DecimalValue(0.70)),
			},
		},
		{
			name:   "cash-out refi with trivial cash out",
			ruleID: "refi-cash-out-threshold",
			overrides: map[string]*tape.Value{
				"loan_purpose":    vp(tape.IntValue(3)),
				"cash_out_amount": vp(tape.DecimalValue(500)),
				"years_in_home":   vp(tape.DecimalValue(4)),
			},
		},
		{
			name:   "first payment mid-month",
			ruleID: "first-payment-date",
			overrides: map[string]*tape.Value{
				"first_payment_date_of_loan": vp(date(2024, time.March, 15)),
			},
		},
		{
			name:   "maturity mid-month",
			ruleID: "maturity-first-of-month",
			overrides: map[string]*tape.Value{
				"maturity_date": vp(date(2054, time.March, 15)),
			},
		},
		{
			name:   "application after origination",
			ruleID: "application-date",
			overrides: map[string]*tape.Value{
				"application_received_date": vp(date(2024, time.February, 1)),
			},
		},
		{
			name:   "stale valuation",
			ruleID: "valuation-age",
			overrides: map[string]*tape.Value{
				"original_property_valuation_date": vp(date(2023, time.January, 2)),
			},
		},
		{
			name:   "valuation after origination",
			ruleID: "valuation-after-origination",
			overrides: map[string]*tape.Value{
				"original_property_valuation_date": vp(date(2024, time.February, 2)),
			},
		},
		{
			name:   "term below program minimum",
			ruleID: "term-consistency",
			overrides: map[string]*tape.Value{
				"original_term_to_maturity": vp(tape.IntValue(60)),
			},
		},
		{
			name:   "fixed loan with drifted rate",
			ruleID: "fixed-rate-unchanged",
			overrides: map[string]*tape.Value{
				"current_interest_rate": vp(tape.DecimalValue(0.07)),
			},
		},
		{
			name:   "purchase reporting tenure",
			ruleID: "purchase-with-tenure",
			overrides: map[string]*tape.Value{
				"years_in_home": vp(tape.DecimalValue(3)),
			},
		},
		{
			name:   "negative reserves",
			ruleID: "negative-reserves",
			overrides: map[string]*tape.Value{
				"liquid_cash_reserves": vp(tape.DecimalValue(-500)),
			},
		},
		{
			name:   "zero reserves on a primary home",
			ruleID: "zero-reserves-primary",
			overrides: map[string]*tape.Value{
				"liquid_cash_reserves": vp(tape.DecimalValue(0)),
			},
		},
		{
			name:   "bankruptcy months populated",
			ruleID: "months-bankruptcy-empty",
			overrides: map[string]*tape.Value{
				"months_bankruptcy": vp(tape.IntValue(24)),
			},
		},
		{
			name:   "buy down period populated",
			ruleID: "buy-down-period",
			overrides: map[string]*tape.Value{
				"buy_down_period": vp(tape.IntValue(24)),
			},
		},
		{
			name:   "valuation far behind paid-through",
			ruleID: "appraisal-recency",
			overrides: map[string]*tape.Value{
				"interest_paid_through_date": vp(date(2026, time.January, 1)),
			},
		},
	}

	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			outcomes := evalAll(t, reg, loan("10012345", tt.overrides))
			o, ok := outcomes[tt.ruleID]
			require.True(t, ok, "rule %s not in catalogue", tt.ruleID)
			assert.Equal(t, StatusFail, o.Status, "expected %s to fail, got %s (%s)", tt.ruleID, o.Status, o.Detail)
		})
	}
}

func TestARMRules(t *testing.T) {
	armBase := map[string]*tape.Value{
		"amortization_type":         vp(tape.IntValue(2)),
		"gross_margin":              vp(tape.DecimalValue(0.0275)),
		"lifetime_max_rate_ceiling": vp(tape.DecimalValue(0.115)),
		"lifetime_min_rate_floor":   vp(tape.DecimalValue(0.0275)),
	}

	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())

	t.Run("well-formed arm passes", func(t *testing.T) {
		outcomes := evalAll(t, reg, loan("10012345", armBase))
		for _, id := range []string{"arm-fields-required", "arm-floor-vs-margin", "arm-margin-vs-ceiling", "margin-below-floor"} {
			assert.NotEqual(t, StatusFail, outcomes[id].Status, "rule %s: %s", id, outcomes[id].Detail)
		}
		// fixed-rate rule must not bind on an ARM
		assert.Equal(t, StatusNotApplicable, outcomes["fixed-rate-unchanged"].Status)
	})

	t.Run("arm missing margin", func(t *testing.T) {
		overrides := map[string]*tape.Value{}
		for k, v := range armBase {
			overrides[k] = v
		}
		overrides["gross_margin"] = nil
		outcomes := evalAll(t, reg, loan("10012345", overrides))
		assert.Equal(t, StatusFail, outcomes["arm-fields-required"].Status)
	})

	t.Run("margin below floor is a warning rule", func(t *testing.T) {
		overrides := map[string]*tape.Value{}
		for k, v := range armBase {
			overrides[k] = v
		}
		overrides["gross_margin"] = vp(tape.DecimalValue(0.02))
		outcomes := evalAll(t, reg, loan("10012345", overrides))
		assert.Equal(t, StatusFail, outcomes["margin-below-floor"].Status)

		rule, ok := reg.Get("margin-below-floor")
		require.True(t, ok)
		assert.Equal(t, SeverityWarning, rule.Severity)
	})
}

func TestRefiShortTenureWarning(t *testing.T) {
	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	rec := loan("10012345", map[string]*tape.Value{
		"loan_purpose":    vp(tape.IntValue(9)),
		"cash_out_amount": vp(tape.DecimalValue(0)),
		"years_in_home":   vp(tape.DecimalValue(0.5)),
	})

	outcomes := evalAll(t, reg, rec)
	assert.Equal(t, StatusFail, outcomes["refi-short-tenure"].Status)

	rule, ok := reg.Get("refi-short-tenure")
	require.True(t, ok)
	assert.Equal(t, SeverityWarning, rule.Severity)
}

func TestLoanNumberUniqueRule(t *testing.T) {
	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	rule, ok := reg.Get("loan-number-unique")
	require.True(t, ok)
	require.True(t, rule.CrossRow())

	records := []tape.Record{
		loan("10012345", nil),
		loan("10099999", nil),
		loan("10012345", nil),
	}

	outcomes := rule.CheckSet(records)
	require.Len(t, outcomes, 2, "both records sharing the id must be flagged")
	for _, o := range outcomes {
		assert.Equal(t, StatusFail, o.Status)
		assert.Equal(t, "10012345", o.RecordID)
		assert.Contains(t, o.Detail, "appears 2 times")
	}
}

func TestPoolBalanceRule(t *testing.T) {
	records := []tape.Record{
		loan("10012345", map[string]*tape.Value{"current_loan_amount": vp(tape.DecimalValue(100000))}),
		loan("10012346", map[string]*tape.Value{"current_loan_amount": vp(tape.DecimalValue(250000))}),
	}

	t.Run("matching balance passes", func(t *testing.T) {
		p := DefaultParams()
		p.PoolBalance = 350000
		reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), p)
		rule, ok := reg.Get("pool-balance")
		require.True(t, ok)

		outcomes := rule.CheckSet(records)
		require.Len(t, outcomes, 1)
		assert.Equal(t, StatusPass, outcomes[0].Status)
		assert.Equal(t, "POOL", outcomes[0].RecordID)
	})

	t.Run("mismatch beyond epsilon fails", func(t *testing.T) {
		p := DefaultParams()
		p.PoolBalance = 350000.50
		reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), p)
		rule, _ := reg.Get("pool-balance")

		outcomes := rule.CheckSet(records)
		require.Len(t, outcomes, 1)
		assert.Equal(t, StatusFail, outcomes[0].Status)
	})

	t.Run("not registered without a stated balance", func(t *testing.T) {
		reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
		_, ok := reg.Get("pool-balance")
		assert.False(t, ok)
	})
}

func TestApplicationStalenessNeedsAnchor(t *testing.T) {
	old := map[string]*tape.Value{
		"application_received_date":        vp(date(2010, time.June, 1)),
		"origination_date":                 vp(date(2010, time.July, 15)),
		"first_payment_date_of_loan":       vp(date(2010, time.September, 1)),
		"maturity_date":                    vp(date(2040, time.September, 1)),
		"original_property_valuation_date": vp(date(2010, time.June, 20)),
	}

	t.Run("zero as-of skips staleness", func(t *testing.T) {
		reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
		outcomes := evalAll(t, reg, loan("10012345", old))
		assert.Equal(t, StatusPass, outcomes["application-date"].Status)
	})

	t.Run("anchored run flags stale application", func(t *testing.T) {
		p := DefaultParams()
		p.AsOf = time.Date(2026, time.August, 25, 0, 0, 0, 0, time.UTC)
		reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), p)
		outcomes := evalAll(t, reg, loan("10012345", old))
		assert.Equal(t, StatusFail, outcomes["application-date"].Status)
	})
}

func TestBuyDownPeriodRule(t *testing.T) {
	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())

	t.Run("absent does not bind", func(t *testing.T) {
		outcomes := evalAll(t, reg, loan("10012345", nil))
		assert.Equal(t, StatusNotApplicable, outcomes["buy-down-period"].Status)
	})

	t.Run("explicit zero passes", func(t *testing.T) {
		rec := loan("10012345", map[string]*tape.Value{
			"buy_down_period": vp(tape.IntValue(0)),
		})
		outcomes := evalAll(t, reg, rec)
		assert.Equal(t, StatusPass, outcomes["buy-down-period"].Status)
	})
}

func TestAppraisalRecencyRule(t *testing.T) {
	reg := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())

	t.Run("no paid-through date does not bind", func(t *testing.T) {
		outcomes := evalAll(t, reg, loan("10012345", nil))
		assert.Equal(t, StatusNotApplicable, outcomes["appraisal-recency"].Status)
	})

	t.Run("valuation within 24 months passes", func(t *testing.T) {
		rec := loan("10012345", map[string]*tape.Value{
			"interest_paid_through_date": vp(date(2025, time.June, 1)),
		})
		outcomes := evalAll(t, reg, rec)
		assert.Equal(t, StatusPass, outcomes["appraisal-recency"].Status)
	})

	t.Run("valuation exactly 24 months old fails", func(t *testing.T) {
		// baseline valuation is 2023-12-20
		rec := loan("10012345", map[string]*tape.Value{
			"interest_paid_through_date": vp(date(2025, time.December, 20)),
		})
		outcomes := evalAll(t, reg, rec)
		assert.Equal(t, StatusFail, outcomes["appraisal-recency"].Status)
	})
}

func TestCatalogueDeterministicOrder(t *testing.T) {
	a := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	b := NewLoanTapeRegistry(tape.LoanTapeSchema(), DefaultParams())
	require.Equal(t, a.Len(), b.Len())

	for i, rule := range a.All() {
		assert.Equal(t, rule.ID, b.All()[i].ID, fmt.Sprintf("rule order diverged at %d", i))
	}
}
