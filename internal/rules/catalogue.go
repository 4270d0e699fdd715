package rules

import (
	"fmt"
	"math"
	"strings"
	"time"

	"tapecheck/internal/tape"
)

// Params carries the shared, named tolerances for the loan tape catalogue.
// Rules never hard-code their own tolerance: numeric comparisons go through
// these values so one configuration governs the whole catalogue.
type Params struct {
	// Epsilon is the absolute currency tolerance for balance and income sums
	Epsilon float64
	// RelativeTolerance is the tolerance for ratio consistency checks (DTI, LTV)
	RelativeTolerance float64
	// PoolBalance is the stated pool balance the tape must sum to; 0 disables
	// the pool-level check
	PoolBalance float64
	// AsOf anchors staleness checks; zero disables them so results do not
	// depend on the wall clock
	AsOf time.Time
}

// DefaultParams returns the standard catalogue tolerances
func DefaultParams() Params {
	return Params{
		Epsilon:           0.01,
		RelativeTolerance: 0.0001,
	}
}

// approxEqual compares within an absolute tolerance
func approxEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

// NewLoanTapeRegistry builds the standard residential loan tape rule set.
// Rules are registered in catalogue order, which fixes report ordering.
func NewLoanTapeRegistry(schema *tape.Schema, p Params) *Registry {
	reg := NewRegistry()

	reg.MustRegister(requiredFieldsRule(schema))
	reg.MustRegister(loanNumberLengthRule())

	reg.MustRegister(ficoRangeRule())
	reg.MustRegister(ficoModelRangeRule())
	reg.MustRegister(ficoAtOrBelow660Rule())

	reg.MustRegister(dtiRangeRule())
	reg.MustRegister(dtiConsistencyRule(p))
	reg.MustRegister(monthlyDebtPopulatedRule())
	reg.MustRegister(totalIncomePositiveRule())
	reg.MustRegister(totalIncomeSumRule(p))
	reg.MustRegister(wageIncomeSumRule(p))
	reg.MustRegister(negativeIncomesRule())

	reg.MustRegister(enumCodeRule("channel-domain", "channel",
		"Channel must be 1 (Retail), 2 (Broker) or 5 (Correspondent)", 1, 2, 5))
	reg.MustRegister(enumCodeRule("amortization-type-domain", "amortization_type",
		"Amortization Type must be 1 (Fixed) or 2 (Adjustable)", 1, 2))
	reg.MustRegister(enumCodeRule("lien-position-domain", "lien_position",
		"Lien Position must be 1 or 2", 1, 2))
	reg.MustRegister(enumCodeRule("loan-purpose-domain", "loan_purpose",
		"Loan Purpose must be one of 3, 6, 7, 9, 10", 3, 6, 7, 9, 10))
	reg.MustRegister(enumCodeRule("property-type-domain", "property_type",
		"Property Type must be a residential code 1-15",
		1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15))
	reg.MustRegister(enumCodeRule("self-employment-domain", "self_employment_flag",
		"Self-employment Flag must be 0, 1 or 99", 0, 1, 99))
	reg.MustRegister(enumCodeRule("interest-type-indicator", "interest_type_indicator",
		"Interest Type Indicator must be 2", 2))
	reg.MustRegister(helocIndicatorZeroRule())

	reg.MustRegister(borrowerCountRule())
	reg.MustRegister(borrowerCountOver4Rule())
	reg.MustRegister(stateLengthRule())
	reg.MustRegister(zipCodeRule())
	reg.MustRegister(servicingFeeRangeRule())

	reg.MustRegister(originalLoanAmountRangeRule())
	reg.MustRegister(scheduledUPBRule(p))
	reg.MustRegister(appraisedValueFloorRule())
	reg.MustRegister(appraisedValueCeilingRule())
	reg.MustRegister(appraisedVsCurrentBalanceRule())
	reg.MustRegister(ltvConsistencyRule(p))
	reg.MustRegister(cltvNotBelowLTVRule())
	reg.MustRegister(cltvComponentsRule(p))

	reg.MustRegister(cashOutVsPurposeRule())
	reg.MustRegister(refiCashOutThresholdRule())
	reg.MustRegister(largeCashOutRule())

	reg.MustRegister(firstPaymentDateRule())
	reg.MustRegister(firstPaymentBeforeMaturityRule())
	reg.MustRegister(maturityFirstOfMonthRule())
	reg.MustRegister(applicationDateRule(p))
	reg.MustRegister(applicationNoteGapRule())
	reg.MustRegister(valuationAgeRule())
	reg.MustRegister(valuationAfterOriginationRule())
	reg.MustRegister(appraisalRecencyRule())
	reg.MustRegister(termConsistencyRule())

	reg.MustRegister(armFieldsRequiredRule())
	reg.MustRegister(armFloorVsMarginRule())
	reg.MustRegister(armMarginVsCeilingRule())
	reg.MustRegister(marginBelowFloorRule())
	reg.MustRegister(fixedRateUnchangedRule(p))
	reg.MustRegister(originalRatePopulatedRule())
	reg.MustRegister(buyDownPeriodRule())

	reg.MustRegister(yearsInHomeRule())
	reg.MustRegister(purchaseWithTenureRule())
	reg.MustRegister(refiShortTenureRule())
	reg.MustRegister(negativeReservesRule())
	reg.MustRegister(zeroReservesPrimaryRule())
	reg.MustRegister(monthsBankruptcyEmptyRule())
	reg.MustRegister(monthsForeclosureEmptyRule())

	reg.MustRegister(loanNumberUniqueRule())
	if p.PoolBalance > 0 {
		reg.MustRegister(poolBalanceRule(p))
	}

	return reg
}

// requiredFieldsRule fails a record when any required schema field is blank,
// listing every missing column in the detail.
func requiredFieldsRule(schema *tape.Schema) Rule {
	required := schema.Required()
	return Rule{
		ID:          "required-fields",
		Severity:    SeverityError,
		Description: "All required tape columns must be populated",
		Version:     "1",
		Fields:      required,
		Check: func(rec tape.Record) Outcome {
			var missing []string
			for _, name := range required {
				if rec.Missing(name) {
					missing = append(missing, name)
				}
			}
			if len(missing) > 0 {
				return Failf("missing required fields: %s", strings.Join(missing, ", "))
			}
			return Pass()
		},
	}
}

func loanNumberLengthRule() Rule {
	return Rule{
		ID:          "loan-number-length",
		Severity:    SeverityError,
		Description: "Loan Number must be longer than 4 characters",
		Version:     "1",
		Fields:      []string{"loan_number"},
		Check: func(rec tape.Record) Outcome {
			id, ok := rec.Text("loan_number")
			if !ok {
				return Fail("loan number is blank")
			}
			if len(strings.TrimSpace(id)) <= 4 {
				return Failf("loan number %q has 4 or fewer characters", id)
			}
			return Pass()
		},
	}
}

func ficoRangeRule() Rule {
	return Rule{
		ID:          "fico-range",
		Severity:    SeverityError,
		Description: "Original Primary Borrower FICO must be between 350 and 950",
		Version:     "1",
		Fields:      []string{"original_primary_borrower_fico"},
		Check: func(rec tape.Record) Outcome {
			fico, ok := rec.Float("original_primary_borrower_fico")
			if !ok {
				return Fail("FICO is blank or unparseable")
			}
			if fico == 0 || fico < 350 || fico > 950 {
				return Failf("FICO %g outside 350-950", fico)
			}
			return Pass()
		},
	}
}

// ficoModelRangeRule checks the score against the range of the model that
// produced it: Classic models 350-850, Next Gen and Unknown 150-950.
func ficoModelRangeRule() Rule {
	return Rule{
		ID:          "fico-model-range",
		Severity:    SeverityError,
		Description: "FICO score must be within the range of the scoring model used",
		Version:     "1",
		Fields:      []string{"fico_model_used", "original_primary_borrower_fico"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("fico_model_used") && !rec.Missing("original_primary_borrower_fico")
		},
		Check: func(rec tape.Record) Outcome {
			model, _ := rec.Int("fico_model_used")
			fico, _ := rec.Float("original_primary_borrower_fico")
			switch model {
			case 1, 2:
				if fico < 350 || fico > 850 {
					return Failf("FICO %g outside 350-850 for Classic model %d", fico, model)
				}
			case 3, 99:
				if fico < 150 || fico > 950 {
					return Failf("FICO %g outside 150-950 for model %d", fico, model)
				}
			default:
				return Failf("unknown FICO model %d", model)
			}
			return Pass()
		},
	}
}

func ficoAtOrBelow660Rule() Rule {
	return Rule{
		ID:          "fico-at-or-below-660",
		Severity:    SeverityInfo,
		Description: "Flag borrowers with FICO at or below 660",
		Version:     "1",
		Fields:      []string{"original_primary_borrower_fico"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_primary_borrower_fico")
		},
		Check: func(rec tape.Record) Outcome {
			fico, _ := rec.Float("original_primary_borrower_fico")
			if fico <= 660 {
				return Failf("FICO %g at or below 660", fico)
			}
			return Pass()
		},
	}
}

func dtiRangeRule() Rule {
	return Rule{
		ID:          "dti-range",
		Severity:    SeverityError,
		Description: "Originator DTI must be greater than 0 and at most 0.6",
		Version:     "1",
		Fields:      []string{"originator_dti"},
		Check: func(rec tape.Record) Outcome {
			dti, ok := rec.Float("originator_dti")
			if !ok {
				return Fail("DTI is blank or unparseable")
			}
			if dti <= 0 || dti > 0.6 {
				return Failf("DTI %g outside (0, 0.6]", dti)
			}
			return Pass()
		},
	}
}

// dtiConsistencyRule recomputes DTI as monthly debt over total income and
// compares it with the reported value.
func dtiConsistencyRule(p Params) Rule {
	return Rule{
		ID:          "dti-consistency",
		Severity:    SeverityError,
		Description: "Reported DTI must match monthly debt divided by total income",
		Version:     "1",
		Fields:      []string{"originator_dti", "monthly_debt_all_borrowers", "all_borrower_total_income"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("originator_dti") &&
				!rec.Missing("monthly_debt_all_borrowers") &&
				!rec.Missing("all_borrower_total_income")
		},
		Check: func(rec tape.Record) Outcome {
			dti, _ := rec.Float("originator_dti")
			debt, _ := rec.Float("monthly_debt_all_borrowers")
			income, _ := rec.Float("all_borrower_total_income")
			if income == 0 {
				return Fail("total income is zero, DTI undefined")
			}
			calc := debt / income
			if !approxEqual(dti, calc, p.RelativeTolerance) {
				return Failf("reported DTI %g differs from calculated %g", dti, calc)
			}
			return Pass()
		},
	}
}

func monthlyDebtPopulatedRule() Rule {
	return Rule{
		ID:          "monthly-debt-populated",
		Severity:    SeverityError,
		Description: "Monthly Debt All Borrowers must be populated and non-zero",
		Version:     "1",
		Fields:      []string{"monthly_debt_all_borrowers"},
		Check: func(rec tape.Record) Outcome {
			debt, ok := rec.Float("monthly_debt_all_borrowers")
			if !ok || debt == 0 {
				return Fail("monthly debt is blank or zero")
			}
			return Pass()
		},
	}
}

func totalIncomePositiveRule() Rule {
	return Rule{
		ID:          "total-income-positive",
		Severity:    SeverityError,
		Description: "All Borrower Total Income must be greater than zero",
		Version:     "1",
		Fields:      []string{"all_borrower_total_income"},
		Check: func(rec tape.Record) Outcome {
			income, ok := rec.Float("all_borrower_total_income")
			if !ok {
				return Fail("total income is blank or unparseable")
			}
			if income <= 0 {
				return Failf("total income %g is not positive", income)
			}
			return Pass()
		},
	}
}

// totalIncomeSumRule checks that the four income components sum to the
// reported all-borrower total within the currency tolerance.
func totalIncomeSumRule(p Params) Rule {
	components := []string{
		"primary_borrower_wage_income", "co_borrower_wage_income",
		"primary_borrower_other_income", "co_borrower_other_income",
	}
	return Rule{
		ID:          "total-income-sum",
		Severity:    SeverityError,
		Description: "Income components must sum to All Borrower Total Income",
		Version:     "1",
		Fields:      append(append([]string{}, components...), "all_borrower_total_income"),
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("all_borrower_total_income")
		},
		Check: func(rec tape.Record) Outcome {
			var sum float64
			for _, f := range components {
				if v, ok := rec.Float(f); ok {
					sum += v
				}
			}
			total, _ := rec.Float("all_borrower_total_income")
			if !approxEqual(sum, total, p.Epsilon) {
				return Failf("components sum to %.2f but total income is %.2f", sum, total)
			}
			return Pass()
		},
	}
}

func wageIncomeSumRule(p Params) Rule {
	return Rule{
		ID:          "wage-income-sum",
		Severity:    SeverityError,
		Description: "Borrower and co-borrower wages must sum to All Borrower Wage Income",
		Version:     "1",
		Fields:      []string{"primary_borrower_wage_income", "co_borrower_wage_income", "all_borrower_wage_income"},
		Check: func(rec tape.Record) Outcome {
			abw, ok := rec.Float("all_borrower_wage_income")
			if !ok {
				return Fail("all borrower wage income is blank")
			}
			var sum float64
			if v, ok := rec.Float("primary_borrower_wage_income"); ok {
				sum += v
			}
			if v, ok := rec.Float("co_borrower_wage_income"); ok {
				sum += v
			}
			if !approxEqual(sum, abw, p.Epsilon) {
				return Failf("wages sum to %.2f but all borrower wage income is %.2f", sum, abw)
			}
			return Pass()
		},
	}
}

func negativeIncomesRule() Rule {
	incomeFields := []string{
		"primary_borrower_wage_income", "co_borrower_wage_income",
		"primary_borrower_other_income", "co_borrower_other_income",
		"all_borrower_wage_income", "all_borrower_total_income",
	}
	return Rule{
		ID:          "negative-incomes",
		Severity:    SeverityWarning,
		Description: "No income field may be negative",
		Version:     "1",
		Fields:      incomeFields,
		Check: func(rec tape.Record) Outcome {
			var negative []string
			for _, f := range incomeFields {
				if v, ok := rec.Float(f); ok && v < 0 {
					negative = append(negative, fmt.Sprintf("%s=%g", f, v))
				}
			}
			if len(negative) > 0 {
				return Failf("negative income values: %s", strings.Join(negative, ", "))
			}
			return Pass()
		},
	}
}

// enumCodeRule builds a domain check for an integer-coded column
func enumCodeRule(id, field, description string, allowed ...int64) Rule {
	set := make(map[int64]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return Rule{
		ID:          id,
		Severity:    SeverityError,
		Description: description,
		Version:     "1",
		Fields:      []string{field},
		Check: func(rec tape.Record) Outcome {
			code, ok := rec.Int(field)
			if !ok {
				return Failf("%s is blank or unparseable", field)
			}
			if !set[code] {
				return Failf("%s code %d is not an allowed value", field, code)
			}
			return Pass()
		},
	}
}

func helocIndicatorZeroRule() Rule {
	return Rule{
		ID:          "heloc-indicator-zero",
		Severity:    SeverityError,
		Description: "HELOC Indicator must be 0",
		Version:     "1",
		Fields:      []string{"heloc_indicator"},
		Check: func(rec tape.Record) Outcome {
			v, ok := rec.Float("heloc_indicator")
			if !ok {
				return Fail("HELOC indicator is blank")
			}
			if v != 0 {
				return Failf("HELOC indicator is %g, expected 0", v)
			}
			return Pass()
		},
	}
}

func borrowerCountRule() Rule {
	return Rule{
		ID:          "borrower-count",
		Severity:    SeverityError,
		Description: "Total Number of Borrowers must be at least 1",
		Version:     "1",
		Fields:      []string{"total_number_of_borrowers"},
		Check: func(rec tape.Record) Outcome {
			n, ok := rec.Float("total_number_of_borrowers")
			if !ok || n < 1 {
				return Fail("borrower count is blank or less than 1")
			}
			return Pass()
		},
	}
}

func borrowerCountOver4Rule() Rule {
	return Rule{
		ID:          "borrower-count-over-4",
		Severity:    SeverityWarning,
		Description: "Flag loans with more than 4 borrowers",
		Version:     "1",
		Fields:      []string{"total_number_of_borrowers"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("total_number_of_borrowers")
		},
		Check: func(rec tape.Record) Outcome {
			n, _ := rec.Float("total_number_of_borrowers")
			if n > 4 {
				return Failf("%g borrowers on one loan", n)
			}
			return Pass()
		},
	}
}

func stateLengthRule() Rule {
	return Rule{
		ID:          "state-code",
		Severity:    SeverityError,
		Description: "State must be a two-letter code",
		Version:     "1",
		Fields:      []string{"state"},
		Check: func(rec tape.Record) Outcome {
			st, ok := rec.Text("state")
			if !ok || len(strings.TrimSpace(st)) != 2 {
				return Failf("state %q is not a two-letter code", st)
			}
			return Pass()
		},
	}
}

func zipCodeRule() Rule {
	return Rule{
		ID:          "zip-code",
		Severity:    SeverityError,
		Description: "Postal Code must be 5 digits",
		Version:     "1",
		Fields:      []string{"postal_code"},
		Check: func(rec tape.Record) Outcome {
			zip, ok := rec.Text("postal_code")
			if !ok {
				return Fail("postal code is blank")
			}
			zip = strings.TrimSpace(zip)
			// leading zeros are often lost in spreadsheets; pad short numerics
			if len(zip) < 5 && strings.Trim(zip, "0123456789") == "" && zip != "" {
				zip = strings.Repeat("0", 5-len(zip)) + zip
			}
			if len(zip) != 5 {
				return Failf("postal code %q is not 5 digits", zip)
			}
			for _, ch := range zip {
				if ch < '0' || ch > '9' {
					return Failf("postal code %q contains non-digits", zip)
				}
			}
			return Pass()
		},
	}
}

func servicingFeeRangeRule() Rule {
	return Rule{
		ID:          "servicing-fee-range",
		Severity:    SeverityError,
		Description: "Servicing Fee must be between 0.0005 and 0.005",
		Version:     "1",
		Fields:      []string{"servicing_fee"},
		Check: func(rec tape.Record) Outcome {
			fee, ok := rec.Float("servicing_fee")
			if !ok || fee == 0 {
				return Fail("servicing fee is blank or zero")
			}
			if fee < 0.0005 || fee > 0.005 {
				return Failf("servicing fee %g outside 0.0005-0.005", fee)
			}
			return Pass()
		},
	}
}

func originalLoanAmountRangeRule() Rule {
	return Rule{
		ID:          "original-loan-amount-range",
		Severity:    SeverityError,
		Description: "Original Loan Amount must be between 10,000 and 10,000,000",
		Version:     "1",
		Fields:      []string{"original_loan_amount"},
		Check: func(rec tape.Record) Outcome {
			amt, ok := rec.Float("original_loan_amount")
			if !ok {
				return Fail("original loan amount is blank")
			}
			if amt < 10000 || amt > 10000000 {
				return Failf("original loan amount %.2f outside 10,000-10,000,000", amt)
			}
			return Pass()
		},
	}
}

// scheduledUPBRule checks the current balance is populated and has not grown
// past the original balance.
func scheduledUPBRule(p Params) Rule {
	return Rule{
		ID:          "scheduled-upb",
		Severity:    SeverityError,
		Description: "Current Loan Amount must be non-zero and not exceed Original Loan Amount",
		Version:     "1",
		Fields:      []string{"current_loan_amount", "original_loan_amount"},
		Check: func(rec tape.Record) Outcome {
			cur, ok := rec.Float("current_loan_amount")
			if !ok || cur == 0 {
				return Fail("current loan amount is blank or zero")
			}
			orig, ok := rec.Float("original_loan_amount")
			if !ok {
				return NotApplicable()
			}
			if cur > orig+p.Epsilon {
				return Failf("current balance %.2f exceeds original %.2f", cur, orig)
			}
			return Pass()
		},
	}
}

func appraisedValueFloorRule() Rule {
	return Rule{
		ID:          "appraised-value-floor",
		Severity:    SeverityError,
		Description: "Original Appraised Property Value must exceed 10,000",
		Version:     "1",
		Fields:      []string{"original_appraised_property_value"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_appraised_property_value")
		},
		Check: func(rec tape.Record) Outcome {
			apv, _ := rec.Float("original_appraised_property_value")
			if apv <= 10000 {
				return Failf("appraised value %.2f at or below 10,000", apv)
			}
			return Pass()
		},
	}
}

func appraisedValueCeilingRule() Rule {
	return Rule{
		ID:          "appraised-value-ceiling",
		Severity:    SeverityWarning,
		Description: "Flag appraised values over 8,000,000",
		Version:     "1",
		Fields:      []string{"original_appraised_property_value"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_appraised_property_value")
		},
		Check: func(rec tape.Record) Outcome {
			apv, _ := rec.Float("original_appraised_property_value")
			if apv > 8000000 {
				return Failf("appraised value %.2f over 8,000,000", apv)
			}
			return Pass()
		},
	}
}

func appraisedVsCurrentBalanceRule() Rule {
	return Rule{
		ID:          "appraised-vs-current-balance",
		Severity:    SeverityError,
		Description: "Appraised value must not be below the current loan amount",
		Version:     "1",
		Fields:      []string{"original_appraised_property_value", "current_loan_amount"},
		Check: func(rec tape.Record) Outcome {
			apv, ok := rec.Float("original_appraised_property_value")
			if !ok {
				return Fail("appraised value is blank")
			}
			cur, ok := rec.Float("current_loan_amount")
			if !ok {
				return NotApplicable()
			}
			if apv < cur {
				return Failf("appraised value %.2f below current balance %.2f", apv, cur)
			}
			return Pass()
		},
	}
}

// valueBasis returns the lesser of sales price and appraised value, the
// denominator for LTV-style ratios. Sales price of zero or blank falls back
// to the appraised value alone.
func valueBasis(rec tape.Record) (float64, bool) {
	apv, ok := rec.Float("original_appraised_property_value")
	if !ok {
		return 0, false
	}
	if sp, ok := rec.Float("sales_price"); ok && sp > 0 && sp < apv {
		return sp, true
	}
	return apv, true
}

func ltvConsistencyRule(p Params) Rule {
	return Rule{
		ID:          "ltv-consistency",
		Severity:    SeverityError,
		Description: "Reported Original LTV must match loan amount over property value",
		Version:     "1",
		Fields:      []string{"original_ltv", "original_loan_amount", "sales_price", "original_appraised_property_value"},
		Check: func(rec tape.Record) Outcome {
			ltv, ok := rec.Float("original_ltv")
			if !ok || ltv == 0 {
				return Fail("reported LTV is blank or zero")
			}
			if ltv > 1 {
				return Failf("reported LTV %g exceeds 100%%", ltv)
			}
			amt, ok := rec.Float("original_loan_amount")
			if !ok {
				return NotApplicable()
			}
			basis, ok := valueBasis(rec)
			if !ok || basis == 0 {
				return NotApplicable()
			}
			calc := amt / basis
			if !approxEqual(calc, ltv, p.RelativeTolerance) {
				return Failf("reported LTV %g differs from calculated %g", ltv, calc)
			}
			return Pass()
		},
	}
}

func cltvNotBelowLTVRule() Rule {
	return Rule{
		ID:          "cltv-not-below-ltv",
		Severity:    SeverityError,
		Description: "Original CLTV must be at least Original LTV",
		Version:     "1",
		Fields:      []string{"original_cltv", "original_ltv"},
		Check: func(rec tape.Record) Outcome {
			cltv, ok := rec.Float("original_cltv")
			if !ok {
				return Fail("CLTV is blank")
			}
			ltv, ok := rec.Float("original_ltv")
			if !ok {
				return NotApplicable()
			}
			if cltv < ltv {
				return Failf("CLTV %g below LTV %g", cltv, ltv)
			}
			return Pass()
		},
	}
}

// cltvComponentsRule recomputes CLTV as (loan amount + junior lien) over the
// lesser of sales price and appraised value.
func cltvComponentsRule(p Params) Rule {
	return Rule{
		ID:          "cltv-components",
		Severity:    SeverityError,
		Description: "Reported CLTV must match its components",
		Version:     "1",
		Fields: []string{"original_cltv", "original_loan_amount", "junior_mortgage_balance",
			"sales_price", "original_appraised_property_value"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_cltv") && !rec.Missing("original_loan_amount")
		},
		Check: func(rec tape.Record) Outcome {
			cltv, _ := rec.Float("original_cltv")
			amt, _ := rec.Float("original_loan_amount")
			junior := 0.0
			if j, ok := rec.Float("junior_mortgage_balance"); ok {
				junior = j
			}
			basis, ok := valueBasis(rec)
			if !ok || basis == 0 {
				return NotApplicable()
			}
			calc := (amt + junior) / basis
			if !approxEqual(calc, cltv, p.RelativeTolerance) {
				return Failf("reported CLTV %g differs from calculated %g", cltv, calc)
			}
			return Pass()
		},
	}
}

// cashOutVsPurposeRule cross-checks the cash-out amount against the loan
// purpose: cash-out purposes require one, others allow at most 1% of the
// original amount.
func cashOutVsPurposeRule() Rule {
	cashOutPurposes := map[int64]bool{1: true, 2: true, 3: true, 4: true}
	return Rule{
		ID:          "cash-out-vs-purpose",
		Severity:    SeverityError,
		Description: "Cash Out Amount must be consistent with Loan Purpose",
		Version:     "1",
		Fields:      []string{"cash_out_amount", "loan_purpose", "original_loan_amount"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("loan_purpose")
		},
		Check: func(rec tape.Record) Outcome {
			purpose, _ := rec.Int("loan_purpose")
			cash, hasCash := rec.Float("cash_out_amount")
			zero := !hasCash || cash == 0
			if zero && cashOutPurposes[purpose] {
				return Failf("purpose %d requires a cash out amount", purpose)
			}
			if !zero && !cashOutPurposes[purpose] {
				amt, ok := rec.Float("original_loan_amount")
				if ok && math.Abs(cash) > math.Abs(amt)*0.01 {
					return Failf("cash out %.2f exceeds 1%% of loan amount for purpose %d", cash, purpose)
				}
			}
			return Pass()
		},
	}
}

func refiCashOutThresholdRule() Rule {
	return Rule{
		ID:          "refi-cash-out-threshold",
		Severity:    SeverityError,
		Description: "Rate/term refis may take at most 2,000 cash out; cash-out refis must exceed it",
		Version:     "1",
		Fields:      []string{"loan_purpose", "cash_out_amount"},
		Applies: func(rec tape.Record) bool {
			purpose, ok := rec.Int("loan_purpose")
			return ok && (purpose == 3 || purpose == 9)
		},
		Check: func(rec tape.Record) Outcome {
			purpose, _ := rec.Int("loan_purpose")
			cash, ok := rec.Float("cash_out_amount")
			if !ok {
				return Fail("cash out amount is blank for a refi purpose")
			}
			if purpose == 9 && cash > 2000 {
				return Failf("rate/term refi with cash out %.2f over 2,000", cash)
			}
			if purpose == 3 && cash < 2000 {
				return Failf("cash-out refi with cash out %.2f under 2,000", cash)
			}
			return Pass()
		},
	}
}

func largeCashOutRule() Rule {
	return Rule{
		ID:          "large-cash-out",
		Severity:    SeverityError,
		Description: "Cash Out Amount must not exceed the Original Loan Amount",
		Version:     "1",
		Fields:      []string{"cash_out_amount", "original_loan_amount"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("cash_out_amount") && !rec.Missing("original_loan_amount")
		},
		Check: func(rec tape.Record) Outcome {
			cash, _ := rec.Float("cash_out_amount")
			amt, _ := rec.Float("original_loan_amount")
			if cash > amt {
				return Failf("cash out %.2f exceeds loan amount %.2f", cash, amt)
			}
			return Pass()
		},
	}
}

func firstPaymentDateRule() Rule {
	return Rule{
		ID:          "first-payment-date",
		Severity:    SeverityError,
		Description: "First Payment Date must be on the 1st of a month after origination",
		Version:     "1",
		Fields:      []string{"first_payment_date_of_loan", "origination_date"},
		Check: func(rec tape.Record) Outcome {
			fp, ok := rec.Day("first_payment_date_of_loan")
			if !ok {
				return Fail("first payment date is blank")
			}
			if fp.Day() != 1 {
				return Failf("first payment date %s not on the 1st of the month", fp.Format("2006-01-02"))
			}
			if orig, ok := rec.Day("origination_date"); ok && orig.After(fp) {
				return Failf("origination %s after first payment date %s",
					orig.Format("2006-01-02"), fp.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

func firstPaymentBeforeMaturityRule() Rule {
	return Rule{
		ID:          "first-payment-before-maturity",
		Severity:    SeverityError,
		Description: "First Payment Date must precede Maturity Date",
		Version:     "1",
		Fields:      []string{"first_payment_date_of_loan", "maturity_date"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("first_payment_date_of_loan") && !rec.Missing("maturity_date")
		},
		Check: func(rec tape.Record) Outcome {
			fp, _ := rec.Day("first_payment_date_of_loan")
			mat, _ := rec.Day("maturity_date")
			if fp.After(mat) {
				return Failf("first payment %s after maturity %s",
					fp.Format("2006-01-02"), mat.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

func maturityFirstOfMonthRule() Rule {
	return Rule{
		ID:          "maturity-first-of-month",
		Severity:    SeverityError,
		Description: "Maturity Date must be on the 1st of a month",
		Version:     "1",
		Fields:      []string{"maturity_date"},
		Check: func(rec tape.Record) Outcome {
			mat, ok := rec.Day("maturity_date")
			if !ok {
				return Fail("maturity date is blank")
			}
			if mat.Day() != 1 {
				return Failf("maturity date %s not on the 1st of the month", mat.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

// applicationDateRule checks ordering against the origination date and,
// when an as-of anchor is configured, staleness beyond ten years.
func applicationDateRule(p Params) Rule {
	return Rule{
		ID:          "application-date",
		Severity:    SeverityError,
		Description: "Application Received Date must precede origination and not be stale",
		Version:     "1",
		Fields:      []string{"application_received_date", "origination_date"},
		Check: func(rec tape.Record) Outcome {
			app, ok := rec.Day("application_received_date")
			if !ok {
				return Fail("application received date is blank")
			}
			if orig, ok := rec.Day("origination_date"); ok && app.After(orig) {
				return Failf("application %s after origination %s",
					app.Format("2006-01-02"), orig.Format("2006-01-02"))
			}
			if !p.AsOf.IsZero() && p.AsOf.Year()-app.Year() > 10 {
				return Failf("application date %s more than 10 years before as-of date",
					app.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

func applicationNoteGapRule() Rule {
	return Rule{
		ID:          "application-note-gap",
		Severity:    SeverityError,
		Description: "Application and origination dates must be within 365 days of each other",
		Version:     "1",
		Fields:      []string{"application_received_date", "origination_date"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("application_received_date") && !rec.Missing("origination_date")
		},
		Check: func(rec tape.Record) Outcome {
			app, _ := rec.Day("application_received_date")
			orig, _ := rec.Day("origination_date")
			days := math.Abs(orig.Sub(app).Hours() / 24)
			if days > 365 {
				return Failf("%d days between application and origination", int(days))
			}
			return Pass()
		},
	}
}

func valuationAgeRule() Rule {
	return Rule{
		ID:          "valuation-age",
		Severity:    SeverityError,
		Description: "Property valuation must be less than 180 days before origination",
		Version:     "1",
		Fields:      []string{"original_property_valuation_date", "origination_date"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_property_valuation_date") && !rec.Missing("origination_date")
		},
		Check: func(rec tape.Record) Outcome {
			val, _ := rec.Day("original_property_valuation_date")
			orig, _ := rec.Day("origination_date")
			days := orig.Sub(val).Hours() / 24
			if days >= 180 {
				return Failf("valuation %d days before origination", int(days))
			}
			return Pass()
		},
	}
}

func valuationAfterOriginationRule() Rule {
	return Rule{
		ID:          "valuation-after-origination",
		Severity:    SeverityError,
		Description: "Property valuation must not postdate origination",
		Version:     "1",
		Fields:      []string{"original_property_valuation_date", "origination_date"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_property_valuation_date") && !rec.Missing("origination_date")
		},
		Check: func(rec tape.Record) Outcome {
			val, _ := rec.Day("original_property_valuation_date")
			orig, _ := rec.Day("origination_date")
			if val.After(orig) {
				return Failf("valuation %s after origination %s",
					val.Format("2006-01-02"), orig.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

// appraisalRecencyRule checks the valuation against the interest paid-through
// date: a valuation 24 or more months older than paid-through is stale.
func appraisalRecencyRule() Rule {
	return Rule{
		ID:          "appraisal-recency",
		Severity:    SeverityError,
		Description: "Property valuation must be within 24 months of the interest paid-through date",
		Version:     "1",
		Fields:      []string{"original_property_valuation_date", "interest_paid_through_date"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("original_property_valuation_date") && !rec.Missing("interest_paid_through_date")
		},
		Check: func(rec tape.Record) Outcome {
			val, _ := rec.Day("original_property_valuation_date")
			paid, _ := rec.Day("interest_paid_through_date")
			cutoff := paid.AddDate(0, -24, 0)
			if !val.After(cutoff) {
				return Failf("valuation %s is 24+ months before paid-through date %s",
					val.Format("2006-01-02"), paid.Format("2006-01-02"))
			}
			return Pass()
		},
	}
}

// termConsistencyRule checks the term is in the standard 120-480 month range
// and equals the amortization term (no balloon structures on this program).
func termConsistencyRule() Rule {
	return Rule{
		ID:          "term-consistency",
		Severity:    SeverityError,
		Description: "Original Term to Maturity must be 120-480 months and equal the amortization term",
		Version:     "1",
		Fields:      []string{"original_term_to_maturity", "original_amortization_term"},
		Check: func(rec tape.Record) Outcome {
			term, ok := rec.Float("original_term_to_maturity")
			if !ok || term == 0 {
				return Fail("term to maturity is blank or zero")
			}
			if term < 120 || term > 480 {
				return Failf("term %g outside 120-480 months", term)
			}
			if amort, ok := rec.Float("original_amortization_term"); ok && term != amort {
				return Failf("term %g differs from amortization term %g", term, amort)
			}
			return Pass()
		},
	}
}

// isARM reports whether the record is an adjustable-rate loan
func isARM(rec tape.Record) bool {
	t, ok := rec.Int("amortization_type")
	return ok && t == 2
}

// isFixed reports whether the record is a fixed-rate loan
func isFixed(rec tape.Record) bool {
	t, ok := rec.Int("amortization_type")
	return ok && t == 1
}

func armFieldsRequiredRule() Rule {
	armFields := []string{"gross_margin", "lifetime_max_rate_ceiling", "lifetime_min_rate_floor"}
	return Rule{
		ID:          "arm-fields-required",
		Severity:    SeverityError,
		Description: "Adjustable-rate loans must populate margin, ceiling and floor",
		Version:     "1",
		Fields:      append([]string{"amortization_type"}, armFields...),
		Applies:     isARM,
		Check: func(rec tape.Record) Outcome {
			var missing []string
			for _, f := range armFields {
				if rec.Missing(f) {
					missing = append(missing, f)
				}
			}
			if len(missing) > 0 {
				return Failf("ARM loan missing: %s", strings.Join(missing, ", "))
			}
			return Pass()
		},
	}
}

func armFloorVsMarginRule() Rule {
	return Rule{
		ID:          "arm-floor-vs-margin",
		Severity:    SeverityError,
		Description: "ARM lifetime floor must be populated and at least the gross margin",
		Version:     "1",
		Fields:      []string{"amortization_type", "gross_margin", "lifetime_min_rate_floor"},
		Applies:     isARM,
		Check: func(rec tape.Record) Outcome {
			floor, ok := rec.Float("lifetime_min_rate_floor")
			if !ok || floor == 0 {
				return Fail("lifetime floor is blank or zero on an ARM")
			}
			if margin, ok := rec.Float("gross_margin"); ok && margin > floor {
				return Failf("gross margin %g above lifetime floor %g", margin, floor)
			}
			return Pass()
		},
	}
}

func armMarginVsCeilingRule() Rule {
	return Rule{
		ID:          "arm-margin-vs-ceiling",
		Severity:    SeverityError,
		Description: "ARM gross margin must not exceed the lifetime ceiling",
		Version:     "1",
		Fields:      []string{"amortization_type", "gross_margin", "lifetime_max_rate_ceiling"},
		Applies: func(rec tape.Record) bool {
			return isARM(rec) && !rec.Missing("gross_margin") && !rec.Missing("lifetime_max_rate_ceiling")
		},
		Check: func(rec tape.Record) Outcome {
			margin, _ := rec.Float("gross_margin")
			ceiling, _ := rec.Float("lifetime_max_rate_ceiling")
			if margin > ceiling {
				return Failf("gross margin %g above lifetime ceiling %g", margin, ceiling)
			}
			return Pass()
		},
	}
}

func marginBelowFloorRule() Rule {
	return Rule{
		ID:          "margin-below-floor",
		Severity:    SeverityWarning,
		Description: "Flag loans whose gross margin is below the lifetime floor",
		Version:     "1",
		Fields:      []string{"gross_margin", "lifetime_min_rate_floor"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("gross_margin") && !rec.Missing("lifetime_min_rate_floor")
		},
		Check: func(rec tape.Record) Outcome {
			margin, _ := rec.Float("gross_margin")
			floor, _ := rec.Float("lifetime_min_rate_floor")
			if margin < floor {
				return Failf("gross margin %g below lifetime floor %g", margin, floor)
			}
			return Pass()
		},
	}
}

func fixedRateUnchangedRule(p Params) Rule {
	return Rule{
		ID:          "fixed-rate-unchanged",
		Severity:    SeverityError,
		Description: "Fixed-rate loans must carry their original interest rate",
		Version:     "1",
		Fields:      []string{"amortization_type", "original_interest_rate", "current_interest_rate"},
		Applies:     isFixed,
		Check: func(rec tape.Record) Outcome {
			cur, ok := rec.Float("current_interest_rate")
			if !ok || cur == 0 {
				return Fail("current interest rate is blank or zero on a fixed-rate loan")
			}
			orig, ok := rec.Float("original_interest_rate")
			if !ok {
				return NotApplicable()
			}
			if !approxEqual(cur, orig, p.RelativeTolerance) {
				return Failf("current rate %g differs from original %g on a fixed-rate loan", cur, orig)
			}
			return Pass()
		},
	}
}

func originalRatePopulatedRule() Rule {
	return Rule{
		ID:          "original-rate-populated",
		Severity:    SeverityError,
		Description: "Original interest rate must be non-zero and within the ARM ceiling",
		Version:     "1",
		Fields:      []string{"original_interest_rate", "lifetime_max_rate_ceiling", "amortization_type"},
		Check: func(rec tape.Record) Outcome {
			rate, ok := rec.Float("original_interest_rate")
			if !ok || rate == 0 {
				return Fail("original interest rate is blank or zero")
			}
			if isARM(rec) {
				if ceiling, ok := rec.Float("lifetime_max_rate_ceiling"); ok && rate > ceiling {
					return Failf("original rate %g above lifetime ceiling %g", rate, ceiling)
				}
			}
			return Pass()
		},
	}
}

// buyDownPeriodRule: temporary rate buy-downs are not allowed on this program
func buyDownPeriodRule() Rule {
	return Rule{
		ID:          "buy-down-period",
		Severity:    SeverityError,
		Description: "Buy Down Period must be empty or zero on this program",
		Version:     "1",
		Fields:      []string{"buy_down_period"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("buy_down_period")
		},
		Check: func(rec tape.Record) Outcome {
			period, _ := rec.Float("buy_down_period")
			if period > 0 {
				return Failf("buy down period populated with %g", period)
			}
			return Pass()
		},
	}
}

func yearsInHomeRule() Rule {
	exempt := map[int64]bool{6: true, 7: true, 10: true}
	return Rule{
		ID:          "years-in-home",
		Severity:    SeverityError,
		Description: "Years in Home must be populated for non-purchase owner-occupied loans",
		Version:     "1",
		Fields:      []string{"loan_purpose", "years_in_home", "occupancy"},
		Applies: func(rec tape.Record) bool {
			purpose, ok := rec.Int("loan_purpose")
			if !ok || exempt[purpose] {
				return false
			}
			occ, ok := rec.Int("occupancy")
			return !ok || occ != 2
		},
		Check: func(rec tape.Record) Outcome {
			years, ok := rec.Float("years_in_home")
			if !ok || years < 0 {
				return Fail("years in home is blank or negative")
			}
			return Pass()
		},
	}
}

func purchaseWithTenureRule() Rule {
	return Rule{
		ID:          "purchase-with-tenure",
		Severity:    SeverityError,
		Description: "Purchase loans must not report time already in the home",
		Version:     "1",
		Fields:      []string{"loan_purpose", "years_in_home"},
		Applies: func(rec tape.Record) bool {
			purpose, ok := rec.Int("loan_purpose")
			return ok && purpose == 7
		},
		Check: func(rec tape.Record) Outcome {
			if years, ok := rec.Float("years_in_home"); ok && years > 0 {
				return Failf("purchase loan reports %g years in home", years)
			}
			return Pass()
		},
	}
}

func refiShortTenureRule() Rule {
	return Rule{
		ID:          "refi-short-tenure",
		Severity:    SeverityWarning,
		Description: "Flag owner-occupied refis with under a year in the home",
		Version:     "1",
		Fields:      []string{"loan_purpose", "years_in_home", "occupancy"},
		Applies: func(rec tape.Record) bool {
			purpose, ok := rec.Int("loan_purpose")
			if !ok || (purpose != 3 && purpose != 9) {
				return false
			}
			occ, ok := rec.Int("occupancy")
			return ok && occ == 1
		},
		Check: func(rec tape.Record) Outcome {
			years, ok := rec.Float("years_in_home")
			if ok && years < 1 {
				return Failf("refi with %g years in home", years)
			}
			return Pass()
		},
	}
}

func negativeReservesRule() Rule {
	return Rule{
		ID:          "negative-reserves",
		Severity:    SeverityError,
		Description: "Liquid/Cash Reserves must not be negative",
		Version:     "1",
		Fields:      []string{"liquid_cash_reserves"},
		Applies: func(rec tape.Record) bool {
			return !rec.Missing("liquid_cash_reserves")
		},
		Check: func(rec tape.Record) Outcome {
			res, _ := rec.Float("liquid_cash_reserves")
			if res < 0 {
				return Failf("reserves %.2f are negative", res)
			}
			return Pass()
		},
	}
}

func zeroReservesPrimaryRule() Rule {
	return Rule{
		ID:          "zero-reserves-primary",
		Severity:    SeverityError,
		Description: "Primary and second homes must show liquid reserves",
		Version:     "1",
		Fields:      []string{"liquid_cash_reserves", "occupancy"},
		Applies: func(rec tape.Record) bool {
			occ, ok := rec.Int("occupancy")
			return ok && (occ == 1 || occ == 2) && !rec.Missing("liquid_cash_reserves")
		},
		Check: func(rec tape.Record) Outcome {
			res, _ := rec.Float("liquid_cash_reserves")
			if res == 0 {
				return Fail("zero reserves on a primary or second home")
			}
			return Pass()
		},
	}
}

func monthsBankruptcyEmptyRule() Rule {
	return Rule{
		ID:          "months-bankruptcy-empty",
		Severity:    SeverityError,
		Description: "Months Bankruptcy must be empty on this program",
		Version:     "1",
		Fields:      []string{"months_bankruptcy"},
		Check: func(rec tape.Record) Outcome {
			if !rec.Missing("months_bankruptcy") {
				v, _ := rec.Float("months_bankruptcy")
				return Failf("months bankruptcy populated with %g", v)
			}
			return Pass()
		},
	}
}

func monthsForeclosureEmptyRule() Rule {
	return Rule{
		ID:          "months-foreclosure-empty",
		Severity:    SeverityError,
		Description: "Months Foreclosure must be empty on this program",
		Version:     "1",
		Fields:      []string{"months_foreclosure"},
		Check: func(rec tape.Record) Outcome {
			if !rec.Missing("months_foreclosure") {
				v, _ := rec.Float("months_foreclosure")
				return Failf("months foreclosure populated with %g", v)
			}
			return Pass()
		},
	}
}

// loanNumberUniqueRule is a cross-row rule: every record sharing a duplicated
// loan number gets its own Fail outcome so the report can highlight each one.
func loanNumberUniqueRule() Rule {
	return Rule{
		ID:          "loan-number-unique",
		Severity:    SeverityError,
		Description: "Loan numbers must be unique across the tape",
		Version:     "1",
		Fields:      []string{"loan_number"},
		CheckSet: func(records []tape.Record) []Outcome {
			counts := make(map[string]int, len(records))
			for _, rec := range records {
				counts[rec.ID()]++
			}
			var outcomes []Outcome
			for _, rec := range records {
				if counts[rec.ID()] > 1 {
					outcomes = append(outcomes,
						Failf("loan number %s appears %d times", rec.ID(), counts[rec.ID()]).For(rec.ID()))
				}
			}
			return outcomes
		},
	}
}

// poolBalanceRule is a cross-row rule emitting a single pool-level outcome:
// the sum of current balances must match the stated pool balance within the
// currency tolerance.
func poolBalanceRule(p Params) Rule {
	return Rule{
		ID:          "pool-balance",
		Severity:    SeverityError,
		Description: "Sum of current balances must match the stated pool balance",
		Version:     "1",
		Fields:      []string{"current_loan_amount"},
		CheckSet: func(records []tape.Record) []Outcome {
			var sum float64
			for _, rec := range records {
				if v, ok := rec.Float("current_loan_amount"); ok {
					sum += v
				}
			}
			if !approxEqual(sum, p.PoolBalance, p.Epsilon) {
				return []Outcome{
					Failf("tape sums to %.2f but stated pool balance is %.2f", sum, p.PoolBalance).For("POOL"),
				}
			}
			return []Outcome{Pass().For("POOL")}
		},
	}
}
