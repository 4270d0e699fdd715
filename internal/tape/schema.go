package tape

func fptr(f float64) *float64 { return &f }

// LoanTapeSchema declares the standard residential loan tape layout: every
// column the rule catalogue and the default stratifications reference, with
// expected types and domain constraints. Columns are matched against
// spreadsheet headers via NormalizeColumn, so header punctuation and casing
// do not matter.
func LoanTapeSchema() *Schema {
	s, err := NewSchema(
		Field{Name: "loan_number", Type: TypeString, Required: true},
		Field{Name: "originator", Type: TypeString, Required: true},
		Field{Name: "primary_servicer", Type: TypeString, Required: true},
		Field{Name: "servicing_fee", Type: TypeDecimal, Required: true, Min: fptr(0.0005), Max: fptr(0.005)},
		Field{Name: "channel", Type: TypeInteger, Required: true, Enum: []string{"1", "2", "5"}},

		Field{Name: "amortization_type", Type: TypeInteger, Required: true, Enum: []string{"1", "2"}},
		Field{Name: "interest_type_indicator", Type: TypeInteger, Required: true},
		Field{Name: "lien_position", Type: TypeInteger, Required: true, Enum: []string{"1", "2"}},
		Field{Name: "heloc_indicator", Type: TypeInteger, Required: true},
		Field{Name: "loan_purpose", Type: TypeInteger, Required: true, Enum: []string{"3", "6", "7", "9", "10"}},
		Field{Name: "cash_out_amount", Type: TypeDecimal, Required: true},
		Field{Name: "escrow_indicator", Type: TypeBoolean, Required: true},

		Field{Name: "origination_date", Type: TypeDate, Required: true},
		Field{Name: "first_payment_date_of_loan", Type: TypeDate, Required: true},
		Field{Name: "maturity_date", Type: TypeDate, Required: true},
		Field{Name: "application_received_date", Type: TypeDate, Required: true},
		Field{Name: "original_property_valuation_date", Type: TypeDate, Required: true},
		Field{Name: "interest_paid_through_date", Type: TypeDate, Required: false},

		Field{Name: "original_loan_amount", Type: TypeDecimal, Required: true, Min: fptr(10000), Max: fptr(10000000)},
		Field{Name: "current_loan_amount", Type: TypeDecimal, Required: true},
		Field{Name: "original_interest_rate", Type: TypeDecimal, Required: true},
		Field{Name: "current_interest_rate", Type: TypeDecimal, Required: true},
		Field{Name: "gross_margin", Type: TypeDecimal, Required: false},
		Field{Name: "lifetime_max_rate_ceiling", Type: TypeDecimal, Required: false},
		Field{Name: "lifetime_min_rate_floor", Type: TypeDecimal, Required: false},
		Field{Name: "original_amortization_term", Type: TypeInteger, Required: true},
		Field{Name: "original_term_to_maturity", Type: TypeInteger, Required: true},
		Field{Name: "current_payment_amount_due", Type: TypeDecimal, Required: true},
		Field{Name: "current_other_monthly_payment", Type: TypeDecimal, Required: true},
		Field{Name: "buy_down_period", Type: TypeInteger, Required: false},

		Field{Name: "original_appraised_property_value", Type: TypeDecimal, Required: true},
		Field{Name: "sales_price", Type: TypeDecimal, Required: false},
		Field{Name: "original_ltv", Type: TypeDecimal, Required: true},
		Field{Name: "original_cltv", Type: TypeDecimal, Required: true},
		Field{Name: "junior_mortgage_balance", Type: TypeDecimal, Required: false},
		Field{Name: "property_type", Type: TypeInteger, Required: true},
		Field{Name: "occupancy", Type: TypeInteger, Required: true},
		Field{Name: "city", Type: TypeString, Required: true},
		Field{Name: "state", Type: TypeString, Required: true},
		Field{Name: "postal_code", Type: TypeString, Required: true},

		Field{Name: "original_primary_borrower_fico", Type: TypeInteger, Required: true, Min: fptr(350), Max: fptr(950)},
		Field{Name: "fico_model_used", Type: TypeInteger, Required: true, Enum: []string{"1", "2", "3", "99"}},
		Field{Name: "originator_dti", Type: TypeDecimal, Required: true, Min: fptr(0), Max: fptr(0.6)},
		Field{Name: "monthly_debt_all_borrowers", Type: TypeDecimal, Required: true},
		Field{Name: "total_number_of_borrowers", Type: TypeInteger, Required: true, Min: fptr(1)},
		Field{Name: "self_employment_flag", Type: TypeInteger, Required: true, Enum: []string{"0", "1", "99"}},
		Field{Name: "length_of_employment_borrower", Type: TypeDecimal, Required: true},
		Field{Name: "years_in_home", Type: TypeDecimal, Required: true},
		Field{Name: "liquid_cash_reserves", Type: TypeDecimal, Required: true},

		Field{Name: "primary_borrower_wage_income", Type: TypeDecimal, Required: true},
		Field{Name: "co_borrower_wage_income", Type: TypeDecimal, Required: true},
		Field{Name: "primary_borrower_other_income", Type: TypeDecimal, Required: true},
		Field{Name: "co_borrower_other_income", Type: TypeDecimal, Required: true},
		Field{Name: "all_borrower_wage_income", Type: TypeDecimal, Required: true},
		Field{Name: "all_borrower_total_income", Type: TypeDecimal, Required: true},

		Field{Name: "months_bankruptcy", Type: TypeInteger, Required: false},
		Field{Name: "months_foreclosure", Type: TypeInteger, Required: false},
	)
	if err != nil {
		// the built-in layout has unique names; reaching here is a programming error
		panic(err)
	}
	return s
}
