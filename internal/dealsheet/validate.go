package dealsheet

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var maxProjectMonths = decimal.NewFromInt(120)

// FieldError names an input that failed validation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors collects every offending field of an Inputs value.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "invalid deal sheet: " + strings.Join(msgs, "; ")
}

// Validate checks the inputs and returns ValidationErrors, or nil when they
// can be calculated.
func Validate(in Inputs) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if !in.SalePrice.IsPositive() {
		add("sale_price", "must be greater than zero")
	}

	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{"lot_price", in.LotPrice},
		{"due_diligence_cost", in.DueDiligenceCost},
		{"house_sqft", in.HouseSqFt},
		{"build_cost_per_sqft", in.BuildCostPerSqFt},
		{"site_work_cost", in.SiteWorkCost},
		{"permits_fees", in.PermitsFees},
		{"design_engineering", in.DesignEngineering},
		{"monthly_holding_cost", in.MonthlyHoldingCost},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			add(a.field, "must not be negative")
		}
	}

	fractions := []struct {
		field string
		value decimal.Decimal
	}{
		{"closing_cost_pct", in.ClosingCostPct},
		{"contingency_pct", in.ContingencyPct},
		{"builder_fee_pct", in.BuilderFeePct},
		{"selling_cost_pct", in.SellingCostPct},
		{"loan_to_cost_pct", in.LoanToCostPct},
		{"max_loan_to_value_pct", in.MaxLoanToValuePct},
		{"interest_rate", in.InterestRate},
		{"origination_pct", in.OriginationPct},
		{"avg_draw_pct", in.AvgDrawPct},
		{"target_margin", in.TargetMargin},
		{"min_margin", in.MinMargin},
	}
	for _, f := range fractions {
		if f.value.IsNegative() || f.value.GreaterThan(one) {
			add(f.field, "must be between 0 and 1")
		}
	}

	if in.ProjectMonths.IsNegative() || in.ProjectMonths.GreaterThan(maxProjectMonths) {
		add("project_months", "must be between 0 and %s", maxProjectMonths)
	}
	if in.BuildCostPerSqFt.IsPositive() && !in.HouseSqFt.IsPositive() {
		add("house_sqft", "must be greater than zero when build_cost_per_sqft is set")
	}

	target, floor := in.thresholds()
	if floor.GreaterThan(target) {
		add("min_margin", "must not exceed target_margin (%s)", target)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
