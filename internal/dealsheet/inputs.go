// Package dealsheet computes the profitability of a land/home deal from its
// acquisition, construction, financing and sale assumptions.
//
// Every money line is rounded to cents as it is produced and totals are sums
// of the rounded lines, so a printed sheet always foots. Ratios are rounded to
// four decimal places.
package dealsheet

import "github.com/shopspring/decimal"

// Default verdict thresholds, used when the inputs leave them at zero.
var (
	DefaultTargetMargin = decimal.RequireFromString("0.15")
	DefaultMinMargin    = decimal.RequireFromString("0.10")
)

// Inputs are the assumptions of a deal sheet. Percentages are fractions
// (0.03 is three percent).
type Inputs struct {
	// Acquisition
	LotPrice         decimal.Decimal `json:"lot_price" yaml:"lot_price"`
	ClosingCostPct   decimal.Decimal `json:"closing_cost_pct" yaml:"closing_cost_pct"`
	DueDiligenceCost decimal.Decimal `json:"due_diligence_cost" yaml:"due_diligence_cost"`

	// Construction
	HouseSqFt         decimal.Decimal `json:"house_sqft" yaml:"house_sqft"`
	BuildCostPerSqFt  decimal.Decimal `json:"build_cost_per_sqft" yaml:"build_cost_per_sqft"`
	SiteWorkCost      decimal.Decimal `json:"site_work_cost" yaml:"site_work_cost"`
	PermitsFees       decimal.Decimal `json:"permits_fees" yaml:"permits_fees"`
	DesignEngineering decimal.Decimal `json:"design_engineering" yaml:"design_engineering"`
	ContingencyPct    decimal.Decimal `json:"contingency_pct" yaml:"contingency_pct"`
	BuilderFeePct     decimal.Decimal `json:"builder_fee_pct" yaml:"builder_fee_pct"`

	// Sale
	SalePrice      decimal.Decimal `json:"sale_price" yaml:"sale_price"`
	SellingCostPct decimal.Decimal `json:"selling_cost_pct" yaml:"selling_cost_pct"`

	// Financing. MaxLoanToValuePct of zero means the loan is not capped by
	// value; AvgDrawPct of zero means the loan is fully drawn for the hold.
	LoanToCostPct     decimal.Decimal `json:"loan_to_cost_pct" yaml:"loan_to_cost_pct"`
	MaxLoanToValuePct decimal.Decimal `json:"max_loan_to_value_pct" yaml:"max_loan_to_value_pct"`
	InterestRate      decimal.Decimal `json:"interest_rate" yaml:"interest_rate"`
	OriginationPct    decimal.Decimal `json:"origination_pct" yaml:"origination_pct"`
	AvgDrawPct        decimal.Decimal `json:"avg_draw_pct" yaml:"avg_draw_pct"`
	ProjectMonths     decimal.Decimal `json:"project_months" yaml:"project_months"`

	// Carry
	MonthlyHoldingCost decimal.Decimal `json:"monthly_holding_cost" yaml:"monthly_holding_cost"`

	// Verdict thresholds; zero selects the defaults.
	TargetMargin decimal.Decimal `json:"target_margin" yaml:"target_margin"`
	MinMargin    decimal.Decimal `json:"min_margin" yaml:"min_margin"`
}

// Verdict classifies a deal by its margin.
type Verdict string

const (
	VerdictGo      Verdict = "go"
	VerdictCaution Verdict = "caution"
	VerdictNoGo    Verdict = "no_go"
)

// Result holds the derived figures of a deal sheet.
type Result struct {
	LandCost         decimal.Decimal `json:"land_cost"`
	HardCost         decimal.Decimal `json:"hard_cost"`
	SoftCost         decimal.Decimal `json:"soft_cost"`
	Contingency      decimal.Decimal `json:"contingency"`
	BuilderFee       decimal.Decimal `json:"builder_fee"`
	ConstructionCost decimal.Decimal `json:"construction_cost"`

	LoanAmount     decimal.Decimal `json:"loan_amount"`
	LoanCapped     bool            `json:"loan_capped"`
	OriginationFee decimal.Decimal `json:"origination_fee"`
	InterestCost   decimal.Decimal `json:"interest_cost"`
	FinancingCost  decimal.Decimal `json:"financing_cost"`

	HoldingCost      decimal.Decimal `json:"holding_cost"`
	SellingCost      decimal.Decimal `json:"selling_cost"`
	TotalProjectCost decimal.Decimal `json:"total_project_cost"`
	NetProfit        decimal.Decimal `json:"net_profit"`

	Margin         decimal.Decimal `json:"margin"`
	ReturnOnCost   decimal.Decimal `json:"return_on_cost"`
	EquityRequired decimal.Decimal `json:"equity_required"`
	ReturnOnEquity decimal.Decimal `json:"return_on_equity"`
	AnnualizedROE  decimal.Decimal `json:"annualized_roe"`
	CostPerSqFt    decimal.Decimal `json:"cost_per_sqft"`
	LandToSale     decimal.Decimal `json:"land_to_sale_ratio"`
	MaxLotPrice    decimal.Decimal `json:"max_lot_price"`

	TargetMargin decimal.Decimal `json:"target_margin"`
	MinMargin    decimal.Decimal `json:"min_margin"`
	Verdict      Verdict         `json:"verdict"`
}

func (in Inputs) thresholds() (target, floor decimal.Decimal) {
	target, floor = in.TargetMargin, in.MinMargin
	if target.IsZero() {
		target = DefaultTargetMargin
	}
	if floor.IsZero() {
		floor = decimal.Min(DefaultMinMargin, target)
	}
	return target, floor
}
