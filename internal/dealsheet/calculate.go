package dealsheet

import "github.com/shopspring/decimal"

var (
	one    = decimal.NewFromInt(1)
	twelve = decimal.NewFromInt(12)
	cent   = decimal.New(1, -2)
)

// Calculate validates the inputs and derives the full result, including the
// maximum lot price that still meets the target margin.
func Calculate(in Inputs) (Result, error) {
	if err := Validate(in); err != nil {
		return Result{}, err
	}
	res := compute(in)
	res.MaxLotPrice = maxLotPrice(in)
	return res, nil
}

func money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

func ratio(num, den decimal.Decimal) decimal.Decimal {
	if den.IsZero() {
		return decimal.Zero
	}
	return num.DivRound(den, 4)
}

// compute derives every figure except MaxLotPrice. It assumes valid inputs.
func compute(in Inputs) Result {
	var r Result

	r.LandCost = money(in.LotPrice).
		Add(money(in.LotPrice.Mul(in.ClosingCostPct))).
		Add(money(in.DueDiligenceCost))

	r.HardCost = money(in.HouseSqFt.Mul(in.BuildCostPerSqFt)).Add(money(in.SiteWorkCost))
	r.SoftCost = money(in.PermitsFees).Add(money(in.DesignEngineering))
	r.Contingency = money(r.HardCost.Mul(in.ContingencyPct))
	r.BuilderFee = money(r.HardCost.Add(r.SoftCost).Add(r.Contingency).Mul(in.BuilderFeePct))
	r.ConstructionCost = r.HardCost.Add(r.SoftCost).Add(r.Contingency).Add(r.BuilderFee)

	r.LoanAmount = money(r.LandCost.Add(r.ConstructionCost).Mul(in.LoanToCostPct))
	if in.MaxLoanToValuePct.IsPositive() {
		limit := money(in.SalePrice.Mul(in.MaxLoanToValuePct))
		if r.LoanAmount.GreaterThan(limit) {
			r.LoanAmount = limit
			r.LoanCapped = true
		}
	}

	draw := in.AvgDrawPct
	if draw.IsZero() {
		draw = one
	}
	r.OriginationFee = money(r.LoanAmount.Mul(in.OriginationPct))
	r.InterestCost = money(r.LoanAmount.Mul(in.InterestRate).Mul(in.ProjectMonths).Mul(draw).Div(twelve))
	r.FinancingCost = r.OriginationFee.Add(r.InterestCost)

	r.HoldingCost = money(in.MonthlyHoldingCost.Mul(in.ProjectMonths))
	r.SellingCost = money(in.SalePrice.Mul(in.SellingCostPct))

	r.TotalProjectCost = r.LandCost.
		Add(r.ConstructionCost).
		Add(r.FinancingCost).
		Add(r.HoldingCost).
		Add(r.SellingCost)
	r.NetProfit = money(in.SalePrice).Sub(r.TotalProjectCost)

	r.Margin = ratio(r.NetProfit, in.SalePrice)
	r.ReturnOnCost = ratio(r.NetProfit, r.TotalProjectCost)

	r.EquityRequired = decimal.Max(decimal.Zero, r.TotalProjectCost.Sub(r.SellingCost).Sub(r.LoanAmount))
	r.ReturnOnEquity = ratio(r.NetProfit, r.EquityRequired)
	if in.ProjectMonths.IsPositive() {
		r.AnnualizedROE = ratio(r.NetProfit.Mul(twelve), r.EquityRequired.Mul(in.ProjectMonths))
	}

	r.CostPerSqFt = decimal.Zero
	if in.HouseSqFt.IsPositive() {
		r.CostPerSqFt = r.TotalProjectCost.DivRound(in.HouseSqFt, 2)
	}
	r.LandToSale = ratio(r.LandCost, in.SalePrice)

	r.TargetMargin, r.MinMargin = in.thresholds()
	r.Verdict = classify(r.NetProfit, r.Margin, r.TargetMargin, r.MinMargin)
	return r
}

func classify(profit, margin, target, floor decimal.Decimal) Verdict {
	switch {
	case !profit.IsPositive():
		return VerdictNoGo
	case margin.GreaterThanOrEqual(target):
		return VerdictGo
	case margin.GreaterThanOrEqual(floor):
		return VerdictCaution
	default:
		return VerdictNoGo
	}
}

// maxLotPrice bisects the lot price over [0, sale price] for the highest
// price, to the cent, whose margin still meets the target. Profit falls
// monotonically with lot price but the value cap makes it piecewise, so a
// closed form would need a case per segment.
func maxLotPrice(in Inputs) decimal.Decimal {
	target, _ := in.thresholds()
	meets := func(lot decimal.Decimal) bool {
		probe := in
		probe.LotPrice = lot
		r := compute(probe)
		return r.NetProfit.IsPositive() && r.Margin.GreaterThanOrEqual(target)
	}

	lo, hi := decimal.Zero, money(in.SalePrice)
	if !meets(lo) {
		return decimal.Zero
	}
	if meets(hi) {
		return hi
	}
	for i := 0; i < 128 && hi.Sub(lo).GreaterThan(cent); i++ {
		mid := lo.Add(hi).Div(decimal.NewFromInt(2)).RoundFloor(2)
		if meets(mid) {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}
