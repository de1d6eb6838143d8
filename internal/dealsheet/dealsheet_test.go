package dealsheet

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func assertDecimal(t *testing.T, want string, got decimal.Decimal, field string) {
	t.Helper()
	assert.Truef(t, d(want).Equal(got), "%s: want %s, got %s", field, want, got)
}

func sampleInputs() Inputs {
	return Inputs{
		LotPrice:           d("100000"),
		ClosingCostPct:     d("0.02"),
		DueDiligenceCost:   d("5000"),
		HouseSqFt:          d("2000"),
		BuildCostPerSqFt:   d("150"),
		SiteWorkCost:       d("20000"),
		PermitsFees:        d("10000"),
		DesignEngineering:  d("15000"),
		ContingencyPct:     d("0.05"),
		BuilderFeePct:      d("0.10"),
		SalePrice:          d("650000"),
		SellingCostPct:     d("0.06"),
		LoanToCostPct:      d("0.80"),
		MaxLoanToValuePct:  d("0.75"),
		InterestRate:       d("0.09"),
		OriginationPct:     d("0.01"),
		AvgDrawPct:         d("0.5"),
		ProjectMonths:      d("12"),
		MonthlyHoldingCost: d("1000"),
	}
}

func TestCalculate(t *testing.T) {
	res, err := Calculate(sampleInputs())
	require.NoError(t, err)

	want := map[string]struct {
		want string
		got  decimal.Decimal
	}{
		"land_cost":          {"107000", res.LandCost},
		"hard_cost":          {"320000", res.HardCost},
		"soft_cost":          {"25000", res.SoftCost},
		"contingency":        {"16000", res.Contingency},
		"builder_fee":        {"36100", res.BuilderFee},
		"construction_cost":  {"397100", res.ConstructionCost},
		"loan_amount":        {"403280", res.LoanAmount},
		"origination_fee":    {"4032.80", res.OriginationFee},
		"interest_cost":      {"18147.60", res.InterestCost},
		"financing_cost":     {"22180.40", res.FinancingCost},
		"holding_cost":       {"12000", res.HoldingCost},
		"selling_cost":       {"39000", res.SellingCost},
		"total_project_cost": {"577280.40", res.TotalProjectCost},
		"net_profit":         {"72719.60", res.NetProfit},
		"margin":             {"0.1119", res.Margin},
		"return_on_cost":     {"0.1260", res.ReturnOnCost},
		"equity_required":    {"135000.40", res.EquityRequired},
		"return_on_equity":   {"0.5387", res.ReturnOnEquity},
		"annualized_roe":     {"0.5387", res.AnnualizedROE},
		"cost_per_sqft":      {"288.64", res.CostPerSqFt},
		"land_to_sale_ratio": {"0.1646", res.LandToSale},
		"max_lot_price":      {"76759.92", res.MaxLotPrice},
	}
	for field, tc := range want {
		assertDecimal(t, tc.want, tc.got, field)
	}

	assert.False(t, res.LoanCapped)
	assert.Equal(t, VerdictCaution, res.Verdict)
	assertDecimal(t, "0.15", res.TargetMargin, "target_margin")
	assertDecimal(t, "0.10", res.MinMargin, "min_margin")
}

func TestCalculate_LoanCappedByValue(t *testing.T) {
	in := sampleInputs()
	in.LoanToCostPct = d("0.95")
	in.MaxLoanToValuePct = d("0.70")

	res, err := Calculate(in)
	require.NoError(t, err)

	assert.True(t, res.LoanCapped)
	assertDecimal(t, "455000", res.LoanAmount, "loan_amount")
	assertDecimal(t, "25025", res.FinancingCost, "financing_cost")
	assertDecimal(t, "69875", res.NetProfit, "net_profit")
	assertDecimal(t, "86125", res.EquityRequired, "equity_required")
}

func TestCalculate_TotalsFootToLines(t *testing.T) {
	in := sampleInputs()
	in.ClosingCostPct = d("0.0137")
	in.InterestRate = d("0.0875")
	in.AvgDrawPct = d("0.55")
	in.ProjectMonths = d("7")

	res, err := Calculate(in)
	require.NoError(t, err)

	sum := res.LandCost.Add(res.ConstructionCost).Add(res.FinancingCost).Add(res.HoldingCost).Add(res.SellingCost)
	assert.True(t, sum.Equal(res.TotalProjectCost))
	assert.True(t, in.SalePrice.Sub(res.TotalProjectCost).Equal(res.NetProfit))
	assert.LessOrEqual(t, res.InterestCost.Exponent(), int32(0))
	assert.GreaterOrEqual(t, res.InterestCost.Exponent(), int32(-2))
}

func TestCalculate_Verdicts(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Inputs)
		want   Verdict
	}{
		{"default thresholds", func(*Inputs) {}, VerdictCaution},
		{"lower target", func(in *Inputs) {
			in.TargetMargin = d("0.10")
			in.MinMargin = d("0.05")
		}, VerdictGo},
		{"below floor", func(in *Inputs) {
			in.TargetMargin = d("0.20")
			in.MinMargin = d("0.12")
		}, VerdictNoGo},
		{"loss", func(in *Inputs) { in.SalePrice = d("500000") }, VerdictNoGo},
		{"zero target below floor default", func(in *Inputs) {
			in.TargetMargin = d("0.08")
		}, VerdictGo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInputs()
			tt.mutate(&in)
			res, err := Calculate(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Verdict)
		})
	}
}

func TestCalculate_ZeroDivisors(t *testing.T) {
	in := Inputs{
		LotPrice:  d("50000"),
		SalePrice: d("60000"),
	}
	res, err := Calculate(in)
	require.NoError(t, err)

	assert.True(t, res.CostPerSqFt.IsZero())
	assert.True(t, res.AnnualizedROE.IsZero())
	assertDecimal(t, "50000", res.EquityRequired, "equity_required")
	assertDecimal(t, "0.2", res.ReturnOnEquity, "return_on_equity")
}

func TestCalculate_MaxLotPriceUnreachable(t *testing.T) {
	in := sampleInputs()
	in.SalePrice = d("400000")

	res, err := Calculate(in)
	require.NoError(t, err)
	assert.True(t, res.MaxLotPrice.IsZero())
	assert.Equal(t, VerdictNoGo, res.Verdict)
}

func TestValidate(t *testing.T) {
	in := sampleInputs()
	in.SalePrice = decimal.Zero
	in.LotPrice = d("-1")
	in.ContingencyPct = d("1.5")
	in.ProjectMonths = d("121")
	in.HouseSqFt = decimal.Zero
	in.TargetMargin = d("0.10")
	in.MinMargin = d("0.12")

	err := Validate(in)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{
		"sale_price", "lot_price", "contingency_pct", "project_months", "house_sqft", "min_margin",
	}, fields)

	_, err = Calculate(in)
	assert.ErrorAs(t, err, &verrs)
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, Validate(sampleInputs()))
}

func TestSensitivity(t *testing.T) {
	in := sampleInputs()

	rows, err := Sensitivity(in, FieldSalePrice, []decimal.Decimal{d("-0.10"), decimal.Zero, d("0.10")})
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assertDecimal(t, "585000", rows[0].Value, "value")
	assertDecimal(t, "72719.60", rows[1].NetProfit, "net_profit")
	assertDecimal(t, "715000", rows[2].Value, "value")
	assert.True(t, rows[0].NetProfit.LessThan(rows[1].NetProfit))
	assert.True(t, rows[2].NetProfit.GreaterThan(rows[1].NetProfit))

	rows, err = Sensitivity(in, FieldProjectMonths, []decimal.Decimal{d("6")})
	require.NoError(t, err)
	assertDecimal(t, "18", rows[0].Value, "value")
	assert.True(t, rows[0].NetProfit.LessThan(d("72719.60")))

	_, err = Sensitivity(in, "lot_size", []decimal.Decimal{decimal.Zero})
	assert.ErrorIs(t, err, ErrUnknownField)

	_, err = Sensitivity(in, FieldProjectMonths, []decimal.Decimal{d("200")})
	assert.Error(t, err)
}

func TestInputs_JSONFieldNames(t *testing.T) {
	raw := `{"lot_price":"100000","house_sqft":2000,"build_cost_per_sqft":"150","sale_price":"650000"}`
	var in Inputs
	require.NoError(t, json.Unmarshal([]byte(raw), &in))
	assertDecimal(t, "100000", in.LotPrice, "lot_price")
	assertDecimal(t, "2000", in.HouseSqFt, "house_sqft")

	res, err := Calculate(in)
	require.NoError(t, err)
	out, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), `"land_to_sale_ratio"`)
	assert.Contains(t, string(out), `"verdict":"go"`)
}
