package dealsheet

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sensitivity fields.
const (
	FieldSalePrice        = "sale_price"
	FieldBuildCostPerSqFt = "build_cost_per_sqft"
	FieldProjectMonths    = "project_months"
)

var ErrUnknownField = errors.New("unknown sensitivity field")

// Scenario is one row of a what-if table.
type Scenario struct {
	Delta     decimal.Decimal `json:"delta"`
	Value     decimal.Decimal `json:"value"`
	NetProfit decimal.Decimal `json:"net_profit"`
	Margin    decimal.Decimal `json:"margin"`
	Verdict   Verdict         `json:"verdict"`
}

// Sensitivity recalculates the deal for each delta applied to field.
// Price and cost deltas are relative (-0.05 is five percent lower); month
// deltas are absolute. Shocks that produce invalid inputs fail the whole
// table.
func Sensitivity(in Inputs, field string, deltas []decimal.Decimal) ([]Scenario, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	out := make([]Scenario, 0, len(deltas))
	for _, d := range deltas {
		probe := in
		var value decimal.Decimal
		switch field {
		case FieldSalePrice:
			value = money(in.SalePrice.Mul(one.Add(d)))
			probe.SalePrice = value
		case FieldBuildCostPerSqFt:
			value = money(in.BuildCostPerSqFt.Mul(one.Add(d)))
			probe.BuildCostPerSqFt = value
		case FieldProjectMonths:
			value = in.ProjectMonths.Add(d)
			probe.ProjectMonths = value
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
		}

		if err := Validate(probe); err != nil {
			return nil, fmt.Errorf("delta %s: %w", d, err)
		}
		r := compute(probe)
		out = append(out, Scenario{
			Delta:     d,
			Value:     value,
			NetProfit: r.NetProfit,
			Margin:    r.Margin,
			Verdict:   r.Verdict,
		})
	}
	return out, nil
}
