package investors

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/beesaferoot/buildops/internal/records"
)

var hundred = decimal.NewFromInt(100)

// Allocate splits amount across weights pro rata, to the cent. Each share
// is floored to a cent and the cents left over go one at a time to the
// largest remainders, earlier weights winning ties, so the shares always
// sum to amount.
func Allocate(amount decimal.Decimal, weights []decimal.Decimal) ([]decimal.Decimal, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: amount must be positive", records.ErrInvalid)
	}
	if !amount.Equal(amount.Round(2)) {
		return nil, fmt.Errorf("%w: amount has fractional cents", records.ErrInvalid)
	}
	total := decimal.Zero
	for _, w := range weights {
		if w.IsNegative() {
			return nil, fmt.Errorf("%w: negative weight", records.ErrInvalid)
		}
		total = total.Add(w)
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("%w: nothing to allocate against", records.ErrInvalid)
	}

	cents := amount.Mul(hundred)
	shares := make([]decimal.Decimal, len(weights))
	remainders := make([]decimal.Decimal, len(weights))
	assigned := decimal.Zero
	for i, w := range weights {
		// remainders share the denominator total, so they compare directly
		shares[i], remainders[i] = cents.Mul(w).QuoRem(total, 0)
		assigned = assigned.Add(shares[i])
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]].GreaterThan(remainders[order[b]])
	})
	left := cents.Sub(assigned).IntPart()
	for k := 0; left > 0; k = (k + 1) % len(order) {
		if weights[order[k]].IsZero() {
			continue
		}
		shares[order[k]] = shares[order[k]].Add(decimal.NewFromInt(1))
		left--
	}

	for i := range shares {
		shares[i] = shares[i].Div(hundred)
	}
	return shares, nil
}
