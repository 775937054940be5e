// Package valuation computes total portfolio value and per-asset weights
// from a portfolio snapshot. Pure functions of their input - no I/O.
package valuation

import (
	"fmt"
	"math"

	"github.com/aristath/quartermaster/internal/domain"
)

// Calculator values a portfolio snapshot.
//
// ExcludeIdleCash drops idle cash from the total used as the weight
// denominator. Default is false: the inclusive model counts cash, so
// weights sum below 1 while cash is idle and drift is never under-counted.
type Calculator struct {
	ExcludeIdleCash bool
}

// TotalValue returns idle cash plus the mark-to-market value of every
// holding. Assets with a zero target weight still count - leaving them
// out would understate the denominator and overstate every weight.
// Returns domain.ErrInvalidSnapshot on negative or non-finite inputs.
func (c Calculator) TotalValue(snap domain.PortfolioSnapshot) (float64, error) {
	if err := validate(snap); err != nil {
		return 0, err
	}

	total := 0.0
	if !c.ExcludeIdleCash {
		total = snap.IdleCashUsdc
	}
	for _, h := range snap.Holdings {
		total += h.Value()
	}
	return total, nil
}

// Weight returns the asset's share of total portfolio value.
// A zero total value yields a zero weight rather than NaN.
func (c Calculator) Weight(snap domain.PortfolioSnapshot, symbol string, totalValue float64) float64 {
	if totalValue <= 0 {
		return 0
	}
	return snap.HoldingValue(symbol) / totalValue
}

func validate(snap domain.PortfolioSnapshot) error {
	if snap.IdleCashUsdc < 0 || !isFinite(snap.IdleCashUsdc) {
		return fmt.Errorf("%w: idle cash %.8f", domain.ErrInvalidSnapshot, snap.IdleCashUsdc)
	}
	for symbol, h := range snap.Holdings {
		if h.Quantity < 0 || !isFinite(h.Quantity) {
			return fmt.Errorf("%w: %s quantity %.8f", domain.ErrInvalidSnapshot, symbol, h.Quantity)
		}
		if h.MarkPrice < 0 || !isFinite(h.MarkPrice) {
			return fmt.Errorf("%w: %s mark price %.8f", domain.ErrInvalidSnapshot, symbol, h.MarkPrice)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
