// Package pricing holds the pure arithmetic behind cart totals. Amounts are
// integer cents; the tax rate is a percentage.
package pricing

import (
	"math"

	"nexuspos/backend/internal/domain"
)

type Calculator struct {
	TaxRatePercent float64
}

func New(taxRatePercent float64) Calculator {
	if taxRatePercent < 0 || math.IsNaN(taxRatePercent) {
		taxRatePercent = 0
	}
	return Calculator{TaxRatePercent: taxRatePercent}
}

// Subtotal sums effective unit price times quantity for product lines and
// the amount charged for service lines.
func Subtotal(lines []domain.LineItem) int64 {
	subtotal := int64(0)
	for _, line := range lines {
		switch line.Kind {
		case domain.LineKindProduct:
			subtotal += line.EffectiveUnitPriceCents() * int64(line.Quantity)
		case domain.LineKindService:
			subtotal += line.AmountChargedCents
		}
	}
	return subtotal
}

func (c Calculator) Tax(subtotalCents int64) int64 {
	if c.TaxRatePercent <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotalCents) * c.TaxRatePercent / 100))
}

func Total(subtotalCents int64, taxCents int64) int64 {
	return subtotalCents + taxCents
}

func Change(amountPaidCents int64, totalCents int64) int64 {
	if amountPaidCents <= totalCents {
		return 0
	}
	return amountPaidCents - totalCents
}

func (c Calculator) Quote(lines []domain.LineItem) domain.Quote {
	subtotal := Subtotal(lines)
	tax := c.Tax(subtotal)
	return domain.Quote{
		SubtotalCents:  subtotal,
		TaxRatePercent: c.TaxRatePercent,
		TaxCents:       tax,
		TotalCents:     Total(subtotal, tax),
	}
}
