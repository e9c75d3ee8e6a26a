// Package report aggregates settled sales into summaries and renders them
// for export.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/montanaflynn/stats"

	"nexuspos/backend/internal/domain"
)

// Range returns the window a kind of report covers when requested at now.
// Daily starts at local midnight; weekly and yearly are rolling windows.
func Range(kind domain.ReportKind, now time.Time, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	now = now.In(loc)
	switch kind {
	case domain.ReportDaily:
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), now, nil
	case domain.ReportWeekly:
		return now.Add(-7 * 24 * time.Hour), now, nil
	case domain.ReportYearly:
		return now.Add(-365 * 24 * time.Hour), now, nil
	default:
		return time.Time{}, time.Time{}, domain.Invalid("kind", fmt.Sprintf("unknown report kind %q", kind))
	}
}

// ParseCustomRange parses an explicit from/to pair. A date-only "to" covers
// the whole of that day.
func ParseCustomRange(from, to string, loc *time.Location) (time.Time, time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if from == "" || to == "" {
		return time.Time{}, time.Time{}, domain.Invalid("range", "from and to are required")
	}
	start, err := dateparse.ParseIn(from, loc)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Invalid("from", "unrecognised date")
	}
	end, err := dateparse.ParseIn(to, loc)
	if err != nil {
		return time.Time{}, time.Time{}, domain.Invalid("to", "unrecognised date")
	}
	if isDateOnly(to, end) {
		end = end.Add(24*time.Hour - time.Nanosecond)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, domain.Invalid("range", "to must not be before from")
	}
	return start, end, nil
}

func isDateOnly(raw string, parsed time.Time) bool {
	if strings.ContainsAny(raw, ":T ") {
		return false
	}
	h, m, s := parsed.Clock()
	return h == 0 && m == 0 && s == 0 && parsed.Nanosecond() == 0
}

// Aggregate summarises the product and service sales dated within
// [start, end], both ends inclusive.
func Aggregate(products, services []domain.Transaction, start, end time.Time) domain.ReportSummary {
	summary := domain.ReportSummary{
		RangeStart: start,
		RangeEnd:   end,
		ByPayment:  []domain.ReportPaymentLine{},
		ByProduct:  []domain.ReportProductLine{},
		ByService:  []domain.ReportServiceLine{},
		Entries:    []domain.Transaction{},
	}

	payments := map[domain.PaymentMethod]*domain.ReportPaymentLine{}
	perProduct := map[string]*domain.ReportProductLine{}
	perService := map[string]*domain.ReportServiceLine{}
	var totals stats.Float64Data

	add := func(tx domain.Transaction) {
		summary.Entries = append(summary.Entries, tx.Clone())
		summary.TotalSalesCents += tx.TotalCents
		summary.TotalTaxCents += tx.TaxCents
		summary.Transactions++
		totals = append(totals, float64(tx.TotalCents))

		pl, ok := payments[tx.PaymentMethod]
		if !ok {
			pl = &domain.ReportPaymentLine{PaymentMethod: tx.PaymentMethod}
			payments[tx.PaymentMethod] = pl
		}
		pl.Transactions++
		pl.TotalCents += tx.TotalCents
	}

	for _, tx := range products {
		if !inRange(tx.Date, start, end) {
			continue
		}
		add(tx)
		summary.ProductSalesCents += tx.TotalCents
		for _, line := range tx.Items {
			if line.Kind != domain.LineKindProduct || line.Product == nil {
				continue
			}
			row, ok := perProduct[line.Product.ID]
			if !ok {
				row = &domain.ReportProductLine{ProductID: line.Product.ID, Name: line.Product.Name}
				perProduct[line.Product.ID] = row
			}
			qty := int64(line.Quantity)
			row.Units += qty
			row.RevenueCents += qty * line.Product.PriceCents
			row.ChargedRevenueCents += qty * line.EffectiveUnitPriceCents()
		}
	}

	for _, tx := range services {
		if !inRange(tx.Date, start, end) {
			continue
		}
		add(tx)
		summary.ServiceSalesCents += tx.TotalCents
		for _, line := range tx.Items {
			if line.Kind != domain.LineKindService || line.Service == nil {
				continue
			}
			row, ok := perService[line.Service.ID]
			if !ok {
				row = &domain.ReportServiceLine{ServiceID: line.Service.ID, Name: line.Service.Name}
				perService[line.Service.ID] = row
			}
			row.Count++
			row.RevenueCents += line.AmountChargedCents
		}
	}

	if summary.Transactions > 0 {
		summary.AverageSaleCents = int64(math.Round(float64(summary.TotalSalesCents) / float64(summary.Transactions)))
		if median, err := stats.Median(totals); err == nil {
			summary.MedianSaleCents = int64(math.Round(median))
		}
		if largest, err := stats.Max(totals); err == nil {
			summary.LargestSaleCents = int64(largest)
		}
	}

	for _, pl := range payments {
		summary.ByPayment = append(summary.ByPayment, *pl)
	}
	sort.Slice(summary.ByPayment, func(i, j int) bool {
		a, b := summary.ByPayment[i], summary.ByPayment[j]
		if a.TotalCents != b.TotalCents {
			return a.TotalCents > b.TotalCents
		}
		return a.PaymentMethod < b.PaymentMethod
	})

	for _, row := range perProduct {
		summary.ByProduct = append(summary.ByProduct, *row)
	}
	sort.Slice(summary.ByProduct, func(i, j int) bool {
		a, b := summary.ByProduct[i], summary.ByProduct[j]
		if a.RevenueCents != b.RevenueCents {
			return a.RevenueCents > b.RevenueCents
		}
		return a.Name < b.Name
	})

	for _, row := range perService {
		summary.ByService = append(summary.ByService, *row)
	}
	sort.Slice(summary.ByService, func(i, j int) bool {
		a, b := summary.ByService[i], summary.ByService[j]
		if a.RevenueCents != b.RevenueCents {
			return a.RevenueCents > b.RevenueCents
		}
		return a.Name < b.Name
	})

	sort.SliceStable(summary.Entries, func(i, j int) bool {
		return summary.Entries[i].Date.After(summary.Entries[j].Date)
	})
	return summary
}

func inRange(at, start, end time.Time) bool {
	return !at.Before(start) && !at.After(end)
}

// Filename is the download name for a report rendered on day, without an
// extension.
func Filename(kind domain.ReportKind, day time.Time) string {
	return fmt.Sprintf("nexuspos_%s_report_%s", kind, day.Format("2006-01-02"))
}

// FormatCents renders an amount of cents as a decimal currency string.
func FormatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}
