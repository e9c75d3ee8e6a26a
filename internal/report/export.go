package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"

	"nexuspos/backend/internal/domain"
)

const (
	SheetSummary      = "Summary"
	SheetTransactions = "Transactions"
)

type csvRow struct {
	Section string `csv:"section"`
	Key     string `csv:"key"`
	Value   string `csv:"value"`
}

type kv struct {
	key   string
	value string
}

func summaryPairs(s domain.ReportSummary) []kv {
	return []kv{
		{"kind", string(s.Kind)},
		{"range_start", s.RangeStart.Format(time.RFC3339)},
		{"range_end", s.RangeEnd.Format(time.RFC3339)},
		{"total_sales", FormatCents(s.TotalSalesCents)},
		{"product_sales", FormatCents(s.ProductSalesCents)},
		{"service_sales", FormatCents(s.ServiceSalesCents)},
		{"total_tax", FormatCents(s.TotalTaxCents)},
		{"transactions", fmt.Sprint(s.Transactions)},
		{"average_sale", FormatCents(s.AverageSaleCents)},
		{"median_sale", FormatCents(s.MedianSaleCents)},
		{"largest_sale", FormatCents(s.LargestSaleCents)},
	}
}

// WriteCSV writes the summary as section,key,value rows.
func WriteCSV(w io.Writer, s domain.ReportSummary) error {
	rows := make([]*csvRow, 0, 16+len(s.Entries))
	for _, p := range summaryPairs(s) {
		rows = append(rows, &csvRow{Section: "summary", Key: p.key, Value: p.value})
	}
	for _, pl := range s.ByPayment {
		rows = append(rows, &csvRow{
			Section: "payment",
			Key:     string(pl.PaymentMethod),
			Value:   fmt.Sprintf("%d transactions %s", pl.Transactions, FormatCents(pl.TotalCents)),
		})
	}
	for _, pl := range s.ByProduct {
		rows = append(rows, &csvRow{
			Section: "product",
			Key:     pl.Name,
			Value:   fmt.Sprintf("%d units %s", pl.Units, FormatCents(pl.RevenueCents)),
		})
	}
	for _, sl := range s.ByService {
		rows = append(rows, &csvRow{
			Section: "service",
			Key:     sl.Name,
			Value:   fmt.Sprintf("%d sales %s", sl.Count, FormatCents(sl.RevenueCents)),
		})
	}
	for _, tx := range s.Entries {
		rows = append(rows, &csvRow{
			Section: "transaction",
			Key:     tx.ID,
			Value:   fmt.Sprintf("%s %s", tx.Date.Format(time.RFC3339), FormatCents(tx.TotalCents)),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write csv report: %w", err)
	}
	return nil
}

// WriteXLSX writes a workbook with a Summary sheet and a Transactions sheet.
func WriteXLSX(w io.Writer, s domain.ReportSummary) error {
	f := excelize.NewFile()
	f.SetSheetName("Sheet1", SheetSummary)

	row := 1
	set := func(a, b interface{}) {
		f.SetCellValue(SheetSummary, fmt.Sprintf("A%d", row), a)
		f.SetCellValue(SheetSummary, fmt.Sprintf("B%d", row), b)
		row++
	}
	for _, p := range summaryPairs(s) {
		set(p.key, p.value)
	}
	row++
	set("payment_method", "total")
	for _, pl := range s.ByPayment {
		set(string(pl.PaymentMethod), FormatCents(pl.TotalCents))
	}
	row++
	set("product", "units / revenue")
	for _, pl := range s.ByProduct {
		set(pl.Name, fmt.Sprintf("%d / %s", pl.Units, FormatCents(pl.RevenueCents)))
	}
	if len(s.ByService) > 0 {
		row++
		set("service", "sales / revenue")
		for _, sl := range s.ByService {
			set(sl.Name, fmt.Sprintf("%d / %s", sl.Count, FormatCents(sl.RevenueCents)))
		}
	}

	f.NewSheet(SheetTransactions)
	headers := []string{"ID", "Type", "Date", "Payment", "Subtotal", "Tax", "Total", "Items"}
	for i, h := range headers {
		f.SetCellValue(SheetTransactions, cell(i, 1), h)
	}
	for i, tx := range s.Entries {
		r := i + 2
		values := []interface{}{
			tx.ID,
			string(tx.Type),
			tx.Date.Format(time.RFC3339),
			string(tx.PaymentMethod),
			FormatCents(tx.SubtotalCents),
			FormatCents(tx.TaxCents),
			FormatCents(tx.TotalCents),
			itemSummary(tx.Items),
		}
		for c, v := range values {
			f.SetCellValue(SheetTransactions, cell(c, r), v)
		}
	}
	f.SetActiveSheet(1)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write xlsx report: %w", err)
	}
	return nil
}

func cell(col, row int) string {
	return fmt.Sprintf("%c%d", 'A'+col, row)
}

func itemSummary(lines []domain.LineItem) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		if line.Kind == domain.LineKindService {
			parts = append(parts, line.ItemName())
			continue
		}
		parts = append(parts, fmt.Sprintf("%s x%d", line.ItemName(), line.Quantity))
	}
	return strings.Join(parts, ", ")
}
