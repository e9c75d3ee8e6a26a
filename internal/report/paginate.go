package report

import (
	"fmt"
	"strings"
	"time"

	"nexuspos/backend/internal/domain"
)

// Layout is measured in points; y grows upward from the bottom of the page.
type Layout struct {
	Width        float64
	Height       float64
	TopMargin    float64
	LeftMargin   float64
	Indent       float64
	LineHeight   float64
	RowHeight    float64
	BreakAt      float64
	RowBreakAt   float64
	TimeLayout   string
	TimeLocation *time.Location
}

// DefaultLayout is an A4 portrait page.
var DefaultLayout = Layout{
	Width:      595.28,
	Height:     841.89,
	TopMargin:  50,
	LeftMargin: 50,
	Indent:     60,
	LineHeight: 14,
	RowHeight:  12,
	BreakAt:    80,
	RowBreakAt: 60,
	TimeLayout: "2006-01-02 15:04:05",
}

type Style string

const (
	StyleTitle   Style = "title"
	StyleHeading Style = "heading"
	StyleText    Style = "text"
	StyleRow     Style = "row"
)

type Line struct {
	Text  string  `json:"text"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Style Style   `json:"style"`
}

type Page struct {
	Number int    `json:"number"`
	Lines  []Line `json:"lines"`
}

type pager struct {
	layout Layout
	pages  []Page
	y      float64
}

func (p *pager) newPage() {
	p.pages = append(p.pages, Page{Number: len(p.pages) + 1})
	p.y = p.layout.Height - p.layout.TopMargin
}

func (p *pager) draw(x float64, style Style, text string) {
	cur := &p.pages[len(p.pages)-1]
	cur.Lines = append(cur.Lines, Line{Text: text, X: x, Y: p.y, Style: style})
}

// listItem draws a line, advances by step and starts a new page once y drops
// below limit.
func (p *pager) listItem(text string, style Style, step, limit float64) {
	p.draw(p.layout.Indent, style, text)
	p.y -= step
	if p.y < limit {
		p.newPage()
	}
}

// Paginate lays the summary out as pages of positioned text lines.
func Paginate(s domain.ReportSummary, layout Layout) []Page {
	if layout.Height <= 0 {
		layout = DefaultLayout
	}
	loc := layout.TimeLocation
	if loc == nil {
		loc = time.Local
	}
	stamp := func(t time.Time) string { return t.In(loc).Format(layout.TimeLayout) }

	p := &pager{layout: layout}
	p.newPage()
	left := layout.LeftMargin
	indent := layout.Indent

	p.draw(left, StyleTitle, "NexusPOS Sales Report")
	p.y -= 24
	p.draw(left, StyleText, strings.ToUpper(string(s.Kind))+" REPORT")
	p.y -= 18
	p.draw(left, StyleText, fmt.Sprintf("Range: %s - %s", stamp(s.RangeStart), stamp(s.RangeEnd)))
	p.y -= 28

	p.draw(left, StyleHeading, "Summary")
	p.y -= 16
	summary := []string{
		"Total Sales: " + FormatCents(s.TotalSalesCents),
		fmt.Sprintf("Total Transactions: %d", s.Transactions),
		"Total Tax: " + FormatCents(s.TotalTaxCents),
		"Average Sale: " + FormatCents(s.AverageSaleCents),
	}
	for i, text := range summary {
		p.draw(indent, StyleText, text)
		if i < len(summary)-1 {
			p.y -= layout.LineHeight
		}
	}
	p.y -= 22

	p.draw(left, StyleHeading, "Payment Breakdown")
	p.y -= 16
	for _, pl := range s.ByPayment {
		p.listItem(fmt.Sprintf("%s: %s", pl.PaymentMethod, FormatCents(pl.TotalCents)), StyleText, layout.LineHeight, layout.BreakAt)
	}
	p.y -= 10

	p.draw(left, StyleHeading, "Per-Product Totals")
	p.y -= 16
	for _, pl := range s.ByProduct {
		p.listItem(fmt.Sprintf("%s - %d units - %s", pl.Name, pl.Units, FormatCents(pl.RevenueCents)), StyleText, layout.LineHeight, layout.BreakAt)
	}
	p.y -= 10

	p.draw(left, StyleHeading, "Per-Service Totals")
	p.y -= 16
	for _, sl := range s.ByService {
		p.listItem(fmt.Sprintf("%s - %d sales - %s", sl.Name, sl.Count, FormatCents(sl.RevenueCents)), StyleText, layout.LineHeight, layout.BreakAt)
	}
	p.y -= 10

	p.draw(left, StyleHeading, "Transactions")
	p.y -= 16
	for _, tx := range s.Entries {
		p.listItem(fmt.Sprintf("%s - %s - %s", tx.ID, stamp(tx.Date), FormatCents(tx.TotalCents)), StyleRow, layout.RowHeight, layout.RowBreakAt)
	}
	return p.pages
}
