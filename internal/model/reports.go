package model

import "encoding/json"

const invoiceStatusOverdue = "overdue"

// Invoice carries the invoice fields the reports page aggregates.
type Invoice struct {
	ID         Identifier `json:"id"`
	Total      Amount     `json:"total"`
	PaidAmount Amount     `json:"paid_amount"`
	Balance    Amount     `json:"balance"`
	Status     Text       `json:"status"`
}

// Part carries stock levels. A missing threshold counts as zero.
type Part struct {
	ID                Identifier `json:"id"`
	StockQuantity     Amount     `json:"stock_quantity"`
	LowStockThreshold *Amount    `json:"low_stock_threshold"`
}

// IsLowStock reports whether stock is at or below the threshold.
func (part Part) IsLowStock() bool {
	var threshold Amount
	if part.LowStockThreshold != nil {
		threshold = *part.LowStockThreshold
	}
	return part.StockQuantity <= threshold
}

// Record is an opaque collection member that is only counted.
type Record = json.RawMessage

// ReportSnapshot holds the collections fetched for one reports render. Yachts
// and Vehicles are nil when their module is disabled.
type ReportSnapshot struct {
	Invoices  *Collection[Invoice]
	Customers *Collection[Record]
	Parts     *Collection[Part]
	Yachts    *Collection[Record]
	Vehicles  *Collection[Record]
}

// ReportMetrics are the seven derived aggregates.
type ReportMetrics struct {
	TotalRevenue       Amount `json:"total_revenue"`
	PaidRevenue        Amount `json:"paid_revenue"`
	OutstandingBalance Amount `json:"outstanding_balance"`
	OverdueInvoices    int    `json:"overdue_invoices"`
	TotalCustomers     int    `json:"total_customers"`
	TotalAssets        int    `json:"total_assets"`
	LowStockParts      int    `json:"low_stock_parts"`
}

// ComputeReportMetrics aggregates a snapshot. Missing collections and fields
// count as zero; asset collections count only when their module is enabled.
func ComputeReportMetrics(snapshot ReportSnapshot, labels AssetLabels) ReportMetrics {
	var metrics ReportMetrics
	if snapshot.Invoices != nil {
		for _, invoice := range snapshot.Invoices.Data {
			metrics.TotalRevenue += invoice.Total
			metrics.PaidRevenue += invoice.PaidAmount
			metrics.OutstandingBalance += invoice.Balance
			if invoice.Status == invoiceStatusOverdue {
				metrics.OverdueInvoices++
			}
		}
	}
	metrics.TotalCustomers = snapshot.Customers.Len()
	if labels.YachtEnabled {
		metrics.TotalAssets += snapshot.Yachts.Len()
	}
	if labels.DMSEnabled {
		metrics.TotalAssets += snapshot.Vehicles.Len()
	}
	if snapshot.Parts != nil {
		for _, part := range snapshot.Parts.Data {
			if part.IsLowStock() {
				metrics.LowStockParts++
			}
		}
	}
	return metrics
}

// ReportCard is one rendered metric tile.
type ReportCard struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// ReportsView is the view model of the reports page.
type ReportsView struct {
	Metrics          ReportMetrics     `json:"metrics"`
	Cards            []ReportCard      `json:"cards"`
	BusinessIdentity *BusinessIdentity `json:"business_identity,omitempty"`
}

// BuildReportsView renders metrics into cards.
func BuildReportsView(metrics ReportMetrics, labels AssetLabels, branding *Branding) ReportsView {
	return ReportsView{
		Metrics: metrics,
		Cards: []ReportCard{
			{Title: "Total Revenue", Value: FormatCurrency(metrics.TotalRevenue)},
			{Title: "Paid Revenue", Value: FormatCurrency(metrics.PaidRevenue)},
			{Title: "Outstanding Balance", Value: FormatCurrency(metrics.OutstandingBalance)},
			{Title: "Overdue Invoices", Value: formatInt(metrics.OverdueInvoices)},
			{Title: "Total Customers", Value: formatInt(metrics.TotalCustomers)},
			{Title: "Total " + labels.Plural, Value: formatInt(metrics.TotalAssets)},
			{Title: "Low Stock Parts", Value: formatInt(metrics.LowStockParts)},
		},
		BusinessIdentity: BuildBusinessIdentity(branding),
	}
}

func formatInt(value int) string {
	return FormatCount(Amount(value))
}
