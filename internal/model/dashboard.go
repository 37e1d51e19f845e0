package model

// DashboardStats are the aggregate counters returned by GET /dashboard/stats.
// Every field tolerates absence and decodes to zero.
type DashboardStats struct {
	Customers            Amount `json:"customers"`
	Vehicles             Amount `json:"vehicles"`
	Yachts               Amount `json:"yachts"`
	OpenWorkOrders       Amount `json:"open_work_orders"`
	InProgressWorkOrders Amount `json:"in_progress_work_orders"`
	ActiveInvoices       Amount `json:"active_invoices"`
	OverdueInvoices      Amount `json:"overdue_invoices"`
	TotalRevenue         Amount `json:"total_revenue"`
	PendingQuotes        Amount `json:"pending_quotes"`
}

const (
	StatColorBlue      = "#1976d2"
	StatColorLightBlue = "#0288d1"
	StatColorOrange    = "#ed6c02"
	StatColorAmber     = "#f57c00"
	StatColorRed       = "#d32f2f"
	StatColorGreen     = "#388e3c"
	StatColorPurple    = "#7b1fa2"
)

// StatCard is one rendered dashboard tile.
type StatCard struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Color string `json:"color"`
}

// DashboardView is the view model of the dashboard page.
type DashboardView struct {
	Title         string     `json:"title"`
	Greeting      string     `json:"greeting"`
	BrandingLabel string     `json:"branding_label"`
	ShowStats     bool       `json:"show_stats"`
	Stats         []StatCard `json:"stats,omitempty"`
}

// BuildDashboardStatCards maps counters to the eight stat tiles in display order.
func BuildDashboardStatCards(stats *DashboardStats) []StatCard {
	var values DashboardStats
	if stats != nil {
		values = *stats
	}
	vehicles := values.Vehicles
	if vehicles == 0 {
		vehicles = values.Yachts
	}
	return []StatCard{
		{Title: "Total Customers", Value: FormatCount(values.Customers), Color: StatColorBlue},
		{Title: "Total Vehicles", Value: FormatCount(vehicles), Color: StatColorLightBlue},
		{Title: "Pending Work Orders", Value: FormatCount(values.OpenWorkOrders), Color: StatColorOrange},
		{Title: "In Progress Work Orders", Value: FormatCount(values.InProgressWorkOrders), Color: StatColorLightBlue},
		{Title: "Active Invoices", Value: FormatCount(values.ActiveInvoices), Color: StatColorAmber},
		{Title: "Overdue Invoices", Value: FormatCount(values.OverdueInvoices), Color: StatColorRed},
		{Title: "Total Revenue (YTD)", Value: FormatLocaleCurrency(values.TotalRevenue), Color: StatColorGreen},
		{Title: "Pending Quotes", Value: FormatCount(values.PendingQuotes), Color: StatColorPurple},
	}
}

// BuildDashboardView assembles the dashboard. The stat grid is included only
// for roles allowed to see it.
func BuildDashboardView(user *User, branding *Branding, stats *DashboardStats) DashboardView {
	view := DashboardView{
		Title:         "Dashboard",
		Greeting:      "Welcome, " + user.DisplayName() + "!",
		BrandingLabel: BrandingLabel(branding),
		ShowStats:     user.CanViewDashboardStats(),
	}
	if view.ShowStats {
		view.Stats = BuildDashboardStatCards(stats)
	}
	return view
}
