package core

import "github.com/shopspring/decimal"

// CategorySpending is the expense total of one category within a month.
type CategorySpending struct {
	CategoryID string          `json:"categoryId"`
	Amount     decimal.Decimal `json:"amount"`
	// ShareOfTotal is a percentage of the month's expenses (0..100).
	ShareOfTotal float64          `json:"percentage"`
	BudgetLimit  *decimal.Decimal `json:"budgetLimit,omitempty"`
}

// DailySpending is the expense total of a single day.
type DailySpending struct {
	Date   Date            `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// Delta holds month-over-month percentage changes.
type Delta struct {
	Expenses float64 `json:"expenses"`
	Income   float64 `json:"income"`
}

// MonthlySummary is derived from the ledger and never persisted.
type MonthlySummary struct {
	Month         Month           `json:"month"`
	TotalIncome   decimal.Decimal `json:"totalIncome"`
	TotalExpenses decimal.Decimal `json:"totalExpenses"`
	NetSavings    decimal.Decimal `json:"netSavings"`
	// BudgetUsage is expenses over the sum of budget limits, as a percentage.
	BudgetUsage       float64            `json:"budgetUsage"`
	CategoryBreakdown []CategorySpending `json:"categoryBreakdown"`
	DailySpending     []DailySpending    `json:"dailySpending"`
	VsLastMonth       Delta              `json:"vsLastMonth"`
}
