// Package summary derives monthly figures from the ledger. Every function is
// pure: it reads its inputs, never modifies them, and does no I/O.
package summary

import (
	"sort"

	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

var hundred = decimal.NewFromInt(100)

// TransactionsForMonth returns the transactions dated within month, in input order.
func TransactionsForMonth(txs []core.Transaction, month core.Month) []core.Transaction {
	out := make([]core.Transaction, 0)
	for _, t := range txs {
		if month.Contains(t.Date) {
			out = append(out, t)
		}
	}
	return out
}

// BudgetsForMonth returns the budgets set for month, in input order.
func BudgetsForMonth(budgets []core.Budget, month core.Month) []core.Budget {
	out := make([]core.Budget, 0)
	for _, b := range budgets {
		if b.Month == month {
			out = append(out, b)
		}
	}
	return out
}

// Compute builds the MonthlySummary of month. today bounds the daily series;
// a month that starts after today has no daily entries.
func Compute(txs []core.Transaction, budgets []core.Budget, month core.Month, today core.Date) core.MonthlySummary {
	current := TransactionsForMonth(txs, month)
	income, expenses := totals(current)
	prevIncome, prevExpenses := totals(TransactionsForMonth(txs, month.Prev()))

	monthBudgets := BudgetsForMonth(budgets, month)
	budgetTotal := decimal.Zero
	for _, b := range monthBudgets {
		budgetTotal = budgetTotal.Add(b.Limit)
	}

	return core.MonthlySummary{
		Month:             month,
		TotalIncome:       income,
		TotalExpenses:     expenses,
		NetSavings:        income.Sub(expenses),
		BudgetUsage:       percent(expenses, budgetTotal),
		CategoryBreakdown: breakdown(current, monthBudgets, expenses),
		DailySpending:     daily(current, month, today),
		VsLastMonth: core.Delta{
			Expenses: change(prevExpenses, expenses),
			Income:   change(prevIncome, income),
		},
	}
}

func totals(txs []core.Transaction) (income, expenses decimal.Decimal) {
	income, expenses = decimal.Zero, decimal.Zero
	for _, t := range txs {
		switch t.Kind {
		case core.Income:
			income = income.Add(t.Amount)
		case core.Expense:
			expenses = expenses.Add(t.Amount)
		}
	}
	return income, expenses
}

func breakdown(txs []core.Transaction, budgets []core.Budget, total decimal.Decimal) []core.CategorySpending {
	byCategory := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if t.Kind != core.Expense {
			continue
		}
		byCategory[t.CategoryID] = byCategory[t.CategoryID].Add(t.Amount)
	}

	out := make([]core.CategorySpending, 0, len(byCategory))
	for id, amount := range byCategory {
		cs := core.CategorySpending{
			CategoryID:   id,
			Amount:       amount,
			ShareOfTotal: percent(amount, total),
		}
		for _, b := range budgets {
			if b.CategoryID == id {
				limit := b.Limit
				cs.BudgetLimit = &limit
				break
			}
		}
		out = append(out, cs)
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Amount.Cmp(out[j].Amount); c != 0 {
			return c > 0
		}
		return out[i].CategoryID < out[j].CategoryID
	})
	return out
}

func daily(txs []core.Transaction, month core.Month, today core.Date) []core.DailySpending {
	first := month.First()
	if first.After(today) {
		return []core.DailySpending{}
	}
	last := month.Last()
	if today.Before(last) {
		last = today
	}

	byDay := make(map[string]decimal.Decimal)
	for _, t := range txs {
		if t.Kind == core.Expense {
			byDay[t.Date.String()] = byDay[t.Date.String()].Add(t.Amount)
		}
	}

	out := make([]core.DailySpending, 0, last.Day())
	for d := first; !d.After(last); d = d.AddDays(1) {
		amount, ok := byDay[d.String()]
		if !ok {
			amount = decimal.Zero
		}
		out = append(out, core.DailySpending{Date: d, Amount: amount})
	}
	return out
}

// percent returns part/whole on a 0..100 scale, or 0 when whole is not positive.
func percent(part, whole decimal.Decimal) float64 {
	if !whole.IsPositive() {
		return 0
	}
	return part.Mul(hundred).Div(whole).InexactFloat64()
}

// change is the percent change from prev to cur, or 0 without a baseline.
func change(prev, cur decimal.Decimal) float64 {
	if !prev.IsPositive() {
		return 0
	}
	return cur.Sub(prev).Mul(hundred).Div(prev).InexactFloat64()
}
