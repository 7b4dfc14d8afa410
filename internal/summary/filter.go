package summary

import (
	"sort"
	"strings"

	"fintrack/internal/core"
)

// Criteria narrows a transaction list. Zero fields match everything.
type Criteria struct {
	Kind       core.Kind
	CategoryID string
	// Query is matched case-insensitively against the note, the category
	// name and the amount.
	Query string
}

// DayGroup holds the transactions of one calendar day.
type DayGroup struct {
	Date         core.Date          `json:"date"`
	Transactions []core.Transaction `json:"transactions"`
}

// Filter returns the transactions matching c, in input order.
func Filter(txs []core.Transaction, c Criteria) []core.Transaction {
	query := strings.ToLower(strings.TrimSpace(c.Query))
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if c.Kind != "" && t.Kind != c.Kind {
			continue
		}
		if c.CategoryID != "" && t.CategoryID != c.CategoryID {
			continue
		}
		if query != "" && !matches(t, query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matches(t core.Transaction, query string) bool {
	if strings.Contains(strings.ToLower(t.Note), query) {
		return true
	}
	if cat, ok := core.CategoryByID(t.CategoryID); ok && strings.Contains(strings.ToLower(cat.Name), query) {
		return true
	}
	return strings.Contains(t.Amount.String(), query)
}

// GroupByDate buckets transactions per day, newest day first. Within a day
// the input order is kept.
func GroupByDate(txs []core.Transaction) []DayGroup {
	index := make(map[string]int)
	var groups []DayGroup
	for _, t := range txs {
		key := t.Date.String()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DayGroup{Date: t.Date})
		}
		groups[i].Transactions = append(groups[i].Transactions, t)
	}

	sort.Slice(groups, func(i, j int) bool {
		return groups[i].Date.After(groups[j].Date)
	})
	return groups
}
