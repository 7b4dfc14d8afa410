package ledger

import "fintrack/internal/core"

// The functions below are the record-level edit rules of the ledger. They
// never modify their input slice; the Mutation Cache replays them over its
// snapshots so cache and store apply the same edit.

// UpsertTransaction replaces the transaction with the same id, or prepends t.
func UpsertTransaction(list []core.Transaction, t core.Transaction) []core.Transaction {
	for i := range list {
		if list[i].ID == t.ID {
			out := append([]core.Transaction(nil), list...)
			out[i] = t
			return out
		}
	}
	out := make([]core.Transaction, 0, len(list)+1)
	out = append(out, t)
	return append(out, list...)
}

// RemoveTransaction drops the transaction with the given id.
func RemoveTransaction(list []core.Transaction, id string) []core.Transaction {
	out := make([]core.Transaction, 0, len(list))
	for _, t := range list {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

// UpsertBudget replaces the budget with the same id. Without an id match it
// overwrites the budget holding the same month and category. Otherwise b is
// appended. Any other budget left on b's month and category is dropped, so at
// most one budget exists per key even when an edit moves a budget.
func UpsertBudget(list []core.Budget, b core.Budget) []core.Budget {
	idx := IndexBudget(list, b)
	out := make([]core.Budget, 0, len(list)+1)
	for i, x := range list {
		switch {
		case i == idx:
			out = append(out, b)
		case x.Month == b.Month && x.CategoryID == b.CategoryID:
		default:
			out = append(out, x)
		}
	}
	if idx < 0 {
		out = append(out, b)
	}
	return out
}

// IndexBudget returns the position UpsertBudget would overwrite, or -1.
func IndexBudget(list []core.Budget, b core.Budget) int {
	for i := range list {
		if list[i].ID == b.ID {
			return i
		}
	}
	for i := range list {
		if list[i].Month == b.Month && list[i].CategoryID == b.CategoryID {
			return i
		}
	}
	return -1
}

// FindBudget returns the budget with the given id.
func FindBudget(list []core.Budget, id string) (core.Budget, bool) {
	for _, b := range list {
		if b.ID == id {
			return b, true
		}
	}
	return core.Budget{}, false
}

// FindTransaction returns the transaction with the given id.
func FindTransaction(list []core.Transaction, id string) (core.Transaction, bool) {
	for _, t := range list {
		if t.ID == id {
			return t, true
		}
	}
	return core.Transaction{}, false
}

// RemoveBudget drops the budget with the given id.
func RemoveBudget(list []core.Budget, id string) []core.Budget {
	out := make([]core.Budget, 0, len(list))
	for _, b := range list {
		if b.ID != id {
			out = append(out, b)
		}
	}
	return out
}
