package core

// Category is static reference data; it is not user-mutable.
type Category struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Icon  string `json:"icon"`
	Color string `json:"color"`
}

var defaultCategories = []Category{
	{ID: "food", Name: "Food & Dining", Icon: "UtensilsCrossed", Color: "hsl(38, 92%, 50%)"},
	{ID: "transport", Name: "Transport", Icon: "Car", Color: "hsl(200, 70%, 50%)"},
	{ID: "shopping", Name: "Shopping", Icon: "ShoppingBag", Color: "hsl(280, 60%, 55%)"},
	{ID: "entertainment", Name: "Entertainment", Icon: "Gamepad2", Color: "hsl(330, 70%, 55%)"},
	{ID: "bills", Name: "Bills & Utilities", Icon: "Receipt", Color: "hsl(220, 60%, 50%)"},
	{ID: "health", Name: "Health", Icon: "Heart", Color: "hsl(0, 72%, 60%)"},
	{ID: "groceries", Name: "Groceries", Icon: "Apple", Color: "hsl(140, 60%, 45%)"},
	{ID: "salary", Name: "Salary", Icon: "Wallet", Color: "hsl(158, 64%, 40%)"},
	{ID: "freelance", Name: "Freelance", Icon: "Laptop", Color: "hsl(180, 60%, 45%)"},
	{ID: "investments", Name: "Investments", Icon: "TrendingUp", Color: "hsl(158, 64%, 35%)"},
	{ID: "gifts", Name: "Gifts", Icon: "Gift", Color: "hsl(350, 70%, 55%)"},
	{ID: "other", Name: "Other", Icon: "MoreHorizontal", Color: "hsl(220, 10%, 50%)"},
}

var (
	incomeOnly     = map[string]bool{"salary": true, "freelance": true, "investments": true}
	incomeAllowed  = map[string]bool{"salary": true, "freelance": true, "investments": true, "gifts": true, "other": true}
	categoriesByID = func() map[string]Category {
		m := make(map[string]Category, len(defaultCategories))
		for _, c := range defaultCategories {
			m[c.ID] = c
		}
		return m
	}()
)

// Categories returns the full catalog in display order.
func Categories() []Category {
	return append([]Category(nil), defaultCategories...)
}

func CategoryByID(id string) (Category, bool) {
	c, ok := categoriesByID[id]
	return c, ok
}

// ExpenseCategories lists the categories an expense (and a budget) may use.
func ExpenseCategories() []Category {
	out := make([]Category, 0, len(defaultCategories))
	for _, c := range defaultCategories {
		if !incomeOnly[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

// IncomeCategories lists the categories offered for income.
func IncomeCategories() []Category {
	out := make([]Category, 0, len(incomeAllowed))
	for _, c := range defaultCategories {
		if incomeAllowed[c.ID] {
			out = append(out, c)
		}
	}
	return out
}

func IsExpenseCategory(id string) bool {
	_, ok := categoriesByID[id]
	return ok && !incomeOnly[id]
}
