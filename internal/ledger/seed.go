package ledger

import (
	"sort"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/shopspring/decimal"

	"fintrack/internal/core"
)

// SeedMonths is how many months of sample data the seeder produces, the
// current month included.
const SeedMonths = 3

// DefaultBudgetLimits are the monthly limits seeded for every sample month.
var DefaultBudgetLimits = []struct {
	CategoryID string
	Limit      int64
}{
	{"food", 400},
	{"transport", 150},
	{"shopping", 200},
	{"entertainment", 100},
	{"bills", 300},
	{"health", 100},
	{"groceries", 350},
}

var expenseNotes = map[string][]string{
	"food":          {"Lunch at café", "Dinner with friends", "Coffee run", "Takeout order", "Restaurant"},
	"transport":     {"Uber ride", "Gas station", "Metro pass", "Parking", "Bus ticket"},
	"shopping":      {"New shoes", "Amazon order", "Clothes", "Electronics", "Home decor"},
	"entertainment": {"Netflix subscription", "Concert tickets", "Movie night", "Gaming", "Spotify"},
	"health":        {"Pharmacy", "Gym membership", "Doctor visit", "Vitamins", "Dental"},
	"groceries":     {"Weekly groceries", "Whole Foods", "Farmers market", "Costco run", "Quick grocery stop"},
}

var freelanceNotes = []string{"Client project", "Consulting fee", "Design work", "Development gig"}

// Seeder generates sample ledger data. A fixed seed gives identical output
// for the same day; seed 0 picks a random one.
type Seeder struct {
	faker *gofakeit.Faker
}

func NewSeeder(seed uint64) *Seeder {
	return &Seeder{faker: gofakeit.New(seed)}
}

// Generate returns transactions, newest first, and budgets covering the month
// of today and the SeedMonths-1 months before it. No transaction is dated
// after today.
func (s *Seeder) Generate(today core.Date) ([]core.Transaction, []core.Budget) {
	var txs []core.Transaction
	var budgets []core.Budget

	current := today.Month()
	for offset := 0; offset < SeedMonths; offset++ {
		month := current.AddMonths(-offset)
		first := month.First()
		days := month.Days()
		if offset == 0 {
			days = today.Day()
		}

		txs = append(txs, s.tx(first, s.amount(4500, 5500), core.Income, "salary", "Monthly salary"))
		if s.chance(50) {
			txs = append(txs, s.tx(s.dayIn(month, 5, 20, today), s.amount(500, 1500), core.Income, "freelance", s.faker.RandomString(freelanceNotes)))
		}

		for day := 0; day < days; day++ {
			date := first.AddDays(day)
			for i := s.faker.IntRange(1, 3); i > 0; i-- {
				if s.chance(70) {
					txs = append(txs, s.expense(date, 8, 45, "food"))
				}
			}
			if s.chance(40) {
				txs = append(txs, s.expense(date, 5, 35, "transport"))
			}
			if day%3 == 0 && s.chance(60) {
				txs = append(txs, s.expense(date, 40, 120, "groceries"))
			}
			if s.chance(15) {
				txs = append(txs, s.expense(date, 25, 150, "shopping"))
			}
			if s.chance(20) {
				txs = append(txs, s.expense(date, 10, 50, "entertainment"))
			}
			if s.chance(8) {
				txs = append(txs, s.expense(date, 20, 100, "health"))
			}
		}

		txs = append(txs,
			s.tx(s.dayIn(month, 5, 15, today), s.amount(80, 150), core.Expense, "bills", "Electric bill"),
			s.tx(s.dayIn(month, 5, 15, today), s.amount(50, 80), core.Expense, "bills", "Internet"),
			s.tx(s.dayIn(month, 5, 15, today), s.amount(40, 70), core.Expense, "bills", "Phone plan"),
		)

		for _, l := range DefaultBudgetLimits {
			budgets = append(budgets, core.Budget{
				ID:         s.faker.UUID(),
				Month:      month,
				CategoryID: l.CategoryID,
				Limit:      decimal.NewFromInt(l.Limit),
			})
		}
	}

	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
	return txs, budgets
}

func (s *Seeder) expense(date core.Date, lo, hi int, category string) core.Transaction {
	return s.tx(date, s.amount(lo, hi), core.Expense, category, s.faker.RandomString(expenseNotes[category]))
}

func (s *Seeder) tx(date core.Date, amount decimal.Decimal, kind core.Kind, category, note string) core.Transaction {
	return core.Transaction{
		ID:         s.faker.UUID(),
		Date:       date,
		Amount:     amount,
		Kind:       kind,
		CategoryID: category,
		Note:       note,
	}
}

func (s *Seeder) amount(lo, hi int) decimal.Decimal {
	return decimal.NewFromInt(int64(s.faker.IntRange(lo, hi)))
}

// chance reports true with the given probability in percent.
func (s *Seeder) chance(percent int) bool {
	return s.faker.IntRange(1, 100) <= percent
}

// dayIn picks a day offset in [lo, hi] from the first of month, clamped to the
// month and to today.
func (s *Seeder) dayIn(month core.Month, lo, hi int, today core.Date) core.Date {
	d := month.First().AddDays(s.faker.IntRange(lo, hi))
	if last := month.Last(); d.After(last) {
		d = last
	}
	if d.After(today) {
		d = today
	}
	return d
}
