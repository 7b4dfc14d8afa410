package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	Income  Kind = "income"
	Expense Kind = "expense"
)

// MaxNoteLength is the longest note a transaction may carry.
const MaxNoteLength = 200

type (
	// Kind tells income and expense transactions apart.
	Kind string

	Transaction struct {
		ID         string          `json:"id" validate:"required"`
		Date       Date            `json:"date"`
		Amount     decimal.Decimal `json:"amount" validate:"gt=0"`
		Kind       Kind            `json:"type" validate:"oneof=income expense"`
		CategoryID string          `json:"categoryId" validate:"required,category"`
		Note       string          `json:"note" validate:"max=200"`
	}

	Budget struct {
		ID         string          `json:"id" validate:"required"`
		Month      Month           `json:"month"`
		CategoryID string          `json:"categoryId" validate:"required,category"`
		Limit      decimal.Decimal `json:"limit" validate:"gt=0"`
	}

	Settings struct {
		CurrencyCode   string       `json:"currency" validate:"len=3,alpha"`
		CurrencySymbol string       `json:"currencySymbol" validate:"required"`
		WeekStartDay   time.Weekday `json:"startDayOfWeek" validate:"gte=0,lte=6"`
	}
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrInvalidKind     = errors.New("invalid transaction kind")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidMonth    = errors.New("invalid month")
	ErrUnknownCategory = errors.New("unknown category")
	ErrNoteTooLong     = errors.New("note too long (max 200 characters)")
)

// ValidationError reports a record rejected before it reaches the cache or the store.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Is makes every ValidationError match ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError for field wrapping cause.
func Invalid(field string, cause error) *ValidationError {
	return &ValidationError{Field: field, Reason: cause.Error(), Err: cause}
}

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

func (k Kind) Valid() bool {
	return k == Income || k == Expense
}

// ParseKind accepts "income" and "expense" in any case.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", Invalid("kind", ErrInvalidKind)
	}
	return k, nil
}

// NewTransaction builds a Transaction and enforces its invariants. An empty id
// gets a generated one.
func NewTransaction(id string, date Date, amount decimal.Decimal, kind Kind, categoryID, note string) (Transaction, error) {
	if strings.TrimSpace(id) == "" {
		id = NewID()
	}
	t := Transaction{
		ID:         id,
		Date:       date,
		Amount:     amount,
		Kind:       kind,
		CategoryID: strings.TrimSpace(categoryID),
		Note:       strings.TrimSpace(note),
	}
	if err := t.Validate(); err != nil {
		return Transaction{}, err
	}
	return t, nil
}

// Validate checks a transaction received from outside the constructor.
func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return Invalid("date", err)
	}
	if !t.Amount.IsPositive() {
		return Invalid("amount", ErrInvalidAmount)
	}
	if !t.Kind.Valid() {
		return Invalid("kind", ErrInvalidKind)
	}
	if _, ok := CategoryByID(t.CategoryID); !ok {
		return Invalid("categoryId", fmt.Errorf("%w: %q", ErrUnknownCategory, t.CategoryID))
	}
	if len([]rune(t.Note)) > MaxNoteLength {
		return Invalid("note", ErrNoteTooLong)
	}
	return structValidator.Struct(t)
}

// Month returns the calendar month the transaction falls in.
func (t Transaction) Month() Month {
	return t.Date.Month()
}

// NewBudget builds a Budget and enforces its invariants. Budgets only apply to
// expense categories.
func NewBudget(id string, month Month, categoryID string, limit decimal.Decimal) (Budget, error) {
	if strings.TrimSpace(id) == "" {
		id = NewID()
	}
	b := Budget{
		ID:         id,
		Month:      month,
		CategoryID: strings.TrimSpace(categoryID),
		Limit:      limit,
	}
	if err := b.Validate(); err != nil {
		return Budget{}, err
	}
	return b, nil
}

func (b Budget) Validate() error {
	if err := b.Month.Validate(); err != nil {
		return Invalid("month", err)
	}
	if !b.Limit.IsPositive() {
		return Invalid("limit", ErrInvalidAmount)
	}
	if !IsExpenseCategory(b.CategoryID) {
		return Invalid("categoryId", fmt.Errorf("%w: %q is not an expense category", ErrUnknownCategory, b.CategoryID))
	}
	return structValidator.Struct(b)
}

// Key is the natural key of a budget: at most one budget exists per month and category.
func (b Budget) Key() string {
	return b.Month.String() + "/" + b.CategoryID
}

// DefaultSettings mirrors the first-run settings.
func DefaultSettings() Settings {
	return Settings{
		CurrencyCode:   "USD",
		CurrencySymbol: "$",
		WeekStartDay:   time.Monday,
	}
}

func NewSettings(code, symbol string, weekStart time.Weekday) (Settings, error) {
	s := Settings{
		CurrencyCode:   strings.ToUpper(strings.TrimSpace(code)),
		CurrencySymbol: strings.TrimSpace(symbol),
		WeekStartDay:   weekStart,
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (s Settings) Validate() error {
	return structValidator.Struct(s)
}
