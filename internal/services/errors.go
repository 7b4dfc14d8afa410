package services

import (
	"errors"

	"fintrack/internal/core"
)

var ErrClosed = errors.New("finance service closed")

// Rejections raised before any cache change. They are returned wrapped in a
// core.ValidationError, so they also match core.ErrValidation.
var (
	ErrBudgetCategoryChange = errors.New("the category of an existing budget cannot change")
	ErrDuplicateBudget      = errors.New("a budget for this month and category already exists")
	ErrUnknownTransaction   = errors.New("unknown transaction")
	ErrUnknownBudget        = errors.New("unknown budget")
	ErrMissingID            = errors.New("id is required")
)

func rejected(field string, err error) error {
	return core.Invalid(field, err)
}
