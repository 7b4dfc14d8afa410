package core

import (
	"errors"

	"fintrack/internal/validation"
)

type recordValidator struct {
	v *validation.Validator
}

var structValidator = recordValidator{
	v: validation.NewValidator(map[string]func(string) bool{
		"category": func(id string) bool {
			_, ok := CategoryByID(id)
			return ok
		},
	}),
}

// Struct runs the tag rules and converts the first failure into a ValidationError.
func (rv recordValidator) Struct(s any) error {
	err := rv.v.Struct(s)
	if err == nil {
		return nil
	}
	var fe *validation.FieldError
	if errors.As(err, &fe) {
		return &ValidationError{Field: fe.Field, Reason: fe.Message, Err: err}
	}
	return &ValidationError{Reason: err.Error(), Err: err}
}
