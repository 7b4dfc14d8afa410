package validation

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type record struct {
	Name   string          `json:"name" validate:"required,max=5"`
	Amount decimal.Decimal `json:"amount" validate:"gt=0"`
	Kind   string          `json:"type" validate:"oneof=income expense"`
	Color  string          `json:"color" validate:"color"`
}

type ValidatorTestSuite struct {
	suite.Suite
	v *Validator
}

func (s *ValidatorTestSuite) SetupTest() {
	s.v = NewValidator(map[string]func(string) bool{
		"color": func(v string) bool { return v == "red" || v == "blue" },
	})
}

func TestValidatorTestSuite(t *testing.T) {
	suite.Run(t, new(ValidatorTestSuite))
}

func (s *ValidatorTestSuite) valid() record {
	return record{Name: "rent", Amount: decimal.RequireFromString("12.50"), Kind: "expense", Color: "red"}
}

func (s *ValidatorTestSuite) TestStruct_Valid() {
	s.NoError(s.v.Struct(s.valid()))
}

func (s *ValidatorTestSuite) TestStruct_ReportsFirstFieldByJSONName() {
	tests := []struct {
		name    string
		modify  func(r *record)
		field   string
		tag     string
		message string
	}{
		{"missing name", func(r *record) { r.Name = "" }, "name", "required", "is required"},
		{"long name", func(r *record) { r.Name = "groceries" }, "name", "max", "must be at most 5 characters"},
		{"zero amount", func(r *record) { r.Amount = decimal.Zero }, "amount", "gt", "must be greater than 0"},
		{"negative amount", func(r *record) { r.Amount = decimal.NewFromInt(-3) }, "amount", "gt", "must be greater than 0"},
		{"unknown kind", func(r *record) { r.Kind = "transfer" }, "type", "oneof", "must be one of [income expense]"},
		{"custom rule", func(r *record) { r.Color = "green" }, "color", "color", `failed "color" rule`},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			r := s.valid()
			tt.modify(&r)

			err := s.v.Struct(r)
			var fe *FieldError
			s.Require().True(errors.As(err, &fe), "want *FieldError, got %v", err)
			s.Equal(tt.field, fe.Field)
			s.Equal(tt.tag, fe.Tag)
			s.Equal(tt.message, fe.Message)
			s.Equal(tt.field+": "+tt.message, fe.Error())
		})
	}
}

func (s *ValidatorTestSuite) TestStruct_NonStructInput() {
	err := s.v.Struct(42)
	s.Error(err)
	var fe *FieldError
	s.False(errors.As(err, &fe))
}
