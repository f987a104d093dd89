package models

import (
	"github.com/go-playground/validator/v10"
)

// knownValue is implemented by every enumeration.
type knownValue interface {
	Valid() bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("known", func(fl validator.FieldLevel) bool {
		k, ok := fl.Field().Interface().(knownValue)
		return !ok || k.Valid()
	})
	return v
}

// Validate checks the validate struct tags of v.
func Validate(v any) error {
	return validate.Struct(v)
}
