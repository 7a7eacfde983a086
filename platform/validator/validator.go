// Package validator provides request validation infrastructure.
// This is part of the platform layer and contains no business logic.
package validator

import "github.com/go-playground/validator/v10"

// Validator wraps the go-playground validator so handlers receive it by
// injection instead of reaching for a package-level instance.
type Validator struct {
	v *validator.Validate
}

// New creates a Validator with the default tag-based rules.
func New() *Validator {
	return &Validator{
		v: validator.New(),
	}
}

// Struct validates a struct against its binding tags.
func (val *Validator) Struct(s interface{}) error {
	return val.v.Struct(s)
}

// Var validates a single value against a tag expression.
func (val *Validator) Var(field interface{}, tag string) error {
	return val.v.Var(field, tag)
}

// RegisterValidation registers a custom validation function under a tag.
func (val *Validator) RegisterValidation(tag string, fn validator.Func) error {
	return val.v.RegisterValidation(tag, fn)
}
