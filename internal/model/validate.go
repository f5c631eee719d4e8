package model

import "github.com/go-playground/validator/v10"

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a snapshot at the boundary where external data enters the
// core. Internal logic assumes validated shapes and never re-checks them.
func Validate(v any) error {
	return validate.Struct(v)
}
