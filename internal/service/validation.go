package service

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// Saudi mobile numbers in E.164: +9665 followed by eight digits.
var saudiPhonePattern = regexp.MustCompile(`^\+9665\d{8}$`)

// NewValidator returns a validator with the portal's custom rules
// registered. Services constructed with a nil validator fall back to this.
func NewValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("saudi_phone", func(fl validator.FieldLevel) bool {
		return saudiPhonePattern.MatchString(fl.Field().String())
	})
	return v
}
