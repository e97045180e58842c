package validator

import (
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// New creates a new validator instance with custom validations registered.
// Field errors are reported under their JSON names.
func New() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})

	// notblank rejects whitespace-only strings such as "   " coupon codes or SKUs.
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		str, ok := fl.Field().Interface().(string)
		if !ok {
			return true
		}
		return strings.TrimSpace(str) != ""
	})

	// futuretime requires a time.Time strictly after the moment of validation.
	_ = v.RegisterValidation("futuretime", func(fl validator.FieldLevel) bool {
		ts, ok := fl.Field().Interface().(time.Time)
		if !ok {
			return true
		}
		return ts.After(time.Now())
	})

	return v
}
