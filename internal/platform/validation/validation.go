// Package validation adapts go-playground/validator to echo and to the
// apperr error kinds.
package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/medbook/medbook/internal/platform/apperr"
	"github.com/medbook/medbook/pkg/civil"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// Validator implements echo.Validator.
type Validator struct {
	v *validator.Validate
}

// New returns a Validator that reports JSON field names and knows the
// phone10, civildate and civiltime tags.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("phone10", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("civildate", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("civiltime", func(fl validator.FieldLevel) bool {
		_, err := civil.ParseTime(fl.Field().String())
		return err == nil
	})
	return &Validator{v: v}
}

// Validate checks struct tags and returns an apperr.ErrValidation error
// listing every failing field.
func (cv *Validator) Validate(i interface{}) error {
	err := cv.v.Struct(i)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return apperr.Validationf("%v", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return apperr.Validationf("%s", strings.Join(msgs, "; "))
}

func describe(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "email":
		return field + " must be a valid email address"
	case "phone10":
		return field + " must be exactly 10 digits"
	case "civildate":
		return field + " must be a date in YYYY-MM-DD format"
	case "civiltime":
		return field + " must be a time in HH:MM format"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "uuid":
		return field + " must be a valid UUID"
	}
	return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
}
