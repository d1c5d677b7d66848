package validator

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
)

var disposableEmailDomains = []string{
	"10minutemail.com", "guerrillamail.com", "mailinator.com", "tempmail.org",
	"yopmail.com", "maildrop.cc", "temp-mail.org", "throwaway.email",
}

var (
	hasLetter = regexp.MustCompile(`\pL`)
	hasDigit  = regexp.MustCompile(`\d`)
	clockTime = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)
)

type Validator struct {
	validate *validator.Validate
	now      func() time.Time
}

// FieldError describes one failed rule in client terms.
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

func New() *Validator {
	v := &Validator{validate: validator.New(), now: time.Now}

	// Report JSON names rather than Go field names.
	v.validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	// Custom validators
	_ = v.validate.RegisterValidation("password_strength", validatePasswordStrength)
	_ = v.validate.RegisterValidation("no_disposable_email", validateNoDisposableEmail)
	_ = v.validate.RegisterValidation("future", v.validateFuture)
	_ = v.validate.RegisterValidation("hhmm", validateClockTime)
	_ = v.validate.RegisterValidation("iana_tz", validateTimezone)

	return v
}

func (v *Validator) Validate(i any) error {
	return v.validate.Struct(i)
}

// Var validates a single value against a tag list.
func (v *Validator) Var(field any, tag string) error {
	return v.validate.Var(field, tag)
}

// FieldErrors flattens a validation failure. Other errors yield nil.
func FieldErrors(err error) []FieldError {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}

	out := make([]FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: message(fe),
		})
	}
	return out
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", fe.Field(), fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", fe.Field(), strings.Join(strings.Fields(fe.Param()), ", "))
	case "password_strength":
		return fmt.Sprintf("%s must be at least 6 characters and contain a letter and a digit", fe.Field())
	case "no_disposable_email":
		return fmt.Sprintf("%s must not use a disposable email provider", fe.Field())
	case "future":
		return fmt.Sprintf("%s must be in the future", fe.Field())
	case "hhmm":
		return fmt.Sprintf("%s must use the HH:MM format", fe.Field())
	case "iana_tz":
		return fmt.Sprintf("%s must be an IANA timezone name", fe.Field())
	}
	return fmt.Sprintf("%s failed the %s rule", fe.Field(), fe.Tag())
}

func validatePasswordStrength(fl validator.FieldLevel) bool {
	password := fl.Field().String()

	if len([]rune(password)) < 6 {
		return false
	}

	return hasLetter.MatchString(password) && hasDigit.MatchString(password)
}

func validateNoDisposableEmail(fl validator.FieldLevel) bool {
	email := fl.Field().String()
	emailParts := strings.Split(email, "@")
	if len(emailParts) != 2 {
		return false
	}

	domain := strings.ToLower(emailParts[1])
	for _, disposableDomain := range disposableEmailDomains {
		if domain == disposableDomain {
			return false
		}
	}

	return true
}

func (v *Validator) validateFuture(fl validator.FieldLevel) bool {
	t, ok := fl.Field().Interface().(time.Time)
	if !ok {
		return false
	}
	return t.After(v.now())
}

func validateClockTime(fl validator.FieldLevel) bool {
	return clockTime.MatchString(fl.Field().String())
}

func validateTimezone(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	if name == "" || name == "Local" {
		return false
	}
	_, err := time.LoadLocation(name)
	return err == nil
}
