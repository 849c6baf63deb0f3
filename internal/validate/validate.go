// Package validate checks form input before it reaches the backend. A
// Validator collects field errors and returns them as one *Error.
package validate

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Supported social platforms.
var Platforms = []string{"instagram", "tiktok", "twitter", "youtube", "linkedin", "facebook"}

// FieldError is one failed rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is returned when any rule failed. It blocks submission.
type Error struct {
	Details []FieldError `json:"details"`
}

// Error returns the first field message, which is what a form shows first.
func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return "Validation failed"
	}
	return e.Details[0].Message
}

// Field returns the first message for field, or "".
func (e *Error) Field(field string) string {
	for _, d := range e.Details {
		if d.Field == field {
			return d.Message
		}
	}
	return ""
}

// As returns the *Error in err's chain, or nil.
func As(err error) *Error {
	var ve *Error
	if errors.As(err, &ve) {
		return ve
	}
	return nil
}

// Validator is not safe for concurrent use; create one per form.
type Validator struct {
	errs []FieldError
}

// Required fails if the trimmed value is empty.
func (v *Validator) Required(field, value string) *Validator {
	if strings.TrimSpace(value) == "" {
		v.add(field, "This field is required")
	}
	return v
}

// Len fails unless min <= rune count <= max.
func (v *Validator) Len(field, label, value string, min, max int) *Validator {
	n := utf8.RuneCountInString(strings.TrimSpace(value))
	switch {
	case n < min:
		v.add(field, fmt.Sprintf("%s must be at least %d characters", label, min))
	case n > max:
		v.add(field, fmt.Sprintf("%s must be at most %d characters", label, max))
	}
	return v
}

// Email fails if the value is not an RFC 5322 address.
func (v *Validator) Email(field, value string) *Validator {
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != strings.TrimSpace(value) {
		v.add(field, "Invalid email address")
	}
	return v
}

// Password enforces the complexity rules. Only the first failing rule is
// reported.
func (v *Validator) Password(field, value string) *Validator {
	if utf8.RuneCountInString(value) < 8 {
		v.add(field, "Password must be at least 8 characters")
		return v
	}

	var upper, lower, digit, special bool
	for _, r := range value {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			special = true
		}
	}
	switch {
	case !upper:
		v.add(field, "Password must contain at least one uppercase letter")
	case !lower:
		v.add(field, "Password must contain at least one lowercase letter")
	case !digit:
		v.add(field, "Password must contain at least one number")
	case !special:
		v.add(field, "Password must contain at least one special character")
	}
	return v
}

// OneOf fails if value is not in allowed.
func (v *Validator) OneOf(field, value string, allowed ...string) *Validator {
	for _, a := range allowed {
		if value == a {
			return v
		}
	}
	v.add(field, fmt.Sprintf("Must be one of: %s", strings.Join(allowed, ", ")))
	return v
}

// Custom adds message if failed is true.
func (v *Validator) Custom(field string, failed bool, message string) *Validator {
	if failed {
		v.add(field, message)
	}
	return v
}

func (v *Validator) HasErrors() bool {
	return len(v.errs) > 0
}

// Err returns *Error if any rule failed, nil otherwise.
func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return &Error{Details: append([]FieldError(nil), v.errs...)}
}

func (v *Validator) add(field, message string) {
	v.errs = append(v.errs, FieldError{Field: field, Message: message})
}
