package forms

import "regexp"

// User-facing validation messages, in check order.
const (
	MsgMissingContact = "Please provide either an email or a phone number."
	MsgInvalidPhone   = "Please enter a valid phone number."
	MsgInvalidEmail   = "Please enter a valid email address."
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidationError carries the message shown in the form's error slot.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return "forms: validation failed: " + e.Message }

// IsValidEmail checks the local@domain.tld shape.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// Validate applies the submission rules; the first failure wins.
func Validate(m MappedAttributes) error {
	email := m.Email()
	if email == "" && m.PhoneNumber() == "" {
		return &ValidationError{Message: MsgMissingContact}
	}
	if m.PhoneRejected {
		return &ValidationError{Message: MsgInvalidPhone}
	}
	if email != "" && !IsValidEmail(email) {
		return &ValidationError{Message: MsgInvalidEmail}
	}
	return nil
}
