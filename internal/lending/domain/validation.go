package lending

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxNameLength = 120

var (
	// ErrInvalidName is returned for empty or overlong names.
	ErrInvalidName = errors.New("requester: invalid name")
	// ErrInvalidEmail is returned for malformed email addresses.
	ErrInvalidEmail = errors.New("requester: invalid email")
	// ErrInvalidPhone is returned for malformed phone numbers.
	ErrInvalidPhone = errors.New("requester: invalid phone")
)

// ValidateContact checks name, email and phone. Email and phone are optional.
func ValidateContact(name, email, phone string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if email != "" {
		if err := ValidateEmail(email); err != nil {
			return err
		}
	}
	if phone != "" {
		if err := ValidatePhone(phone); err != nil {
			return err
		}
	}
	return nil
}

// ValidateName requires a non-blank name of at most 120 characters.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
		return ErrInvalidName
	}
	for _, r := range trimmed {
		if unicode.IsControl(r) {
			return ErrInvalidName
		}
	}
	return nil
}

// ValidateEmail accepts a single bare address.
func ValidateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != strings.TrimSpace(email) {
		return ErrInvalidEmail
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || !strings.Contains(addr.Address[at+1:], ".") {
		return ErrInvalidEmail
	}
	return nil
}

// ValidatePhone accepts an optional leading '+' and 7 to 15 digits separated by spaces or dashes.
func ValidatePhone(phone string) error {
	value := strings.TrimSpace(phone)
	value = strings.TrimPrefix(value, "+")
	digits := 0
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-':
		default:
			return ErrInvalidPhone
		}
	}
	if digits < 7 || digits > 15 {
		return ErrInvalidPhone
	}
	return nil
}
