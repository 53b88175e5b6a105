package authsvc

import (
	"regexp"
	"strings"

	"github.com/mkrupp/vidrio/internal/domain"
	"github.com/mkrupp/vidrio/internal/repo/user"
)

// emailPattern requires one "@", a dot somewhere after it and no whitespace.
var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// RegistrationForm carries the submitted registration fields.
type RegistrationForm struct {
	Email     string
	Password  string
	Confirm   string
	FirstName string
	LastName  string
	Address   string
	Phone     string
	Company   string
	Accept    bool
}

// LoginForm carries the submitted login fields.
type LoginForm struct {
	Email    string
	Password string
}

// Normalize lowercases the email and trims every text field except the passwords.
func (f RegistrationForm) Normalize() RegistrationForm {
	f.Email = user.NormalizeEmail(f.Email)
	f.FirstName = strings.TrimSpace(f.FirstName)
	f.LastName = strings.TrimSpace(f.LastName)
	f.Address = strings.TrimSpace(f.Address)
	f.Phone = strings.TrimSpace(f.Phone)
	f.Company = strings.TrimSpace(f.Company)

	return f
}

// Validate runs the input checks in order and returns the first failure.
// The form must already be normalized.
func (f RegistrationForm) Validate(cfg AuthConfig) (domain.ValidationKind, bool) {
	switch {
	case f.Email == "" || f.Password == "" || f.Confirm == "" || f.FirstName == "" || f.LastName == "":
		return domain.ValidationMissingFields, false
	case !emailPattern.MatchString(f.Email):
		return domain.ValidationInvalidEmail, false
	case f.Password != f.Confirm:
		return domain.ValidationPasswordMismatch, false
	case len(f.Password) < cfg.MinPasswordLength:
		return domain.ValidationPasswordTooShort, false
	case cfg.RequireConsent && !f.Accept:
		return domain.ValidationConsentRequired, false
	default:
		return "", true
	}
}

// Normalize lowercases and trims the email.
func (f LoginForm) Normalize() LoginForm {
	f.Email = user.NormalizeEmail(f.Email)

	return f
}
