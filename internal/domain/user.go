package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUserAlreadyExists is returned when a uniqueness constraint on users rejects a write.
	ErrUserAlreadyExists = errors.New("user already exists")
	// ErrDuplicateEmail is returned when the email is already registered.
	ErrDuplicateEmail = fmt.Errorf("%w: duplicate email", ErrUserAlreadyExists)
	// ErrDuplicatePhone is returned when the phone is already registered.
	ErrDuplicatePhone = fmt.Errorf("%w: duplicate phone", ErrUserAlreadyExists)
	// ErrUserNotFound is returned when looking up a non-existent user.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when the email/password combination is incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrMissingUserField is returned when a required user attribute is empty.
	ErrMissingUserField = errors.New("missing required user field")
)

// UserID is the opaque, immutable identifier of a user.
type UserID string

// String returns the string representation of the UserID.
func (id UserID) String() string {
	return string(id)
}

// User represents a registered account.
type User struct {
	ID           UserID    // Unique identifier
	Email        string    // Lowercase login email
	PasswordHash string    // Encoded password hash, never the plaintext
	FirstName    string    // Required
	LastName     string    // Required
	Address      string    // Optional, empty when absent
	Phone        string    // Optional, empty when absent
	Company      string    // Optional, empty when absent
	CreatedAt    time.Time // Creation time, set once
}

// FullName returns "first last".
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// NewUser carries the attributes of a user about to be created.
type NewUser struct {
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Address      string
	Phone        string
	Company      string
}

// Check reports ErrMissingUserField when a required attribute is empty.
func (u NewUser) Check() error {
	switch {
	case u.Email == "":
		return fmt.Errorf("%w: email", ErrMissingUserField)
	case u.PasswordHash == "":
		return fmt.Errorf("%w: password hash", ErrMissingUserField)
	case u.FirstName == "":
		return fmt.Errorf("%w: first name", ErrMissingUserField)
	case u.LastName == "":
		return fmt.Errorf("%w: last name", ErrMissingUserField)
	}

	return nil
}
