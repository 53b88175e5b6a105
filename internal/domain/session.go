package domain

import (
	"errors"
	"time"
)

var (
	// ErrNoSession is returned when a request carries no session.
	ErrNoSession = errors.New("no session")
	// ErrInvalidSession is returned when a session token's signature is invalid or it has expired.
	ErrInvalidSession = errors.New("invalid session")
)

// SessionClaim is the trusted identity carried by a session.
// The email is stored as a flat value; deleting the user does not invalidate it.
type SessionClaim struct {
	Email     string    // Authenticated user's email
	IssuedAt  time.Time // When the session was established
	ExpiresAt time.Time // When the signed token stops being accepted
}

// Anonymous reports whether the claim carries no identity.
func (c SessionClaim) Anonymous() bool {
	return c.Email == ""
}
