package domain

// OutcomeKind classifies the result of a registration or authentication attempt.
type OutcomeKind string

const (
	OutcomeCreated            OutcomeKind = "created"
	OutcomeValidationError    OutcomeKind = "validation_error"
	OutcomeConflict           OutcomeKind = "conflict"
	OutcomeAuthenticated      OutcomeKind = "authenticated"
	OutcomeInvalidCredentials OutcomeKind = "invalid_credentials"
)

// ValidationKind names the first input check a registration failed.
type ValidationKind string

const (
	ValidationMissingFields    ValidationKind = "missing_fields"
	ValidationInvalidEmail     ValidationKind = "invalid_email"
	ValidationPasswordMismatch ValidationKind = "password_mismatch"
	ValidationPasswordTooShort ValidationKind = "password_too_short"
	ValidationConsentRequired  ValidationKind = "consent_required"
)

// ConflictKind names the uniqueness invariant a registration would violate.
type ConflictKind string

const (
	ConflictDuplicateEmail ConflictKind = "duplicate_email"
	ConflictDuplicatePhone ConflictKind = "duplicate_phone"
)

// RegistrationOutcome is the classified result of a registration.
// Validation is set only for OutcomeValidationError, Conflict only for OutcomeConflict
// and UserID only for OutcomeCreated.
type RegistrationOutcome struct {
	Kind       OutcomeKind
	Validation ValidationKind
	Conflict   ConflictKind
	UserID     UserID
}

// Created returns a successful registration outcome.
func Created(id UserID) RegistrationOutcome {
	return RegistrationOutcome{Kind: OutcomeCreated, UserID: id}
}

// Invalid returns a validation failure outcome.
func Invalid(kind ValidationKind) RegistrationOutcome {
	return RegistrationOutcome{Kind: OutcomeValidationError, Validation: kind}
}

// Conflicting returns a uniqueness conflict outcome.
func Conflicting(kind ConflictKind) RegistrationOutcome {
	return RegistrationOutcome{Kind: OutcomeConflict, Conflict: kind}
}

// AuthenticationOutcome is the classified result of a login attempt.
// Claim is set only for OutcomeAuthenticated and must be handed to the session manager.
type AuthenticationOutcome struct {
	Kind  OutcomeKind
	Claim SessionClaim
}

// Authenticated returns a successful authentication outcome for email.
func Authenticated(email string) AuthenticationOutcome {
	return AuthenticationOutcome{Kind: OutcomeAuthenticated, Claim: SessionClaim{Email: email}}
}

// InvalidCredentials returns the undifferentiated login failure outcome.
func InvalidCredentials() AuthenticationOutcome {
	return AuthenticationOutcome{Kind: OutcomeInvalidCredentials}
}
