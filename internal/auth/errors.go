package auth

import "errors"

// Sentinel errors for authentication operations.
var (
	// ErrAuthInvalid is returned for every resolution failure: missing,
	// malformed, expired or rejected tokens and unreachable identity backends.
	ErrAuthInvalid = errors.New("invalid or missing credentials")

	// ErrRegistrationConflict indicates the account already exists.
	ErrRegistrationConflict = errors.New("account already exists")

	// ErrForbidden indicates the caller lacks a required role.
	ErrForbidden = errors.New("insufficient role")
)
