package identity

import "errors"

// Service errors.
var (
	// ErrAccountNotFound is returned when no account matches the lookup.
	ErrAccountNotFound = errors.New("account not found")

	// ErrDuplicateAccount is returned when the email is already registered.
	// Callers holding the credentials should add channels through the
	// subscription mutation path instead of re-registering.
	ErrDuplicateAccount = errors.New("account with this email already exists")

	// ErrInvalidCredentials covers both unknown email and wrong password.
	// The two cases are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidToken is returned for malformed, expired, or revoked tokens.
	ErrInvalidToken = errors.New("invalid or expired token")

	// ErrNoChannels is returned when a registration carries no channels.
	ErrNoChannels = errors.New("at least one channel is required")

	// ErrPasswordTooShort is returned when the password fails the minimum
	// length policy.
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")

	// ErrInvalidEmail is returned for syntactically invalid email addresses.
	ErrInvalidEmail = errors.New("malformed email address")

	// ErrInvalidChannelURL is returned for channel URLs that are empty or
	// not YouTube URLs.
	ErrInvalidChannelURL = errors.New("channel url must be a valid YouTube URL")
)
