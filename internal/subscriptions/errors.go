package subscriptions

import "errors"

// Service errors.
var (
	// ErrNotFound is returned when no subscription matches the id.
	ErrNotFound = errors.New("subscription not found")

	// ErrNotOwner is returned when the caller is not the subscription's
	// account.
	ErrNotOwner = errors.New("subscription does not belong to account")

	// ErrDuplicateChannel is returned when the account already subscribes
	// to the channel URL.
	ErrDuplicateChannel = errors.New("channel already subscribed")

	// ErrInvalidChannelURL is returned for empty or non-YouTube URLs.
	ErrInvalidChannelURL = errors.New("channel url must be a valid YouTube URL")
)
