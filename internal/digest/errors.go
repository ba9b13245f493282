package digest

import "errors"

var (
	// ErrRunInProgress is returned when a batch run is requested while
	// another run is still active.
	ErrRunInProgress = errors.New("notification batch already running")

	// ErrSendFailed marks a delivery collaborator failure surfaced to the
	// caller, for example a test email that the SMTP relay rejected.
	ErrSendFailed = errors.New("email delivery failed")

	// ErrMailDisabled is returned when a delivery operation is requested
	// but no mail transport is configured.
	ErrMailDisabled = errors.New("mail delivery is disabled")
)
