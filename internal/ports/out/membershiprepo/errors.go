package membershiprepo

import "errors"

var (
	// ErrExpiryRegression indicates a renewal that would move the expiry date backwards.
	ErrExpiryRegression = errors.New("membership expiry cannot decrease")

	// ErrUnknownParticipant indicates the participant does not exist.
	ErrUnknownParticipant = errors.New("membership participant not found")

	// ErrNegativePresetDues indicates a preset amount below zero.
	ErrNegativePresetDues = errors.New("preset dues cannot be negative")
)
