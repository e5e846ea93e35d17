package participantrepo

import "errors"

var (
	// ErrNotFound indicates the requested participant does not exist.
	ErrNotFound = errors.New("participant not found")

	// ErrSubjectAlreadyBound indicates a participant already exists for the provided subject.
	ErrSubjectAlreadyBound = errors.New("participant subject already bound")

	// ErrAlreadyExists indicates a participant already exists with the provided ID.
	ErrAlreadyExists = errors.New("participant already exists")

	// ErrEmailNotFound indicates the participant has no such email address.
	ErrEmailNotFound = errors.New("participant email not found")

	// ErrConfirmationNotFound indicates no confirmation is pending for the address.
	ErrConfirmationNotFound = errors.New("email confirmation not found")
)
