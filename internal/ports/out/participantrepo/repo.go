package participantrepo

import (
	"context"
	"time"

	"github.com/mitoc/membership-api/internal/domain"
)

// Participant is the persistence shape used by the participant repository.
// It is an internal record, not an HTTP DTO.
type Participant struct {
	ID      domain.ParticipantID
	Subject domain.SubjectID

	Name        string
	Email       string
	CellPhone   *string
	Affiliation domain.AffiliationCode

	CarClaim domain.CarClaim
	// Car is nil whenever CarClaim is not YES.
	Car *domain.CarDetails

	// EmergencyInfo is nil once scrubbed or never collected.
	EmergencyInfo *domain.EmergencyInfo

	ProfileLastUpdated time.Time
	CreatedAt          time.Time
}

// EmailConfirmation is the pending proof-of-control for a linked, unverified address.
// Only a hash of the token is stored.
type EmailConfirmation struct {
	Address   string
	TokenHash string
	ExpiresAt time.Time
}

// Repository provides access to persisted participants and their email addresses.
//
// Result ordering expectations:
// - List returns participants ordered by Name ascending (case-insensitive), then ID.
// - ListEmails returns the primary address first, then addresses ascending.
type Repository interface {
	Create(ctx context.Context, p Participant) error
	Update(ctx context.Context, p Participant) error

	GetByID(ctx context.Context, id domain.ParticipantID) (Participant, error)
	GetBySubject(ctx context.Context, subject domain.SubjectID) (Participant, error)

	List(ctx context.Context) ([]Participant, error)

	ListEmails(ctx context.Context, id domain.ParticipantID) ([]domain.VerifiedEmail, error)
	// PutEmail inserts or replaces the address (matched case-insensitively). Setting Primary
	// clears the flag on every other address of the participant.
	PutEmail(ctx context.Context, id domain.ParticipantID, e domain.VerifiedEmail) error
	// DeleteEmail also drops any pending confirmation for the address.
	DeleteEmail(ctx context.Context, id domain.ParticipantID, address string) error

	// PutEmailConfirmation replaces the pending confirmation of a linked address. It returns
	// ErrEmailNotFound when the address is not linked.
	PutEmailConfirmation(ctx context.Context, id domain.ParticipantID, c EmailConfirmation) error
	// GetEmailConfirmation returns ErrConfirmationNotFound when nothing is pending.
	GetEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) (EmailConfirmation, error)
	DeleteEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) error
}
