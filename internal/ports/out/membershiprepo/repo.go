package membershiprepo

import (
	"context"
	"time"

	"github.com/mitoc/membership-api/internal/domain"
)

// Repository persists membership records.
//
// A record is created implicitly by the first renewal; Get on a participant who never paid
// returns a zero record (Expires == nil) rather than an error.
type Repository interface {
	Get(ctx context.Context, id domain.ParticipantID) (domain.MembershipRecord, error)

	// ApplyRenewal sets the new expiry and renewal timestamp.
	// Returns ErrExpiryRegression if newExpiry is before the stored expiry.
	ApplyRenewal(ctx context.Context, id domain.ParticipantID, newExpiry time.Time, renewedAt time.Time) (domain.MembershipRecord, error)

	// SetPresetDues sets (or clears, with nil) a server-computed dues amount.
	SetPresetDues(ctx context.Context, id domain.ParticipantID, amount *domain.Money) error
}
