package events

import (
	"context"
	"time"

	"github.com/mitoc/membership-api/internal/domain"
)

// RenewalEvent is emitted after a dues payment has been applied to a membership.
type RenewalEvent struct {
	ParticipantID domain.ParticipantID   `json:"participantId"`
	Email         string                 `json:"email"`
	Affiliation   domain.AffiliationCode `json:"affiliation"`
	AmountCents   int64                  `json:"amountCents"`
	NewExpiry     string                 `json:"newExpiry"` // YYYY-MM-DD
	EarlyRenewal  bool                   `json:"earlyRenewal"`
	RenewedAt     time.Time              `json:"renewedAt"`
}

// Publisher delivers renewal events to downstream consumers (e.g. reminder mailers).
type Publisher interface {
	PublishRenewal(ctx context.Context, ev RenewalEvent) error
}

// EmailConfirmationEvent asks a downstream mailer to deliver a confirmation link. Token is
// the only copy of the secret; the service keeps just its hash.
type EmailConfirmationEvent struct {
	ParticipantID domain.ParticipantID `json:"participantId"`
	Address       string               `json:"address"`
	Token         string               `json:"token"`
	ExpiresAt     time.Time            `json:"expiresAt"`
}

// ConfirmationSender delivers email confirmation requests.
type ConfirmationSender interface {
	SendEmailConfirmation(ctx context.Context, ev EmailConfirmationEvent) error
}
