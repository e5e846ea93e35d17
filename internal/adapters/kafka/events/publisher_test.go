package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/events"
)

func TestRenewalRecord_KeyedByParticipant(t *testing.T) {
	t.Parallel()

	ev := events.RenewalEvent{
		ParticipantID: domain.ParticipantID("p-1"),
		Email:         "tim@mit.edu",
		Affiliation:   domain.AffiliationMITUndergrad,
		AmountCents:   1500,
		NewExpiry:     "2025-03-01",
		RenewedAt:     time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	rec, err := renewalRecord("renewals", ev)
	require.NoError(t, err)

	assert.Equal(t, "renewals", rec.Topic)
	assert.Equal(t, []byte("p-1"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "membership.renewed", string(rec.Headers[0].Value))

	var got events.RenewalEvent
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, ev, got)
}

func TestConfirmationRecord_KeyedByParticipant(t *testing.T) {
	t.Parallel()

	ev := events.EmailConfirmationEvent{
		ParticipantID: domain.ParticipantID("p-1"),
		Address:       "tim@mit.edu",
		Token:         "tok",
		ExpiresAt:     time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC),
	}
	rec, err := confirmationRecord(DefaultConfirmationTopic, ev)
	require.NoError(t, err)

	assert.Equal(t, DefaultConfirmationTopic, rec.Topic)
	assert.Equal(t, []byte("p-1"), rec.Key)
	require.Len(t, rec.Headers, 1)
	assert.Equal(t, "membership.email_confirmation_requested", string(rec.Headers[0].Value))

	var got events.EmailConfirmationEvent
	require.NoError(t, json.Unmarshal(rec.Value, &got))
	assert.Equal(t, ev, got)
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	t.Parallel()
	_, err := NewPublisher(nil, Topics{}, nil)
	assert.Error(t, err)
}

func TestPublisher_NilIsNotInitialized(t *testing.T) {
	t.Parallel()
	var p *Publisher
	assert.Error(t, p.PublishRenewal(context.Background(), events.RenewalEvent{}))
	assert.Error(t, p.SendEmailConfirmation(context.Background(), events.EmailConfirmationEvent{}))
	p.Close()
}
