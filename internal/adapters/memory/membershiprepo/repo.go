package membershiprepo

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

// Repo is an in-memory implementation of membershiprepo.Repository.
// It is safe for concurrent use.
type Repo struct {
	mu sync.RWMutex
	m  map[domain.ParticipantID]domain.MembershipRecord

	participants participantrepo.Repository
}

// NewRepo returns an empty repository. When participants is non-nil, writes for unknown
// participants fail with membershiprepo.ErrUnknownParticipant.
func NewRepo(participants participantrepo.Repository) *Repo {
	return &Repo{
		m:            make(map[domain.ParticipantID]domain.MembershipRecord),
		participants: participants,
	}
}

func (r *Repo) Get(ctx context.Context, id domain.ParticipantID) (domain.MembershipRecord, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.m[id]
	if !ok {
		return domain.MembershipRecord{ParticipantID: id}, nil
	}
	return cloneRecord(rec), nil
}

func (r *Repo) ApplyRenewal(ctx context.Context, id domain.ParticipantID, newExpiry time.Time, renewedAt time.Time) (domain.MembershipRecord, error) {
	if err := r.checkParticipant(ctx, id); err != nil {
		return domain.MembershipRecord{}, err
	}
	newExpiry = domain.DateOf(newExpiry)
	renewedAt = renewedAt.UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.m[id]
	if !ok {
		rec = domain.MembershipRecord{ParticipantID: id}
	}
	if rec.Expires != nil && newExpiry.Before(*rec.Expires) {
		return domain.MembershipRecord{}, membershiprepo.ErrExpiryRegression
	}
	rec.Expires = &newExpiry
	rec.LastRenewedAt = &renewedAt
	r.m[id] = rec
	return cloneRecord(rec), nil
}

func (r *Repo) SetPresetDues(ctx context.Context, id domain.ParticipantID, amount *domain.Money) error {
	if err := r.checkParticipant(ctx, id); err != nil {
		return err
	}
	if amount != nil && *amount < 0 {
		return membershiprepo.ErrNegativePresetDues
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.m[id]
	if !ok {
		rec = domain.MembershipRecord{ParticipantID: id}
	}
	if amount == nil {
		rec.PresetDues = nil
	} else {
		v := *amount
		rec.PresetDues = &v
	}
	r.m[id] = rec
	return nil
}

func (r *Repo) checkParticipant(ctx context.Context, id domain.ParticipantID) error {
	if r.participants == nil {
		return nil
	}
	_, err := r.participants.GetByID(ctx, id)
	if errors.Is(err, participantrepo.ErrNotFound) {
		return membershiprepo.ErrUnknownParticipant
	}
	return err
}

func cloneRecord(rec domain.MembershipRecord) domain.MembershipRecord {
	out := rec
	if rec.Expires != nil {
		v := *rec.Expires
		out.Expires = &v
	}
	if rec.LastRenewedAt != nil {
		v := *rec.LastRenewedAt
		out.LastRenewedAt = &v
	}
	if rec.PresetDues != nil {
		v := *rec.PresetDues
		out.PresetDues = &v
	}
	return out
}
