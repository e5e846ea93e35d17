package membershiprepo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mitoc/membership-api/internal/adapters/postgres"
	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
)

// Repo is a Postgres implementation of membershiprepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) Get(ctx context.Context, id domain.ParticipantID) (domain.MembershipRecord, error) {
	if r.pool == nil {
		return domain.MembershipRecord{}, errors.New("nil postgres pool")
	}
	rec := domain.MembershipRecord{ParticipantID: id}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return rec, nil
	}

	var (
		expires   *time.Time
		renewedAt *time.Time
		preset    *int64
	)
	err = r.pool.QueryRow(ctx, `
		SELECT m.expires, m.last_renewed_at, m.preset_dues_cents
		FROM memberships m
		JOIN participants p ON p.id = m.participant_id
		WHERE p.external_id = $1
	`, uid).Scan(&expires, &renewedAt, &preset)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, nil
		}
		return domain.MembershipRecord{}, err
	}
	return toRecord(id, expires, renewedAt, preset), nil
}

func (r *Repo) ApplyRenewal(ctx context.Context, id domain.ParticipantID, newExpiry time.Time, renewedAt time.Time) (domain.MembershipRecord, error) {
	if r.pool == nil {
		return domain.MembershipRecord{}, errors.New("nil postgres pool")
	}
	newExpiry = domain.DateOf(newExpiry)
	renewedAt = renewedAt.UTC()

	var out domain.MembershipRecord
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rowID, err := lockParticipant(ctx, tx, id)
		if err != nil {
			return err
		}

		var current *time.Time
		err = tx.QueryRow(ctx, `SELECT expires FROM memberships WHERE participant_id = $1`, rowID).Scan(&current)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		if current != nil && newExpiry.Before(domain.DateOf(*current)) {
			return membershiprepo.ErrExpiryRegression
		}

		var (
			expires *time.Time
			renewed *time.Time
			preset  *int64
		)
		err = tx.QueryRow(ctx, `
			INSERT INTO memberships (participant_id, expires, last_renewed_at)
			VALUES ($1, $2, $3)
			ON CONFLICT (participant_id) DO UPDATE SET
				expires = EXCLUDED.expires,
				last_renewed_at = EXCLUDED.last_renewed_at
			RETURNING expires, last_renewed_at, preset_dues_cents
		`, rowID, newExpiry, renewedAt).Scan(&expires, &renewed, &preset)
		if err != nil {
			return classify(err)
		}
		out = toRecord(id, expires, renewed, preset)
		return nil
	})
	if err != nil {
		return domain.MembershipRecord{}, err
	}
	return out, nil
}

func (r *Repo) SetPresetDues(ctx context.Context, id domain.ParticipantID, amount *domain.Money) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	var cents *int64
	if amount != nil {
		v := amount.Cents()
		cents = &v
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rowID, err := lockParticipant(ctx, tx, id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO memberships (participant_id, preset_dues_cents)
			VALUES ($1, $2)
			ON CONFLICT (participant_id) DO UPDATE SET preset_dues_cents = EXCLUDED.preset_dues_cents
		`, rowID, cents)
		return classify(err)
	})
}

// classify maps constraint violations onto the port's sentinels.
func classify(err error) error {
	pe, ok := postgres.AsPgError(err)
	if !ok {
		return err
	}
	switch pe.Code {
	case postgres.ForeignKeyViolationCode:
		return membershiprepo.ErrUnknownParticipant
	case postgres.CheckViolationCode:
		// preset_dues_cents >= 0 is the only check on memberships.
		return membershiprepo.ErrNegativePresetDues
	}
	return err
}

func lockParticipant(ctx context.Context, tx pgx.Tx, id domain.ParticipantID) (int64, error) {
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return 0, membershiprepo.ErrUnknownParticipant
	}
	var rowID int64
	if err := tx.QueryRow(ctx, `SELECT id FROM participants WHERE external_id = $1 FOR UPDATE`, uid).Scan(&rowID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, membershiprepo.ErrUnknownParticipant
		}
		return 0, err
	}
	return rowID, nil
}

func toRecord(id domain.ParticipantID, expires, renewedAt *time.Time, preset *int64) domain.MembershipRecord {
	rec := domain.MembershipRecord{ParticipantID: id}
	if expires != nil {
		d := domain.DateOf(*expires)
		rec.Expires = &d
	}
	if renewedAt != nil {
		v := renewedAt.UTC()
		rec.LastRenewedAt = &v
	}
	if preset != nil {
		m := domain.Money(*preset)
		rec.PresetDues = &m
	}
	return rec
}
