package participantrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/mitoc/membership-api/internal/adapters/postgres"
	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

// Repo is a Postgres implementation of participantrepo.Repository.
//
// Car details and emergency info live in side tables keyed by the participant row, so clearing
// either section is a DELETE rather than a column update.
type Repo struct {
	pool   *pgxpool.Pool
	issuer string
}

func NewRepo(pool *pgxpool.Pool, jwtIssuer string) *Repo {
	return &Repo{pool: pool, issuer: jwtIssuer}
}

type queryer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const selectParticipant = `
	SELECT
		p.external_id,
		p.subject_sub,
		p.name,
		p.email,
		p.cell_phone,
		p.affiliation,
		p.car_claim,
		p.profile_last_updated,
		p.created_at,
		c.license_plate,
		c.state,
		c.make,
		c.model,
		c.year,
		c.color,
		e.contact_name,
		e.contact_email,
		e.contact_cell_phone,
		e.contact_relationship,
		e.allergies,
		e.medications,
		e.medical_history
	FROM participants p
	LEFT JOIN participant_cars c ON c.participant_id = p.id
	LEFT JOIN participant_emergency_info e ON e.participant_id = p.id
`

func (r *Repo) Create(ctx context.Context, p participantrepo.Participant) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(p.ID))
	if err != nil {
		return fmt.Errorf("invalid participant id: %w", err)
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var rowID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO participants (
				external_id,
				subject_iss,
				subject_sub,
				name,
				email,
				cell_phone,
				affiliation,
				car_claim,
				profile_last_updated,
				created_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING id
		`,
			id,
			r.issuer,
			string(p.Subject),
			p.Name,
			p.Email,
			p.CellPhone,
			string(p.Affiliation),
			string(p.CarClaim),
			nullableTime(p.ProfileLastUpdated),
			p.CreatedAt.UTC(),
		).Scan(&rowID)
		if err != nil {
			if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.UniqueViolationCode {
				switch pe.ConstraintName {
				case "participants_subject_unique":
					return participantrepo.ErrSubjectAlreadyBound
				case "participants_external_id_unique":
					return participantrepo.ErrAlreadyExists
				}
			}
			return err
		}
		return writeSections(ctx, tx, rowID, p)
	})
}

func (r *Repo) Update(ctx context.Context, p participantrepo.Participant) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	id, err := uuid.Parse(string(p.ID))
	if err != nil {
		return participantrepo.ErrNotFound
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		var (
			rowID int64
			sub   string
		)
		err := tx.QueryRow(ctx, `
			SELECT id, subject_sub FROM participants WHERE external_id = $1 FOR UPDATE
		`, id).Scan(&rowID, &sub)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return participantrepo.ErrNotFound
			}
			return err
		}
		// Subject binding is immutable.
		if sub != string(p.Subject) {
			return participantrepo.ErrSubjectAlreadyBound
		}

		if _, err := tx.Exec(ctx, `
			UPDATE participants
			SET name = $2,
			    email = $3,
			    cell_phone = $4,
			    affiliation = $5,
			    car_claim = $6,
			    profile_last_updated = $7
			WHERE id = $1
		`,
			rowID,
			p.Name,
			p.Email,
			p.CellPhone,
			string(p.Affiliation),
			string(p.CarClaim),
			nullableTime(p.ProfileLastUpdated),
		); err != nil {
			return err
		}
		return writeSections(ctx, tx, rowID, p)
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.ParticipantID) (participantrepo.Participant, error) {
	if r.pool == nil {
		return participantrepo.Participant{}, errors.New("nil postgres pool")
	}
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return participantrepo.Participant{}, participantrepo.ErrNotFound
	}
	return scanParticipant(r.pool.QueryRow(ctx, selectParticipant+` WHERE p.external_id = $1`, uid))
}

func (r *Repo) GetBySubject(ctx context.Context, subject domain.SubjectID) (participantrepo.Participant, error) {
	if r.pool == nil {
		return participantrepo.Participant{}, errors.New("nil postgres pool")
	}
	return scanParticipant(r.pool.QueryRow(ctx,
		selectParticipant+` WHERE p.subject_iss = $1 AND p.subject_sub = $2`,
		r.issuer, string(subject)))
}

func (r *Repo) List(ctx context.Context) ([]participantrepo.Participant, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := r.pool.Query(ctx, selectParticipant+` ORDER BY lower(p.name) ASC, p.external_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]participantrepo.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListEmails(ctx context.Context, id domain.ParticipantID) ([]domain.VerifiedEmail, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rowID, err := lookupRowID(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	rows, err := r.pool.Query(ctx, `
		SELECT address, verified, is_primary
		FROM participant_emails
		WHERE participant_id = $1
		ORDER BY is_primary DESC, lower(address) ASC
	`, rowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.VerifiedEmail, 0)
	for rows.Next() {
		var e domain.VerifiedEmail
		if err := rows.Scan(&e.Address, &e.Verified, &e.Primary); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repo) PutEmail(ctx context.Context, id domain.ParticipantID, e domain.VerifiedEmail) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		rowID, err := lookupRowID(ctx, tx, id)
		if err != nil {
			return err
		}
		if e.Primary {
			if _, err := tx.Exec(ctx, `
				UPDATE participant_emails SET is_primary = false
				WHERE participant_id = $1 AND is_primary AND lower(address) <> lower($2)
			`, rowID, e.Address); err != nil {
				return err
			}
		}
		ct, err := tx.Exec(ctx, `
			UPDATE participant_emails
			SET address = $3, verified = $4, is_primary = $5
			WHERE participant_id = $1 AND lower(address) = lower($2)
		`, rowID, e.Address, e.Address, e.Verified, e.Primary)
		if err != nil {
			return err
		}
		if ct.RowsAffected() > 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO participant_emails (participant_id, address, verified, is_primary)
			VALUES ($1, $2, $3, $4)
		`, rowID, e.Address, e.Verified, e.Primary)
		return err
	})
}

func (r *Repo) DeleteEmail(ctx context.Context, id domain.ParticipantID, address string) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	rowID, err := lookupRowID(ctx, r.pool, id)
	if err != nil {
		return err
	}
	ct, err := r.pool.Exec(ctx, `
		DELETE FROM participant_emails WHERE participant_id = $1 AND lower(address) = lower($2)
	`, rowID, address)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return participantrepo.ErrEmailNotFound
	}
	return nil
}

func (r *Repo) PutEmailConfirmation(ctx context.Context, id domain.ParticipantID, c participantrepo.EmailConfirmation) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	rowID, err := lookupRowID(ctx, r.pool, id)
	if err != nil {
		return err
	}
	ct, err := r.pool.Exec(ctx, `
		UPDATE participant_emails
		SET confirmation_hash = $3, confirmation_expires_at = $4
		WHERE participant_id = $1 AND lower(address) = lower($2)
	`, rowID, c.Address, c.TokenHash, c.ExpiresAt.UTC())
	if err != nil {
		return fmt.Errorf("put email confirmation: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return participantrepo.ErrEmailNotFound
	}
	return nil
}

func (r *Repo) GetEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) (participantrepo.EmailConfirmation, error) {
	if r.pool == nil {
		return participantrepo.EmailConfirmation{}, errors.New("nil postgres pool")
	}
	rowID, err := lookupRowID(ctx, r.pool, id)
	if err != nil {
		return participantrepo.EmailConfirmation{}, err
	}
	var (
		c       participantrepo.EmailConfirmation
		hash    *string
		expires *time.Time
	)
	err = r.pool.QueryRow(ctx, `
		SELECT address, confirmation_hash, confirmation_expires_at
		FROM participant_emails
		WHERE participant_id = $1 AND lower(address) = lower($2)
	`, rowID, address).Scan(&c.Address, &hash, &expires)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return participantrepo.EmailConfirmation{}, participantrepo.ErrConfirmationNotFound
		}
		return participantrepo.EmailConfirmation{}, err
	}
	if hash == nil || expires == nil {
		return participantrepo.EmailConfirmation{}, participantrepo.ErrConfirmationNotFound
	}
	c.TokenHash = *hash
	c.ExpiresAt = expires.UTC()
	return c, nil
}

func (r *Repo) DeleteEmailConfirmation(ctx context.Context, id domain.ParticipantID, address string) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	rowID, err := lookupRowID(ctx, r.pool, id)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		UPDATE participant_emails
		SET confirmation_hash = NULL, confirmation_expires_at = NULL
		WHERE participant_id = $1 AND lower(address) = lower($2)
	`, rowID, address)
	return err
}

// --- helpers ---

func lookupRowID(ctx context.Context, q queryer, id domain.ParticipantID) (int64, error) {
	uid, err := uuid.Parse(string(id))
	if err != nil {
		return 0, participantrepo.ErrNotFound
	}
	var rowID int64
	if err := q.QueryRow(ctx, `SELECT id FROM participants WHERE external_id = $1`, uid).Scan(&rowID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, participantrepo.ErrNotFound
		}
		return 0, err
	}
	return rowID, nil
}

func writeSections(ctx context.Context, tx pgx.Tx, rowID int64, p participantrepo.Participant) error {
	if p.Car != nil && p.CarClaim == domain.CarClaimYes {
		c := p.Car
		if _, err := tx.Exec(ctx, `
			INSERT INTO participant_cars (participant_id, license_plate, state, make, model, year, color)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (participant_id) DO UPDATE SET
				license_plate = EXCLUDED.license_plate,
				state = EXCLUDED.state,
				make = EXCLUDED.make,
				model = EXCLUDED.model,
				year = EXCLUDED.year,
				color = EXCLUDED.color
		`, rowID, c.LicensePlate, c.State, c.Make, c.Model, c.Year, c.Color); err != nil {
			return err
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM participant_cars WHERE participant_id = $1`, rowID); err != nil {
		return err
	}

	if p.EmergencyInfo != nil {
		e := p.EmergencyInfo
		if _, err := tx.Exec(ctx, `
			INSERT INTO participant_emergency_info (
				participant_id,
				contact_name,
				contact_email,
				contact_cell_phone,
				contact_relationship,
				allergies,
				medications,
				medical_history
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (participant_id) DO UPDATE SET
				contact_name = EXCLUDED.contact_name,
				contact_email = EXCLUDED.contact_email,
				contact_cell_phone = EXCLUDED.contact_cell_phone,
				contact_relationship = EXCLUDED.contact_relationship,
				allergies = EXCLUDED.allergies,
				medications = EXCLUDED.medications,
				medical_history = EXCLUDED.medical_history
		`, rowID, e.ContactName, e.ContactEmail, e.ContactCellPhone, e.ContactRelationship,
			e.Allergies, e.Medications, e.MedicalHistory); err != nil {
			return err
		}
	} else if _, err := tx.Exec(ctx, `DELETE FROM participant_emergency_info WHERE participant_id = $1`, rowID); err != nil {
		return err
	}
	return nil
}

func scanParticipant(row interface {
	Scan(dest ...any) error
}) (participantrepo.Participant, error) {
	var (
		externalID  uuid.UUID
		sub         string
		name        string
		email       string
		cellPhone   *string
		affiliation string
		carClaim    string
		lastUpdated *time.Time
		createdAt   time.Time

		plate, state, make, model, color *string
		year                             *int32

		contactName, contactEmail, contactPhone, contactRel *string
		allergies, medications, history                     *string
	)
	if err := row.Scan(
		&externalID,
		&sub,
		&name,
		&email,
		&cellPhone,
		&affiliation,
		&carClaim,
		&lastUpdated,
		&createdAt,
		&plate,
		&state,
		&make,
		&model,
		&year,
		&color,
		&contactName,
		&contactEmail,
		&contactPhone,
		&contactRel,
		&allergies,
		&medications,
		&history,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return participantrepo.Participant{}, participantrepo.ErrNotFound
		}
		return participantrepo.Participant{}, err
	}

	p := participantrepo.Participant{
		ID:          domain.ParticipantID(externalID.String()),
		Subject:     domain.SubjectID(sub),
		Name:        name,
		Email:       email,
		CellPhone:   cellPhone,
		Affiliation: domain.AffiliationCode(affiliation),
		CarClaim:    domain.CarClaim(carClaim),
		CreatedAt:   createdAt.UTC(),
	}
	if lastUpdated != nil {
		p.ProfileLastUpdated = lastUpdated.UTC()
	}
	if plate != nil {
		p.Car = &domain.CarDetails{
			LicensePlate: *plate,
			State:        deref(state),
			Make:         deref(make),
			Model:        deref(model),
			Color:        deref(color),
		}
		if year != nil {
			p.Car.Year = int(*year)
		}
	}
	if contactName != nil {
		p.EmergencyInfo = &domain.EmergencyInfo{
			ContactName:         *contactName,
			ContactEmail:        deref(contactEmail),
			ContactCellPhone:    deref(contactPhone),
			ContactRelationship: deref(contactRel),
			Allergies:           deref(allergies),
			Medications:         deref(medications),
			MedicalHistory:      deref(history),
		}
	}
	return p, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
