package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mitoc/membership-api/internal/ports/out/idempotency"
)

// Store keeps idempotency rows in idempotency_keys. A key used for a write owns two rows:
//
//   - the binding row (empty body_hash) records which canonical body first succeeded
//     with the key; its body column holds that hash
//   - the response row (body_hash set) holds the JSON payload replayed on retries
//
// Rows are scoped by JWT issuer as well as subject, so two identity providers that
// happen to mint the same subject never see each other's keys.
type Store struct {
	pool   *pgxpool.Pool
	issuer string
}

func NewStore(pool *pgxpool.Pool, jwtIssuer string) *Store {
	return &Store{pool: pool, issuer: jwtIssuer}
}

// rowKind names the row a fingerprint addresses, for error messages.
func rowKind(fp idempotency.Fingerprint) string {
	if fp.BodyHash == "" {
		return "key binding"
	}
	return "replay response"
}

func (s *Store) scope(fp idempotency.Fingerprint) []any {
	return []any{string(fp.Key), s.issuer, string(fp.Subject), fp.Method, fp.Route, fp.BodyHash}
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.pool == nil {
		return idempotency.Record{}, false, errors.New("nil postgres pool")
	}
	var rec idempotency.Record
	err := s.pool.QueryRow(ctx, `
		SELECT status_code, content_type, body, created_at
		FROM idempotency_keys
		WHERE idempotency_key = $1 AND subject_iss = $2 AND subject_sub = $3
		  AND method = $4 AND route = $5 AND body_hash = $6
	`, s.scope(fp)...).Scan(&rec.StatusCode, &rec.ContentType, &rec.Body, &rec.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return idempotency.Record{}, false, nil
	case err != nil:
		return idempotency.Record{}, false, fmt.Errorf("load idempotency %s: %w", rowKind(fp), err)
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, true, nil
}

// Put writes the row for fp, replacing an earlier one. The HTTP layer only writes after a
// successful response, so the latest write is always the one to replay.
func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	args := append(s.scope(fp), rec.StatusCode, rec.ContentType, rec.Body, createdAt.UTC())
	if _, err := s.pool.Exec(ctx, `
		INSERT INTO idempotency_keys (
			idempotency_key, subject_iss, subject_sub, method, route, body_hash,
			status_code, content_type, body, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (idempotency_key, subject_iss, subject_sub, method, route, body_hash)
		DO UPDATE SET
			status_code = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			body = EXCLUDED.body,
			created_at = EXCLUDED.created_at
	`, args...); err != nil {
		return fmt.Errorf("store idempotency %s: %w", rowKind(fp), err)
	}
	return nil
}
