package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mitoc/membership-api/internal/ports/out/idempotency"
)

// DefaultTTL bounds how long a stored response can be replayed.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "idem:"

// Store is a Redis implementation of idempotency.Store. Records expire after TTL.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{client: client, ttl: ttl}
}

type storedRecord struct {
	StatusCode  int       `json:"status"`
	ContentType string    `json:"contentType"`
	Body        []byte    `json:"body"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (s *Store) Get(ctx context.Context, fp idempotency.Fingerprint) (idempotency.Record, bool, error) {
	if s.client == nil {
		return idempotency.Record{}, false, errors.New("nil redis client")
	}
	raw, err := s.client.Get(ctx, redisKey(fp)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return idempotency.Record{}, false, nil
		}
		return idempotency.Record{}, false, err
	}
	var sr storedRecord
	if err := json.Unmarshal(raw, &sr); err != nil {
		return idempotency.Record{}, false, fmt.Errorf("decode idempotency record: %w", err)
	}
	return idempotency.Record{
		StatusCode:  sr.StatusCode,
		ContentType: sr.ContentType,
		Body:        sr.Body,
		CreatedAt:   sr.CreatedAt.UTC(),
	}, true, nil
}

func (s *Store) Put(ctx context.Context, fp idempotency.Fingerprint, rec idempotency.Record) error {
	if s.client == nil {
		return errors.New("nil redis client")
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	raw, err := json.Marshal(storedRecord{
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Body,
		CreatedAt:   createdAt.UTC(),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKey(fp), raw, s.ttl).Err()
}

func redisKey(fp idempotency.Fingerprint) string {
	return keyPrefix + strings.Join([]string{
		string(fp.Key),
		string(fp.Subject),
		fp.Method,
		fp.Route,
		fp.BodyHash,
	}, "|")
}
