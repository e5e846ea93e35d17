//go:build integration

package idempotency

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitoc/membership-api/internal/adapters/contracttest"
	"github.com/mitoc/membership-api/internal/adapters/postgres/testutil"
	idempotencyport "github.com/mitoc/membership-api/internal/ports/out/idempotency"
)

func TestContract_PostgresIdempotencyStore(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	issuer := "https://issuer.test"

	contracttest.RunIdempotencyStore(t, func(t *testing.T) (idempotencyport.Store, func()) {
		t.Helper()
		return NewStore(pool, issuer), nil
	})
}

func TestStore_ResponseRowsScopedByIssuer(t *testing.T) {
	pool := testutil.OpenMigratedPool(t)
	ctx := context.Background()

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Subject:  "sub-1",
		Method:   "PATCH",
		Route:    "/participants/me",
		BodyHash: "body-1",
	}
	rec := idempotencyport.Record{StatusCode: 200, ContentType: "application/json", Body: []byte(`{"ok":true}`)}
	require.NoError(t, NewStore(pool, "https://a.test").Put(ctx, fp, rec))

	got, ok, err := NewStore(pool, "https://a.test").Get(ctx, fp)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 200, got.StatusCode)
	assert.JSONEq(t, `{"ok":true}`, string(got.Body))

	_, ok, err = NewStore(pool, "https://b.test").Get(ctx, fp)
	require.NoError(t, err)
	assert.False(t, ok)

	binding := fp
	binding.BodyHash = ""
	_, ok, err = NewStore(pool, "https://a.test").Get(ctx, binding)
	require.NoError(t, err)
	assert.False(t, ok, "a response row does not bind the key")
}
