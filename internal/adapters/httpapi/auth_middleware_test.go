package httpapi

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitoc/membership-api/internal/platform/auth/jwks_testutil"
	"github.com/mitoc/membership-api/internal/platform/auth/jwtverifier"
	"github.com/mitoc/membership-api/internal/platform/config"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

// minter signs tokens for sub; a non-empty email is asserted with the given verification.
type minter func(sub, email string, emailVerified bool) string

func newJWTTestAPI(t *testing.T) (*testAPI, minter) {
	t.Helper()

	jwksSrv, setKeys, _ := jwks_testutil.NewRotatingJWKSServer()
	t.Cleanup(jwksSrv.Close)
	kp, err := jwks_testutil.GenerateRSAKeypair("kid-1")
	require.NoError(t, err)
	setKeys([]jwks_testutil.Keypair{kp})

	cfg := config.JWTConfig{
		Issuer:              "test-iss",
		Audience:            "test-aud",
		JWKSURL:             jwksSrv.URL,
		JWKSRefreshInterval: 10 * time.Minute,
		HTTPTimeout:         2 * time.Second,
	}
	now := time.Unix(1700000000, 0)
	v := jwtverifier.NewWithOptions(cfg, nil, fixedClock{t: now})

	mint := func(sub, email string, emailVerified bool) string {
		var (
			tok string
			err error
		)
		if email == "" {
			tok, err = jwks_testutil.MintRS256JWT(kp, cfg.Issuer, []string{cfg.Audience}, sub, now, 5*time.Minute, nil)
		} else {
			tok, err = jwks_testutil.MintRS256JWTWithEmail(kp, cfg.Issuer, []string{cfg.Audience}, sub, email, emailVerified, now, 5*time.Minute)
		}
		require.NoError(t, err)
		return tok
	}
	return newTestAPI(t, BearerAuthenticator(v)), mint
}

func TestAuth_Bearer(t *testing.T) {
	t.Parallel()
	api, mint := newJWTTestAPI(t)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{name: "missing header", header: "", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "garbage token", header: "Bearer not-a-jwt", status: http.StatusUnauthorized, code: "UNAUTHORIZED"},
		{name: "valid token", header: "Bearer " + mint("member-123", "", false), status: http.StatusNotFound, code: "PARTICIPANT_NOT_PROVISIONED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var opts []reqOpt
			if tc.header != "" {
				opts = append(opts, withHeader("Authorization", tc.header))
			}
			rec := api.do(t, http.MethodGet, "/participants/me", nil, opts...)
			requireErrorCode(t, rec, tc.status, tc.code)
		})
	}
}

func TestAuth_Bearer_OptionalOnQuote(t *testing.T) {
	t.Parallel()
	api, mint := newJWTTestAPI(t)

	// Anonymous callers get the public flow.
	rec := api.do(t, http.MethodPost, "/dues/quote", DuesQuoteRequest{Affiliation: "NA", Email: "a@example.com", Name: "Ann Example"})
	require.Equal(t, http.StatusOK, rec.Code, "body=%s", rec.Body.String())

	// A presented token must be valid.
	rec = api.do(t, http.MethodPost, "/dues/quote", DuesQuoteRequest{}, withHeader("Authorization", "Bearer nope"))
	requireErrorCode(t, rec, http.StatusUnauthorized, "UNAUTHORIZED")

	// A valid token switches to the account flow.
	rec = api.do(t, http.MethodPost, "/dues/quote", DuesQuoteRequest{}, withHeader("Authorization", "Bearer "+mint("member-123", "", false)))
	requireErrorCode(t, rec, http.StatusNotFound, "PARTICIPANT_NOT_PROVISIONED")
}

func TestAuth_DevDefaultSubject(t *testing.T) {
	t.Parallel()
	api := newTestAPI(t, DevAuthenticator("dev-user"))

	rec := api.do(t, http.MethodGet, "/participants/me", nil)
	requireErrorCode(t, rec, http.StatusNotFound, "PARTICIPANT_NOT_PROVISIONED")

	rec = api.do(t, http.MethodPost, "/participants", createBody("dev@example.com", "NA"), asSubject("someone-else"))
	require.Equal(t, http.StatusCreated, rec.Code, "body=%s", rec.Body.String())

	// The default subject still has no profile.
	rec = api.do(t, http.MethodGet, "/participants/me", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuth_Bearer_VerifiedEmailClaimCountsAtSignup(t *testing.T) {
	t.Parallel()
	api, mint := newJWTTestAPI(t)

	// An unverified claim is ignored, so MIT student rates stay closed.
	unverified := withHeader("Authorization", "Bearer "+mint("member-1", "tim@mit.edu", false))
	rec := api.do(t, http.MethodPost, "/participants", createBody("tim@mit.edu", "MU"), unverified)
	requireErrorCode(t, rec, http.StatusUnprocessableEntity, "PROFILE_REQUIREMENTS_NOT_MET")

	verified := withHeader("Authorization", "Bearer "+mint("member-1", "tim@mit.edu", true))
	rec = api.do(t, http.MethodPost, "/participants", createBody("tim@mit.edu", "MU"), verified)
	require.Equal(t, http.StatusCreated, rec.Code, "body=%s", rec.Body.String())
	got := decode[ParticipantResponse](t, rec).Participant
	require.Len(t, got.Emails, 1)
	assert.True(t, got.Emails[0].Verified)
}
