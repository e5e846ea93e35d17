// Package jwtverifier authenticates bearer tokens against a rotating JWKS endpoint.
package jwtverifier

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/platform/config"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
)

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Verifier struct {
	cfg    config.JWTConfig
	client *resty.Client
	clock  Clock

	mu          sync.Mutex
	keysByKID   map[string]*rsa.PublicKey
	lastRefresh time.Time
	refreshing  bool
	refreshDone chan struct{}
}

func New(cfg config.JWTConfig) *Verifier {
	return NewWithOptions(cfg, nil, nil)
}

// NewWithOptions builds a Verifier. A nil httpClient uses one bounded by cfg.HTTPTimeout.
func NewWithOptions(cfg config.JWTConfig, httpClient *http.Client, clock Clock) *Verifier {
	client := resty.New()
	if httpClient != nil {
		client = resty.NewWithClient(httpClient)
	}
	if cfg.HTTPTimeout > 0 {
		client.SetTimeout(cfg.HTTPTimeout)
	}
	client.SetHeader("Accept", "application/json")
	if clock == nil {
		clock = realClock{}
	}
	return &Verifier{
		cfg:       cfg,
		client:    client,
		clock:     clock,
		keysByKID: map[string]*rsa.PublicKey{},
	}
}

// identityClaims adds the OIDC email claims to the registered set.
type identityClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified,omitempty"`
}

// Verify checks an RS256 token and returns the caller's identity. The subject comes from
// the `sub` claim; the email is kept only when `email_verified` is true.
// iss, aud and exp are required; nbf is honored when present.
func (v *Verifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	claims := &identityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		// Refresh periodically for rotation, and on unknown kid bounded by the min interval.
		if err := v.maybeRefresh(ctx, kid); err != nil {
			return nil, err
		}
		pub := v.getKey(kid)
		if pub == nil {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return pub, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(v.cfg.Issuer),
		jwt.WithAudience(v.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.cfg.ClockSkew),
		jwt.WithTimeFunc(v.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return domain.Identity{}, ErrUnauthorized
	}
	if claims.Subject == "" {
		return domain.Identity{}, ErrUnauthorized
	}
	id := domain.Identity{Subject: domain.SubjectID(claims.Subject)}
	if claims.EmailVerified {
		id.VerifiedEmail = domain.NormalizeEmail(claims.Email)
	}
	return id, nil
}

func (v *Verifier) getKey(kid string) *rsa.PublicKey {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.keysByKID[kid]
}

func (v *Verifier) maybeRefresh(ctx context.Context, kid string) error {
	now := v.clock.Now()

	v.mu.Lock()
	intervalDue := !v.lastRefresh.IsZero() && v.cfg.JWKSRefreshInterval > 0 && now.Sub(v.lastRefresh) >= v.cfg.JWKSRefreshInterval
	unknownKid := v.keysByKID[kid] == nil
	unknownAllowed := v.lastRefresh.IsZero() || v.cfg.JWKSMinRefreshInterval <= 0 || now.Sub(v.lastRefresh) >= v.cfg.JWKSMinRefreshInterval

	if !intervalDue && !(unknownKid && unknownAllowed) {
		v.mu.Unlock()
		return nil
	}

	// Concurrent callers wait on the in-flight fetch.
	if v.refreshing {
		ch := v.refreshDone
		v.mu.Unlock()
		select {
		case <-ch:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	v.refreshing = true
	v.refreshDone = make(chan struct{})
	ch := v.refreshDone
	v.mu.Unlock()

	err := v.refresh(ctx)

	v.mu.Lock()
	v.refreshing = false
	close(ch)
	v.mu.Unlock()

	return err
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

func (v *Verifier) refresh(ctx context.Context) error {
	resp, err := v.client.R().
		SetContext(ctx).
		SetResult(&jwkSet{}).
		Get(v.cfg.JWKSURL)
	if err != nil {
		return fmt.Errorf("fetch jwks: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("fetch jwks: status=%d", resp.StatusCode())
	}
	set, ok := resp.Result().(*jwkSet)
	if !ok || set == nil {
		return errors.New("fetch jwks: empty body")
	}
	keys, err := parseJWKS(*set)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.keysByKID = keys
	v.lastRefresh = v.clock.Now()
	v.mu.Unlock()

	return nil
}

func parseJWKS(set jwkSet) (map[string]*rsa.PublicKey, error) {
	out := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Kid == "" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		nb, err := base64.RawURLEncoding.DecodeString(k.N)
		if err != nil {
			continue
		}
		eb, err := base64.RawURLEncoding.DecodeString(k.E)
		if err != nil {
			continue
		}
		e := new(big.Int).SetBytes(eb)
		if !e.IsInt64() || e.Int64() < 3 {
			return nil, fmt.Errorf("invalid jwk exponent for kid %q", k.Kid)
		}
		out[k.Kid] = &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}
	}
	if len(out) == 0 {
		return nil, errors.New("no usable jwks keys")
	}
	return out, nil
}
