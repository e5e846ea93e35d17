// Package jwks_testutil serves rotating JWKS documents and mints RS256 tokens for tests.
package jwks_testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Keypair struct {
	Kid     string
	Private *rsa.PrivateKey
}

func GenerateRSAKeypair(kid string) (Keypair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return Keypair{}, err
	}
	return Keypair{Kid: kid, Private: priv}, nil
}

// NewRotatingJWKSServer returns a JWKS server whose key set can be swapped at runtime.
// The returned counter reports how many times the JWKS was fetched.
func NewRotatingJWKSServer() (*httptest.Server, func(keys []Keypair), *atomic.Int64) {
	var doc atomic.Value // []byte
	doc.Store([]byte(`{"keys":[]}`))
	var hits atomic.Int64

	setKeys := func(keys []Keypair) {
		type jwk struct {
			Kty string `json:"kty"`
			Use string `json:"use"`
			Alg string `json:"alg"`
			Kid string `json:"kid"`
			N   string `json:"n"`
			E   string `json:"e"`
		}
		out := struct {
			Keys []jwk `json:"keys"`
		}{Keys: make([]jwk, 0, len(keys))}
		for _, kp := range keys {
			pub := kp.Private.PublicKey
			out.Keys = append(out.Keys, jwk{
				Kty: "RSA",
				Use: "sig",
				Alg: "RS256",
				Kid: kp.Kid,
				N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
			})
		}
		b, _ := json.Marshal(out)
		doc.Store(b)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc.Load().([]byte))
	}))

	return srv, setKeys, &hits
}

// MintRS256JWT signs a token with kp. A nil nbfDelta omits the nbf claim.
func MintRS256JWT(kp Keypair, iss string, aud []string, sub string, now time.Time, expDelta time.Duration, nbfDelta *time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Issuer:    iss,
		Audience:  aud,
		Subject:   sub,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expDelta)),
	}
	if nbfDelta != nil {
		claims.NotBefore = jwt.NewNumericDate(now.Add(*nbfDelta))
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.Kid
	return tok.SignedString(kp.Private)
}

// MintRS256JWTWithEmail mints a token that also carries the OIDC email claims.
func MintRS256JWTWithEmail(kp Keypair, iss string, aud []string, sub, email string, emailVerified bool, now time.Time, expDelta time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"iss":            iss,
		"aud":            aud,
		"sub":            sub,
		"iat":            now.Unix(),
		"exp":            now.Add(expDelta).Unix(),
		"email":          email,
		"email_verified": emailVerified,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.Kid
	return tok.SignedString(kp.Private)
}
