package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/platform/logging"
)

// Dev-only token issuer and JWKS server for running the API locally with AUTH_MODE=jwt.
// It is not an OIDC provider.

type jwk struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func main() {
	logger, err := logging.New(getenv("LOG_LEVEL", "info"), getenv("LOG_FORMAT", "console"), "devjwt")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	port := getenv("PORT", "5556")
	issuer := getenv("ISSUER", "http://devjwt:5556")
	audience := getenv("AUDIENCE", "membership-api")
	kid := getenv("KID", "dev-kid-1")
	ttl := getenvDuration("TTL", 30*time.Minute)

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		logger.Fatal("generate key", zap.Error(err))
	}
	jwksJSON, err := marshalJWKS(priv.PublicKey, kid)
	if err != nil {
		logger.Fatal("marshal jwks", zap.Error(err))
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/.well-known/jwks.json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(jwksJSON)
	})
	// GET /token?sub=alice[&email=alice@mit.edu]
	// A given email is asserted as verified, the way the club's identity provider does.
	r.Get("/token", func(w http.ResponseWriter, r *http.Request) {
		sub := strings.TrimSpace(r.URL.Query().Get("sub"))
		if sub == "" {
			http.Error(w, "missing sub", http.StatusBadRequest)
			return
		}
		now := time.Now().UTC()
		claims := jwt.MapClaims{
			"iss": issuer,
			"aud": []string{audience},
			"sub": sub,
			"iat": now.Unix(),
			"exp": now.Add(ttl).Unix(),
		}
		if email := strings.TrimSpace(r.URL.Query().Get("email")); email != "" {
			claims["email"] = email
			claims["email_verified"] = true
		}
		tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
		tok.Header["kid"] = kid
		signed, err := tok.SignedString(priv)
		if err != nil {
			logger.Error("mint token", zap.Error(err))
			http.Error(w, "failed to mint token", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": signed,
			"token_type":   "Bearer",
			"expires_in":   int(ttl.Seconds()),
		})
	})

	addr := ":" + port
	logger.Info("devjwt listening", zap.String("addr", addr), zap.String("issuer", issuer), zap.String("audience", audience))
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil {
		logger.Fatal("listen", zap.Error(err))
	}
}

func marshalJWKS(pub rsa.PublicKey, kid string) ([]byte, error) {
	return json.Marshal(map[string][]jwk{"keys": {{
		Kty: "RSA",
		Use: "sig",
		Alg: "RS256",
		Kid: kid,
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}}})
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
