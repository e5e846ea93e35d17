package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/domain"
)

// DebugSubjectHeader carries the subject in AUTH_MODE=dev.
const DebugSubjectHeader = "X-Debug-Subject"

// DebugEmailHeader carries a provider-verified email in AUTH_MODE=dev.
const DebugEmailHeader = "X-Debug-Email"

// AdminTokenHeader carries the shared secret for /admin routes.
const AdminTokenHeader = "X-Admin-Token"

var errNoCredentials = errors.New("no credentials")

// TokenVerifier checks a bearer token and returns the caller's identity.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// Authenticator resolves the caller's identity from a request. It returns errNoCredentials
// when the request carries none.
type Authenticator func(r *http.Request) (domain.Identity, error)

// BearerAuthenticator enforces Authorization: Bearer <JWT>.
func BearerAuthenticator(v TokenVerifier) Authenticator {
	return func(r *http.Request) (domain.Identity, error) {
		authz := r.Header.Get("Authorization")
		if authz == "" {
			return domain.Identity{}, errNoCredentials
		}
		const prefix = "Bearer "
		if !strings.HasPrefix(authz, prefix) {
			return domain.Identity{}, errors.New("malformed Authorization header")
		}
		raw := strings.TrimSpace(strings.TrimPrefix(authz, prefix))
		if raw == "" {
			return domain.Identity{}, errors.New("missing bearer token")
		}
		id, err := v.Verify(r.Context(), raw)
		if err != nil {
			return domain.Identity{}, errors.New("invalid token")
		}
		return id, nil
	}
}

// DevAuthenticator is a local/dev-only shim. It accepts an explicit subject via
// X-Debug-Subject and falls back to defaultSubject; X-Debug-Email stands in for a
// provider-verified email claim. Do NOT use this in production.
func DevAuthenticator(defaultSubject string) Authenticator {
	return func(r *http.Request) (domain.Identity, error) {
		sub := strings.TrimSpace(r.Header.Get(DebugSubjectHeader))
		if sub == "" {
			sub = strings.TrimSpace(defaultSubject)
		}
		if sub == "" {
			return domain.Identity{}, errNoCredentials
		}
		return domain.Identity{
			Subject:       domain.SubjectID(sub),
			VerifiedEmail: domain.NormalizeEmail(r.Header.Get(DebugEmailHeader)),
		}, nil
	}
}

func hasCredentials(r *http.Request) bool {
	return r.Header.Get("Authorization") != "" || r.Header.Get(DebugSubjectHeader) != ""
}

// requireSubject rejects requests without a valid identity.
func requireSubject(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := auth(r)
			if err != nil {
				msg := err.Error()
				if errors.Is(err, errNoCredentials) {
					msg = "missing Authorization header"
				}
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", msg, nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// optionalSubject authenticates only requests that present credentials; anonymous
// requests pass through without a subject.
func optionalSubject(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hasCredentials(r) {
				next.ServeHTTP(w, r)
				return
			}
			requireSubject(auth)(next).ServeHTTP(w, r)
		})
	}
}

// requireAdminToken guards operator routes with a shared secret. An empty expected token
// disables the routes.
func requireAdminToken(expected string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if expected == "" {
				writeError(w, r, http.StatusNotFound, "NOT_FOUND", "admin routes are disabled", nil)
				return
			}
			token := r.Header.Get(AdminTokenHeader)
			if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				logger.Warn("admin token mismatch",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("path", r.URL.Path),
				)
				writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "admin token required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
