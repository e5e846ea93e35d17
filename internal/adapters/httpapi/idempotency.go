package httpapi

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/idempotency"
)

// IdempotencyKeyHeader lets clients retry writes safely.
const IdempotencyKeyHeader = "Idempotency-Key"

// adminSubject scopes idempotency keys of operator requests, which carry no JWT subject.
const adminSubject domain.SubjectID = "admin"

// handler produces the success status and payload of a write, or an error for writeAppError.
type handler func() (int, any, error)

func hashBody(body any) (string, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// idempotent runs h at most once per (key, subject, method, route, body):
//   - same key with the same canonical body replays the stored response
//   - same key with a different body is rejected with 409
//
// Nothing is stored for a failed request, so the same key can be retried with a corrected
// body. The key is bound to a body only once a request with that body succeeds.
func (s *Server) idempotent(w http.ResponseWriter, r *http.Request, subject domain.SubjectID, route string, canon any, h handler) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || s.Idem == nil {
		s.respond(w, r, h)
		return
	}
	ctx := r.Context()

	bodyHash, err := hashBody(canon)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	metaFP := idempotency.Fingerprint{
		Key:     idempotency.Key(key),
		Subject: subject,
		Method:  r.Method,
		Route:   route,
	}
	meta, ok, err := s.Idem.Get(ctx, metaFP)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	bound := ok
	if bound && string(meta.Body) != bodyHash {
		writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
		return
	}

	respFP := metaFP
	respFP.BodyHash = bodyHash
	if rec, ok, err := s.Idem.Get(ctx, respFP); err != nil {
		s.writeAppError(w, r, err)
		return
	} else if ok && rec.StatusCode >= 200 && rec.StatusCode < 300 && strings.HasPrefix(rec.ContentType, "application/json") {
		w.Header().Set("Content-Type", rec.ContentType)
		w.Header().Set("Idempotent-Replayed", "true")
		w.WriteHeader(rec.StatusCode)
		_, _ = w.Write(rec.Body)
		return
	}

	status, payload, err := h()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	if err := s.Idem.Put(ctx, respFP, idempotency.Record{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        b,
		CreatedAt:   s.Clock.Now().UTC(),
	}); err != nil {
		s.logger.Warn("idempotency response put failed", zap.Error(err))
	}
	if !bound {
		if err := s.Idem.Put(ctx, metaFP, idempotency.Record{
			ContentType: "text/plain",
			Body:        []byte(bodyHash),
			CreatedAt:   s.Clock.Now().UTC(),
		}); err != nil {
			s.logger.Warn("idempotency meta put failed", zap.Error(err))
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(b, '\n'))
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, h handler) {
	status, payload, err := h()
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}
