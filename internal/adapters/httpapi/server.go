package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/participants"
	"github.com/mitoc/membership-api/internal/domain"
	clockport "github.com/mitoc/membership-api/internal/ports/out/clock"
	"github.com/mitoc/membership-api/internal/ports/out/idempotency"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 1 << 20

// Server holds the application services behind the HTTP handlers.
type Server struct {
	Participants *participants.Service
	Dues         *dues.Service
	Idem         idempotency.Store
	Clock        clockport.Clock

	logger *zap.Logger
}

func NewServer(participantsSvc *participants.Service, duesSvc *dues.Service, idem idempotency.Store, clk clockport.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Participants: participantsSvc,
		Dues:         duesSvc,
		Idem:         idem,
		Clock:        clk,
		logger:       logger,
	}
}

// decodeJSON reads a single JSON document into dst. It writes the 422 itself and returns
// false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "missing request body"
		}
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", msg, map[string]any{"body": err.Error()})
		return false
	}
	return true
}

func (s *Server) subject(w http.ResponseWriter, r *http.Request) (domain.SubjectID, bool) {
	sub, ok := SubjectFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing subject", nil)
		return "", false
	}
	return sub, true
}
