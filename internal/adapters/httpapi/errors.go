package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/participants"
)

// ErrorBody is the envelope shared by every non-2xx response.
type ErrorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newErrorResponse(r *http.Request, code string, message string, details map[string]any) ErrorResponse {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}
	return er
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	writeJSON(w, status, newErrorResponse(r, code, message, details))
}

// writeAppError maps application errors to the envelope; anything else is a 500.
func (s *Server) writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	if pe := (*participants.Error)(nil); errors.As(err, &pe) {
		writeError(w, r, pe.Status, pe.Code, pe.Message, pe.Details)
		return
	}
	if de := (*dues.Error)(nil); errors.As(err, &de) {
		writeError(w, r, de.Status, de.Code, de.Message, de.Details)
		return
	}
	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", middleware.GetReqID(r.Context())),
		zap.Error(err),
	)
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
