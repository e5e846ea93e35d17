package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/domain"
)

func (s *Server) ListAffiliations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, choicesFromCatalog(s.Dues.Choices()))
}

// QuoteDues prices dues. Callers that authenticated get the pre-filled flow; everyone
// else must supply affiliation, email and name.
func (s *Server) QuoteDues(w http.ResponseWriter, r *http.Request) {
	var body DuesQuoteRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	in := dues.QuoteInput{
		Affiliation: domain.AffiliationCode(body.Affiliation),
		Email:       body.Email,
		Name:        body.Name,
	}

	var (
		q   dues.Quote
		err error
	)
	if sub, ok := SubjectFromContext(r.Context()); ok {
		q, err = s.Dues.QuoteForSubject(r.Context(), sub, in)
	} else {
		q, err = s.Dues.QuoteAnonymous(r.Context(), in)
	}
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, quoteFromApp(q))
}

func (s *Server) RecordRenewal(w http.ResponseWriter, r *http.Request) {
	var body RecordRenewalRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	body.ParticipantID = strings.TrimSpace(body.ParticipantID)
	body.Affiliation = strings.ToUpper(strings.TrimSpace(body.Affiliation))
	if body.ParticipantID == "" {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid renewal", map[string]any{"participantId": "is required"})
		return
	}

	s.idempotent(w, r, adminSubject, "/admin/renewals", body, func() (int, any, error) {
		rec, err := s.Dues.RecordRenewal(r.Context(), dues.RecordRenewalInput{
			ParticipantID: domain.ParticipantID(body.ParticipantID),
			Amount:        domain.Money(body.AmountCents),
			Affiliation:   domain.AffiliationCode(body.Affiliation),
		})
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, receiptFromApp(rec), nil
	})
}

func (s *Server) SetPresetDues(w http.ResponseWriter, r *http.Request) {
	var body PresetDuesRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	if !body.AmountCents.IsSpecified() {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid preset dues", map[string]any{"amountCents": "is required (null clears the preset)"})
		return
	}
	var amount *domain.Money
	if v, err := body.AmountCents.Get(); err == nil {
		m := domain.Money(v)
		amount = &m
	}

	id := domain.ParticipantID(chi.URLParam(r, "participantId"))
	if err := s.Dues.SetPresetDues(r.Context(), id, amount); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
