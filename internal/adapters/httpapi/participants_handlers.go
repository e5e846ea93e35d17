package httpapi

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/mitoc/membership-api/internal/domain"
)

func (s *Server) GetMyProfile(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	prof, err := s.Participants.GetMyProfile(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ParticipantResponse{Participant: profileFromApp(prof)})
}

func (s *Server) CreateMyProfile(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body CreateParticipantRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	id, _ := IdentityFromContext(r.Context())
	prof, err := s.Participants.CreateMyProfile(r.Context(), sub, createInputFromRequest(body, id.VerifiedEmail))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ParticipantResponse{Participant: profileFromApp(prof)})
}

func (s *Server) UpdateMyProfile(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body UpdateParticipantRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	s.idempotent(w, r, sub, "/participants/me", canonicalUpdate(body), func() (int, any, error) {
		res, err := s.Participants.UpdateMyProfile(r.Context(), sub, updateInputFromRequest(body))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, UpdateParticipantResponse{
			Participant: profileFromApp(res.Profile),
			Warnings:    strs(res.Warnings),
		}, nil
	})
}

// canonicalUpdate normalizes fields with normalization semantics so equivalent retries
// hash the same.
func canonicalUpdate(b UpdateParticipantRequest) UpdateParticipantRequest {
	canon := b
	if v, err := b.Name.Get(); err == nil {
		canon.Name = nullable.NewNullableWithValue(domain.NormalizeHumanName(v))
	}
	if v, err := b.Email.Get(); err == nil {
		canon.Email = nullable.NewNullableWithValue(domain.NormalizeEmail(v))
	}
	if v, err := b.Affiliation.Get(); err == nil {
		canon.Affiliation = nullable.NewNullableWithValue(strings.ToUpper(strings.TrimSpace(v)))
	}
	if v, err := b.CarClaim.Get(); err == nil {
		canon.CarClaim = nullable.NewNullableWithValue(strings.ToUpper(strings.TrimSpace(v)))
	}
	return canon
}

func (s *Server) PreviewRequirements(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body RequirementsPreviewRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	req, err := s.Participants.PreviewRequirements(r.Context(), sub, previewInputFromRequest(body))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RequirementsResponse{Requirements: requirementsFromResult(req)})
}

func (s *Server) GetMyMembership(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	st, err := s.Participants.GetMyMembership(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MembershipResponse{Membership: membershipFromStatus(st)})
}

func (s *Server) CheckTripEligibility(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	details := map[string]any{}
	tripDate, err := time.Parse(openapi_types.DateFormat, strings.TrimSpace(q.Get("tripDate")))
	if err != nil {
		details["tripDate"] = "must be a date in YYYY-MM-DD format"
	}
	membershipRequired := false
	if raw := strings.TrimSpace(q.Get("membershipRequired")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			details["membershipRequired"] = "must be a boolean"
		}
		membershipRequired = v
	}
	if len(details) > 0 {
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "invalid query parameters", details)
		return
	}

	te, err := s.Participants.CheckTripEligibility(r.Context(), sub, tripDate, membershipRequired)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TripEligibilityResponse{
		TripDate: openapi_types.Date{Time: te.TripDate},
		Eligible: te.Eligible,
		Reasons:  strs(te.Reasons),
	})
}

func (s *Server) ListMyEmails(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	es, err := s.Participants.ListMyEmails(r.Context(), sub)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EmailsResponse{Emails: emailsFromDomain(es)})
}

func (s *Server) AddMyEmail(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body AddEmailRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	es, err := s.Participants.AddMyEmail(r.Context(), sub, body.Address)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, EmailsResponse{Emails: emailsFromDomain(es)})
}

func (s *Server) VerifyMyEmail(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	var body VerifyEmailRequest
	if !decodeJSON(w, r, &body) {
		return
	}
	es, err := s.Participants.VerifyMyEmail(r.Context(), sub, addressParam(r), body.Token)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, EmailsResponse{Emails: emailsFromDomain(es)})
}

func (s *Server) RemoveMyEmail(w http.ResponseWriter, r *http.Request) {
	sub, ok := s.subject(w, r)
	if !ok {
		return
	}
	if err := s.Participants.RemoveMyEmail(r.Context(), sub, addressParam(r)); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func addressParam(r *http.Request) string {
	raw := chi.URLParam(r, "address")
	if v, err := url.PathUnescape(raw); err == nil {
		return v
	}
	return raw
}
