package participants

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/platform/metrics"
	clockport "github.com/mitoc/membership-api/internal/ports/out/clock"
	"github.com/mitoc/membership-api/internal/ports/out/events"
	"github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

// MinCarYear is the oldest model year accepted for a car on file.
const MinCarYear = 1903

// DefaultConfirmationTTL bounds how long an email confirmation token stays valid.
const DefaultConfirmationTTL = 48 * time.Hour

type Service struct {
	repo        participantrepo.Repository
	memberships membershiprepo.Repository
	engine      *eligibility.Engine
	clk         clockport.Clock

	logger  *zap.Logger
	metrics *metrics.Metrics

	confirmations   events.ConfirmationSender
	confirmationTTL time.Duration

	newParticipantID func() domain.ParticipantID
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithConfirmationSender sets where email confirmation tokens are delivered.
func WithConfirmationSender(c events.ConfirmationSender) Option {
	return func(s *Service) { s.confirmations = c }
}

func WithConfirmationTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.confirmationTTL = ttl
		}
	}
}

func NewService(repo participantrepo.Repository, memberships membershiprepo.Repository, engine *eligibility.Engine, clk clockport.Clock, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		memberships: memberships,
		engine:      engine,
		clk:         clk,
		logger:      zap.NewNop(),

		confirmationTTL: DefaultConfirmationTTL,
		newParticipantID: func() domain.ParticipantID {
			return domain.ParticipantID(uuid.NewString())
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) GetMyProfile(ctx context.Context, subject domain.SubjectID) (Profile, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return Profile{}, err
	}
	return s.buildProfile(ctx, p)
}

func (s *Service) CreateMyProfile(ctx context.Context, subject domain.SubjectID, in CreateProfileInput) (Profile, error) {
	if _, err := s.repo.GetBySubject(ctx, subject); err == nil {
		return Profile{}, &Error{
			Status:  409,
			Code:    "PARTICIPANT_ALREADY_EXISTS",
			Message: "A participant profile already exists for the authenticated subject.",
		}
	} else if !errors.Is(err, participantrepo.ErrNotFound) {
		return Profile{}, err
	}

	details := map[string]any{}
	name, msg := validateName(in.Name)
	if msg != "" {
		details["name"] = msg
	}
	email := domain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		details["email"] = err.Error()
	}
	affiliation, msg := normalizeAffiliation(in.Affiliation)
	if msg != "" {
		details["affiliation"] = msg
	}
	claim, msg := normalizeCarClaim(in.CarClaim)
	if msg != "" {
		details["carClaim"] = msg
	}
	var car *domain.CarDetails
	if in.Car != nil {
		c, carDetails := s.normalizeCar(*in.Car)
		mergeDetails(details, "car", carDetails)
		car = c
	}
	var emergency *domain.EmergencyInfo
	if in.EmergencyInfo == nil {
		details["emergencyInfo"] = "is required"
	} else {
		e, eDetails := normalizeEmergency(*in.EmergencyInfo)
		mergeDetails(details, "emergencyInfo", eDetails)
		emergency = e
	}
	if len(details) > 0 {
		s.metrics.IncProfileSubmission("invalid")
		return Profile{}, validationError("invalid participant profile", details)
	}
	if err := s.ensureEmailUnique(ctx, email, ""); err != nil {
		return Profile{}, err
	}
	if claim != domain.CarClaimYes {
		car = nil
	}

	// The profile address starts unverified unless the identity provider vouched for it.
	// An address the provider vouched for is linked verified either way.
	emails := []domain.VerifiedEmail{{Address: email, Primary: true}}
	if identity := domain.NormalizeEmail(in.IdentityEmail); identity != "" {
		if identity == email {
			emails[0].Verified = true
		} else {
			emails = append(emails, domain.VerifiedEmail{Address: identity, Verified: true})
		}
	}

	req := s.engine.Requirements.Resolve(eligibility.RequirementInput{
		Affiliation: affiliation,
		CarClaim:    claim,
		HasMITEmail: s.engine.Dues.HasMITEmail(emails),
	})
	if err := s.checkRequirements(req, car); err != nil {
		return Profile{}, err
	}

	now := s.clk.Now().UTC()
	rec := participantrepo.Participant{
		ID:                 s.newParticipantID(),
		Subject:            subject,
		Name:               name,
		Email:              email,
		CellPhone:          normalizePhone(in.CellPhone),
		Affiliation:        affiliation,
		CarClaim:           claim,
		Car:                car,
		EmergencyInfo:      emergency,
		ProfileLastUpdated: now,
		CreatedAt:          now,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, participantrepo.ErrSubjectAlreadyBound) {
			return Profile{}, &Error{
				Status:  409,
				Code:    "PARTICIPANT_ALREADY_EXISTS",
				Message: "A participant profile already exists for the authenticated subject.",
			}
		}
		return Profile{}, err
	}
	for _, e := range emails {
		if err := s.repo.PutEmail(ctx, rec.ID, e); err != nil {
			return Profile{}, err
		}
	}
	if !emails[0].Verified {
		if err := s.issueConfirmation(ctx, rec.ID, email); err != nil {
			return Profile{}, err
		}
	}

	s.metrics.IncProfileSubmission("saved")
	s.logger.Info("participant created",
		zap.String("participant_id", string(rec.ID)),
		zap.String("affiliation", string(rec.Affiliation)),
	)
	return s.buildProfile(ctx, rec)
}

func (s *Service) UpdateMyProfile(ctx context.Context, subject domain.SubjectID, in UpdateProfileInput) (UpdateResult, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return UpdateResult{}, err
	}
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return UpdateResult{}, err
	}
	now := s.clk.Now().UTC()
	stale := s.engine.Staleness.Evaluate(p.ProfileLastUpdated, now, true)
	hadCar := p.Car != nil
	emailChanged := false

	details := map[string]any{}

	if in.Name.IsSpecified() {
		if in.Name.IsNull() {
			details["name"] = "cannot be null"
		} else if name, msg := validateName(in.Name.Value()); msg != "" {
			details["name"] = msg
		} else {
			p.Name = name
		}
	}

	if in.Email.IsSpecified() {
		if in.Email.IsNull() {
			details["email"] = "cannot be null"
		} else {
			email := domain.NormalizeEmail(in.Email.Value())
			if err := validateEmail(email); err != nil {
				details["email"] = err.Error()
			} else if e, ok := findEmail(emails, email); !ok || !e.Verified {
				details["email"] = "must be one of your verified addresses"
			} else if !strings.EqualFold(p.Email, email) {
				p.Email = email
				emailChanged = true
			}
		}
	}

	if in.CellPhone.IsSpecified() {
		if in.CellPhone.IsNull() {
			p.CellPhone = nil
		} else {
			v := in.CellPhone.Value()
			p.CellPhone = normalizePhone(&v)
		}
	}

	if in.Affiliation.IsSpecified() {
		if in.Affiliation.IsNull() {
			p.Affiliation = ""
		} else if a, msg := normalizeAffiliation(in.Affiliation.Value()); msg != "" {
			details["affiliation"] = msg
		} else {
			p.Affiliation = a
		}
	}

	if in.CarClaim.IsSpecified() {
		if in.CarClaim.IsNull() {
			p.CarClaim = domain.CarClaimUnset
		} else if c, msg := normalizeCarClaim(in.CarClaim.Value()); msg != "" {
			details["carClaim"] = msg
		} else {
			p.CarClaim = c
		}
	}

	if in.Car.IsSpecified() {
		if in.Car.IsNull() {
			p.Car = nil
		} else {
			c, carDetails := s.normalizeCar(in.Car.Value())
			mergeDetails(details, "car", carDetails)
			p.Car = c
		}
	}

	emergencySubmitted := false
	if in.EmergencyInfo.IsSpecified() {
		if in.EmergencyInfo.IsNull() {
			details["emergencyInfo"] = "cannot be null"
		} else {
			e, eDetails := normalizeEmergency(in.EmergencyInfo.Value())
			mergeDetails(details, "emergencyInfo", eDetails)
			p.EmergencyInfo = e
			emergencySubmitted = len(eDetails) == 0
		}
	}

	if len(details) > 0 {
		s.metrics.IncProfileSubmission("invalid")
		return UpdateResult{}, validationError("invalid participant profile", details)
	}
	if emailChanged {
		if err := s.ensureEmailUnique(ctx, p.Email, string(p.ID)); err != nil {
			return UpdateResult{}, err
		}
	}

	// Car details only exist alongside a YES claim.
	if p.CarClaim != domain.CarClaimYes {
		p.Car = nil
	}

	req := s.engine.Requirements.Resolve(eligibility.RequirementInput{
		Affiliation:         p.Affiliation,
		CarClaim:            p.CarClaim,
		HasMITEmail:         s.engine.Dues.HasMITEmail(emails),
		HasCarOnFile:        hadCar,
		MedicalInfoScrubbed: stale.Scrubbed,
	})
	if err := s.checkRequirements(req, p.Car); err != nil {
		return UpdateResult{}, err
	}
	if stale.Scrubbed && !emergencySubmitted {
		s.metrics.IncProfileSubmission("blocked")
		return UpdateResult{}, requirementsError(req, eligibility.EmergencyFields)
	}

	p.ProfileLastUpdated = now
	if err := s.repo.Update(ctx, p); err != nil {
		if errors.Is(err, participantrepo.ErrNotFound) {
			return UpdateResult{}, notProvisioned()
		}
		return UpdateResult{}, err
	}
	if emailChanged {
		if err := s.repo.PutEmail(ctx, p.ID, domain.VerifiedEmail{Address: p.Email, Verified: true, Primary: true}); err != nil {
			return UpdateResult{}, err
		}
	}

	s.metrics.IncProfileSubmission("saved")
	s.logger.Info("participant profile updated",
		zap.String("participant_id", string(p.ID)),
		zap.Strings("warnings", warningStrings(req.Warnings)),
	)

	prof, err := s.buildProfile(ctx, p)
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{Profile: prof, Warnings: req.Warnings}, nil
}

// PreviewRequirements runs the requirement resolver against the stored profile with the
// proposed affiliation and car claim, without saving anything.
func (s *Service) PreviewRequirements(ctx context.Context, subject domain.SubjectID, in RequirementsPreviewInput) (eligibility.Requirements, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return eligibility.Requirements{}, err
	}
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return eligibility.Requirements{}, err
	}

	affiliation := p.Affiliation
	if in.Affiliation.IsSpecified() {
		affiliation = ""
		if !in.Affiliation.IsNull() {
			affiliation = domain.AffiliationCode(strings.ToUpper(strings.TrimSpace(string(in.Affiliation.Value()))))
		}
	}
	claim := p.CarClaim
	if in.CarClaim.IsSpecified() {
		claim = domain.CarClaimUnset
		if !in.CarClaim.IsNull() {
			claim = domain.CarClaim(strings.ToUpper(strings.TrimSpace(string(in.CarClaim.Value()))))
		}
	}

	stale := s.engine.Staleness.Evaluate(p.ProfileLastUpdated, s.clk.Now(), true)
	return s.engine.Requirements.Resolve(eligibility.RequirementInput{
		Affiliation:         affiliation,
		CarClaim:            claim,
		HasMITEmail:         s.engine.Dues.HasMITEmail(emails),
		HasCarOnFile:        p.Car != nil,
		MedicalInfoScrubbed: stale.Scrubbed,
	}), nil
}

func (s *Service) GetMyMembership(ctx context.Context, subject domain.SubjectID) (eligibility.RenewalStatus, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return eligibility.RenewalStatus{}, err
	}
	rec, err := s.memberships.Get(ctx, p.ID)
	if err != nil {
		return eligibility.RenewalStatus{}, err
	}
	return s.engine.Renewal.Evaluate(rec, s.clk.Now()), nil
}

// CheckTripEligibility reports whether the participant may sign up for a trip on tripDate.
// Every failing condition is reported.
func (s *Service) CheckTripEligibility(ctx context.Context, subject domain.SubjectID, tripDate time.Time, membershipRequired bool) (TripEligibility, error) {
	p, err := s.getBySubject(ctx, subject)
	if err != nil {
		return TripEligibility{}, err
	}
	prof, err := s.buildProfile(ctx, p)
	if err != nil {
		return TripEligibility{}, err
	}
	rec, err := s.memberships.Get(ctx, p.ID)
	if err != nil {
		return TripEligibility{}, err
	}

	out := TripEligibility{TripDate: domain.DateOf(tripDate)}
	if prof.Requirements.Blocked() {
		out.Reasons = append(out.Reasons, TripProfileIncomplete)
	}
	if membershipRequired && !rec.ActiveOn(tripDate) {
		out.Reasons = append(out.Reasons, TripMembershipRequired)
	}
	if prof.Staleness.RecollectRequired || prof.Participant.EmergencyInfo == nil {
		out.Reasons = append(out.Reasons, TripEmergencyInfoRequired)
	}
	out.Eligible = len(out.Reasons) == 0
	return out, nil
}

// --- helpers ---

func (s *Service) getBySubject(ctx context.Context, subject domain.SubjectID) (participantrepo.Participant, error) {
	p, err := s.repo.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, participantrepo.ErrNotFound) {
			return participantrepo.Participant{}, notProvisioned()
		}
		return participantrepo.Participant{}, err
	}
	return p, nil
}

func (s *Service) buildProfile(ctx context.Context, p participantrepo.Participant) (Profile, error) {
	emails, err := s.repo.ListEmails(ctx, p.ID)
	if err != nil {
		return Profile{}, err
	}
	rec, err := s.memberships.Get(ctx, p.ID)
	if err != nil {
		return Profile{}, err
	}
	now := s.clk.Now()
	stale := s.engine.Staleness.Evaluate(p.ProfileLastUpdated, now, true)

	dp := toDomain(p)
	if stale.Scrubbed {
		dp.EmergencyInfo = nil
	}
	return Profile{
		Participant: dp,
		Emails:      emails,
		Membership:  s.engine.Renewal.Evaluate(rec, now),
		Staleness:   stale,
		Requirements: s.engine.Requirements.Resolve(eligibility.RequirementInput{
			Affiliation:         dp.Affiliation,
			CarClaim:            dp.CarClaim,
			HasMITEmail:         s.engine.Dues.HasMITEmail(emails),
			HasCarOnFile:        dp.Car != nil,
			MedicalInfoScrubbed: stale.Scrubbed,
		}),
	}, nil
}

func (s *Service) checkRequirements(req eligibility.Requirements, car *domain.CarDetails) error {
	var missing []eligibility.FieldID
	if req.Requires(eligibility.FieldCarLicensePlate) && car == nil {
		missing = append(missing, eligibility.CarFields...)
	}
	if req.Blocked() || len(missing) > 0 {
		s.metrics.IncProfileSubmission("blocked")
		return requirementsError(req, missing)
	}
	return nil
}

func requirementsError(req eligibility.Requirements, missing []eligibility.FieldID) *Error {
	blocking := make([]string, 0, len(req.BlockingErrors))
	for _, k := range req.BlockingErrors {
		blocking = append(blocking, string(k))
	}
	fields := make([]string, 0, len(req.RequiredFields))
	for _, f := range req.RequiredFields {
		fields = append(fields, string(f))
	}
	missingOut := make([]string, 0, len(missing))
	for _, f := range missing {
		missingOut = append(missingOut, string(f))
	}
	return &Error{
		Status:  422,
		Code:    "PROFILE_REQUIREMENTS_NOT_MET",
		Message: "The profile does not satisfy its membership requirements.",
		Details: map[string]any{
			"blockingErrors": blocking,
			"warnings":       warningStrings(req.Warnings),
			"requiredFields": fields,
			"missingFields":  missingOut,
		},
	}
}

func warningStrings(ws []eligibility.WarningKind) []string {
	out := make([]string, 0, len(ws))
	for _, w := range ws {
		out = append(out, string(w))
	}
	return out
}

func validateName(raw string) (string, string) {
	name := domain.NormalizeHumanName(raw)
	if name == "" {
		return "", "must be non-empty"
	}
	if !domain.IsFullName(name) {
		return "", "must include first and last name"
	}
	return name, ""
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	// Ensure no "Name <email@x>" format sneaks in.
	if !strings.EqualFold(addr.Address, email) {
		return errors.New("must be a bare email address")
	}
	return nil
}

// normalizeAffiliation upper-cases the code. Legacy one-letter codes are treated as unset so
// the participant has to pick a current category; unknown codes pass through to the resolver.
func normalizeAffiliation(code domain.AffiliationCode) (domain.AffiliationCode, string) {
	c := domain.AffiliationCode(strings.ToUpper(strings.TrimSpace(string(code))))
	if c.IsLegacy() {
		return "", ""
	}
	if len(c) > 2 {
		return "", "must be a two-letter affiliation code"
	}
	return c, ""
}

func normalizeCarClaim(c domain.CarClaim) (domain.CarClaim, string) {
	switch v := domain.CarClaim(strings.ToUpper(strings.TrimSpace(string(c)))); v {
	case domain.CarClaimUnset, domain.CarClaimYes, domain.CarClaimNo:
		return v, ""
	default:
		return "", "must be YES or NO"
	}
}

func (s *Service) normalizeCar(in CarInput) (*domain.CarDetails, map[string]any) {
	details := map[string]any{}
	car := &domain.CarDetails{
		LicensePlate: strings.ToUpper(strings.Join(strings.Fields(in.LicensePlate), "")),
		State:        strings.ToUpper(strings.TrimSpace(in.State)),
		Make:         domain.NormalizeHumanName(in.Make),
		Model:        domain.NormalizeHumanName(in.Model),
		Year:         in.Year,
		Color:        domain.NormalizeHumanName(in.Color),
	}
	required := map[string]string{
		"licensePlate": car.LicensePlate,
		"state":        car.State,
		"make":         car.Make,
		"model":        car.Model,
		"color":        car.Color,
	}
	for k, v := range required {
		if v == "" {
			details[k] = "must be non-empty"
		}
	}
	maxYear := s.clk.Now().Year() + 2
	if car.Year < MinCarYear || car.Year > maxYear {
		details["year"] = fmt.Sprintf("must be between %d and %d", MinCarYear, maxYear)
	}
	return car, details
}

func normalizeEmergency(in EmergencyInput) (*domain.EmergencyInfo, map[string]any) {
	details := map[string]any{}
	e := &domain.EmergencyInfo{
		ContactName:         domain.NormalizeHumanName(in.ContactName),
		ContactEmail:        domain.NormalizeEmail(in.ContactEmail),
		ContactCellPhone:    strings.TrimSpace(in.ContactCellPhone),
		ContactRelationship: domain.NormalizeHumanName(in.ContactRelationship),
		Allergies:           strings.TrimSpace(in.Allergies),
		Medications:         strings.TrimSpace(in.Medications),
		MedicalHistory:      strings.TrimSpace(in.MedicalHistory),
	}
	if e.ContactName == "" {
		details["contactName"] = "must be non-empty"
	}
	if err := validateEmail(e.ContactEmail); err != nil {
		details["contactEmail"] = err.Error()
	}
	if e.ContactCellPhone == "" {
		details["contactCellPhone"] = "must be non-empty"
	}
	if e.ContactRelationship == "" {
		details["contactRelationship"] = "must be non-empty"
	}
	return e, details
}

func normalizePhone(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.TrimSpace(*p)
	if v == "" {
		return nil
	}
	return &v
}

func mergeDetails(dst map[string]any, prefix string, src map[string]any) {
	for k, v := range src {
		dst[prefix+"."+k] = v
	}
}

func findEmail(emails []domain.VerifiedEmail, address string) (domain.VerifiedEmail, bool) {
	for _, e := range emails {
		if strings.EqualFold(e.Address, address) {
			return e, true
		}
	}
	return domain.VerifiedEmail{}, false
}

func (s *Service) ensureEmailUnique(ctx context.Context, email string, excludeID string) error {
	ps, err := s.repo.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range ps {
		if excludeID != "" && string(p.ID) == excludeID {
			continue
		}
		if strings.EqualFold(p.Email, email) {
			return &Error{
				Status:  409,
				Code:    "EMAIL_ALREADY_IN_USE",
				Message: "email address is already in use",
			}
		}
	}
	return nil
}

func toDomain(p participantrepo.Participant) domain.Participant {
	out := domain.Participant{
		ID:                 p.ID,
		Subject:            p.Subject,
		Name:               p.Name,
		Email:              p.Email,
		Affiliation:        p.Affiliation,
		CarClaim:           p.CarClaim,
		ProfileLastUpdated: p.ProfileLastUpdated,
		CreatedAt:          p.CreatedAt,
	}
	if out.Affiliation.IsLegacy() {
		out.Affiliation = ""
	}
	if p.CellPhone != nil {
		v := *p.CellPhone
		out.CellPhone = &v
	}
	if p.Car != nil {
		v := *p.Car
		out.Car = &v
	}
	if p.EmergencyInfo != nil {
		v := *p.EmergencyInfo
		out.EmergencyInfo = &v
	}
	return out
}
