package dues

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/platform/metrics"
	clockport "github.com/mitoc/membership-api/internal/ports/out/clock"
	"github.com/mitoc/membership-api/internal/ports/out/events"
	"github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

type Service struct {
	participants participantrepo.Repository
	memberships  membershiprepo.Repository
	engine       *eligibility.Engine
	publisher    events.Publisher
	clk          clockport.Clock
	payment      PaymentConfig

	logger  *zap.Logger
	metrics *metrics.Metrics
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

func NewService(
	participants participantrepo.Repository,
	memberships membershiprepo.Repository,
	engine *eligibility.Engine,
	publisher events.Publisher,
	clk clockport.Clock,
	payment PaymentConfig,
	opts ...Option,
) *Service {
	s := &Service{
		participants: participants,
		memberships:  memberships,
		engine:       engine,
		publisher:    publisher,
		clk:          clk,
		payment:      payment,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuoteInput is the payer's selection. For authenticated callers every field is optional
// and defaults to the stored profile.
type QuoteInput struct {
	Affiliation domain.AffiliationCode
	Email       string
	Name        string
}

// Quote is the authoritative dues decision and, when eligible, the gateway payload.
type Quote struct {
	Result  eligibility.EligibilityResult
	Payer   Payer
	Payload *Payload
	// Renewal is set for authenticated callers only.
	Renewal *eligibility.RenewalStatus
}

// QuoteAnonymous prices dues for someone paying without an account. The typed email is
// where the receipt goes, so it counts as the payer's verified address.
func (s *Service) QuoteAnonymous(ctx context.Context, in QuoteInput) (Quote, error) {
	_ = ctx
	details := map[string]any{}
	name := domain.NormalizeHumanName(in.Name)
	if !domain.IsFullName(name) {
		details["name"] = "must include first and last name"
	}
	email := domain.NormalizeEmail(in.Email)
	if err := validateEmail(email); err != nil {
		details["email"] = err.Error()
	}
	aff := normalizeCode(in.Affiliation)
	if aff == "" {
		details["affiliation"] = "is required"
	}
	if len(details) > 0 {
		return Quote{}, &Error{Status: 422, Code: "VALIDATION_ERROR", Message: "invalid dues quote request", Details: details}
	}

	res, err := s.engine.Dues.Validate(eligibility.DuesRequest{
		Affiliation: aff,
		Emails:      []domain.VerifiedEmail{{Address: email, Verified: true}},
	})
	if err != nil {
		return Quote{}, s.quoteError(aff, err)
	}
	payer := Payer{Affiliation: aff, Email: email, Name: name}
	return s.finishQuote(res, payer, nil)
}

// QuoteForSubject prices dues for an authenticated participant: a preset amount wins,
// contact details come from the profile, and renewal timing is enforced.
func (s *Service) QuoteForSubject(ctx context.Context, subject domain.SubjectID, in QuoteInput) (Quote, error) {
	p, err := s.participants.GetBySubject(ctx, subject)
	if err != nil {
		if errors.Is(err, participantrepo.ErrNotFound) {
			return Quote{}, notProvisioned()
		}
		return Quote{}, err
	}
	emails, err := s.participants.ListEmails(ctx, p.ID)
	if err != nil {
		return Quote{}, err
	}
	rec, err := s.memberships.Get(ctx, p.ID)
	if err != nil {
		return Quote{}, err
	}
	status := s.engine.Renewal.Evaluate(rec, s.clk.Now())
	if !status.RenewalAllowed {
		return Quote{}, renewalNotOpen(status)
	}

	aff := normalizeCode(in.Affiliation)
	if aff == "" {
		aff = normalizeCode(p.Affiliation)
	}
	if aff == "" && rec.PresetDues == nil {
		return Quote{}, affiliationMissing()
	}

	res, err := s.engine.Dues.Validate(eligibility.DuesRequest{
		Affiliation:          aff,
		Emails:               emails,
		AlreadyAuthenticated: true,
		PresetAmount:         rec.PresetDues,
	})
	if err != nil {
		return Quote{}, s.quoteError(aff, err)
	}
	return s.finishQuote(res, Payer{Affiliation: aff, Email: p.Email, Name: p.Name}, &status)
}

func (s *Service) finishQuote(res eligibility.EligibilityResult, payer Payer, status *eligibility.RenewalStatus) (Quote, error) {
	q := Quote{Result: res, Payer: payer, Renewal: status}
	outcome := "valid"
	if !res.Valid {
		outcome = strings.ToLower(string(res.Reason))
	}
	s.metrics.IncDuesQuote(string(payer.Affiliation), outcome)

	if res.Valid && res.Amount > 0 {
		payload, err := BuildPayload(s.payment, res, payer)
		if err != nil {
			return Quote{}, err
		}
		q.Payload = &payload
	}
	return q, nil
}

func (s *Service) quoteError(aff domain.AffiliationCode, err error) error {
	if errors.Is(err, eligibility.ErrUnknownAffiliation) {
		s.metrics.IncDuesQuote(string(aff), "unknown_affiliation")
		return unknownAffiliation(aff)
	}
	return err
}

// RecordRenewalInput describes a settled dues payment.
type RecordRenewalInput struct {
	ParticipantID domain.ParticipantID
	Amount        domain.Money
	// Affiliation overrides the profile's affiliation when set.
	Affiliation domain.AffiliationCode
}

type RenewalReceipt struct {
	Membership   domain.MembershipRecord
	Phase        eligibility.RenewalPhase
	EarlyRenewal bool
	Amount       domain.Money
}

// RecordRenewal applies a settled payment: it re-checks the amount against the
// authoritative dues, extends the expiry and publishes a renewal event.
func (s *Service) RecordRenewal(ctx context.Context, in RecordRenewalInput) (RenewalReceipt, error) {
	p, err := s.participants.GetByID(ctx, in.ParticipantID)
	if err != nil {
		if errors.Is(err, participantrepo.ErrNotFound) {
			return RenewalReceipt{}, participantNotFound()
		}
		return RenewalReceipt{}, err
	}
	emails, err := s.participants.ListEmails(ctx, p.ID)
	if err != nil {
		return RenewalReceipt{}, err
	}
	rec, err := s.memberships.Get(ctx, p.ID)
	if err != nil {
		return RenewalReceipt{}, err
	}

	now := s.clk.Now().UTC()
	status := s.engine.Renewal.Evaluate(rec, now)
	if !status.RenewalAllowed {
		return RenewalReceipt{}, renewalNotOpen(status)
	}

	aff := normalizeCode(in.Affiliation)
	if aff == "" {
		aff = normalizeCode(p.Affiliation)
	}
	if aff == "" && rec.PresetDues == nil {
		return RenewalReceipt{}, affiliationMissing()
	}
	res, err := s.engine.Dues.Validate(eligibility.DuesRequest{
		Affiliation:          aff,
		Emails:               emails,
		AlreadyAuthenticated: true,
		PresetAmount:         rec.PresetDues,
	})
	if err != nil {
		if errors.Is(err, eligibility.ErrUnknownAffiliation) {
			return RenewalReceipt{}, unknownAffiliation(aff)
		}
		return RenewalReceipt{}, err
	}
	if err := eligibility.CheckSubmittedAmount(res, in.Amount); err != nil {
		switch {
		case errors.Is(err, eligibility.ErrIneligible):
			return RenewalReceipt{}, &Error{
				Status:  422,
				Code:    "DUES_INELIGIBLE",
				Message: "The participant is not eligible for the selected affiliation.",
				Details: map[string]any{"reason": string(res.Reason)},
			}
		case errors.Is(err, eligibility.ErrAmountMismatch):
			return RenewalReceipt{}, &Error{
				Status:  422,
				Code:    "AMOUNT_MISMATCH",
				Message: err.Error(),
				Details: map[string]any{"expectedCents": res.Amount.Cents(), "submittedCents": in.Amount.Cents()},
			}
		}
		return RenewalReceipt{}, err
	}

	updated, err := s.memberships.ApplyRenewal(ctx, p.ID, status.ExpiryIfPaidToday, now)
	if err != nil {
		switch {
		case errors.Is(err, membershiprepo.ErrExpiryRegression):
			return RenewalReceipt{}, &Error{
				Status:  409,
				Code:    "EXPIRY_REGRESSION",
				Message: "The renewal would move the membership expiry backwards.",
			}
		case errors.Is(err, membershiprepo.ErrUnknownParticipant):
			return RenewalReceipt{}, participantNotFound()
		}
		return RenewalReceipt{}, err
	}

	s.metrics.IncRenewal(string(status.Phase))
	s.logger.Info("membership renewed",
		zap.String("participant_id", string(p.ID)),
		zap.String("phase", string(status.Phase)),
		zap.String("amount", res.Amount.String()),
		zap.Time("expires", *updated.Expires),
	)

	ev := events.RenewalEvent{
		ParticipantID: p.ID,
		Email:         p.Email,
		Affiliation:   aff,
		AmountCents:   res.Amount.Cents(),
		NewExpiry:     updated.Expires.Format(time.DateOnly),
		EarlyRenewal:  status.InEarlyRenewalPeriod,
		RenewedAt:     now,
	}
	if s.publisher != nil {
		// The renewal is already applied; a lost event only delays reminder emails.
		if err := s.publisher.PublishRenewal(ctx, ev); err != nil {
			s.logger.Warn("renewal event not published",
				zap.String("participant_id", string(p.ID)),
				zap.Error(err),
			)
		}
	}

	return RenewalReceipt{
		Membership:   updated,
		Phase:        status.Phase,
		EarlyRenewal: status.InEarlyRenewalPeriod,
		Amount:       res.Amount,
	}, nil
}

// SetPresetDues sets or clears (nil) a server-computed dues amount for a participant.
func (s *Service) SetPresetDues(ctx context.Context, id domain.ParticipantID, amount *domain.Money) error {
	if amount != nil && *amount < 0 {
		return &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid preset dues",
			Details: map[string]any{"amountCents": "must be non-negative"},
		}
	}
	if err := s.memberships.SetPresetDues(ctx, id, amount); err != nil {
		if errors.Is(err, membershiprepo.ErrUnknownParticipant) {
			return participantNotFound()
		}
		return err
	}
	s.logger.Info("preset dues updated",
		zap.String("participant_id", string(id)),
		zap.Bool("cleared", amount == nil),
	)
	return nil
}

// Choices lists the affiliation menu with prices.
func (s *Service) Choices() []eligibility.ChoiceGroup {
	return s.engine.Catalog.Choices()
}

// PaymentGatewayURL is where clients post the payload.
func (s *Service) PaymentGatewayURL() string { return s.payment.GatewayURL }

// --- helpers ---

func normalizeCode(c domain.AffiliationCode) domain.AffiliationCode {
	c = domain.AffiliationCode(strings.ToUpper(strings.TrimSpace(string(c))))
	if c.IsLegacy() {
		return ""
	}
	return c
}

func validateEmail(email string) error {
	if email == "" {
		return errors.New("must be non-empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return err
	}
	if !strings.EqualFold(addr.Address, email) {
		return errors.New("must be a bare email address")
	}
	return nil
}

func unknownAffiliation(code domain.AffiliationCode) *Error {
	return &Error{
		Status:  422,
		Code:    "UNKNOWN_AFFILIATION",
		Message: "The affiliation is not offered.",
		Details: map[string]any{"affiliation": string(code)},
	}
}

func affiliationMissing() *Error {
	return &Error{
		Status:  422,
		Code:    "AFFILIATION_MISSING",
		Message: "An affiliation must be selected before paying dues.",
	}
}

func participantNotFound() *Error {
	return &Error{
		Status:  404,
		Code:    "PARTICIPANT_NOT_FOUND",
		Message: "participant not found",
	}
}

func renewalNotOpen(st eligibility.RenewalStatus) *Error {
	details := map[string]any{}
	if st.WindowOpens != nil {
		details["windowOpens"] = st.WindowOpens.Format(time.DateOnly)
	}
	return &Error{
		Status:  409,
		Code:    "RENEWAL_NOT_OPEN",
		Message: "Membership renewal is not open yet.",
		Details: details,
	}
}
