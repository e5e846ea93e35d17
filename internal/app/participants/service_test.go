package participants

import (
	"context"
	"errors"
	"testing"
	"time"

	memclock "github.com/mitoc/membership-api/internal/adapters/memory/clock"
	memevents "github.com/mitoc/membership-api/internal/adapters/memory/events"
	memmemberships "github.com/mitoc/membership-api/internal/adapters/memory/membershiprepo"
	memparticipants "github.com/mitoc/membership-api/internal/adapters/memory/participantrepo"
	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
	"github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

type fixture struct {
	svc         *Service
	repo        *memparticipants.Repo
	memberships *memmemberships.Repo
	sent        *memevents.Recorder
	engine      *eligibility.Engine
	clk         *memclock.ManualClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	repo := memparticipants.NewRepo()
	memberships := memmemberships.NewRepo(repo)
	clk := memclock.NewManualClock(time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC))
	engine := eligibility.NewEngine(eligibility.DefaultCatalog(), eligibility.Config{RenewalLeadDays: 30})
	sent := memevents.NewRecorder()
	return fixture{
		svc:         NewService(repo, memberships, engine, clk, WithConfirmationSender(sent)),
		repo:        repo,
		memberships: memberships,
		sent:        sent,
		engine:      engine,
		clk:         clk,
	}
}

func emergency() *EmergencyInput {
	return &EmergencyInput{
		ContactName:         "Pat Beaver",
		ContactEmail:        "pat@example.com",
		ContactCellPhone:    "+16175550100",
		ContactRelationship: "Parent",
		Allergies:           "None",
	}
}

func (f fixture) create(t *testing.T, subject string, email string, aff domain.AffiliationCode) Profile {
	t.Helper()
	p, err := f.svc.CreateMyProfile(context.Background(), domain.SubjectID(subject), CreateProfileInput{
		Name:          "Tim Beaver",
		Email:         email,
		Affiliation:   aff,
		CarClaim:      domain.CarClaimNo,
		EmergencyInfo: emergency(),
	})
	if err != nil {
		t.Fatalf("CreateMyProfile err=%v", err)
	}
	return p
}

// verify confirms address with the token most recently sent to it.
func (f fixture) verify(t *testing.T, subject domain.SubjectID, address string) []domain.VerifiedEmail {
	t.Helper()
	token, ok := f.sent.LatestToken(address)
	if !ok {
		t.Fatalf("no confirmation sent to %s", address)
	}
	emails, err := f.svc.VerifyMyEmail(context.Background(), subject, address, token)
	if err != nil {
		t.Fatalf("VerifyMyEmail err=%v", err)
	}
	return emails
}

func wantAppError(t *testing.T, err error, status int, code string) *Error {
	t.Helper()
	ae := (*Error)(nil)
	if !errors.As(err, &ae) || ae.Status != status || ae.Code != code {
		t.Fatalf("err=%v (type=%T), want %s %d", err, err, code, status)
	}
	return ae
}

func TestService_GetMyProfile_NotProvisioned(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.GetMyProfile(context.Background(), domain.SubjectID("sub-1"))
	wantAppError(t, err, 404, "PARTICIPANT_NOT_PROVISIONED")
}

func TestService_CreateThenGet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	created, err := f.svc.CreateMyProfile(context.Background(), domain.SubjectID("sub-1"), CreateProfileInput{
		Name:          "  Tim   Beaver ",
		Email:         " Tim@Example.com",
		Affiliation:   "na",
		EmergencyInfo: emergency(),
	})
	if err != nil {
		t.Fatalf("CreateMyProfile err=%v", err)
	}
	if created.Participant.Name != "Tim Beaver" {
		t.Fatalf("name=%q", created.Participant.Name)
	}
	if created.Participant.Affiliation != domain.AffiliationNonAffiliate {
		t.Fatalf("affiliation=%q, want NA", created.Participant.Affiliation)
	}

	got, err := f.svc.GetMyProfile(context.Background(), domain.SubjectID("sub-1"))
	if err != nil {
		t.Fatalf("GetMyProfile err=%v", err)
	}
	if got.Participant.ID != created.Participant.ID || got.Participant.Email != "tim@example.com" {
		t.Fatalf("got=%+v created=%+v", got.Participant, created.Participant)
	}
	if len(got.Emails) != 1 || !got.Emails[0].Primary || got.Emails[0].Verified {
		t.Fatalf("emails=%+v, want one unverified primary", got.Emails)
	}
	if got.Membership.Phase != eligibility.PhaseNeverMember {
		t.Fatalf("phase=%s, want NEVER_MEMBER", got.Membership.Phase)
	}
	if got.Staleness.Scrubbed {
		t.Fatalf("fresh profile reported as scrubbed")
	}
}

func TestService_Create_RequiresFullName(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.CreateMyProfile(context.Background(), domain.SubjectID("sub-1"), CreateProfileInput{
		Name:          "Tim",
		Email:         "tim@example.com",
		Affiliation:   domain.AffiliationNonAffiliate,
		EmergencyInfo: emergency(),
	})
	ae := wantAppError(t, err, 422, "VALIDATION_ERROR")
	if _, ok := ae.Details["name"]; !ok {
		t.Fatalf("details=%v, want name", ae.Details)
	}
}

func TestService_Create_MITStudentNeedsVerifiedMITEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	_, err := f.svc.CreateMyProfile(context.Background(), domain.SubjectID("sub-1"), CreateProfileInput{
		Name:          "Tim Beaver",
		Email:         "tim@mit.edu",
		Affiliation:   domain.AffiliationMITUndergrad,
		EmergencyInfo: emergency(),
	})
	ae := wantAppError(t, err, 422, "PROFILE_REQUIREMENTS_NOT_MET")
	blocking, _ := ae.Details["blockingErrors"].([]string)
	if len(blocking) != 1 || blocking[0] != string(eligibility.ErrorMITEmailRequired) {
		t.Fatalf("blockingErrors=%v", ae.Details["blockingErrors"])
	}
}

func TestService_Create_AlreadyExists(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.create(t, "sub-1", "tim@example.com", domain.AffiliationNonAffiliate)

	_, err := f.svc.CreateMyProfile(context.Background(), domain.SubjectID("sub-1"), CreateProfileInput{
		Name:          "Tim Beaver",
		Email:         "tim2@example.com",
		Affiliation:   domain.AffiliationNonAffiliate,
		EmergencyInfo: emergency(),
	})
	wantAppError(t, err, 409, "PARTICIPANT_ALREADY_EXISTS")
}

func TestService_Update_MITStudentAfterVerification(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@mit.edu", domain.AffiliationNonAffiliate)

	_, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{Affiliation: Some(domain.AffiliationMITUndergrad)})
	wantAppError(t, err, 422, "PROFILE_REQUIREMENTS_NOT_MET")

	f.verify(t, sub, "TIM@mit.edu")
	res, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{Affiliation: Some(domain.AffiliationMITUndergrad)})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if res.Profile.Participant.Affiliation != domain.AffiliationMITUndergrad {
		t.Fatalf("affiliation=%q, want MU", res.Profile.Participant.Affiliation)
	}
}

func TestService_Update_MITAffiliateWarnsOnly(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	res, err := f.svc.UpdateMyProfile(context.Background(), sub, UpdateProfileInput{Affiliation: Some(domain.AffiliationMITAffiliate)})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != eligibility.WarningMITEmailExpected {
		t.Fatalf("warnings=%v, want [MIT_EMAIL_EXPECTED]", res.Warnings)
	}
}

func TestService_Update_CarClaimLifecycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	_, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{CarClaim: Some(domain.CarClaimYes)})
	ae := wantAppError(t, err, 422, "PROFILE_REQUIREMENTS_NOT_MET")
	missing, _ := ae.Details["missingFields"].([]string)
	if len(missing) != len(eligibility.CarFields) {
		t.Fatalf("missingFields=%v", ae.Details["missingFields"])
	}

	res, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{
		CarClaim: Some(domain.CarClaimYes),
		Car: Some(CarInput{
			LicensePlate: "abc 123",
			State:        "ma",
			Make:         "Subaru",
			Model:        "Outback",
			Year:         2015,
			Color:        "Green",
		}),
	})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if res.Profile.Participant.Car == nil || res.Profile.Participant.Car.LicensePlate != "ABC123" || res.Profile.Participant.Car.State != "MA" {
		t.Fatalf("car=%+v", res.Profile.Participant.Car)
	}

	res, err = f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{CarClaim: Some(domain.CarClaimNo)})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if res.Profile.Participant.Car != nil {
		t.Fatalf("car=%+v, want cleared", res.Profile.Participant.Car)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != eligibility.WarningCarDataWillBeDeleted {
		t.Fatalf("warnings=%v, want [CAR_DATA_WILL_BE_DELETED]", res.Warnings)
	}
}

func TestService_Update_RejectsBadCarYear(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	carOf := func(year int) UpdateProfileInput {
		return UpdateProfileInput{
			CarClaim: Some(domain.CarClaimYes),
			Car:      Some(CarInput{LicensePlate: "X1", State: "MA", Make: "Ford", Model: "A", Year: year, Color: "Black"}),
		}
	}

	// The first production car year is the oldest accepted; the clock is in 2024.
	for _, year := range []int{1850, 1902, 2027} {
		_, err := f.svc.UpdateMyProfile(context.Background(), sub, carOf(year))
		ae := wantAppError(t, err, 422, "VALIDATION_ERROR")
		if _, ok := ae.Details["car.year"]; !ok {
			t.Fatalf("year %d: details=%v, want car.year", year, ae.Details)
		}
	}
	for _, year := range []int{1903, 2026} {
		res, err := f.svc.UpdateMyProfile(context.Background(), sub, carOf(year))
		if err != nil {
			t.Fatalf("year %d: UpdateMyProfile err=%v", year, err)
		}
		if res.Profile.Participant.Car == nil || res.Profile.Participant.Car.Year != year {
			t.Fatalf("year %d: car=%+v", year, res.Profile.Participant.Car)
		}
	}
}

func TestService_Update_EmailMustBeVerified(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	if _, err := f.svc.AddMyEmail(ctx, sub, "tim@mit.edu"); err != nil {
		t.Fatalf("AddMyEmail err=%v", err)
	}
	_, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{Email: Some("tim@mit.edu")})
	wantAppError(t, err, 422, "VALIDATION_ERROR")

	f.verify(t, sub, "tim@mit.edu")
	res, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{Email: Some("tim@mit.edu")})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if res.Profile.Participant.Email != "tim@mit.edu" || res.Profile.Emails[0].Address != "tim@mit.edu" || !res.Profile.Emails[0].Primary {
		t.Fatalf("profile=%+v emails=%+v", res.Profile.Participant, res.Profile.Emails)
	}
}

func TestService_StaleMedicalInfoMustBeRecollected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	f.clk.Advance(366 * 24 * time.Hour)

	got, err := f.svc.GetMyProfile(ctx, sub)
	if err != nil {
		t.Fatalf("GetMyProfile err=%v", err)
	}
	if !got.Staleness.Scrubbed || !got.Staleness.RecollectRequired {
		t.Fatalf("staleness=%+v, want scrubbed", got.Staleness)
	}
	if got.Participant.EmergencyInfo != nil {
		t.Fatalf("scrubbed emergency info still exposed")
	}
	if !got.Requirements.HasWarning(eligibility.WarningMedicalInfoScrubbed) {
		t.Fatalf("warnings=%v, want MEDICAL_INFO_SCRUBBED", got.Requirements.Warnings)
	}

	_, err = f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{Name: Some("Tim B Beaver")})
	wantAppError(t, err, 422, "PROFILE_REQUIREMENTS_NOT_MET")

	res, err := f.svc.UpdateMyProfile(ctx, sub, UpdateProfileInput{EmergencyInfo: Some(*emergency())})
	if err != nil {
		t.Fatalf("UpdateMyProfile err=%v", err)
	}
	if res.Profile.Staleness.Scrubbed || res.Profile.Participant.EmergencyInfo == nil {
		t.Fatalf("profile still scrubbed after re-entry: %+v", res.Profile.Staleness)
	}
}

func TestService_LegacyAffiliationMustBeReselected(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	now := f.clk.Now()
	if err := f.repo.Create(ctx, participantrepo.Participant{
		ID:                 "p-legacy",
		Subject:            "sub-legacy",
		Name:               "Old Timer",
		Email:              "old@example.com",
		Affiliation:        "M",
		EmergencyInfo:      &domain.EmergencyInfo{ContactName: "X Y"},
		ProfileLastUpdated: now,
		CreatedAt:          now,
	}); err != nil {
		t.Fatalf("seed err=%v", err)
	}

	got, err := f.svc.GetMyProfile(ctx, "sub-legacy")
	if err != nil {
		t.Fatalf("GetMyProfile err=%v", err)
	}
	if got.Participant.Affiliation != "" {
		t.Fatalf("affiliation=%q, want unset", got.Participant.Affiliation)
	}
	if !got.Requirements.HasError(eligibility.ErrorAffiliationMissing) {
		t.Fatalf("blocking=%v, want AFFILIATION_MISSING", got.Requirements.BlockingErrors)
	}
}

func TestService_PreviewRequirements(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	req, err := f.svc.PreviewRequirements(ctx, sub, RequirementsPreviewInput{Affiliation: Some(domain.AffiliationMITGradStudent)})
	if err != nil {
		t.Fatalf("PreviewRequirements err=%v", err)
	}
	if !req.HasError(eligibility.ErrorMITEmailRequired) || !req.Requires(eligibility.FieldVerifiedMITEmail) {
		t.Fatalf("requirements=%+v", req)
	}

	req, err = f.svc.PreviewRequirements(ctx, sub, RequirementsPreviewInput{CarClaim: Some(domain.CarClaimYes)})
	if err != nil {
		t.Fatalf("PreviewRequirements err=%v", err)
	}
	if req.Blocked() || !req.Requires(eligibility.FieldCarYear) {
		t.Fatalf("requirements=%+v", req)
	}

	// Nothing was saved.
	got, _ := f.svc.GetMyProfile(ctx, sub)
	if got.Participant.Affiliation != domain.AffiliationNonAffiliate || got.Participant.CarClaim != domain.CarClaimNo {
		t.Fatalf("preview mutated profile: %+v", got.Participant)
	}
}

func TestService_CheckTripEligibility(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	prof := f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)
	tripDate := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)

	got, err := f.svc.CheckTripEligibility(ctx, sub, tripDate, true)
	if err != nil {
		t.Fatalf("CheckTripEligibility err=%v", err)
	}
	if got.Eligible || len(got.Reasons) != 1 || got.Reasons[0] != TripMembershipRequired {
		t.Fatalf("got=%+v, want MEMBERSHIP_REQUIRED", got)
	}

	got, err = f.svc.CheckTripEligibility(ctx, sub, tripDate, false)
	if err != nil || !got.Eligible {
		t.Fatalf("got=%+v err=%v, want eligible for open trip", got, err)
	}

	if _, err := f.memberships.ApplyRenewal(ctx, prof.Participant.ID, tripDate, f.clk.Now()); err != nil {
		t.Fatalf("ApplyRenewal err=%v", err)
	}
	got, err = f.svc.CheckTripEligibility(ctx, sub, tripDate, true)
	if err != nil || !got.Eligible {
		t.Fatalf("got=%+v err=%v, want eligible when expiring on trip date", got, err)
	}

	got, err = f.svc.CheckTripEligibility(ctx, sub, tripDate.AddDate(0, 0, 1), true)
	if err != nil || got.Eligible {
		t.Fatalf("got=%+v err=%v, want ineligible the day after expiry", got, err)
	}
}

func TestService_Emails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	emails, err := f.svc.AddMyEmail(ctx, sub, "Tim@MIT.edu")
	if err != nil {
		t.Fatalf("AddMyEmail err=%v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("emails=%+v", emails)
	}
	first, _ := f.sent.LatestToken("tim@mit.edu")

	// Re-adding a pending address sends a fresh token and retires the old one.
	if _, err := f.svc.AddMyEmail(ctx, sub, "tim@mit.edu"); err != nil {
		t.Fatalf("AddMyEmail (resend) err=%v", err)
	}
	_, err = f.svc.VerifyMyEmail(ctx, sub, "tim@mit.edu", first)
	wantAppError(t, err, 422, "EMAIL_CONFIRMATION_INVALID")
	f.verify(t, sub, "tim@mit.edu")

	_, err = f.svc.AddMyEmail(ctx, sub, "tim@mit.edu")
	wantAppError(t, err, 409, "EMAIL_ALREADY_LINKED")

	err = f.svc.RemoveMyEmail(ctx, sub, "tim@example.com")
	wantAppError(t, err, 409, "PRIMARY_EMAIL_REQUIRED")

	if err := f.svc.RemoveMyEmail(ctx, sub, "tim@mit.edu"); err != nil {
		t.Fatalf("RemoveMyEmail err=%v", err)
	}
	_, err = f.svc.VerifyMyEmail(ctx, sub, "tim@mit.edu", "anything")
	wantAppError(t, err, 404, "EMAIL_NOT_FOUND")
}

func TestService_VerifyEmail_RequiresConfirmationToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	created := f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	if _, err := f.svc.AddMyEmail(ctx, sub, "tim@mit.edu"); err != nil {
		t.Fatalf("AddMyEmail err=%v", err)
	}
	token, ok := f.sent.LatestToken("tim@mit.edu")
	if !ok || token == "" {
		t.Fatalf("no confirmation token sent")
	}

	for _, tc := range []struct {
		name  string
		token string
	}{
		{name: "missing", token: ""},
		{name: "wrong", token: "not-the-token"},
		{name: "truncated", token: token[:len(token)-1]},
	} {
		_, err := f.svc.VerifyMyEmail(ctx, sub, "tim@mit.edu", tc.token)
		wantAppError(t, err, 422, "EMAIL_CONFIRMATION_INVALID")
	}

	emails, err := f.svc.ListMyEmails(ctx, sub)
	if err != nil {
		t.Fatalf("ListMyEmails err=%v", err)
	}
	if e, _ := findEmail(emails, "tim@mit.edu"); e.Verified {
		t.Fatalf("emails=%+v, want tim@mit.edu unverified", emails)
	}

	// An unconfirmed MIT address does not unlock student dues.
	duesSvc := dues.NewService(f.repo, f.memberships, f.engine, memevents.NewRecorder(), f.clk, dues.PaymentConfig{})
	q, err := duesSvc.QuoteForSubject(ctx, sub, dues.QuoteInput{Affiliation: domain.AffiliationMITUndergrad})
	if err != nil {
		t.Fatalf("QuoteForSubject err=%v", err)
	}
	if q.Result.Valid || q.Result.Reason != eligibility.ReasonMITEmailRequired {
		t.Fatalf("quote=%+v, want MIT_EMAIL_REQUIRED", q.Result)
	}

	f.verify(t, sub, "tim@mit.edu")
	q, err = duesSvc.QuoteForSubject(ctx, sub, dues.QuoteInput{Affiliation: domain.AffiliationMITUndergrad})
	if err != nil || !q.Result.Valid {
		t.Fatalf("quote=%+v err=%v, want valid after confirmation", q.Result, err)
	}

	// Tokens are single use.
	_, err = f.repo.GetEmailConfirmation(ctx, created.Participant.ID, "tim@mit.edu")
	if !errors.Is(err, participantrepo.ErrConfirmationNotFound) {
		t.Fatalf("err=%v, want the confirmation consumed", err)
	}
}

func TestService_VerifyEmail_ExpiredToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	sub := domain.SubjectID("sub-1")
	f.create(t, string(sub), "tim@example.com", domain.AffiliationNonAffiliate)

	// Creating the profile sent a confirmation for the unverified profile address.
	token, ok := f.sent.LatestToken("tim@example.com")
	if !ok {
		t.Fatalf("no confirmation sent for the profile address")
	}
	f.clk.Advance(DefaultConfirmationTTL)

	_, err := f.svc.VerifyMyEmail(ctx, sub, "tim@example.com", token)
	wantAppError(t, err, 422, "EMAIL_CONFIRMATION_INVALID")
}

func TestService_Create_MITStudentWithIdentityVerifiedEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := domain.SubjectID("sub-1")

	p, err := f.svc.CreateMyProfile(context.Background(), sub, CreateProfileInput{
		Name:          "Tim Beaver",
		Email:         "tim@mit.edu",
		Affiliation:   domain.AffiliationMITUndergrad,
		EmergencyInfo: emergency(),
		IdentityEmail: " Tim@MIT.edu",
	})
	if err != nil {
		t.Fatalf("CreateMyProfile err=%v", err)
	}
	if p.Participant.Affiliation != domain.AffiliationMITUndergrad || p.Requirements.Blocked() {
		t.Fatalf("participant=%+v requirements=%+v", p.Participant, p.Requirements)
	}
	if len(p.Emails) != 1 || !p.Emails[0].Verified || !p.Emails[0].Primary {
		t.Fatalf("emails=%+v, want one verified primary", p.Emails)
	}
	if _, sent := f.sent.LatestToken("tim@mit.edu"); sent {
		t.Fatalf("confirmation sent for an already verified address")
	}
}

func TestService_Create_IdentityEmailLinkedAlongsideProfileEmail(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	sub := domain.SubjectID("sub-1")

	p, err := f.svc.CreateMyProfile(context.Background(), sub, CreateProfileInput{
		Name:          "Tim Beaver",
		Email:         "tim@example.com",
		Affiliation:   domain.AffiliationMITGradStudent,
		EmergencyInfo: emergency(),
		IdentityEmail: "tim@mit.edu",
	})
	if err != nil {
		t.Fatalf("CreateMyProfile err=%v", err)
	}
	primary, _ := findEmail(p.Emails, "tim@example.com")
	identity, _ := findEmail(p.Emails, "tim@mit.edu")
	if !primary.Primary || primary.Verified || !identity.Verified || identity.Primary {
		t.Fatalf("emails=%+v", p.Emails)
	}
}
