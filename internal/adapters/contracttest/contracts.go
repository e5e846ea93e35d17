package contracttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/mitoc/membership-api/internal/domain"
	idempotencyport "github.com/mitoc/membership-api/internal/ports/out/idempotency"
	membershiprepoport "github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	participantrepoport "github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

type CleanupFunc = func()

type ParticipantRepoFactory func(t *testing.T) (participantrepoport.Repository, CleanupFunc)
type MembershipRepoFactory func(t *testing.T) (membershiprepoport.Repository, participantrepoport.Repository, CleanupFunc)
type IdemStoreFactory func(t *testing.T) (idempotencyport.Store, CleanupFunc)

func RunIdempotencyStore(t *testing.T, newStore IdemStoreFactory) {
	t.Helper()
	ctx := context.Background()

	store, cleanup := newStore(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	fp := idempotencyport.Fingerprint{
		Key:      idempotencyport.Key("k-" + uuid.NewString()),
		Subject:  domain.SubjectID("sub-1"),
		Method:   "PATCH",
		Route:    "/participants/me",
		BodyHash: "",
	}
	if _, ok, err := store.Get(ctx, fp); err != nil || ok {
		t.Fatalf("Get before Put: ok=%v err=%v, want miss", ok, err)
	}

	rec := idempotencyport.Record{
		StatusCode:  0,
		ContentType: "text/plain",
		Body:        []byte("hash-abc"),
		CreatedAt:   time.Unix(123, 0).UTC(),
	}
	if err := store.Put(ctx, fp, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, ok, err := store.Get(ctx, fp)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true")
	}
	if string(got.Body) != "hash-abc" || got.ContentType != "text/plain" || got.StatusCode != 0 {
		t.Fatalf("unexpected record: %+v", got)
	}

	// A different body hash is a different fingerprint.
	other := fp
	other.BodyHash = "deadbeef"
	if _, ok, err := store.Get(ctx, other); err != nil || ok {
		t.Fatalf("Get other fingerprint: ok=%v err=%v, want miss", ok, err)
	}

	// Overwrite semantics.
	rec2 := rec
	rec2.Body = []byte("hash-def")
	if err := store.Put(ctx, fp, rec2); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, ok, err = store.Get(ctx, fp)
	if err != nil || !ok || string(got.Body) != "hash-def" {
		t.Fatalf("expected overwritten record, got ok=%v err=%v body=%q", ok, err, string(got.Body))
	}
}

func RunParticipantRepo(t *testing.T, newRepo ParticipantRepoFactory) {
	t.Helper()
	ctx := context.Background()

	repo, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Unix(1000, 0).UTC()
	suffix := uuid.NewString()
	aID := domain.ParticipantID(uuid.NewString())
	sub := domain.SubjectID("sub-a-" + suffix)
	if err := repo.Create(ctx, participantrepoport.Participant{
		ID:                 aID,
		Subject:            sub,
		Name:               "Alice Johnson " + suffix,
		Email:              "alice@example.com",
		Affiliation:        domain.AffiliationNonAffiliate,
		CarClaim:           domain.CarClaimYes,
		Car:                &domain.CarDetails{LicensePlate: "ABC123", State: "MA", Make: "Subaru", Model: "Outback", Year: 2015, Color: "Green"},
		EmergencyInfo:      &domain.EmergencyInfo{ContactName: "Bob Johnson", ContactEmail: "bob@example.com", ContactCellPhone: "+16175550000", ContactRelationship: "Brother", Allergies: "None"},
		ProfileLastUpdated: now,
		CreatedAt:          now,
	}); err != nil {
		t.Fatalf("Create a: %v", err)
	}
	got, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Car == nil || got.Car.LicensePlate != "ABC123" || got.Car.Year != 2015 {
		t.Fatalf("unexpected car: %#v", got.Car)
	}
	if got.EmergencyInfo == nil || got.EmergencyInfo.ContactName != "Bob Johnson" {
		t.Fatalf("unexpected emergency info: %#v", got.EmergencyInfo)
	}
	if !got.ProfileLastUpdated.Equal(now) {
		t.Fatalf("ProfileLastUpdated=%v, want %v", got.ProfileLastUpdated, now)
	}
	if _, err := repo.GetBySubject(ctx, sub); err != nil {
		t.Fatalf("GetBySubject: %v", err)
	}
	if _, err := repo.GetBySubject(ctx, domain.SubjectID("missing-"+suffix)); !errors.Is(err, participantrepoport.ErrNotFound) {
		t.Fatalf("GetBySubject missing err=%v, want ErrNotFound", err)
	}

	// Subject uniqueness.
	if err := repo.Create(ctx, participantrepoport.Participant{
		ID:        domain.ParticipantID(uuid.NewString()),
		Subject:   sub,
		Name:      "Alice Two",
		Email:     "alice2@example.com",
		CreatedAt: now,
	}); !errors.Is(err, participantrepoport.ErrSubjectAlreadyBound) {
		t.Fatalf("Create duplicate subject err=%v, want ErrSubjectAlreadyBound", err)
	}

	// Update replaces optional sections, including clearing them.
	got.CarClaim = domain.CarClaimNo
	got.Car = nil
	got.EmergencyInfo = nil
	got.ProfileLastUpdated = now.Add(time.Hour)
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, err := repo.GetByID(ctx, aID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if updated.CarClaim != domain.CarClaimNo || updated.Car != nil || updated.EmergencyInfo != nil {
		t.Fatalf("unexpected updated participant: %#v", updated)
	}
	if err := repo.Update(ctx, participantrepoport.Participant{ID: domain.ParticipantID(uuid.NewString()), Subject: "nobody"}); !errors.Is(err, participantrepoport.ErrNotFound) {
		t.Fatalf("Update missing err=%v, want ErrNotFound", err)
	}

	// Deterministic list ordering by name (case-insensitive).
	bID := domain.ParticipantID(uuid.NewString())
	if err := repo.Create(ctx, participantrepoport.Participant{
		ID:        bID,
		Subject:   domain.SubjectID("sub-b-" + suffix),
		Name:      "aaron " + suffix,
		Email:     "aaron@example.com",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("Create b: %v", err)
	}
	ps, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	posA, posB := -1, -1
	for i, p := range ps {
		switch p.ID {
		case aID:
			posA = i
		case bID:
			posB = i
		}
	}
	if posA < 0 || posB < 0 || posB > posA {
		t.Fatalf("unexpected ordering: a=%d b=%d", posA, posB)
	}

	// Emails: upsert by address, single primary, ordering.
	if err := repo.PutEmail(ctx, aID, domain.VerifiedEmail{Address: "zed@example.com", Verified: true, Primary: true}); err != nil {
		t.Fatalf("PutEmail zed: %v", err)
	}
	if err := repo.PutEmail(ctx, aID, domain.VerifiedEmail{Address: "alice@mit.edu", Verified: false}); err != nil {
		t.Fatalf("PutEmail mit: %v", err)
	}
	if err := repo.PutEmail(ctx, aID, domain.VerifiedEmail{Address: "alice@mit.edu", Verified: true}); err != nil {
		t.Fatalf("PutEmail mit verify: %v", err)
	}
	es, err := repo.ListEmails(ctx, aID)
	if err != nil {
		t.Fatalf("ListEmails: %v", err)
	}
	if len(es) != 2 || es[0].Address != "zed@example.com" || !es[0].Primary || es[1].Address != "alice@mit.edu" || !es[1].Verified {
		t.Fatalf("unexpected emails: %#v", es)
	}

	if err := repo.PutEmail(ctx, aID, domain.VerifiedEmail{Address: "alice@mit.edu", Verified: true, Primary: true}); err != nil {
		t.Fatalf("PutEmail make primary: %v", err)
	}
	es, err = repo.ListEmails(ctx, aID)
	if err != nil {
		t.Fatalf("ListEmails: %v", err)
	}
	primaries := 0
	for _, e := range es {
		if e.Primary {
			primaries++
		}
	}
	if primaries != 1 || es[0].Address != "alice@mit.edu" {
		t.Fatalf("expected alice@mit.edu as sole primary, got %#v", es)
	}

	// Pending confirmations: stored per linked address, dropped with the address.
	expires := time.Unix(5000, 0).UTC()
	if err := repo.PutEmailConfirmation(ctx, aID, participantrepoport.EmailConfirmation{Address: "zed@example.com", TokenHash: "hash-1", ExpiresAt: expires}); err != nil {
		t.Fatalf("PutEmailConfirmation: %v", err)
	}
	if err := repo.PutEmailConfirmation(ctx, aID, participantrepoport.EmailConfirmation{Address: "zed@example.com", TokenHash: "hash-2", ExpiresAt: expires}); err != nil {
		t.Fatalf("PutEmailConfirmation replace: %v", err)
	}
	conf, err := repo.GetEmailConfirmation(ctx, aID, "Zed@Example.com")
	if err != nil {
		t.Fatalf("GetEmailConfirmation: %v", err)
	}
	if conf.TokenHash != "hash-2" || !conf.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected confirmation: %#v", conf)
	}
	if err := repo.PutEmailConfirmation(ctx, aID, participantrepoport.EmailConfirmation{Address: "nobody@example.com", TokenHash: "h", ExpiresAt: expires}); !errors.Is(err, participantrepoport.ErrEmailNotFound) {
		t.Fatalf("PutEmailConfirmation unlinked err=%v, want ErrEmailNotFound", err)
	}
	if _, err := repo.GetEmailConfirmation(ctx, aID, "alice@mit.edu"); !errors.Is(err, participantrepoport.ErrConfirmationNotFound) {
		t.Fatalf("GetEmailConfirmation none pending err=%v, want ErrConfirmationNotFound", err)
	}
	if err := repo.PutEmailConfirmation(ctx, aID, participantrepoport.EmailConfirmation{Address: "alice@mit.edu", TokenHash: "h", ExpiresAt: expires}); err != nil {
		t.Fatalf("PutEmailConfirmation mit: %v", err)
	}
	if err := repo.DeleteEmailConfirmation(ctx, aID, "alice@mit.edu"); err != nil {
		t.Fatalf("DeleteEmailConfirmation: %v", err)
	}
	if _, err := repo.GetEmailConfirmation(ctx, aID, "alice@mit.edu"); !errors.Is(err, participantrepoport.ErrConfirmationNotFound) {
		t.Fatalf("GetEmailConfirmation after delete err=%v, want ErrConfirmationNotFound", err)
	}

	if err := repo.DeleteEmail(ctx, aID, "ZED@example.com"); err != nil {
		t.Fatalf("DeleteEmail: %v", err)
	}
	if _, err := repo.GetEmailConfirmation(ctx, aID, "zed@example.com"); !errors.Is(err, participantrepoport.ErrConfirmationNotFound) {
		t.Fatalf("GetEmailConfirmation after DeleteEmail err=%v, want ErrConfirmationNotFound", err)
	}
	if err := repo.DeleteEmail(ctx, aID, "zed@example.com"); !errors.Is(err, participantrepoport.ErrEmailNotFound) {
		t.Fatalf("DeleteEmail twice err=%v, want ErrEmailNotFound", err)
	}
	if _, err := repo.ListEmails(ctx, domain.ParticipantID(uuid.NewString())); !errors.Is(err, participantrepoport.ErrNotFound) {
		t.Fatalf("ListEmails missing participant err=%v, want ErrNotFound", err)
	}
}

func RunMembershipRepo(t *testing.T, newRepo MembershipRepoFactory) {
	t.Helper()
	ctx := context.Background()

	memberships, participants, cleanup := newRepo(t)
	if cleanup != nil {
		t.Cleanup(cleanup)
	}

	now := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	id := domain.ParticipantID(uuid.NewString())
	if err := participants.Create(ctx, participantrepoport.Participant{
		ID:        id,
		Subject:   domain.SubjectID("sub-" + uuid.NewString()),
		Name:      "Tim Beaver",
		Email:     "tim@mit.edu",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	rec, err := memberships.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get before renewal: %v", err)
	}
	if rec.IsMember() {
		t.Fatalf("expected never-member record, got %#v", rec)
	}

	exp := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	rec, err = memberships.ApplyRenewal(ctx, id, exp, now)
	if err != nil {
		t.Fatalf("ApplyRenewal: %v", err)
	}
	if rec.Expires == nil || !rec.Expires.Equal(exp) {
		t.Fatalf("Expires=%v, want %v", rec.Expires, exp)
	}
	if rec.LastRenewedAt == nil || !rec.LastRenewedAt.Equal(now) {
		t.Fatalf("LastRenewedAt=%v, want %v", rec.LastRenewedAt, now)
	}

	// Same expiry is allowed; earlier is not.
	if _, err := memberships.ApplyRenewal(ctx, id, exp, now); err != nil {
		t.Fatalf("ApplyRenewal same expiry: %v", err)
	}
	if _, err := memberships.ApplyRenewal(ctx, id, exp.AddDate(0, 0, -1), now); !errors.Is(err, membershiprepoport.ErrExpiryRegression) {
		t.Fatalf("ApplyRenewal earlier err=%v, want ErrExpiryRegression", err)
	}

	preset := domain.Dollars(5)
	if err := memberships.SetPresetDues(ctx, id, &preset); err != nil {
		t.Fatalf("SetPresetDues: %v", err)
	}
	rec, err = memberships.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.PresetDues == nil || *rec.PresetDues != preset || rec.Expires == nil || !rec.Expires.Equal(exp) {
		t.Fatalf("unexpected record: %#v", rec)
	}
	negative := domain.Money(-100)
	if err := memberships.SetPresetDues(ctx, id, &negative); !errors.Is(err, membershiprepoport.ErrNegativePresetDues) {
		t.Fatalf("SetPresetDues negative err=%v, want ErrNegativePresetDues", err)
	}
	if err := memberships.SetPresetDues(ctx, id, nil); err != nil {
		t.Fatalf("SetPresetDues clear: %v", err)
	}
	rec, err = memberships.Get(ctx, id)
	if err != nil || rec.PresetDues != nil {
		t.Fatalf("expected cleared preset, got %#v err=%v", rec.PresetDues, err)
	}

	if _, err := memberships.ApplyRenewal(ctx, domain.ParticipantID(uuid.NewString()), exp, now); !errors.Is(err, membershiprepoport.ErrUnknownParticipant) {
		t.Fatalf("ApplyRenewal unknown participant err=%v, want ErrUnknownParticipant", err)
	}
}
