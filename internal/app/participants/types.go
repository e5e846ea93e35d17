package participants

import (
	"time"

	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
)

// Optional is a tri-state field used to distinguish:
// - unspecified (omitted)
// - specified as null
// - specified with a value
type Optional[T any] struct {
	specified bool
	isNull    bool
	value     T
}

func Unspecified[T any]() Optional[T] { return Optional[T]{} }
func Null[T any]() Optional[T]        { return Optional[T]{specified: true, isNull: true} }
func Some[T any](v T) Optional[T]     { return Optional[T]{specified: true, value: v} }

func (o Optional[T]) IsSpecified() bool { return o.specified }
func (o Optional[T]) IsNull() bool      { return o.specified && o.isNull }
func (o Optional[T]) Value() T          { return o.value }

// CarInput is a full car description; partial cars are rejected.
type CarInput struct {
	LicensePlate string
	State        string
	Make         string
	Model        string
	Year         int
	Color        string
}

// EmergencyInput is a full emergency/medical section.
type EmergencyInput struct {
	ContactName         string
	ContactEmail        string
	ContactCellPhone    string
	ContactRelationship string
	Allergies           string
	Medications         string
	MedicalHistory      string
}

type CreateProfileInput struct {
	Name          string
	Email         string
	CellPhone     *string
	Affiliation   domain.AffiliationCode
	CarClaim      domain.CarClaim
	Car           *CarInput
	EmergencyInfo *EmergencyInput

	// IdentityEmail is the address the identity provider verified, if any. It is linked
	// verified and counts toward MIT affiliation checks.
	IdentityEmail string
}

type UpdateProfileInput struct {
	Name          Optional[string] // cannot be null
	Email         Optional[string] // cannot be null; must be a verified address
	CellPhone     Optional[string] // may be null
	Affiliation   Optional[domain.AffiliationCode]
	CarClaim      Optional[domain.CarClaim]
	Car           Optional[CarInput]
	EmergencyInfo Optional[EmergencyInput]
}

// RequirementsPreviewInput overrides the stored affiliation and car claim when specified.
type RequirementsPreviewInput struct {
	Affiliation Optional[domain.AffiliationCode]
	CarClaim    Optional[domain.CarClaim]
}

// Profile is the participant as seen by its owner, with the derived rule outputs.
type Profile struct {
	Participant  domain.Participant
	Emails       []domain.VerifiedEmail
	Membership   eligibility.RenewalStatus
	Staleness    eligibility.Staleness
	Requirements eligibility.Requirements
}

// UpdateResult carries the saved profile and the non-blocking warnings of the submission.
type UpdateResult struct {
	Profile  Profile
	Warnings []eligibility.WarningKind
}

// TripIneligibility explains why a participant cannot sign up for a trip.
type TripIneligibility string

const (
	TripMembershipRequired    TripIneligibility = "MEMBERSHIP_REQUIRED"
	TripEmergencyInfoRequired TripIneligibility = "EMERGENCY_INFO_REQUIRED"
	TripProfileIncomplete     TripIneligibility = "PROFILE_INCOMPLETE"
)

type TripEligibility struct {
	TripDate time.Time
	Eligible bool
	Reasons  []TripIneligibility
}
