package eligibility

import (
	"errors"
	"sort"

	"github.com/mitoc/membership-api/internal/domain"
)

// ErrorKind is a blocking profile problem: the submission must not be saved.
type ErrorKind string

const (
	ErrorAffiliationMissing ErrorKind = "AFFILIATION_MISSING"
	ErrorUnknownAffiliation ErrorKind = "UNKNOWN_AFFILIATION"
	ErrorMITEmailRequired   ErrorKind = "MIT_EMAIL_REQUIRED"
)

// WarningKind is surfaced to the participant but does not prevent submission.
type WarningKind string

const (
	WarningMITEmailExpected     WarningKind = "MIT_EMAIL_EXPECTED"
	WarningCarDataWillBeDeleted WarningKind = "CAR_DATA_WILL_BE_DELETED"
	WarningMedicalInfoScrubbed  WarningKind = "MEDICAL_INFO_SCRUBBED"
)

// FieldID names a profile field that a submission must include.
type FieldID string

const (
	FieldAffiliation      FieldID = "affiliation"
	FieldVerifiedMITEmail FieldID = "verified_mit_email"

	FieldCarLicensePlate FieldID = "car.license_plate"
	FieldCarState        FieldID = "car.state"
	FieldCarMake         FieldID = "car.make"
	FieldCarModel        FieldID = "car.model"
	FieldCarYear         FieldID = "car.year"
	FieldCarColor        FieldID = "car.color"

	FieldEmergencyContactName         FieldID = "emergency.contact_name"
	FieldEmergencyContactEmail        FieldID = "emergency.contact_email"
	FieldEmergencyContactCellPhone    FieldID = "emergency.contact_cell_phone"
	FieldEmergencyContactRelationship FieldID = "emergency.contact_relationship"
	FieldEmergencyAllergies           FieldID = "emergency.allergies"
	FieldEmergencyMedications         FieldID = "emergency.medications"
	FieldEmergencyMedicalHistory      FieldID = "emergency.medical_history"
)

// CarFields are required whenever car ownership is claimed.
var CarFields = []FieldID{
	FieldCarLicensePlate,
	FieldCarState,
	FieldCarMake,
	FieldCarModel,
	FieldCarYear,
	FieldCarColor,
}

// EmergencyFields are required again once medical info has been scrubbed.
var EmergencyFields = []FieldID{
	FieldEmergencyContactName,
	FieldEmergencyContactEmail,
	FieldEmergencyContactCellPhone,
	FieldEmergencyContactRelationship,
	FieldEmergencyAllergies,
	FieldEmergencyMedications,
	FieldEmergencyMedicalHistory,
}

// RequirementInput is a snapshot of the profile being submitted.
type RequirementInput struct {
	Affiliation         domain.AffiliationCode
	CarClaim            domain.CarClaim
	HasMITEmail         bool
	HasCarOnFile        bool
	MedicalInfoScrubbed bool
}

// Requirements lists every simultaneous problem, warning and required field.
// Each slice is sorted and free of duplicates.
type Requirements struct {
	BlockingErrors []ErrorKind
	Warnings       []WarningKind
	RequiredFields []FieldID
}

func (r Requirements) Blocked() bool { return len(r.BlockingErrors) > 0 }

func (r Requirements) HasError(k ErrorKind) bool {
	for _, e := range r.BlockingErrors {
		if e == k {
			return true
		}
	}
	return false
}

func (r Requirements) HasWarning(k WarningKind) bool {
	for _, w := range r.Warnings {
		if w == k {
			return true
		}
	}
	return false
}

func (r Requirements) Requires(f FieldID) bool {
	for _, rf := range r.RequiredFields {
		if rf == f {
			return true
		}
	}
	return false
}

// RequirementResolver turns affiliation, car claim and email verification into the set of
// required fields and warnings. Rules are evaluated together, never short-circuited.
type RequirementResolver struct {
	catalog *Catalog
}

func NewRequirementResolver(catalog *Catalog) *RequirementResolver {
	return &RequirementResolver{catalog: catalog}
}

func (r *RequirementResolver) Resolve(in RequirementInput) Requirements {
	errs := map[ErrorKind]struct{}{}
	warns := map[WarningKind]struct{}{}
	fields := map[FieldID]struct{}{FieldAffiliation: {}}

	if in.Affiliation == "" || in.Affiliation.IsLegacy() {
		errs[ErrorAffiliationMissing] = struct{}{}
	} else if aff, err := r.catalog.Lookup(in.Affiliation); err != nil {
		if errors.Is(err, ErrUnknownAffiliation) {
			errs[ErrorUnknownAffiliation] = struct{}{}
		}
	} else if !in.HasMITEmail {
		switch aff.MITEmail {
		case domain.MITEmailRequired:
			errs[ErrorMITEmailRequired] = struct{}{}
			fields[FieldVerifiedMITEmail] = struct{}{}
		case domain.MITEmailExpected:
			warns[WarningMITEmailExpected] = struct{}{}
		}
	}

	switch in.CarClaim {
	case domain.CarClaimYes:
		for _, f := range CarFields {
			fields[f] = struct{}{}
		}
	case domain.CarClaimNo:
		if in.HasCarOnFile {
			warns[WarningCarDataWillBeDeleted] = struct{}{}
		}
	}

	if in.MedicalInfoScrubbed {
		warns[WarningMedicalInfoScrubbed] = struct{}{}
		for _, f := range EmergencyFields {
			fields[f] = struct{}{}
		}
	}

	return Requirements{
		BlockingErrors: sortedKeys(errs),
		Warnings:       sortedKeys(warns),
		RequiredFields: sortedKeys(fields),
	}
}

func sortedKeys[K ~string](m map[K]struct{}) []K {
	out := make([]K, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
