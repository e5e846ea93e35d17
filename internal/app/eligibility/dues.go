package eligibility

import (
	"fmt"

	"github.com/mitoc/membership-api/internal/domain"
)

// DefaultMITDomain is the institution domain used for MIT email checks.
const DefaultMITDomain = "mit.edu"

// Reason explains why a dues selection is ineligible.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonMITEmailRequired Reason = "MIT_EMAIL_REQUIRED"
)

// AmountSource records where an eligible amount came from.
type AmountSource string

const (
	SourceCatalog AmountSource = "CATALOG"
	SourcePreset  AmountSource = "PRESET"
)

// DuesRequest is the input to DuesValidator.Validate.
type DuesRequest struct {
	Affiliation domain.AffiliationCode
	Emails      []domain.VerifiedEmail

	// AlreadyAuthenticated together with a non-nil PresetAmount skips the affiliation
	// choice entirely: the server-computed amount wins.
	AlreadyAuthenticated bool
	PresetAmount         *domain.Money
}

// EligibilityResult is the structured outcome of a dues check. Amount is zero unless Valid.
type EligibilityResult struct {
	Valid       bool
	Reason      Reason
	Amount      domain.Money
	Source      AmountSource
	Affiliation *domain.Affiliation
}

// DuesValidator decides whether an affiliation choice is legal and what it costs.
type DuesValidator struct {
	catalog   *Catalog
	mitDomain string
}

func NewDuesValidator(catalog *Catalog, mitDomain string) *DuesValidator {
	if mitDomain == "" {
		mitDomain = DefaultMITDomain
	}
	return &DuesValidator{catalog: catalog, mitDomain: mitDomain}
}

// HasMITEmail reports whether any verified address is in the institution domain.
func (v *DuesValidator) HasMITEmail(emails []domain.VerifiedEmail) bool {
	return domain.HasVerifiedInDomain(emails, v.mitDomain)
}

// Validate returns an *UnknownAffiliationError for codes outside the catalog; every other
// outcome is reported through the result.
func (v *DuesValidator) Validate(req DuesRequest) (EligibilityResult, error) {
	if req.AlreadyAuthenticated && req.PresetAmount != nil {
		return EligibilityResult{
			Valid:  true,
			Amount: *req.PresetAmount,
			Source: SourcePreset,
		}, nil
	}

	aff, err := v.catalog.Lookup(req.Affiliation)
	if err != nil {
		return EligibilityResult{}, err
	}
	if aff.RequiresMITEmail() && !v.HasMITEmail(req.Emails) {
		return EligibilityResult{
			Valid:       false,
			Reason:      ReasonMITEmailRequired,
			Affiliation: &aff,
		}, nil
	}
	return EligibilityResult{
		Valid:       true,
		Amount:      aff.Dues,
		Source:      SourceCatalog,
		Affiliation: &aff,
	}, nil
}

// CheckSubmittedAmount rejects a client-submitted amount that differs from the
// authoritative result.
func CheckSubmittedAmount(res EligibilityResult, submitted domain.Money) error {
	if !res.Valid {
		return ErrIneligible
	}
	if submitted != res.Amount {
		return fmt.Errorf("%w: got %s, want %s", ErrAmountMismatch, submitted, res.Amount)
	}
	return nil
}

// MITDomain returns the institution domain the validator checks against.
func (v *DuesValidator) MITDomain() string { return v.mitDomain }
