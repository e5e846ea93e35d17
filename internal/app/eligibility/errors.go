package eligibility

import (
	"errors"
	"fmt"

	"github.com/mitoc/membership-api/internal/domain"
)

var (
	// ErrUnknownAffiliation is matched by every *UnknownAffiliationError.
	ErrUnknownAffiliation = errors.New("unknown affiliation")

	// ErrAmountMismatch indicates a client-submitted amount differs from the authoritative one.
	ErrAmountMismatch = errors.New("submitted amount does not match dues")

	// ErrIneligible indicates an attempt to charge dues for an ineligible selection.
	ErrIneligible = errors.New("affiliation selection is not eligible")
)

// UnknownAffiliationError reports a code that is not in the catalog.
type UnknownAffiliationError struct {
	Code domain.AffiliationCode
}

func (e *UnknownAffiliationError) Error() string {
	return fmt.Sprintf("unknown affiliation %q", string(e.Code))
}

func (e *UnknownAffiliationError) Is(target error) bool {
	return target == ErrUnknownAffiliation
}
