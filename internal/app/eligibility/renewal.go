package eligibility

import (
	"time"

	"github.com/mitoc/membership-api/internal/domain"
)

// DefaultRenewalLeadDays is how long before expiry early renewal opens.
const DefaultRenewalLeadDays = 40

// RenewalPhase classifies a membership relative to "today".
type RenewalPhase string

const (
	PhaseNeverMember  RenewalPhase = "NEVER_MEMBER"
	PhaseActive       RenewalPhase = "ACTIVE"
	PhaseEarlyRenewal RenewalPhase = "EARLY_RENEWAL"
	PhaseLapsed       RenewalPhase = "LAPSED"
)

// RenewalCalculator decides whether a member is in the early-renewal window and what
// paying today would extend their expiry to.
type RenewalCalculator struct {
	// LeadDays is the early-renewal window W: [expiry - W, expiry].
	LeadDays int
	// ForbidEarlyRenewal blocks renewing before the window opens. Off by default.
	ForbidEarlyRenewal bool
	// Location decides which calendar day an instant falls on. Nil means UTC.
	Location *time.Location
}

// RenewalStatus is the pure output of RenewalCalculator.Evaluate.
type RenewalStatus struct {
	Phase RenewalPhase

	InEarlyRenewalPeriod bool
	// RenewalAllowed is false only when ForbidEarlyRenewal is set and the window hasn't opened.
	RenewalAllowed bool

	Expires           *time.Time
	WindowOpens       *time.Time
	ExpiryIfPaidToday time.Time
}

// Active reports whether the membership covers today.
func (s RenewalStatus) Active() bool {
	return s.Phase == PhaseActive || s.Phase == PhaseEarlyRenewal
}

// Evaluate computes the renewal status of rec on the calendar date of today in the
// calculator's location. It never mutates rec.
func (c RenewalCalculator) Evaluate(rec domain.MembershipRecord, today time.Time) RenewalStatus {
	today = domain.LocalDate(today, c.Location)
	restart := domain.AddDays(today, domain.MembershipTerm)

	if rec.Expires == nil {
		return RenewalStatus{
			Phase:             PhaseNeverMember,
			RenewalAllowed:    true,
			ExpiryIfPaidToday: restart,
		}
	}

	expires := domain.DateOf(*rec.Expires)
	opens := domain.AddDays(expires, -c.LeadDays)
	st := RenewalStatus{
		Expires:     &expires,
		WindowOpens: &opens,
	}

	switch {
	case today.After(expires):
		st.Phase = PhaseLapsed
		st.RenewalAllowed = true
		st.ExpiryIfPaidToday = restart
	case !today.Before(opens):
		st.Phase = PhaseEarlyRenewal
		st.InEarlyRenewalPeriod = true
		st.RenewalAllowed = true
		st.ExpiryIfPaidToday = domain.AddDays(expires, domain.MembershipTerm)
	default:
		st.Phase = PhaseActive
		st.RenewalAllowed = !c.ForbidEarlyRenewal
		st.ExpiryIfPaidToday = restart
		// Expiry never moves backwards.
		if st.ExpiryIfPaidToday.Before(expires) {
			st.ExpiryIfPaidToday = expires
		}
	}
	return st
}
