package domain

import "time"

// MembershipRecord is the per-participant dues state.
//
// Expires is nil for someone who has never paid dues. It only moves forward.
type MembershipRecord struct {
	ParticipantID ParticipantID

	Expires       *time.Time // date-only semantics
	LastRenewedAt *time.Time

	// PresetDues is a server-computed amount (comped or discounted) that takes precedence
	// over the catalog for authenticated renewals; nil means "use the catalog".
	PresetDues *Money
}

// IsMember reports whether dues have ever been paid.
func (m MembershipRecord) IsMember() bool { return m.Expires != nil }

// ActiveOn reports whether the membership covers the given date.
func (m MembershipRecord) ActiveOn(date time.Time) bool {
	if m.Expires == nil {
		return false
	}
	return !DateOf(date).After(DateOf(*m.Expires))
}
