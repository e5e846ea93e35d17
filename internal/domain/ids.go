package domain

// SubjectID is the authenticated subject extracted from JWT claims (typically "sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type SubjectID string

// ParticipantID is an internal identifier for a participant record.
type ParticipantID string

// Identity is the authenticated caller as asserted by the identity provider.
type Identity struct {
	Subject SubjectID
	// VerifiedEmail is set only when the provider vouches for the address.
	VerifiedEmail string
}
