package domain

import (
	"strings"
	"time"
)

// CarClaim is the participant's answer to "do you own a car?". The zero value is unset.
type CarClaim string

const (
	CarClaimUnset CarClaim = ""
	CarClaimYes   CarClaim = "YES"
	CarClaimNo    CarClaim = "NO"
)

// CarDetails are collected only from participants who claim to own a car.
type CarDetails struct {
	LicensePlate string
	State        string
	Make         string
	Model        string
	Year         int
	Color        string
}

// EmergencyInfo is the sensitive section that is scrubbed after long inactivity.
type EmergencyInfo struct {
	ContactName         string
	ContactEmail        string
	ContactCellPhone    string
	ContactRelationship string

	Allergies      string
	Medications    string
	MedicalHistory string
}

// VerifiedEmail is an address linked to a participant's account.
type VerifiedEmail struct {
	Address  string
	Verified bool
	Primary  bool
}

// InDomain reports whether the address belongs to domain or one of its subdomains.
func (e VerifiedEmail) InDomain(domain string) bool {
	addr := NormalizeEmail(e.Address)
	at := strings.LastIndexByte(addr, '@')
	if at < 0 || at == len(addr)-1 {
		return false
	}
	host := addr[at+1:]
	domain = strings.ToLower(strings.TrimSpace(domain))
	return host == domain || strings.HasSuffix(host, "."+domain)
}

// HasVerifiedInDomain reports whether at least one verified address is in domain.
func HasVerifiedInDomain(emails []VerifiedEmail, domain string) bool {
	for _, e := range emails {
		if e.Verified && e.InDomain(domain) {
			return true
		}
	}
	return false
}

// Participant is the domain representation of a participant profile.
type Participant struct {
	ID      ParticipantID
	Subject SubjectID

	Name        string
	Email       string
	CellPhone   *string
	Affiliation AffiliationCode

	CarClaim CarClaim
	Car      *CarDetails

	EmergencyInfo *EmergencyInfo

	ProfileLastUpdated time.Time
	CreatedAt          time.Time
}

// EmergencyInfoPresent reports whether emergency/medical info is on file.
func (p Participant) EmergencyInfoPresent() bool { return p.EmergencyInfo != nil }
