package domain

// AffiliationCode is the short catalog key of a member category (e.g. "MU").
type AffiliationCode string

const (
	AffiliationMITUndergrad      AffiliationCode = "MU"
	AffiliationNonMITUndergrad   AffiliationCode = "NU"
	AffiliationMITGradStudent    AffiliationCode = "MG"
	AffiliationNonMITGradStudent AffiliationCode = "NG"
	AffiliationMITAffiliate      AffiliationCode = "MA"
	AffiliationMITAlum           AffiliationCode = "ML"
	AffiliationNonAffiliate      AffiliationCode = "NA"
)

// IsLegacy reports whether the code is one of the retired one-letter affiliations.
// Legacy values are treated as "no affiliation selected".
func (c AffiliationCode) IsLegacy() bool { return len(c) == 1 }

// MITEmailPolicy describes how strongly an affiliation depends on an MIT email address.
type MITEmailPolicy string

const (
	MITEmailNone     MITEmailPolicy = "NONE"
	MITEmailRequired MITEmailPolicy = "REQUIRED"
	MITEmailExpected MITEmailPolicy = "EXPECTED"
)

// Affiliation is an immutable catalog entry.
type Affiliation struct {
	Code     AffiliationCode
	Label    string
	Dues     Money
	MITEmail MITEmailPolicy
}

func (a Affiliation) RequiresMITEmail() bool { return a.MITEmail == MITEmailRequired }
func (a Affiliation) ExpectsMITEmail() bool  { return a.MITEmail == MITEmailExpected }
