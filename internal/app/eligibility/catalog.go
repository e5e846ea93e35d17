package eligibility

import (
	"errors"
	"fmt"

	"github.com/mitoc/membership-api/internal/domain"
)

// CatalogGroup is a presentation group of affiliations. An empty Label marks top-level entries.
type CatalogGroup struct {
	Label        string
	Affiliations []domain.Affiliation
}

// Catalog maps affiliation codes to their label, dues and MIT email policy.
// It is read-only after construction and safe for concurrent use.
type Catalog struct {
	groups []CatalogGroup
	byCode map[domain.AffiliationCode]domain.Affiliation
	order  []domain.AffiliationCode
}

// DefaultGroups is the club's current affiliation table.
func DefaultGroups() []CatalogGroup {
	return []CatalogGroup{
		{
			Label: "Undergraduate student",
			Affiliations: []domain.Affiliation{
				{Code: domain.AffiliationMITUndergrad, Label: "MIT undergrad", Dues: domain.Dollars(15), MITEmail: domain.MITEmailRequired},
				{Code: domain.AffiliationNonMITUndergrad, Label: "Non-MIT undergrad", Dues: domain.Dollars(40), MITEmail: domain.MITEmailNone},
			},
		},
		{
			Label: "Graduate student",
			Affiliations: []domain.Affiliation{
				{Code: domain.AffiliationMITGradStudent, Label: "MIT grad student", Dues: domain.Dollars(15), MITEmail: domain.MITEmailRequired},
				{Code: domain.AffiliationNonMITGradStudent, Label: "Non-MIT grad student", Dues: domain.Dollars(40), MITEmail: domain.MITEmailNone},
			},
		},
		{
			Affiliations: []domain.Affiliation{
				{Code: domain.AffiliationMITAffiliate, Label: "MIT affiliate (staff or faculty)", Dues: domain.Dollars(30), MITEmail: domain.MITEmailExpected},
				{Code: domain.AffiliationMITAlum, Label: "MIT alum (former student)", Dues: domain.Dollars(40), MITEmail: domain.MITEmailNone},
				{Code: domain.AffiliationNonAffiliate, Label: "Non-affiliate", Dues: domain.Dollars(50), MITEmail: domain.MITEmailNone},
			},
		},
	}
}

// NewCatalog validates and indexes the given groups.
func NewCatalog(groups []CatalogGroup) (*Catalog, error) {
	c := &Catalog{
		byCode: make(map[domain.AffiliationCode]domain.Affiliation),
	}
	for _, g := range groups {
		cg := CatalogGroup{Label: g.Label, Affiliations: make([]domain.Affiliation, 0, len(g.Affiliations))}
		for _, a := range g.Affiliations {
			if a.Code == "" || a.Code.IsLegacy() {
				return nil, fmt.Errorf("catalog: invalid affiliation code %q", string(a.Code))
			}
			if _, dup := c.byCode[a.Code]; dup {
				return nil, fmt.Errorf("catalog: duplicate affiliation code %q", string(a.Code))
			}
			if a.Dues <= 0 {
				return nil, fmt.Errorf("catalog: dues for %q must be positive", string(a.Code))
			}
			if a.MITEmail == "" {
				a.MITEmail = domain.MITEmailNone
			}
			c.byCode[a.Code] = a
			c.order = append(c.order, a.Code)
			cg.Affiliations = append(cg.Affiliations, a)
		}
		c.groups = append(c.groups, cg)
	}
	if len(c.order) == 0 {
		return nil, errors.New("catalog: no affiliations")
	}
	return c, nil
}

// DefaultCatalog returns the catalog built from DefaultGroups.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultGroups())
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns the catalog entry for code or an *UnknownAffiliationError.
func (c *Catalog) Lookup(code domain.AffiliationCode) (domain.Affiliation, error) {
	a, ok := c.byCode[code]
	if !ok {
		return domain.Affiliation{}, &UnknownAffiliationError{Code: code}
	}
	return a, nil
}

// All returns every affiliation in catalog order.
func (c *Catalog) All() []domain.Affiliation {
	out := make([]domain.Affiliation, 0, len(c.order))
	for _, code := range c.order {
		out = append(out, c.byCode[code])
	}
	return out
}

// Choice is one selectable affiliation with the price folded into its label.
type Choice struct {
	Code   domain.AffiliationCode
	Label  string
	Amount domain.Money
}

// ChoiceGroup mirrors CatalogGroup for presentation.
type ChoiceGroup struct {
	Label   string
	Choices []Choice
}

// Choices yields the affiliation picker, e.g. "MIT undergrad ($15)".
func (c *Catalog) Choices() []ChoiceGroup {
	out := make([]ChoiceGroup, 0, len(c.groups))
	for _, g := range c.groups {
		cg := ChoiceGroup{Label: g.Label, Choices: make([]Choice, 0, len(g.Affiliations))}
		for _, a := range g.Affiliations {
			cg.Choices = append(cg.Choices, Choice{
				Code:   a.Code,
				Label:  fmt.Sprintf("%s (%s)", a.Label, a.Dues),
				Amount: a.Dues,
			})
		}
		out = append(out, cg)
	}
	return out
}
