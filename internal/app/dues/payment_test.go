package dues

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
)

func TestBuildPayload_Values(t *testing.T) {
	t.Parallel()

	aff, err := eligibility.DefaultCatalog().Lookup(domain.AffiliationMITAffiliate)
	require.NoError(t, err)
	res := eligibility.EligibilityResult{Valid: true, Amount: aff.Dues, Source: eligibility.SourceCatalog, Affiliation: &aff}

	p, err := BuildPayload(testPayment, res, Payer{Email: "tim@mit.edu", Name: "Tim Beaver"})
	require.NoError(t, err)

	v := p.Values()
	assert.Equal(t, "mit_sao_mitoc", v.Get("merchant_id"))
	assert.Equal(t, "membership fees.", v.Get("description"))
	assert.Equal(t, "membership", v.Get("merchantDefinedData1"))
	assert.Equal(t, "MA", v.Get("merchantDefinedData2"))
	assert.Equal(t, "tim@mit.edu", v.Get("merchantDefinedData3"))
	assert.Equal(t, "Tim Beaver", v.Get("merchantDefinedData4"))
	assert.Equal(t, "30.00", v.Get("amount"))
}

func TestBuildPayload_RefusesIneligible(t *testing.T) {
	t.Parallel()

	_, err := BuildPayload(testPayment, eligibility.EligibilityResult{Valid: false, Reason: eligibility.ReasonMITEmailRequired}, Payer{})
	assert.ErrorIs(t, err, eligibility.ErrIneligible)
}

func TestBuildPayload_PresetUsesPayerAffiliation(t *testing.T) {
	t.Parallel()

	res := eligibility.EligibilityResult{Valid: true, Amount: domain.Money(1250), Source: eligibility.SourcePreset}
	p, err := BuildPayload(testPayment, res, Payer{Affiliation: domain.AffiliationMITAlum, Email: "a@example.com", Name: "A B"})
	require.NoError(t, err)
	assert.Equal(t, domain.AffiliationMITAlum, p.Affiliation)
	assert.Equal(t, "12.50", p.Values().Get("amount"))
}
