package dues

import (
	"net/url"

	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/domain"
)

// PaymentDescription is the fixed line-item description sent to the gateway.
const PaymentDescription = "membership fees."

// PaymentConfig identifies the club's merchant account at the payment gateway.
type PaymentConfig struct {
	MerchantID  string
	PaymentType string
	GatewayURL  string
}

// Payer is who the payment is for.
type Payer struct {
	Affiliation domain.AffiliationCode
	Email       string
	Name        string
}

// Payload is the fixed-shape form posted to the payment gateway.
type Payload struct {
	GatewayURL  string
	MerchantID  string
	Description string
	PaymentType string
	Affiliation domain.AffiliationCode
	Email       string
	Name        string
	Amount      domain.Money
}

// BuildPayload renders the gateway payload for an eligible result. Ineligible results are
// refused so an unresolved amount can never reach the gateway.
func BuildPayload(cfg PaymentConfig, res eligibility.EligibilityResult, payer Payer) (Payload, error) {
	if !res.Valid || res.Amount <= 0 {
		return Payload{}, eligibility.ErrIneligible
	}
	aff := payer.Affiliation
	if res.Affiliation != nil {
		aff = res.Affiliation.Code
	}
	return Payload{
		GatewayURL:  cfg.GatewayURL,
		MerchantID:  cfg.MerchantID,
		Description: PaymentDescription,
		PaymentType: cfg.PaymentType,
		Affiliation: aff,
		Email:       payer.Email,
		Name:        payer.Name,
		Amount:      res.Amount,
	}, nil
}

// Values renders the payload as the gateway's form fields.
func (p Payload) Values() url.Values {
	v := url.Values{}
	v.Set("merchant_id", p.MerchantID)
	v.Set("description", p.Description)
	v.Set("merchantDefinedData1", p.PaymentType)
	v.Set("merchantDefinedData2", string(p.Affiliation))
	v.Set("merchantDefinedData3", p.Email)
	v.Set("merchantDefinedData4", p.Name)
	v.Set("amount", p.Amount.Decimal())
	return v
}
