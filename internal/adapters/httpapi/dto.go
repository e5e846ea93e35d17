package httpapi

import (
	"time"

	"github.com/oapi-codegen/nullable"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/app/participants"
	"github.com/mitoc/membership-api/internal/domain"
)

type Car struct {
	LicensePlate string `json:"licensePlate"`
	State        string `json:"state"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	Color        string `json:"color"`
}

type EmergencyInfo struct {
	ContactName         string `json:"contactName"`
	ContactEmail        string `json:"contactEmail"`
	ContactCellPhone    string `json:"contactCellPhone"`
	ContactRelationship string `json:"contactRelationship"`
	Allergies           string `json:"allergies"`
	Medications         string `json:"medications"`
	MedicalHistory      string `json:"medicalHistory"`
}

type CreateParticipantRequest struct {
	Name          string         `json:"name"`
	Email         string         `json:"email"`
	CellPhone     *string        `json:"cellPhone,omitempty"`
	Affiliation   string         `json:"affiliation"`
	CarClaim      string         `json:"carClaim"`
	Car           *Car           `json:"car,omitempty"`
	EmergencyInfo *EmergencyInfo `json:"emergencyInfo,omitempty"`
}

// UpdateParticipantRequest distinguishes omitted fields from explicit nulls.
type UpdateParticipantRequest struct {
	Name          nullable.Nullable[string]        `json:"name,omitempty"`
	Email         nullable.Nullable[string]        `json:"email,omitempty"`
	CellPhone     nullable.Nullable[string]        `json:"cellPhone,omitempty"`
	Affiliation   nullable.Nullable[string]        `json:"affiliation,omitempty"`
	CarClaim      nullable.Nullable[string]        `json:"carClaim,omitempty"`
	Car           nullable.Nullable[Car]           `json:"car,omitempty"`
	EmergencyInfo nullable.Nullable[EmergencyInfo] `json:"emergencyInfo,omitempty"`
}

type RequirementsPreviewRequest struct {
	Affiliation nullable.Nullable[string] `json:"affiliation,omitempty"`
	CarClaim    nullable.Nullable[string] `json:"carClaim,omitempty"`
}

type AddEmailRequest struct {
	Address string `json:"address"`
}

// VerifyEmailRequest carries the token delivered to the address being confirmed.
type VerifyEmailRequest struct {
	Token string `json:"token"`
}

type DuesQuoteRequest struct {
	Affiliation string `json:"affiliation,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

type RecordRenewalRequest struct {
	ParticipantID string `json:"participantId"`
	AmountCents   int64  `json:"amountCents"`
	Affiliation   string `json:"affiliation,omitempty"`
}

type PresetDuesRequest struct {
	AmountCents nullable.Nullable[int64] `json:"amountCents"`
}

type Email struct {
	Address  openapi_types.Email `json:"address"`
	Verified bool                `json:"verified"`
	Primary  bool                `json:"primary"`
}

type EmailsResponse struct {
	Emails []Email `json:"emails"`
}

type Membership struct {
	Phase                string                               `json:"phase"`
	Active               bool                                 `json:"active"`
	InEarlyRenewalPeriod bool                                 `json:"inEarlyRenewalPeriod"`
	RenewalAllowed       bool                                 `json:"renewalAllowed"`
	Expires              nullable.Nullable[openapi_types.Date] `json:"expires"`
	WindowOpens          nullable.Nullable[openapi_types.Date] `json:"windowOpens"`
	ExpiryIfPaidToday    openapi_types.Date                   `json:"expiryIfPaidToday"`
}

type MembershipResponse struct {
	Membership Membership `json:"membership"`
}

type Staleness struct {
	Scrubbed          bool   `json:"scrubbed"`
	RecollectRequired bool   `json:"recollectRequired"`
	Reason            string `json:"reason,omitempty"`
}

type Requirements struct {
	BlockingErrors []string `json:"blockingErrors"`
	Warnings       []string `json:"warnings"`
	RequiredFields []string `json:"requiredFields"`
}

type RequirementsResponse struct {
	Requirements Requirements `json:"requirements"`
}

type ParticipantProfile struct {
	ParticipantID      string                    `json:"participantId"`
	Name               string                    `json:"name"`
	Email              openapi_types.Email       `json:"email"`
	CellPhone          nullable.Nullable[string] `json:"cellPhone"`
	Affiliation        nullable.Nullable[string] `json:"affiliation"`
	CarClaim           nullable.Nullable[string] `json:"carClaim"`
	Car                *Car                      `json:"car"`
	EmergencyInfo      *EmergencyInfo            `json:"emergencyInfo"`
	ProfileLastUpdated time.Time                 `json:"profileLastUpdated"`
	Emails             []Email                   `json:"emails"`
	Membership         Membership                `json:"membership"`
	Staleness          Staleness                 `json:"staleness"`
	Requirements       Requirements              `json:"requirements"`
}

type ParticipantResponse struct {
	Participant ParticipantProfile `json:"participant"`
}

type UpdateParticipantResponse struct {
	Participant ParticipantProfile `json:"participant"`
	Warnings    []string           `json:"warnings"`
}

type TripEligibilityResponse struct {
	TripDate openapi_types.Date `json:"tripDate"`
	Eligible bool               `json:"eligible"`
	Reasons  []string           `json:"reasons"`
}

type AffiliationChoice struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	AmountCents int64  `json:"amountCents"`
}

type AffiliationGroup struct {
	Label   string              `json:"label"`
	Choices []AffiliationChoice `json:"choices"`
}

type AffiliationsResponse struct {
	Groups []AffiliationGroup `json:"groups"`
}

type PaymentForm struct {
	GatewayURL string            `json:"gatewayUrl"`
	Fields     map[string]string `json:"fields"`
}

type DuesQuoteResponse struct {
	Valid       bool                      `json:"valid"`
	Reason      nullable.Nullable[string] `json:"reason"`
	AmountCents int64                     `json:"amountCents"`
	Amount      string                    `json:"amount"`
	Source      nullable.Nullable[string] `json:"source"`
	Affiliation nullable.Nullable[string] `json:"affiliation"`
	Payment     *PaymentForm              `json:"payment"`
	Membership  *Membership               `json:"membership,omitempty"`
}

type RenewalReceiptResponse struct {
	ParticipantID string             `json:"participantId"`
	Phase         string             `json:"phase"`
	EarlyRenewal  bool               `json:"earlyRenewal"`
	AmountCents   int64              `json:"amountCents"`
	Expires       openapi_types.Date `json:"expires"`
}

func nullableString(s string) nullable.Nullable[string] {
	var out nullable.Nullable[string]
	if s == "" {
		out.SetNull()
		return out
	}
	out.Set(s)
	return out
}

func nullableDate(p *time.Time) nullable.Nullable[openapi_types.Date] {
	var out nullable.Nullable[openapi_types.Date]
	if p == nil {
		out.SetNull()
		return out
	}
	out.Set(openapi_types.Date{Time: p.UTC()})
	return out
}

func strs[T ~string](in []T) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		out = append(out, string(v))
	}
	return out
}

func emailsFromDomain(es []domain.VerifiedEmail) []Email {
	out := make([]Email, 0, len(es))
	for _, e := range es {
		out = append(out, Email{Address: openapi_types.Email(e.Address), Verified: e.Verified, Primary: e.Primary})
	}
	return out
}

func membershipFromStatus(st eligibility.RenewalStatus) Membership {
	return Membership{
		Phase:                string(st.Phase),
		Active:               st.Active(),
		InEarlyRenewalPeriod: st.InEarlyRenewalPeriod,
		RenewalAllowed:       st.RenewalAllowed,
		Expires:              nullableDate(st.Expires),
		WindowOpens:          nullableDate(st.WindowOpens),
		ExpiryIfPaidToday:    openapi_types.Date{Time: st.ExpiryIfPaidToday},
	}
}

func requirementsFromResult(r eligibility.Requirements) Requirements {
	return Requirements{
		BlockingErrors: strs(r.BlockingErrors),
		Warnings:       strs(r.Warnings),
		RequiredFields: strs(r.RequiredFields),
	}
}

func profileFromApp(p participants.Profile) ParticipantProfile {
	part := p.Participant
	out := ParticipantProfile{
		ParticipantID:      string(part.ID),
		Name:               part.Name,
		Email:              openapi_types.Email(part.Email),
		Affiliation:        nullableString(string(part.Affiliation)),
		CarClaim:           nullableString(string(part.CarClaim)),
		ProfileLastUpdated: part.ProfileLastUpdated.UTC(),
		Emails:             emailsFromDomain(p.Emails),
		Membership:         membershipFromStatus(p.Membership),
		Staleness: Staleness{
			Scrubbed:          p.Staleness.Scrubbed,
			RecollectRequired: p.Staleness.RecollectRequired,
			Reason:            p.Staleness.Reason,
		},
		Requirements: requirementsFromResult(p.Requirements),
	}
	if part.CellPhone != nil {
		out.CellPhone = nullableString(*part.CellPhone)
	} else {
		out.CellPhone.SetNull()
	}
	if c := part.Car; c != nil {
		out.Car = &Car{LicensePlate: c.LicensePlate, State: c.State, Make: c.Make, Model: c.Model, Year: c.Year, Color: c.Color}
	}
	if e := part.EmergencyInfo; e != nil {
		out.EmergencyInfo = &EmergencyInfo{
			ContactName:         e.ContactName,
			ContactEmail:        e.ContactEmail,
			ContactCellPhone:    e.ContactCellPhone,
			ContactRelationship: e.ContactRelationship,
			Allergies:           e.Allergies,
			Medications:         e.Medications,
			MedicalHistory:      e.MedicalHistory,
		}
	}
	return out
}

func carInput(c Car) participants.CarInput {
	return participants.CarInput{LicensePlate: c.LicensePlate, State: c.State, Make: c.Make, Model: c.Model, Year: c.Year, Color: c.Color}
}

func emergencyInput(e EmergencyInfo) participants.EmergencyInput {
	return participants.EmergencyInput{
		ContactName:         e.ContactName,
		ContactEmail:        e.ContactEmail,
		ContactCellPhone:    e.ContactCellPhone,
		ContactRelationship: e.ContactRelationship,
		Allergies:           e.Allergies,
		Medications:         e.Medications,
		MedicalHistory:      e.MedicalHistory,
	}
}

func createInputFromRequest(b CreateParticipantRequest, identityEmail string) participants.CreateProfileInput {
	in := participants.CreateProfileInput{
		Name:          b.Name,
		Email:         b.Email,
		CellPhone:     b.CellPhone,
		Affiliation:   domain.AffiliationCode(b.Affiliation),
		CarClaim:      domain.CarClaim(b.CarClaim),
		IdentityEmail: identityEmail,
	}
	if b.Car != nil {
		c := carInput(*b.Car)
		in.Car = &c
	}
	if b.EmergencyInfo != nil {
		e := emergencyInput(*b.EmergencyInfo)
		in.EmergencyInfo = &e
	}
	return in
}

func updateInputFromRequest(b UpdateParticipantRequest) participants.UpdateProfileInput {
	return participants.UpdateProfileInput{
		Name:          optional(b.Name, func(v string) string { return v }),
		Email:         optional(b.Email, func(v string) string { return v }),
		CellPhone:     optional(b.CellPhone, func(v string) string { return v }),
		Affiliation:   optional(b.Affiliation, func(v string) domain.AffiliationCode { return domain.AffiliationCode(v) }),
		CarClaim:      optional(b.CarClaim, func(v string) domain.CarClaim { return domain.CarClaim(v) }),
		Car:           optional(b.Car, carInput),
		EmergencyInfo: optional(b.EmergencyInfo, emergencyInput),
	}
}

func previewInputFromRequest(b RequirementsPreviewRequest) participants.RequirementsPreviewInput {
	return participants.RequirementsPreviewInput{
		Affiliation: optional(b.Affiliation, func(v string) domain.AffiliationCode { return domain.AffiliationCode(v) }),
		CarClaim:    optional(b.CarClaim, func(v string) domain.CarClaim { return domain.CarClaim(v) }),
	}
}

func optional[T, U any](n nullable.Nullable[T], conv func(T) U) participants.Optional[U] {
	if !n.IsSpecified() {
		return participants.Unspecified[U]()
	}
	if n.IsNull() {
		return participants.Null[U]()
	}
	v, err := n.Get()
	if err != nil {
		return participants.Unspecified[U]()
	}
	return participants.Some(conv(v))
}

func quoteFromApp(q dues.Quote) DuesQuoteResponse {
	out := DuesQuoteResponse{
		Valid:       q.Result.Valid,
		Reason:      nullableString(string(q.Result.Reason)),
		AmountCents: q.Result.Amount.Cents(),
		Amount:      q.Result.Amount.Decimal(),
		Source:      nullableString(string(q.Result.Source)),
		Affiliation: nullableString(string(q.Payer.Affiliation)),
	}
	if q.Result.Affiliation != nil {
		out.Affiliation = nullableString(string(q.Result.Affiliation.Code))
	}
	if q.Payload != nil {
		fields := map[string]string{}
		for k, vs := range q.Payload.Values() {
			if len(vs) > 0 {
				fields[k] = vs[0]
			}
		}
		out.Payment = &PaymentForm{GatewayURL: q.Payload.GatewayURL, Fields: fields}
	}
	if q.Renewal != nil {
		m := membershipFromStatus(*q.Renewal)
		out.Membership = &m
	}
	return out
}

func choicesFromCatalog(groups []eligibility.ChoiceGroup) AffiliationsResponse {
	out := AffiliationsResponse{Groups: make([]AffiliationGroup, 0, len(groups))}
	for _, g := range groups {
		ag := AffiliationGroup{Label: g.Label, Choices: make([]AffiliationChoice, 0, len(g.Choices))}
		for _, c := range g.Choices {
			ag.Choices = append(ag.Choices, AffiliationChoice{Code: string(c.Code), Label: c.Label, AmountCents: c.Amount.Cents()})
		}
		out.Groups = append(out.Groups, ag)
	}
	return out
}

func receiptFromApp(r dues.RenewalReceipt) RenewalReceiptResponse {
	out := RenewalReceiptResponse{
		ParticipantID: string(r.Membership.ParticipantID),
		Phase:         string(r.Phase),
		EarlyRenewal:  r.EarlyRenewal,
		AmountCents:   r.Amount.Cents(),
	}
	if r.Membership.Expires != nil {
		out.Expires = openapi_types.Date{Time: r.Membership.Expires.UTC()}
	}
	return out
}
