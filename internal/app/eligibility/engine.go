package eligibility

import "time"

// Config holds the deployment policy knobs of the rules engine.
type Config struct {
	RenewalLeadDays    int
	ForbidEarlyRenewal bool
	ScrubThreshold     time.Duration
	MITDomain          string
	// Location is the club's timezone for membership dates. Nil means UTC.
	Location *time.Location
}

// Engine bundles the rule components around one catalog.
type Engine struct {
	Catalog      *Catalog
	Renewal      RenewalCalculator
	Dues         *DuesValidator
	Requirements *RequirementResolver
	Staleness    StalenessEvaluator
}

// NewEngine builds an Engine; zero config values fall back to the defaults.
func NewEngine(catalog *Catalog, cfg Config) *Engine {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if cfg.RenewalLeadDays <= 0 {
		cfg.RenewalLeadDays = DefaultRenewalLeadDays
	}
	if cfg.ScrubThreshold <= 0 {
		cfg.ScrubThreshold = DefaultScrubThreshold
	}
	return &Engine{
		Catalog:      catalog,
		Renewal:      RenewalCalculator{LeadDays: cfg.RenewalLeadDays, ForbidEarlyRenewal: cfg.ForbidEarlyRenewal, Location: cfg.Location},
		Dues:         NewDuesValidator(catalog, cfg.MITDomain),
		Requirements: NewRequirementResolver(catalog),
		Staleness:    StalenessEvaluator{Threshold: cfg.ScrubThreshold},
	}
}
