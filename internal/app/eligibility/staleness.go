package eligibility

import (
	"fmt"
	"time"
)

// DefaultScrubThreshold is how long a profile may go without updates before emergency and
// medical info is considered scrubbed.
const DefaultScrubThreshold = 365 * 24 * time.Hour

// StalenessEvaluator flags emergency/medical info that must be re-collected.
type StalenessEvaluator struct {
	Threshold time.Duration
}

// Staleness is advisory; it is never an error.
type Staleness struct {
	Scrubbed bool
	// RecollectRequired is set only for the profile owner, who must re-enter the data
	// before trip eligibility is granted.
	RecollectRequired bool
	Reason            string
}

func (e StalenessEvaluator) Evaluate(lastUpdated, now time.Time, requesterIsOwner bool) Staleness {
	if lastUpdated.IsZero() {
		return Staleness{
			Scrubbed:          true,
			RecollectRequired: requesterIsOwner,
			Reason:            "No emergency or medical information is on file.",
		}
	}
	age := now.Sub(lastUpdated)
	if age <= e.Threshold {
		return Staleness{}
	}
	return Staleness{
		Scrubbed:          true,
		RecollectRequired: requesterIsOwner,
		Reason: fmt.Sprintf(
			"Profile last updated %s ago (limit %s); emergency and medical information must be re-entered.",
			humanDays(age), humanDays(e.Threshold),
		),
	}
}

func humanDays(d time.Duration) string {
	days := int(d / (24 * time.Hour))
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
