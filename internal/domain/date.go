package domain

import "time"

// MembershipTerm is the length of one paid membership period.
const MembershipTerm = 365

// DateOf truncates t to its calendar date (UTC midnight). Membership dates are date-only.
func DateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// LocalDate returns the calendar date of the instant t as observed in loc, represented like
// DateOf. A nil loc means UTC.
func LocalDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the calendar date n days after d.
func AddDays(d time.Time, n int) time.Time {
	return DateOf(d).AddDate(0, 0, n)
}
