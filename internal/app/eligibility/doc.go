// Package eligibility holds the membership rules engine: affiliation catalog lookups,
// renewal windows, dues eligibility, conditional profile requirements and staleness of
// sensitive data.
//
// Everything here is pure domain logic - no I/O, no clock reads, no shared mutable state.
// Callers pass the participant/membership snapshot and "today" explicitly.
package eligibility
