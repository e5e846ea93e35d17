// Package metrics defines the service's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector. Methods are safe on a nil receiver so callers can run
// without metrics.
type Metrics struct {
	// Dues quotes by affiliation and outcome (valid, mit_email_required, unknown_affiliation).
	DuesQuotes *prometheus.CounterVec

	// Renewals recorded by the renewal phase they were paid in.
	RenewalsRecorded *prometheus.CounterVec

	// Profile submissions by outcome (saved, blocked, invalid).
	ProfileSubmissions *prometheus.CounterVec

	HTTPDuration *prometheus.HistogramVec
}

// New registers all collectors with reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		DuesQuotes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dues_quotes_total",
			Help: "Dues quotes computed, by affiliation and outcome",
		}, []string{"affiliation", "outcome"}),

		RenewalsRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "renewals_recorded_total",
			Help: "Membership renewals applied, by renewal phase at payment time",
		}, []string{"phase"}),

		ProfileSubmissions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "profile_submissions_total",
			Help: "Participant profile submissions, by outcome",
		}, []string{"outcome"}),

		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route template and status code",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}, []string{"route", "status"}),
	}
}

func (m *Metrics) IncDuesQuote(affiliation, outcome string) {
	if m != nil {
		m.DuesQuotes.WithLabelValues(affiliation, outcome).Inc()
	}
}

func (m *Metrics) IncRenewal(phase string) {
	if m != nil {
		m.RenewalsRecorded.WithLabelValues(phase).Inc()
	}
}

func (m *Metrics) IncProfileSubmission(outcome string) {
	if m != nil {
		m.ProfileSubmissions.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) ObserveHTTP(route string, status int, d time.Duration) {
	if m != nil {
		m.HTTPDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(d.Seconds())
	}
}
