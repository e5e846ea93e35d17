package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/platform/metrics"
)

type RouterOptions struct {
	// Auth resolves the caller's subject. Required.
	Auth Authenticator
	// AdminToken guards /admin; empty disables those routes.
	AdminToken string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil omits the endpoint.
	Gatherer prometheus.Gatherer
}

// NewRouter constructs the API HTTP router.
func NewRouter(s *Server, opts RouterOptions) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observe(logger, opts.Metrics))
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed", nil)
	})

	// Infra endpoints are unauthenticated.
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/affiliations", s.ListAffiliations)
	r.With(optionalSubject(opts.Auth)).Post("/dues/quote", s.QuoteDues)

	r.Group(func(r chi.Router) {
		r.Use(requireSubject(opts.Auth))

		r.Post("/participants", s.CreateMyProfile)
		r.Route("/participants/me", func(r chi.Router) {
			r.Get("/", s.GetMyProfile)
			r.Patch("/", s.UpdateMyProfile)
			r.Post("/requirements", s.PreviewRequirements)
			r.Get("/membership", s.GetMyMembership)
			r.Get("/trip-eligibility", s.CheckTripEligibility)
			r.Get("/emails", s.ListMyEmails)
			r.Post("/emails", s.AddMyEmail)
			r.Post("/emails/{address}/verify", s.VerifyMyEmail)
			r.Delete("/emails/{address}", s.RemoveMyEmail)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(requireAdminToken(opts.AdminToken, logger))
		r.Post("/renewals", s.RecordRenewal)
		r.Put("/participants/{participantId}/preset-dues", s.SetPresetDues)
	})

	return r
}
