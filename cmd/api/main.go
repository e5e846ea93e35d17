package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/mitoc/membership-api/internal/adapters/httpapi"
	kafkaevents "github.com/mitoc/membership-api/internal/adapters/kafka/events"
	memevents "github.com/mitoc/membership-api/internal/adapters/memory/events"
	memidempotency "github.com/mitoc/membership-api/internal/adapters/memory/idempotency"
	memmemberships "github.com/mitoc/membership-api/internal/adapters/memory/membershiprepo"
	memparticipants "github.com/mitoc/membership-api/internal/adapters/memory/participantrepo"
	postgres "github.com/mitoc/membership-api/internal/adapters/postgres"
	pgidempotency "github.com/mitoc/membership-api/internal/adapters/postgres/idempotency"
	pgmemberships "github.com/mitoc/membership-api/internal/adapters/postgres/membershiprepo"
	"github.com/mitoc/membership-api/internal/adapters/postgres/migrate"
	pgparticipants "github.com/mitoc/membership-api/internal/adapters/postgres/participantrepo"
	redisadapter "github.com/mitoc/membership-api/internal/adapters/redis"
	redisidem "github.com/mitoc/membership-api/internal/adapters/redis/idempotency"
	"github.com/mitoc/membership-api/internal/app/dues"
	"github.com/mitoc/membership-api/internal/app/eligibility"
	"github.com/mitoc/membership-api/internal/app/participants"
	"github.com/mitoc/membership-api/internal/platform/auth/jwtverifier"
	platformclock "github.com/mitoc/membership-api/internal/platform/clock"
	"github.com/mitoc/membership-api/internal/platform/config"
	"github.com/mitoc/membership-api/internal/platform/logging"
	"github.com/mitoc/membership-api/internal/platform/metrics"
	eventsport "github.com/mitoc/membership-api/internal/ports/out/events"
	idempotencyport "github.com/mitoc/membership-api/internal/ports/out/idempotency"
	membershipport "github.com/mitoc/membership-api/internal/ports/out/membershiprepo"
	participantport "github.com/mitoc/membership-api/internal/ports/out/participantrepo"
)

const serviceName = "membership-api"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("api exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	// Auth configuration:
	// - Production: JWT_* settings are required and bearer tokens are enforced.
	// - Local dev: AUTH_MODE=dev trusts X-Debug-Subject (or DEV_SUBJECT).
	var (
		auth   httpapi.Authenticator
		issuer string
	)
	switch cfg.AuthMode {
	case config.AuthModeDev:
		logger.Warn("dev auth enabled; requests are not verified", zap.String("default_subject", cfg.DevSubject))
		auth = httpapi.DevAuthenticator(cfg.DevSubject)
		issuer = "dev"
	default:
		auth = httpapi.BearerAuthenticator(jwtverifier.New(cfg.JWT()))
		issuer = cfg.JWTIssuer
	}

	clk := platformclock.NewSystemClock()

	var (
		participantRepo participantport.Repository
		membershipRepo  membershipport.Repository
		idemStore       idempotencyport.Store
	)

	var pool interface{ Close() }
	switch cfg.StorageBackend {
	case config.BackendPostgres:
		if err := migrate.Run(cfg.DatabaseURL, migrate.Up); err != nil {
			return err
		}
		p, err := postgres.NewPool(ctx, cfg.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return err
		}
		pool = p
		participantRepo = pgparticipants.NewRepo(p, issuer)
		membershipRepo = pgmemberships.NewRepo(p)
		if cfg.IdempotencyBackend == config.BackendPostgres {
			idemStore = pgidempotency.NewStore(p, issuer)
		}
	default:
		repo := memparticipants.NewRepo()
		participantRepo = repo
		membershipRepo = memmemberships.NewRepo(repo)
	}
	if pool != nil {
		defer pool.Close()
	}

	switch cfg.IdempotencyBackend {
	case config.BackendRedis:
		client, err := redisadapter.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		idemStore = redisidem.NewStore(client, cfg.IdempotencyTTL)
	case config.BackendMemory:
		idemStore = memidempotency.NewStore()
	}
	if idemStore == nil {
		return errors.New("idempotency backend " + cfg.IdempotencyBackend + " requires STORAGE_BACKEND=" + cfg.IdempotencyBackend)
	}

	var (
		publisher     eventsport.Publisher
		confirmations eventsport.ConfirmationSender
	)
	if brokers := cfg.KafkaBrokerList(); len(brokers) > 0 {
		kp, err := kafkaevents.NewPublisher(brokers, kafkaevents.Topics{
			Renewals:      cfg.KafkaRenewalTopic,
			Confirmations: cfg.KafkaConfirmationTopic,
		}, logger)
		if err != nil {
			return err
		}
		defer kp.Close()
		publisher = kp
		confirmations = kp
	} else {
		logger.Info("KAFKA_BROKERS not set; events are kept in memory")
		rec := memevents.NewRecorder()
		publisher = rec
		confirmations = rec
		if cfg.AuthMode == config.AuthModeDev {
			confirmations = devConfirmationLogger{logger: logger}
		}
	}

	engine := eligibility.NewEngine(eligibility.DefaultCatalog(), eligibility.Config{
		RenewalLeadDays:    cfg.RenewalLeadDays,
		ForbidEarlyRenewal: cfg.RenewalForbidEarly,
		ScrubThreshold:     cfg.MedicalScrubThreshold,
		MITDomain:          cfg.MITEmailDomain,
		Location:           cfg.Location(),
	})

	partSvc := participants.NewService(participantRepo, membershipRepo, engine, clk,
		participants.WithLogger(logger),
		participants.WithMetrics(m),
		participants.WithConfirmationSender(confirmations),
		participants.WithConfirmationTTL(cfg.EmailConfirmationTTL),
	)
	duesSvc := dues.NewService(participantRepo, membershipRepo, engine, publisher, clk,
		dues.PaymentConfig{
			MerchantID:  cfg.PaymentMerchantID,
			PaymentType: cfg.PaymentType,
			GatewayURL:  cfg.PaymentGatewayURL,
		},
		dues.WithLogger(logger),
		dues.WithMetrics(m),
	)

	api := httpapi.NewServer(partSvc, duesSvc, idemStore, clk, logger)
	handler := httpapi.NewRouter(api, httpapi.RouterOptions{
		Auth:       auth,
		AdminToken: cfg.AdminToken,
		Logger:     logger,
		Metrics:    m,
		Gatherer:   reg,
	})
	if cfg.AdminToken == "" {
		logger.Info("ADMIN_TOKEN not set; admin routes are disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api listening",
			zap.String("port", cfg.Port),
			zap.String("storage_backend", cfg.StorageBackend),
			zap.String("idempotency_backend", cfg.IdempotencyBackend),
			zap.String("auth_mode", cfg.AuthMode),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// devConfirmationLogger prints confirmation tokens so a developer without a mailer can
// finish the verify flow. It is only wired in dev auth mode.
type devConfirmationLogger struct {
	logger *zap.Logger
}

func (d devConfirmationLogger) SendEmailConfirmation(ctx context.Context, ev eventsport.EmailConfirmationEvent) error {
	_ = ctx
	d.logger.Info("dev email confirmation",
		zap.String("participant_id", string(ev.ParticipantID)),
		zap.String("address", ev.Address),
		zap.String("token", ev.Token),
		zap.Time("expires_at", ev.ExpiresAt),
	)
	return nil
}
