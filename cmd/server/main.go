package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	auditHandler "aegis/internal/audit/handler"
	"aegis/internal/audit/integrity"
	auditMetrics "aegis/internal/audit/metrics"
	auditService "aegis/internal/audit/service"
	httpapi "aegis/internal/http"
	incidentHandler "aegis/internal/incident/handler"
	incidentMetrics "aegis/internal/incident/metrics"
	incidentService "aegis/internal/incident/service"
	jwttoken "aegis/internal/jwt_token"
	"aegis/internal/ledger/anchor"
	ledgerHandler "aegis/internal/ledger/handler"
	ledgerMetrics "aegis/internal/ledger/metrics"
	ledgerService "aegis/internal/ledger/service"
	mfaHandler "aegis/internal/mfa/handler"
	mfaMetrics "aegis/internal/mfa/metrics"
	"aegis/internal/mfa/secrets"
	mfaService "aegis/internal/mfa/service"
	"aegis/internal/notify"
	"aegis/internal/passkey/ceremony"
	passkeyHandler "aegis/internal/passkey/handler"
	passkeyMetrics "aegis/internal/passkey/metrics"
	passkeyService "aegis/internal/passkey/service"
	"aegis/internal/platform/config"
	"aegis/internal/platform/httpserver"
	"aegis/internal/platform/kafka"
	"aegis/internal/platform/logger"
	"aegis/internal/platform/metrics"
	"aegis/internal/platform/postgres"
	redisclient "aegis/internal/platform/redis"
	"aegis/internal/platform/telemetry"
	rlConfig "aegis/internal/ratelimit/config"
	rlMetrics "aegis/internal/ratelimit/metrics"
	rlMiddleware "aegis/internal/ratelimit/middleware"
	rlModels "aegis/internal/ratelimit/models"
	lockoutService "aegis/internal/ratelimit/service/authlockout"
	"aegis/internal/ratelimit/service/requestlimit"
	suspiciousHandler "aegis/internal/suspicious/handler"
	suspiciousModels "aegis/internal/suspicious/models"
	"aegis/internal/suspicious/officehours"
	suspiciousService "aegis/internal/suspicious/service"
	verificationHandler "aegis/internal/verification/handler"
	verificationMetrics "aegis/internal/verification/metrics"
	verificationModels "aegis/internal/verification/models"
	verificationService "aegis/internal/verification/service"
	"aegis/pkg/platform/circuit"
	"aegis/pkg/platform/guard"
	"aegis/pkg/platform/middleware/admin"
	"aegis/pkg/platform/middleware/auth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("aegis stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("aegis stopped")
}

type infra struct {
	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

func (i *infra) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

func connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	var err error
	if in.db, err = postgres.Open(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if in.db != nil && cfg.Postgres.AutoMigrate {
		if err := postgres.Migrate(cfg.Postgres.URL, "up"); err != nil {
			in.close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info("database migrations applied")
	}
	if in.redis, err = redisclient.New(ctx, cfg.Redis); err != nil {
		in.close()
		return nil, err
	}
	if in.kafka, err = kafka.New(ctx, cfg.Kafka); err != nil {
		in.close()
		return nil, err
	}
	if in.kafka != nil {
		if err := kafka.EnsureTopic(ctx, in.kafka, cfg.Kafka, log); err != nil {
			in.close()
			return nil, err
		}
	}
	return in, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	in, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	durable, ephemeral := backendName(in.db, in.redis)
	log.Info("storage selected", "durable", durable, "ephemeral", ephemeral, "anchor_stream", in.kafka != nil)
	st, err := newStores(ctx, in.db, in.redis, cfg.Subjects, log)
	if err != nil {
		return fmt.Errorf("stores: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Ledger and incidents come first; every other module anchors to the ledger.
	var publisher ledgerService.AnchorPublisher = anchor.NewLogPublisher(log)
	if in.kafka != nil {
		publisher = anchor.NewFallbackPublisher(
			anchor.NewKafkaPublisher(in.kafka, cfg.Kafka.AnchorTopic),
			publisher,
			circuit.New("ledger-anchor"),
			log,
		)
	}
	ledger, err := ledgerService.New(st.ledger,
		ledgerService.WithLogger(log),
		ledgerService.WithMetrics(ledgerMetrics.NewWithRegisterer(reg)),
		ledgerService.WithAnchorPublisher(publisher),
	)
	if err != nil {
		return err
	}
	incidents, err := incidentService.New(st.incidents, ledger,
		incidentService.WithLogger(log),
		incidentService.WithMetrics(incidentMetrics.NewWithRegisterer(reg)),
	)
	if err != nil {
		return err
	}
	ledger.SetDuplicateObserver(incidentService.NewDuplicateHashObserver(incidents))

	schedules, watchSchedules, err := scheduleStore(cfg.OfficeHours, log)
	if err != nil {
		return err
	}
	suspicious, err := suspiciousService.New(schedules, st.history,
		suspiciousService.WithLogger(log),
		suspiciousService.WithIncidentRaiser(incidents),
	)
	if err != nil {
		return err
	}

	limitMetrics := rlMetrics.NewWithRegisterer(reg)
	limitConfig := rlConfig.DefaultConfig()
	limiter, err := requestlimit.New(st.buckets,
		requestlimit.WithLogger(log),
		requestlimit.WithConfig(limitConfig),
		requestlimit.WithMetrics(limitMetrics),
		requestlimit.WithViolationRecorder(suspicious),
	)
	if err != nil {
		return err
	}
	lockout, err := lockoutService.New(st.lockouts,
		lockoutService.WithLogger(log),
		lockoutService.WithConfig(&limitConfig.AuthLockout),
		lockoutService.WithMetrics(limitMetrics),
	)
	if err != nil {
		return err
	}

	var notifier verificationService.Notifier = notify.NewConsole(log)
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken, cfg.Notify.RatePerSecond, cfg.Notify.Burst)
	}
	verification, err := verificationService.New(st.verification, notifier, st.subjects, ledger,
		verificationService.WithLogger(log),
		verificationService.WithMetrics(verificationMetrics.NewWithRegisterer(reg)),
		verificationService.WithConfig(verificationConfig(cfg.Verification)),
		verificationService.WithRateLimiter(limiter),
		verificationService.WithLockout(lockout),
		verificationService.WithActivityRecorder(suspicious),
	)
	if err != nil {
		return err
	}

	sealer, err := secrets.New(cfg.MFA.EncryptionKey)
	if err != nil {
		return fmt.Errorf("mfa sealer: %w", err)
	}
	mfaConfig := mfaService.DefaultConfig()
	mfaConfig.Issuer = cfg.MFA.Issuer
	mfa, err := mfaService.New(st.mfa, sealer, verification, st.subjects, ledger,
		mfaService.WithLogger(log),
		mfaService.WithMetrics(mfaMetrics.NewWithRegisterer(reg)),
		mfaService.WithConfig(mfaConfig),
		mfaService.WithRateLimiter(limiter),
	)
	if err != nil {
		return err
	}

	webauthn, err := ceremony.New(ceremony.Config{
		RPID:          cfg.WebAuthn.RPID,
		RPDisplayName: cfg.WebAuthn.RPDisplayName,
		RPOrigins:     cfg.WebAuthn.RPOrigins,
	}, st.credentials)
	if err != nil {
		return err
	}
	passkeys, err := passkeyService.New(st.pairings, webauthn, ledger,
		passkeyService.WithLogger(log),
		passkeyService.WithMetrics(passkeyMetrics.NewWithRegisterer(reg)),
		passkeyService.WithRateLimiter(limiter),
		passkeyService.WithRegistrar(webauthn),
		passkeyService.WithSubjects(st.subjects),
		passkeyService.WithTTL(cfg.WebAuthn.PairingTTL),
	)
	if err != nil {
		return err
	}

	auditM := auditMetrics.NewWithRegisterer(reg)
	audit, err := auditService.New(st.audit, ledger,
		auditService.WithLogger(log),
		auditService.WithMetrics(auditM),
	)
	if err != nil {
		return err
	}
	integrityJob, err := integrity.New(st.audit, ledger, incidents,
		integrity.WithLogger(log),
		integrity.WithMetrics(auditM),
		integrity.WithConfig(integrity.Config{Window: cfg.Integrity.Window, BatchSize: cfg.Integrity.BatchSize}),
	)
	if err != nil {
		return err
	}

	tokens := jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience))
	requireAuth := auth.RequireAuth(tokens, log)
	requireAdmin := func(next http.Handler) http.Handler {
		return requireAuth(auth.RequireRole("admin", log)(next))
	}
	requireService := admin.RequireServiceToken(cfg.Server.ServiceToken, log)
	limits := rlMiddleware.New(limiter, log)
	approvalGuard := guard.New(
		guard.RequireJSON(1<<20),
		limits.RateLimit(rlModels.PolicyAdminApproval, rlMiddleware.BySubjectOrIP),
	)

	router := httpapi.NewRouter(httpapi.Config{
		Logger:         log,
		Metrics:        metrics.NewWithRegisterer(reg),
		Gatherer:       reg,
		RequestTimeout: 30 * time.Second,
		HealthChecks:   healthChecks(in),
	},
		ledgerHandler.New(ledger, log,
			ledgerHandler.WithServiceAuth(requireService),
			ledgerHandler.WithAdminAuth(requireAdmin),
			ledgerHandler.WithApprovalGuard(approvalGuard),
		),
		verificationHandler.New(verification, log, verificationHandler.WithContainment(incidents)),
		mfaHandler.New(mfa, log, mfaHandler.WithAuth(requireAuth), mfaHandler.WithContainment(incidents)),
		passkeyHandler.New(passkeys, log, passkeyHandler.WithAuth(requireAuth)),
		incidentHandler.New(incidents, log, incidentHandler.WithAdminAuth(requireAdmin)),
		suspiciousHandler.New(suspicious, log, suspiciousHandler.WithAdminAuth(requireAdmin)),
		auditHandler.New(audit, log,
			auditHandler.WithServiceAuth(requireService),
			auditHandler.WithAdminAuth(requireAdmin),
			auditHandler.WithIntegrityRunner(integrityJob),
		),
	)
	srv := httpserver.New(ctx, cfg.Server.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting aegis", "addr", cfg.Server.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownGrace)
		defer cancel()
		log.Info("shutting down http server")
		return srv.Shutdown(sctx)
	})
	if cfg.Integrity.Interval > 0 {
		g.Go(func() error { return integrityJob.Run(gctx, cfg.Integrity.Interval) })
	}
	if watchSchedules != nil {
		g.Go(func() error { return watchSchedules(gctx) })
	}
	return g.Wait()
}

// scheduleStore loads office hours from OFFICE_HOURS_FILE when set. Without a
// file every office uses the default schedule.
func scheduleStore(cfg config.OfficeHoursConfig, log *slog.Logger) (suspiciousService.ScheduleStore, func(context.Context) error, error) {
	if cfg.File == "" {
		return officehours.NewMemoryStore(suspiciousModels.DefaultSchedule("default", time.UTC)), nil, nil
	}
	fs, err := officehours.NewFileStore(cfg.File, log)
	if err != nil {
		return nil, nil, fmt.Errorf("office hours: %w", err)
	}
	return fs, fs.Watch, nil
}

func verificationConfig(cfg config.VerificationConfig) verificationService.Config {
	out := verificationService.Config{
		DefaultTTL:  cfg.DefaultTTL,
		TTLs:        make(map[verificationModels.Purpose]time.Duration, len(cfg.TTLs)),
		MaxAttempts: cfg.MaxAttempts,
	}
	for purpose, ttl := range cfg.TTLs {
		out.TTLs[verificationModels.Purpose(purpose)] = ttl
	}
	return out
}

func healthChecks(in *infra) map[string]httpapi.HealthCheck {
	checks := map[string]httpapi.HealthCheck{}
	if in.db != nil {
		checks["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		checks["redis"] = func(ctx context.Context) error { return in.redis.Ping(ctx).Err() }
	}
	if in.kafka != nil {
		checks["kafka"] = in.kafka.Ping
	}
	return checks
}
