package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"github.com/diagnosis/campus-tickets/internal/artifact"
	"github.com/diagnosis/campus-tickets/internal/content"
	"github.com/diagnosis/campus-tickets/internal/http/handlers"
	"github.com/diagnosis/campus-tickets/internal/http/middleware"
	"github.com/diagnosis/campus-tickets/internal/identity"
	"github.com/diagnosis/campus-tickets/internal/notify"
	"github.com/diagnosis/campus-tickets/internal/payments"
	"github.com/diagnosis/campus-tickets/internal/platform/mailer"
	"github.com/diagnosis/campus-tickets/internal/qr"
	"github.com/diagnosis/campus-tickets/internal/repo/kv"
	"github.com/diagnosis/campus-tickets/internal/repo/postgres"
	"github.com/diagnosis/campus-tickets/internal/service"
	"github.com/diagnosis/campus-tickets/internal/session"
	"github.com/diagnosis/campus-tickets/pkg/config"
	"github.com/diagnosis/campus-tickets/pkg/database"
	"github.com/diagnosis/campus-tickets/pkg/events"
	"github.com/diagnosis/campus-tickets/pkg/logger"
	"github.com/diagnosis/campus-tickets/pkg/metrics"
	mw "github.com/diagnosis/campus-tickets/pkg/middleware"
	"github.com/diagnosis/campus-tickets/pkg/telemetry"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"
)

func main() {
	envFile := pflag.String("env-file", ".env", "dotenv file to load before reading the environment")
	migrateOnly := pflag.Bool("migrate", false, "apply database migrations and exit")
	pflag.Parse()

	cfg, err := config.Load(*envFile)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}
	logger.Init(os.Stdout, cfg.Telemetry.LogLevel)

	if err := database.RunMigrations(cfg.Database.URL); err != nil {
		logger.Error("Migrations failed", "error", err)
		os.Exit(1)
	}
	if *migrateOnly {
		logger.Info("Migrations applied")
		return
	}

	if err := run(cfg); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logger.Warn("Tracing disabled", "error", err)
	}
	defer shutdownTracing(context.Background())

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec := metrics.NewCollector(registry)

	// Connect to database
	pool, err := database.Connect(ctx, cfg.Database.URL, database.PoolOptions{
		MinConns:    cfg.Database.MinConns,
		MaxConns:    cfg.Database.MaxConns,
		MaxLifetime: cfg.Database.MaxLifetime,
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	rdb, err := kv.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	defer rdb.Close()

	// Connect to event bus
	var bus events.EventBus = events.NopBus{}
	if cfg.NATS.URL != "" {
		nb, err := events.NewNATSEventBus(cfg.NATS.URL, cfg.Telemetry.ServiceName)
		if err != nil {
			return err
		}
		bus = nb
	}
	defer bus.Close()
	if err := bus.Subscribe(events.AllTickets, func(msg *events.Message) {
		logger.Info("Ticket event", "subject", msg.Subject, "event_id", msg.ID)
	}); err != nil {
		logger.Warn("Ticket audit subscription failed", "error", err)
	}

	// Initialize repositories
	users := postgres.NewUsersRepo(pool)
	profiles := postgres.NewProfilesRepo(pool)
	tickets := postgres.NewTicketsRepo(pool)
	eventsRepo := postgres.NewEventsRepo(pool)
	paymentsRepo := postgres.NewPaymentsRepo(pool)

	store, artifacts, closeStore, err := artifactStore(ctx, cfg, pool)
	if err != nil {
		return err
	}
	defer closeStore()

	m, err := newMailer(cfg.Email)
	if err != nil {
		return err
	}
	fetchClient := notify.NewPlainClient(cfg.Storage.FetchTimeout)
	if cfg.Storage.FetchGuard {
		fetchClient = notify.NewGuardedClient(cfg.Storage.FetchTimeout)
	}
	dispatcher := notify.NewDispatcher(notify.NewHTTPFetcher(fetchClient, cfg.Storage.MaxFetchSize), m, rec)
	issuer := qr.NewIssuer(store, rec)

	ids := identity.NewStore(users, kv.NewRevocationList(rdb), cfg.Auth.SessionSecret, cfg.Auth.SessionTTL)
	gate := session.NewGate(ids, profiles, session.Options{
		CookieName: cfg.Auth.SessionCookieName,
		LoginPath:  cfg.Auth.LoginPath,
		Secure:     cfg.IsProduction(),
		TTL:        cfg.Auth.SessionTTL,
	}, rec)

	gateway, webhooks := paymentGateway(cfg.Payments)

	// Initialize services
	ticketSvc := service.NewTicketService(tickets, eventsRepo, issuer, dispatcher, bus)
	accountSvc := service.NewAccountService(ids, profiles, issuer, dispatcher, bus)
	eventSvc := service.NewEventService(eventsRepo, store, content.NewRenderer(), bus)
	paymentSvc := service.NewPaymentService(gateway, paymentsRepo, eventsRepo, profiles, ticketSvc, bus, rec)

	limiter := middleware.NewRateLimiter(middleware.RateLimitConfig{PerMinute: cfg.Auth.LoginRatePerMin})
	go limiter.Run(time.Minute, ctx.Done())
	sendLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{PerMinute: cfg.Server.SendRatePerMin})
	go sendLimiter.Run(time.Minute, ctx.Done())

	deps := handlers.Deps{
		Accounts:           accountSvc,
		Tickets:            ticketSvc,
		Events:             eventSvc,
		Payments:           paymentSvc,
		Gate:               gate,
		Stripe:             webhooks,
		MpesaCallbackToken: cfg.Payments.Mpesa.CallbackToken,
		MaxUploadBytes:     cfg.Server.MaxUploadBytes,
		LoginLimiter:       limiter.Middleware(),
		SendLimiter:        sendLimiter.Middleware(),
		Idempotency:        mw.IdempotencyMiddleware(kv.NewIdempotencyStore(rdb), cfg.Server.IdempotencyTTL, gate.CallerKey),
	}
	h := handlers.New(deps)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName(cfg.Telemetry.ServiceName))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(cfg.Server.AllowedOrigins))
	r.Use(mw.Metrics(rec))
	r.Use(mw.Health(map[string]mw.HealthCheck{
		"postgres": pool.Ping,
		"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
	}))

	r.Handle("/metrics", metrics.Handler(registry))
	if artifacts != nil {
		r.Get("/artifacts/*", artifact.Handler(artifacts))
	}
	h.Mount(r)

	// Start server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting campus-tickets", "port", cfg.Server.Port, "env", cfg.Env,
			"artifacts", cfg.Storage.Backend, "email", cfg.Email.Transport, "payments", gateway.Name())
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

	// Graceful shutdown
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// artifactStore builds the configured backend. The Getter is non-nil when
// artifacts are served by this process under /artifacts.
func artifactStore(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) (artifact.Store, artifact.Getter, func(), error) {
	noop := func() {}
	switch cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, noop, err
		}
		return artifact.NewGCSStore(client, cfg.Storage.Bucket, cfg.ArtifactBaseURL()), nil, func() { client.Close() }, nil
	case "memory":
		s := artifact.NewPostgresStore(artifact.NewMemoryRepo(), cfg.ArtifactBaseURL())
		return s, s, noop, nil
	default:
		s := artifact.NewPostgresStore(postgres.NewArtifactsRepo(pool), cfg.ArtifactBaseURL())
		return s, s, noop, nil
	}
}

func newMailer(cfg config.EmailConfig) (mailer.Mailer, error) {
	switch cfg.Transport {
	case "smtp":
		if cfg.SMTPUser == "" || cfg.SMTPPass == "" {
			return nil, errors.New("SMTP_USER and SMTP_PASS are required for EMAIL_TRANSPORT=smtp")
		}
		from := cfg.From
		if from == "" {
			from = cfg.SMTPUser
		}
		return mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, from, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPTimeout), nil
	case "mailersend":
		if cfg.MailerSendKey == "" {
			return nil, errors.New("MAILERSEND_API_KEY is required for EMAIL_TRANSPORT=mailersend")
		}
		return mailer.NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.From), nil
	default:
		logger.Warn("Using dev mailer; emails are logged, not sent")
		return mailer.NewDevMailer(), nil
	}
}

// paymentGateway returns the configured gateway and, for Stripe, the
// webhook parser.
func paymentGateway(cfg config.PaymentsConfig) (payments.Gateway, handlers.WebhookParser) {
	if cfg.Provider == payments.ProviderStripe {
		s := payments.NewStripe(cfg.Stripe, nil)
		return s, s
	}
	return payments.NewMpesa(cfg.Mpesa, &http.Client{Timeout: 30 * time.Second}), nil
}
