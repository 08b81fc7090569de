package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/oakwellcare/clinic-engagement/internal/api/handlers"
	"github.com/oakwellcare/clinic-engagement/internal/api/router"
	"github.com/oakwellcare/clinic-engagement/internal/appointments"
	"github.com/oakwellcare/clinic-engagement/internal/audit"
	"github.com/oakwellcare/clinic-engagement/internal/availability"
	"github.com/oakwellcare/clinic-engagement/internal/billing"
	"github.com/oakwellcare/clinic-engagement/internal/clock"
	appconfig "github.com/oakwellcare/clinic-engagement/internal/config"
	"github.com/oakwellcare/clinic-engagement/internal/engagement"
	"github.com/oakwellcare/clinic-engagement/internal/locking"
	"github.com/oakwellcare/clinic-engagement/internal/notify"
	"github.com/oakwellcare/clinic-engagement/internal/observability/metrics"
	"github.com/oakwellcare/clinic-engagement/internal/requests"
	"github.com/oakwellcare/clinic-engagement/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting clinic-engagement API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"clinic_tz", cfg.ClinicTZ,
	)

	ctx := context.Background()
	clk := clock.NewSystem(cfg.ClinicTZ)

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	auditURL := cfg.AuditDBURL
	if auditURL == "" {
		auditURL = cfg.DatabaseURL
	}
	auditDB, err := sql.Open("postgres", auditURL)
	if err != nil {
		logger.Error("failed to open audit database", "error", err)
		os.Exit(1)
	}
	defer auditDB.Close()

	var locker locking.Locker = locking.NewMemoryLocker()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		locker = locking.NewRedisLocker(rdb, cfg.LockTTL)
		logger.Info("redis mutation lock enabled", "addr", cfg.RedisAddr)
	} else {
		logger.Warn("REDIS_ADDR unset, using in-process locks; run a single instance")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	lifecycleMetrics := metrics.NewLifecycleMetrics(registry)

	auditor := audit.NewService(auditDB)
	notifier := buildNotifier(ctx, cfg, logger)

	availRepo := availability.NewPostgresRepository(pool)
	resolver := availability.NewResolver(availRepo, clk, cfg.SlotMinutes, logger)

	apptRepo := appointments.NewPostgresRepository(pool)
	apptSvc := appointments.NewService(apptRepo, resolver, clk, locker, auditor, notifier, lifecycleMetrics, logger)

	reqRepo := requests.NewPostgresRepository(pool)
	reqSvc := requests.NewService(reqRepo, apptSvc, resolver, clk, auditor, notifier, lifecycleMetrics, logger)

	billingStore := billing.NewPostgresStore(pool)
	reconciler := billing.NewReconciler(billingStore, clk, locker, auditor, notifier, lifecycleMetrics, logger)

	facade := engagement.New(reqSvc, apptSvc, resolver, reconciler, engagement.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
	}, logger)

	r := router.New(&router.Config{
		Logger:         logger,
		Requests:       handlers.NewRequestsHandler(facade, logger),
		Appointments:   handlers.NewAppointmentsHandler(facade, logger),
		ActorJWTSecret: cfg.ActorJWTSecret,
		MetricsHandler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildNotifier selects the configured email provider. Delivery is always
// best effort; a misconfigured provider degrades to log-only.
func buildNotifier(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) notify.Notifier {
	book, err := notify.NewStaticAddressBookFromJSON(cfg.ClinicianInboxMap)
	if err != nil {
		logger.Error("invalid CLINICIAN_INBOX_MAP_JSON, notifications disabled", "error", err)
		return notify.NewService(nil, nil, logger)
	}

	var sender notify.EmailSender
	switch cfg.EmailProvider {
	case "sendgrid":
		if sg := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger); sg != nil {
			sender = sg
		} else {
			logger.Warn("SENDGRID_API_KEY unset, notifications log-only")
		}
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			logger.Error("failed to load AWS config, notifications disabled", "error", err)
			break
		}
		sender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.NotifyFromEmail,
			FromName:  cfg.NotifyFromName,
		}, logger)
	default:
		logger.Info("email provider stubbed, notifications log-only")
	}
	return notify.NewService(sender, book, logger)
}
