package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medirobot/cmd/mainconfig"
	"github.com/wolfman30/medirobot/internal/api/router"
	"github.com/wolfman30/medirobot/internal/app/bootstrap"
	"github.com/wolfman30/medirobot/internal/compliance"
	appconfig "github.com/wolfman30/medirobot/internal/config"
	"github.com/wolfman30/medirobot/internal/consult"
	httpmiddleware "github.com/wolfman30/medirobot/internal/http/middleware"
	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/internal/notify"
	"github.com/wolfman30/medirobot/internal/observability/metrics"
	"github.com/wolfman30/medirobot/internal/reminders"
	"github.com/wolfman30/medirobot/internal/zoom"
	"github.com/wolfman30/medirobot/pkg/logging"
)

func main() {
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting medi robot API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)
	if missing := cfg.MissingRequired(); len(missing) > 0 {
		logger.Warn("missing configuration, meeting creation will fail", "vars", missing)
	}

	app, err := newApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.close()

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
	fmt.Println("Server exited gracefully")
}

type application struct {
	handler   http.Handler
	scheduler *reminders.Scheduler
	limiter   *httpmiddleware.RateLimiter
	redis     *redis.Client
	db        *sql.DB
	logger    *logging.Logger
}

// close stops pending reminders and releases connections. Reminders that had
// not fired are dropped.
func (a *application) close() {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

func newApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*application, error) {
	app := &application{logger: logger}

	registry := prometheus.NewRegistry()
	consultMetrics := metrics.NewConsultMetrics(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	zoomClient, err := zoom.New(zoom.Config{
		OAuthURL:     cfg.ZoomOAuthURL,
		APIBaseURL:   cfg.ZoomAPIBaseURL,
		ClientID:     cfg.ZoomClientID,
		ClientSecret: cfg.ZoomClientSecret,
		AccountID:    cfg.ZoomAccountID,
		Timeout:      cfg.ZoomHTTPTimeout,
		Latency:      consultMetrics,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}

	var sesClient notify.SESAPI
	if cfg.EmailProvider == "ses" {
		awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		sesClient = mainconfig.NewSESClient(awsCfg, cfg)
	}
	emailSender, err := bootstrap.BuildEmailSender(cfg, sesClient, logger)
	if err != nil {
		return nil, err
	}

	db, err := bootstrap.BuildAuditDB(ctx, cfg, logger)
	if err != nil {
		logger.Warn("audit trail disabled", "error", err)
	}
	app.db = db
	audit := compliance.NewAuditService(db, logger)

	app.redis = bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	limiter := bootstrap.BuildVelocityChecker(app.redis, cfg, logger)

	location := bootstrap.LoadLocation(cfg.AppointmentTimezone, logger)
	notifier := notify.NewService(emailSender, notify.ServiceConfig{
		Location: location,
		LeadTime: cfg.ReminderLeadTime,
		Timeout:  cfg.NotifyTimeout,
		Observer: consultMetrics,
	}, logger)

	app.scheduler = reminders.NewScheduler(notifier, reminders.Options{
		LeadTime:    cfg.ReminderLeadTime,
		SendTimeout: cfg.NotifyTimeout,
		Metrics:     consultMetrics,
		Audit:       audit,
	}, logger)

	store := meetings.NewStore()
	consultService, err := consult.NewService(consult.Deps{
		Provider:  zoomClient,
		Store:     store,
		Notifier:  notifier,
		Reminders: app.scheduler,
		Limiter:   limiter,
		Metrics:   consultMetrics,
		Audit:     audit,
	}, consult.Config{
		Topic:    cfg.MeetingTopic,
		Duration: time.Duration(cfg.MeetingDurationMins) * time.Minute,
		Location: location,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.RateLimitRPS > 0 {
		app.limiter = httpmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}
	if cfg.AdminJWTSecret == "" {
		logger.Info("admin routes disabled (ADMIN_JWT_SECRET not set)")
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		ConsultHandler:     consult.NewHandler(consultService, store, logger),
		RemindersHandler:   reminders.NewHandler(app.scheduler, logger),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     metricsHandler,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimiter:        app.limiter,
		StaticDir:          cfg.StaticDir,
	})
	return app, nil
}
