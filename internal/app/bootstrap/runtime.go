package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/wolfman30/medirobot/internal/config"
	"github.com/wolfman30/medirobot/internal/consult"
	"github.com/wolfman30/medirobot/internal/notify"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available, booking velocity guard disabled", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildAuditDB opens the audit trail database. It returns nil, nil when
// DATABASE_URL is unset.
func BuildAuditDB(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.Default()
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open audit db: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: ping audit db: %w", err)
	}
	logger.Info("appointment audit trail enabled")
	return db, nil
}

// BuildEmailSender selects the transport named by EMAIL_PROVIDER. ses may be
// nil unless the provider is "ses".
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) (notify.EmailSender, error) {
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.EmailProvider {
	case "stub":
		logger.Info("email transport: stub")
		return notify.NewStubEmailSender(logger), nil
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender == nil {
			return nil, fmt.Errorf("bootstrap: SENDGRID_API_KEY is required for EMAIL_PROVIDER=sendgrid")
		}
		logger.Info("email transport: sendgrid")
		return sender, nil
	case "ses":
		if ses == nil {
			return nil, fmt.Errorf("bootstrap: SES client is required for EMAIL_PROVIDER=ses")
		}
		logger.Info("email transport: ses")
		return notify.NewSESSender(ses, notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger), nil
	case "", "smtp":
		sender, err := notify.NewSMTPSender(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.EmailUser,
			Password: cfg.EmailPass,
			FromName: cfg.EmailFromName,
			Timeout:  cfg.NotifyTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
		logger.Info("email transport: smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
		return sender, nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown EMAIL_PROVIDER %q", cfg.EmailProvider)
	}
}

// LoadLocation resolves APPOINTMENT_TIMEZONE, falling back to UTC.
func LoadLocation(name string, logger *logging.Logger) *time.Location {
	if strings.TrimSpace(name) == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		if logger == nil {
			logger = logging.Default()
		}
		logger.Warn("unknown APPOINTMENT_TIMEZONE, using UTC", "timezone", name, "error", err)
		return time.UTC
	}
	return loc
}

// BuildVelocityChecker returns the per-patient booking guard, or nil when
// Redis is unavailable or the limit is disabled.
func BuildVelocityChecker(client *redis.Client, cfg *appconfig.Config, logger *logging.Logger) consult.BookingLimiter {
	if client == nil || cfg == nil || cfg.BookingMaxPerWindow <= 0 {
		return nil
	}
	return consult.NewVelocityChecker(client, consult.VelocityConfig{
		MaxPerWindow: cfg.BookingMaxPerWindow,
		Window:       cfg.BookingWindow,
	}, logger)
}
