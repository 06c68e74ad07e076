package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port               string
	Env                string
	LogLevel           string
	CORSAllowedOrigins []string
	StaticDir          string

	// Zoom Server-to-Server OAuth app
	ZoomClientID     string
	ZoomClientSecret string
	ZoomAccountID    string
	ZoomOAuthURL     string
	ZoomAPIBaseURL   string
	ZoomHTTPTimeout  time.Duration

	// Consultation defaults
	MeetingTopic        string
	MeetingDurationMins int
	AppointmentTimezone string
	ReminderLeadTime    time.Duration
	NotifyTimeout       time.Duration

	// Email
	EmailProvider     string
	EmailUser         string
	EmailPass         string
	EmailFromName     string
	SMTPHost          string
	SMTPPort          int
	SendGridAPIKey    string
	SendGridFromEmail string
	SESFromEmail      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Booking velocity guard (optional, needs Redis)
	RedisAddr           string
	RedisPassword       string
	RedisTLS            bool
	BookingMaxPerWindow int
	BookingWindow       time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	DatabaseURL    string
	AdminJWTSecret string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:               getEnv("PORT", "3000"),
		Env:                getEnv("ENV", "development"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://127.0.0.1:5500"}),
		StaticDir:          getEnv("STATIC_DIR", ""),

		ZoomClientID:     getEnv("ZOOM_CLIENT_ID", ""),
		ZoomClientSecret: getEnv("ZOOM_CLIENT_SECRET", ""),
		ZoomAccountID:    getEnv("ZOOM_ACCOUNT_ID", ""),
		ZoomOAuthURL:     getEnv("ZOOM_OAUTH_URL", "https://zoom.us/oauth/token"),
		ZoomAPIBaseURL:   getEnv("ZOOM_API_BASE_URL", "https://api.zoom.us/v2"),
		ZoomHTTPTimeout:  getEnvAsDuration("ZOOM_HTTP_TIMEOUT", 15*time.Second),

		MeetingTopic:        getEnv("MEETING_TOPIC", "Doctor Consultation"),
		MeetingDurationMins: getEnvAsInt("MEETING_DURATION_MINS", 30),
		AppointmentTimezone: getEnv("APPOINTMENT_TIMEZONE", "UTC"),
		ReminderLeadTime:    getEnvAsDuration("REMINDER_LEAD_TIME", 10*time.Minute),
		NotifyTimeout:       getEnvAsDuration("NOTIFY_TIMEOUT", 30*time.Second),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "smtp"))),
		EmailUser:         getEnv("EMAIL_USER", ""),
		EmailPass:         getEnv("EMAIL_PASS", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Medi Robot"),
		SMTPHost:          getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:          getEnvAsInt("SMTP_PORT", 587),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		RedisTLS:            getEnvAsBool("REDIS_TLS", false),
		BookingMaxPerWindow: getEnvAsInt("BOOKING_MAX_PER_WINDOW", 5),
		BookingWindow:       getEnvAsDuration("BOOKING_WINDOW", time.Hour),

		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 10),

		DatabaseURL:    getEnv("DATABASE_URL", ""),
		AdminJWTSecret: getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// MissingRequired lists the credentials the provider and the selected email
// transport need. An empty result does not mean the credentials are valid.
func (c *Config) MissingRequired() []string {
	var missing []string
	check := func(name, value string) {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	check("ZOOM_CLIENT_ID", c.ZoomClientID)
	check("ZOOM_CLIENT_SECRET", c.ZoomClientSecret)
	check("ZOOM_ACCOUNT_ID", c.ZoomAccountID)

	switch c.EmailProvider {
	case "sendgrid":
		check("SENDGRID_API_KEY", c.SendGridAPIKey)
		check("SENDGRID_FROM_EMAIL", c.SendGridFromEmail)
	case "ses":
		check("SES_FROM_EMAIL", c.SESFromEmail)
	case "stub":
	default:
		check("EMAIL_USER", c.EmailUser)
		check("EMAIL_PASS", c.EmailPass)
	}
	return missing
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated variable, dropping blank entries.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
