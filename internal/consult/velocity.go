package consult

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/medirobot/internal/compliance"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// VelocityConfig limits how many meetings one patient may book per window.
type VelocityConfig struct {
	MaxPerWindow int
	Window       time.Duration
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// VelocityChecker counts bookings per patient in Redis.
type VelocityChecker struct {
	redis  *redis.Client
	config VelocityConfig
	logger *logging.Logger
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	return &VelocityChecker{
		redis:  redisClient,
		config: config,
		logger: logger,
	}
}

// CheckBooking counts one booking attempt for the patient and reports whether
// it is within the limit. Redis errors fail open.
func (v *VelocityChecker) CheckBooking(ctx context.Context, patientKey string) (*VelocityResult, error) {
	ctx, span := consultTracer.Start(ctx, "velocity.check_booking")
	defer span.End()

	if v == nil || v.redis == nil || v.config.MaxPerWindow <= 0 {
		return &VelocityResult{Allowed: true}, nil
	}

	key := velocityKey(patientKey)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err)
		// Fail open - allow the booking if Redis is down
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxPerWindow,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxPerWindow,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d bookings in %s", v.config.MaxPerWindow, v.config.Window)
		v.logger.Warn("booking velocity exceeded",
			"patient_key", patientKey,
			"count", count,
			"max", v.config.MaxPerWindow,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

// Reset clears the booking counter for a patient.
func (v *VelocityChecker) Reset(ctx context.Context, patientKey string) error {
	if v == nil || v.redis == nil {
		return nil
	}
	return v.redis.Del(ctx, velocityKey(patientKey)).Err()
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), time.Now().Add(ttl), nil
}

// Keys hold a hash so raw addresses never land in Redis.
func velocityKey(patientKey string) string {
	return "velocity:booking:" + compliance.HashPatientKey(patientKey)
}
