// Package consult books video consultations: it creates the provider meeting,
// records it as the latest meeting, emails the patient and schedules a
// reminder.
package consult

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medirobot/internal/compliance"
	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/internal/observability/metrics"
	"github.com/wolfman30/medirobot/internal/reminders"
	"github.com/wolfman30/medirobot/internal/zoom"
	"github.com/wolfman30/medirobot/pkg/logging"
)

var consultTracer = otel.Tracer("medirobot.internal.consult")

// Accepted scheduledTime layouts. Layouts without an offset are read in the
// configured appointment timezone.
var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// MeetingProvider creates meetings at the video provider.
type MeetingProvider interface {
	FetchAccessToken(ctx context.Context) (zoom.Token, error)
	CreateMeeting(ctx context.Context, token zoom.Token, req zoom.MeetingRequest) (*meetings.Meeting, error)
}

// ConfirmationSender emails the booking confirmation.
type ConfirmationSender interface {
	SendConfirmation(ctx context.Context, to string, m meetings.Meeting, at time.Time) error
}

// ReminderScheduler registers the pre-appointment reminder.
type ReminderScheduler interface {
	Schedule(input reminders.Input) (*reminders.Job, bool)
}

// BookingLimiter enforces per-patient booking velocity.
type BookingLimiter interface {
	CheckBooking(ctx context.Context, patientKey string) (*VelocityResult, error)
}

// MeetingMetrics records booking outcomes.
type MeetingMetrics interface {
	ObserveMeeting(outcome string)
}

// Config holds meeting defaults.
type Config struct {
	Topic    string
	Duration time.Duration
	Location *time.Location
}

// Deps are the collaborators of Service. Limiter, Metrics and Audit are optional.
type Deps struct {
	Provider  MeetingProvider
	Store     *meetings.Store
	Notifier  ConfirmationSender
	Reminders ReminderScheduler
	Limiter   BookingLimiter
	Metrics   MeetingMetrics
	Audit     *compliance.AuditService
}

// CreateMeetingRequest is the body of POST /create-meeting.
type CreateMeetingRequest struct {
	PatientEmail  string `json:"patientEmail"`
	ScheduledTime string `json:"scheduledTime"`
}

// CreateMeetingResult reports the created meeting and which follow-ups succeeded.
type CreateMeetingResult struct {
	MeetingID         string     `json:"meeting_id"`
	JoinURL           string     `json:"join_url"`
	StartURL          string     `json:"start_url"`
	ConfirmationSent  bool       `json:"confirmation_sent"`
	ConfirmationError string     `json:"confirmation_error,omitempty"`
	ReminderAt        *time.Time `json:"reminder_at,omitempty"`
	ReminderScheduled bool       `json:"reminder_scheduled"`
}

// Service orchestrates consultation booking.
type Service struct {
	deps   Deps
	cfg    Config
	logger *logging.Logger
}

// NewService creates a consultation service.
func NewService(deps Deps, cfg Config, logger *logging.Logger) (*Service, error) {
	if deps.Provider == nil {
		return nil, errors.New("consult: meeting provider is required")
	}
	if deps.Store == nil {
		return nil, errors.New("consult: meeting store is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		cfg.Topic = "Doctor Consultation"
	}
	if cfg.Duration <= 0 {
		cfg.Duration = 30 * time.Minute
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{deps: deps, cfg: cfg, logger: logger}, nil
}

// CreateMeeting books a consultation. Validation and velocity failures
// return before any provider call. Once the provider meeting exists, email
// and reminder problems are reported in the result rather than as an error.
func (s *Service) CreateMeeting(ctx context.Context, req CreateMeetingRequest) (*CreateMeetingResult, error) {
	ctx, span := consultTracer.Start(ctx, "consult.create_meeting")
	defer span.End()

	email, at, err := s.validate(req)
	if err != nil {
		s.observe(metrics.OutcomeInvalid)
		span.SetStatus(codes.Error, "invalid request")
		return nil, err
	}
	key := reminders.PatientKey(email)

	if s.deps.Limiter != nil {
		res, err := s.deps.Limiter.CheckBooking(ctx, key)
		if err == nil && res != nil && !res.Allowed {
			s.observe(metrics.OutcomeRateLimited)
			s.deps.Audit.Record(ctx, compliance.EventBookingRateExceeded, key, "", compliance.AuditDetails{AppointmentAt: &at})
			span.SetStatus(codes.Error, "booking velocity exceeded")
			return nil, fmt.Errorf("%w: %s", ErrTooManyBookings, res.Message)
		}
	}

	token, err := s.deps.Provider.FetchAccessToken(ctx)
	if err != nil {
		s.observe(metrics.OutcomeAuthFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		return nil, fmt.Errorf("consult: fetch token: %w", err)
	}

	m, err := s.deps.Provider.CreateMeeting(ctx, token, zoom.MeetingRequest{
		Topic:     s.cfg.Topic,
		StartTime: at,
		Duration:  s.cfg.Duration,
	})
	if err != nil {
		s.observe(metrics.OutcomeProviderError)
		span.RecordError(err)
		span.SetStatus(codes.Error, "create meeting failed")
		return nil, fmt.Errorf("consult: create meeting: %w", err)
	}
	m.PatientKey = key
	if m.ScheduledTime.IsZero() {
		m.ScheduledTime = at
	}
	s.deps.Store.Record(*m)
	s.observe(metrics.OutcomeCreated)
	span.SetAttributes(attribute.String("meeting.id", m.ID))
	s.deps.Audit.Record(ctx, compliance.EventMeetingCreated, key, m.ID, compliance.AuditDetails{AppointmentAt: &at})
	s.logger.Info("consult: meeting created", "meeting_id", m.ID, "patient_key", key, "scheduled_time", at)

	result := &CreateMeetingResult{
		MeetingID: m.ID,
		JoinURL:   m.JoinURL,
		StartURL:  m.StartURL,
	}

	if s.deps.Notifier != nil {
		if err := s.deps.Notifier.SendConfirmation(ctx, email, *m, at); err != nil {
			result.ConfirmationError = err.Error()
			s.logger.Warn("consult: confirmation email failed", "meeting_id", m.ID, "patient_key", key, "error", err)
			s.deps.Audit.Record(ctx, compliance.EventConfirmationFailed, key, m.ID, compliance.AuditDetails{Error: err.Error()})
		} else {
			result.ConfirmationSent = true
			s.deps.Audit.Record(ctx, compliance.EventConfirmationSent, key, m.ID, compliance.AuditDetails{})
		}
	} else {
		result.ConfirmationError = "email not configured"
	}

	if s.deps.Reminders != nil {
		job, created := s.deps.Reminders.Schedule(reminders.Input{
			PatientEmail:  email,
			AppointmentAt: at,
			Meeting:       *m,
		})
		if job != nil {
			fireAt := job.FireAt
			result.ReminderAt = &fireAt
		}
		result.ReminderScheduled = created
	}

	return result, nil
}

func (s *Service) validate(req CreateMeetingRequest) (string, time.Time, error) {
	rawEmail := strings.TrimSpace(req.PatientEmail)
	rawTime := strings.TrimSpace(req.ScheduledTime)

	var missing []string
	if rawEmail == "" {
		missing = append(missing, "patientEmail")
	}
	if rawTime == "" {
		missing = append(missing, "scheduledTime")
	}
	if len(missing) > 0 {
		return "", time.Time{}, fmt.Errorf("%w: %s required", ErrValidation, strings.Join(missing, " and "))
	}

	addr, err := mail.ParseAddress(rawEmail)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: patientEmail is not a valid email address", ErrValidation)
	}

	at, err := parseScheduledTime(rawTime, s.cfg.Location)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: scheduledTime must be an ISO 8601 date-time", ErrValidation)
	}
	return addr.Address, at, nil
}

func parseScheduledTime(v string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.ParseInLocation(layout, v, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func (s *Service) observe(outcome string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveMeeting(outcome)
	}
}
