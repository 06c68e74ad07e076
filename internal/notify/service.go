package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/pkg/logging"
)

const (
	ConfirmationSubject = "Appointment Scheduled - Medi Robot"
	ReminderSubject     = "Appointment Reminder - Medi Robot"
)

// Kinds of patient email, used as metric and audit labels.
const (
	KindConfirmation = "confirmation"
	KindReminder     = "reminder"
)

// DeliveryObserver records the outcome of each patient email.
type DeliveryObserver interface {
	ObserveEmail(kind string, err error)
}

// ServiceConfig controls message formatting and per-send limits.
type ServiceConfig struct {
	// Location renders appointment times; UTC when nil.
	Location *time.Location
	// LeadTime is quoted in the reminder body.
	LeadTime time.Duration
	// Timeout bounds a single transport call; zero disables it.
	Timeout  time.Duration
	Observer DeliveryObserver
}

// Service formats patient emails and hands them to the configured transport.
type Service struct {
	email    EmailSender
	loc      *time.Location
	leadTime time.Duration
	timeout  time.Duration
	observer DeliveryObserver
	logger   *logging.Logger
}

// NewService creates a notification service.
func NewService(email EmailSender, cfg ServiceConfig, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	lead := cfg.LeadTime
	if lead <= 0 {
		lead = 10 * time.Minute
	}
	return &Service{
		email:    email,
		loc:      loc,
		leadTime: lead,
		timeout:  cfg.Timeout,
		observer: cfg.Observer,
		logger:   logger,
	}
}

// SendConfirmation emails the join link and appointment time right after booking.
func (s *Service) SendConfirmation(ctx context.Context, to string, m meetings.Meeting, at time.Time) error {
	body := fmt.Sprintf("Your video consultation is scheduled.\nJoin URL: %s\nAppointment Time: %s",
		m.JoinURL, s.formatTime(at))
	return s.deliver(ctx, KindConfirmation, EmailMessage{
		To:      to,
		Subject: ConfirmationSubject,
		Body:    body,
	})
}

// SendReminder emails the join link shortly before the appointment.
func (s *Service) SendReminder(ctx context.Context, to string, m meetings.Meeting) error {
	body := fmt.Sprintf("Your video consultation starts in %s.\nJoin URL: %s\nAppointment Time: %s",
		humanizeLead(s.leadTime), m.JoinURL, s.formatTime(m.ScheduledTime))
	return s.deliver(ctx, KindReminder, EmailMessage{
		To:      to,
		Subject: ReminderSubject,
		Body:    body,
	})
}

func (s *Service) deliver(ctx context.Context, kind string, msg EmailMessage) error {
	err := s.send(ctx, msg)
	if s.observer != nil {
		s.observer.ObserveEmail(kind, err)
	}
	if err != nil {
		s.logger.Warn("notify: patient email failed", "kind", kind, "to", msg.To, "error", err)
		return err
	}
	s.logger.Info("notify: patient email sent", "kind", kind, "to", msg.To)
	return nil
}

func (s *Service) send(ctx context.Context, msg EmailMessage) error {
	if s.email == nil {
		return fmt.Errorf("%w: no email transport configured", ErrDeliveryFailed)
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("%w: empty recipient", ErrDeliveryFailed)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	if err := s.email.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrDeliveryFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	return nil
}

func (s *Service) formatTime(t time.Time) string {
	if t.IsZero() {
		return "unspecified"
	}
	return t.In(s.loc).Format("Monday, January 2, 2006 at 3:04 PM MST")
}

func humanizeLead(d time.Duration) string {
	mins := int(d.Round(time.Minute) / time.Minute)
	if mins == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", mins)
}
