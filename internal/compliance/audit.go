// Package compliance keeps an append-only record of appointment lifecycle
// events. Patient identity is stored only as a SHA-256 hash of the patient key.
package compliance

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// AuditEventType represents the type of appointment event.
type AuditEventType string

const (
	EventMeetingCreated      AuditEventType = "meeting.created"
	EventConfirmationSent    AuditEventType = "confirmation.sent"
	EventConfirmationFailed  AuditEventType = "confirmation.failed"
	EventReminderScheduled   AuditEventType = "reminder.scheduled"
	EventReminderDuplicate   AuditEventType = "reminder.duplicate"
	EventReminderSent        AuditEventType = "reminder.sent"
	EventReminderFailed      AuditEventType = "reminder.failed"
	EventReminderCancelled   AuditEventType = "reminder.cancelled"
	EventBookingRateExceeded AuditEventType = "booking.rate_exceeded"
)

// AuditEvent represents an immutable audit record.
type AuditEvent struct {
	ID         string          `json:"id"`
	EventType  AuditEventType  `json:"event_type"`
	PatientKey string          `json:"-"`
	MeetingID  string          `json:"meeting_id,omitempty"`
	Details    json.RawMessage `json:"details,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// AuditDetails contains event-specific details.
type AuditDetails struct {
	AppointmentAt *time.Time `json:"appointment_at,omitempty"`
	FireAt        *time.Time `json:"fire_at,omitempty"`
	JobID         string     `json:"job_id,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// AuditService writes appointment audit events. A nil *AuditService, or one
// built without a database, accepts every call and records nothing.
type AuditService struct {
	db     *sql.DB
	logger *logging.Logger
}

// NewAuditService creates a new audit service.
func NewAuditService(db *sql.DB, logger *logging.Logger) *AuditService {
	if logger == nil {
		logger = logging.Default()
	}
	return &AuditService{db: db, logger: logger}
}

// LogEvent records an audit event.
func (s *AuditService) LogEvent(ctx context.Context, event AuditEvent) error {
	if s == nil || s.db == nil {
		return nil
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO appointment_audit_events (
			id, event_type, patient_hash, meeting_id, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		string(event.EventType),
		nullString(HashPatientKey(event.PatientKey)),
		nullString(event.MeetingID),
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("compliance: failed to log audit event: %w", err)
	}
	return nil
}

// Record logs an event and only logs a failure to write it. Callers on the
// request path use this so an audit outage never fails a booking.
func (s *AuditService) Record(ctx context.Context, eventType AuditEventType, patientKey, meetingID string, details AuditDetails) {
	if s == nil || s.db == nil {
		return
	}
	raw, err := json.Marshal(details)
	if err != nil {
		raw = nil
	}
	if err := s.LogEvent(ctx, AuditEvent{
		EventType:  eventType,
		PatientKey: patientKey,
		MeetingID:  meetingID,
		Details:    raw,
	}); err != nil {
		s.logger.Warn("compliance: audit write failed", "event_type", eventType, "error", err)
	}
}

// HashPatientKey returns the hex SHA-256 of a patient key, or "" for an empty key.
func HashPatientKey(key string) string {
	if key == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(raw json.RawMessage) any {
	if len(raw) == 0 || string(raw) == "{}" {
		return nil
	}
	return []byte(raw)
}
