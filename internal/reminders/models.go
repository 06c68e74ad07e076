package reminders

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wolfman30/medirobot/internal/meetings"
)

// Job is a pending one-shot reminder for a single patient.
type Job struct {
	ID            uuid.UUID        `json:"id"`
	PatientKey    string           `json:"patient_key"`
	PatientEmail  string           `json:"-"`
	Meeting       meetings.Meeting `json:"meeting"`
	AppointmentAt time.Time        `json:"appointment_at"`
	FireAt        time.Time        `json:"fire_at"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Input contains what Schedule needs to register a reminder.
type Input struct {
	PatientEmail  string
	AppointmentAt time.Time
	Meeting       meetings.Meeting
}

// PatientKey normalizes an email address into the key reminders are tracked by.
func PatientKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
