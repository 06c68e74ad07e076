// Package reminders schedules one reminder email per patient ahead of an
// appointment. State is in-memory and lost on restart.
package reminders

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/medirobot/internal/compliance"
	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// DefaultLeadTime is how long before the appointment the reminder fires.
const DefaultLeadTime = 10 * time.Minute

// ErrNoPendingJob is returned when cancelling a key with nothing pending.
var ErrNoPendingJob = errors.New("reminders: no pending reminder")

var reminderTracer = otel.Tracer("medirobot.internal.reminders")

// ReminderSender delivers the reminder email.
type ReminderSender interface {
	SendReminder(ctx context.Context, to string, m meetings.Meeting) error
}

// Metrics receives scheduler outcomes. Implementations must be safe for
// concurrent use.
type Metrics interface {
	ObserveReminderScheduled(created bool)
	ObserveReminderFired(err error)
	SetRemindersPending(n int)
}

// Options tunes the scheduler. Zero values fall back to defaults.
type Options struct {
	LeadTime    time.Duration
	SendTimeout time.Duration
	Metrics     Metrics
	Audit       *compliance.AuditService

	// now and afterFunc are replaced in tests.
	now       func() time.Time
	afterFunc func(d time.Duration, f func()) stopper
}

type stopper interface {
	Stop() bool
}

type entry struct {
	job   Job
	timer stopper
}

// Scheduler keeps at most one pending reminder per patient key.
type Scheduler struct {
	sender      ReminderSender
	leadTime    time.Duration
	sendTimeout time.Duration
	metrics     Metrics
	audit       *compliance.AuditService
	now         func() time.Time
	afterFunc   func(d time.Duration, f func()) stopper
	logger      *logging.Logger

	mu      sync.Mutex
	pending map[string]*entry
	stopped bool
	wg      sync.WaitGroup
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(sender ReminderSender, opts Options, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if opts.LeadTime <= 0 {
		opts.LeadTime = DefaultLeadTime
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 30 * time.Second
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.afterFunc == nil {
		opts.afterFunc = func(d time.Duration, f func()) stopper { return time.AfterFunc(d, f) }
	}
	return &Scheduler{
		sender:      sender,
		leadTime:    opts.LeadTime,
		sendTimeout: opts.SendTimeout,
		metrics:     opts.Metrics,
		audit:       opts.Audit,
		now:         opts.now,
		afterFunc:   opts.afterFunc,
		logger:      logger,
		pending:     make(map[string]*entry),
	}
}

// LeadTime reports the configured offset before the appointment.
func (s *Scheduler) LeadTime() time.Duration {
	return s.leadTime
}

// Schedule registers a reminder at AppointmentAt minus the lead time. If the
// patient already has a pending reminder, nothing changes and the existing
// job is returned with false. A fire time already in the past fires at once.
func (s *Scheduler) Schedule(input Input) (*Job, bool) {
	key := PatientKey(input.PatientEmail)
	now := s.now()

	s.mu.Lock()
	if existing, ok := s.pending[key]; ok {
		job := existing.job
		s.mu.Unlock()

		s.logger.Info("reminders: reminder already pending, ignoring",
			"patient_key", key,
			"job_id", job.ID,
			"fire_at", job.FireAt,
		)
		s.observeScheduled(false)
		s.audit.Record(context.Background(), compliance.EventReminderDuplicate, key, input.Meeting.ID,
			compliance.AuditDetails{AppointmentAt: &input.AppointmentAt, JobID: job.ID.String()})
		return &job, false
	}
	if s.stopped {
		s.mu.Unlock()
		s.logger.Warn("reminders: scheduler stopped, reminder not scheduled", "patient_key", key)
		return nil, false
	}

	job := Job{
		ID:            uuid.New(),
		PatientKey:    key,
		PatientEmail:  input.PatientEmail,
		Meeting:       input.Meeting,
		AppointmentAt: input.AppointmentAt,
		FireAt:        input.AppointmentAt.Add(-s.leadTime),
		CreatedAt:     now,
	}
	delay := job.FireAt.Sub(now)
	if delay < 0 {
		delay = 0
	}

	e := &entry{job: job}
	s.pending[key] = e
	// timer is assigned under the lock so Cancel and Stop never see it nil.
	e.timer = s.afterFunc(delay, func() { s.fire(e) })
	count := len(s.pending)
	s.mu.Unlock()

	s.logger.Info("reminders: reminder scheduled",
		"patient_key", key,
		"job_id", job.ID,
		"meeting_id", job.Meeting.ID,
		"fire_at", job.FireAt,
		"delay", delay.String(),
	)
	s.observeScheduled(true)
	s.setPending(count)
	s.audit.Record(context.Background(), compliance.EventReminderScheduled, key, job.Meeting.ID,
		compliance.AuditDetails{AppointmentAt: &job.AppointmentAt, FireAt: &job.FireAt, JobID: job.ID.String()})

	return &job, true
}

func (s *Scheduler) fire(e *entry) {
	job := e.job

	s.mu.Lock()
	if cur, ok := s.pending[job.PatientKey]; s.stopped || !ok || cur != e {
		// Cancelled or stopped after the timer had already fired.
		s.mu.Unlock()
		s.logger.Info("reminders: reminder no longer pending, skipping", "patient_key", job.PatientKey, "job_id", job.ID)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()
	ctx, span := reminderTracer.Start(ctx, "reminders.fire")
	span.SetAttributes(
		attribute.String("reminder.job_id", job.ID.String()),
		attribute.String("meeting.id", job.Meeting.ID),
	)
	defer span.End()

	var err error
	if s.sender == nil {
		err = errors.New("reminders: no sender configured")
	} else {
		err = s.sender.SendReminder(ctx, job.PatientEmail, job.Meeting)
	}

	s.mu.Lock()
	if cur, ok := s.pending[job.PatientKey]; ok && cur == e {
		delete(s.pending, job.PatientKey)
	}
	count := len(s.pending)
	s.mu.Unlock()
	s.setPending(count)

	if s.metrics != nil {
		s.metrics.ObserveReminderFired(err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reminder send failed")
		s.logger.Error("reminders: reminder send failed", "patient_key", job.PatientKey, "job_id", job.ID, "error", err)
		s.audit.Record(ctx, compliance.EventReminderFailed, job.PatientKey, job.Meeting.ID,
			compliance.AuditDetails{JobID: job.ID.String(), Error: err.Error()})
		return
	}
	s.logger.Info("reminders: reminder sent", "patient_key", job.PatientKey, "job_id", job.ID)
	s.audit.Record(ctx, compliance.EventReminderSent, job.PatientKey, job.Meeting.ID,
		compliance.AuditDetails{JobID: job.ID.String()})
}

// Cancel stops and removes the pending reminder for a patient key or email.
func (s *Scheduler) Cancel(patientKey string) error {
	key := PatientKey(patientKey)

	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok {
		s.mu.Unlock()
		return ErrNoPendingJob
	}
	e.timer.Stop()
	delete(s.pending, key)
	count := len(s.pending)
	s.mu.Unlock()

	s.setPending(count)
	s.logger.Info("reminders: reminder cancelled", "patient_key", key, "job_id", e.job.ID)
	s.audit.Record(context.Background(), compliance.EventReminderCancelled, key, e.job.Meeting.ID,
		compliance.AuditDetails{JobID: e.job.ID.String()})
	return nil
}

// Pending returns a snapshot of pending jobs ordered by fire time.
func (s *Scheduler) Pending() []Job {
	s.mu.Lock()
	jobs := make([]Job, 0, len(s.pending))
	for _, e := range s.pending {
		jobs = append(jobs, e.job)
	}
	s.mu.Unlock()

	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].FireAt.Equal(jobs[j].FireAt) {
			return jobs[i].PatientKey < jobs[j].PatientKey
		}
		return jobs[i].FireAt.Before(jobs[j].FireAt)
	})
	return jobs
}

// PendingCount returns the number of pending jobs.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer and refuses new work. It waits for
// reminders already being sent and returns how many were dropped.
func (s *Scheduler) Stop() int {
	s.mu.Lock()
	s.stopped = true
	dropped := 0
	for key, e := range s.pending {
		if e.timer.Stop() {
			dropped++
		}
		delete(s.pending, key)
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.setPending(0)
	if dropped > 0 {
		s.logger.Warn("reminders: scheduler stopped with pending reminders", "dropped", dropped)
	}
	return dropped
}

func (s *Scheduler) observeScheduled(created bool) {
	if s.metrics != nil {
		s.metrics.ObserveReminderScheduled(created)
	}
}

func (s *Scheduler) setPending(n int) {
	if s.metrics != nil {
		s.metrics.SetRemindersPending(n)
	}
}
