package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for meeting creation.
const (
	OutcomeCreated       = "created"
	OutcomeInvalid       = "invalid"
	OutcomeRateLimited   = "rate_limited"
	OutcomeAuthFailed    = "auth_failed"
	OutcomeProviderError = "provider_error"
)

// ConsultMetrics exposes counters, gauges and histograms for consultation
// booking. All methods are safe on a nil receiver.
type ConsultMetrics struct {
	meetingsTotal     *prometheus.CounterVec
	emailsTotal       *prometheus.CounterVec
	remindersSchedule *prometheus.CounterVec
	remindersFired    *prometheus.CounterVec
	remindersPending  prometheus.Gauge
	providerLatency   *prometheus.HistogramVec
}

func NewConsultMetrics(reg prometheus.Registerer) *ConsultMetrics {
	m := &ConsultMetrics{
		meetingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medirobot",
			Subsystem: "consult",
			Name:      "meetings_total",
			Help:      "Meeting creation requests by outcome",
		}, []string{"outcome"}),
		emailsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medirobot",
			Subsystem: "notify",
			Name:      "emails_total",
			Help:      "Patient emails by kind and status",
		}, []string{"kind", "status"}),
		remindersSchedule: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medirobot",
			Subsystem: "reminders",
			Name:      "schedule_total",
			Help:      "Reminder schedule requests by result",
		}, []string{"result"}),
		remindersFired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medirobot",
			Subsystem: "reminders",
			Name:      "fired_total",
			Help:      "Reminders fired by status",
		}, []string{"status"}),
		remindersPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "medirobot",
			Subsystem: "reminders",
			Name:      "pending",
			Help:      "Reminders waiting to fire",
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medirobot",
			Subsystem: "zoom",
			Name:      "request_latency_seconds",
			Help:      "Latency of Zoom API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.meetingsTotal, m.emailsTotal, m.remindersSchedule, m.remindersFired, m.remindersPending, m.providerLatency)
	return m
}

func (m *ConsultMetrics) ObserveMeeting(outcome string) {
	if m == nil {
		return
	}
	m.meetingsTotal.WithLabelValues(outcome).Inc()
}

func (m *ConsultMetrics) ObserveEmail(kind string, err error) {
	if m == nil {
		return
	}
	m.emailsTotal.WithLabelValues(kind, statusLabel(err)).Inc()
}

func (m *ConsultMetrics) ObserveReminderScheduled(created bool) {
	if m == nil {
		return
	}
	result := "duplicate"
	if created {
		result = "scheduled"
	}
	m.remindersSchedule.WithLabelValues(result).Inc()
}

func (m *ConsultMetrics) ObserveReminderFired(err error) {
	if m == nil {
		return
	}
	m.remindersFired.WithLabelValues(statusLabel(err)).Inc()
}

func (m *ConsultMetrics) SetRemindersPending(n int) {
	if m == nil {
		return
	}
	m.remindersPending.Set(float64(n))
}

func (m *ConsultMetrics) ObserveProviderLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(operation).Observe(seconds)
}

func statusLabel(err error) string {
	if err != nil {
		return "failed"
	}
	return "sent"
}
