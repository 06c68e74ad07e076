package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medirobot/internal/meetings"
)

type captureSender struct {
	msgs        []EmailMessage
	err         error
	hadDeadline bool
}

func (c *captureSender) Send(ctx context.Context, msg EmailMessage) error {
	_, c.hadDeadline = ctx.Deadline()
	c.msgs = append(c.msgs, msg)
	return c.err
}

type captureObserver struct {
	kinds []string
	errs  []error
}

func (c *captureObserver) ObserveEmail(kind string, err error) {
	c.kinds = append(c.kinds, kind)
	c.errs = append(c.errs, err)
}

var testMeeting = meetings.Meeting{
	ID:            "85746065432",
	JoinURL:       "https://zoom.us/j/85746065432",
	StartURL:      "https://zoom.us/s/85746065432",
	ScheduledTime: time.Date(2026, 11, 3, 15, 30, 0, 0, time.UTC),
}

func TestSendConfirmation(t *testing.T) {
	sender := &captureSender{}
	obs := &captureObserver{}
	svc := NewService(sender, ServiceConfig{Timeout: time.Second, Observer: obs}, nil)

	err := svc.SendConfirmation(context.Background(), "patient@example.com", testMeeting, testMeeting.ScheduledTime)
	require.NoError(t, err)
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.Equal(t, "patient@example.com", msg.To)
	assert.Equal(t, ConfirmationSubject, msg.Subject)
	assert.Contains(t, msg.Body, "Your video consultation is scheduled.")
	assert.Contains(t, msg.Body, "Join URL: https://zoom.us/j/85746065432")
	assert.Contains(t, msg.Body, "Appointment Time: Tuesday, November 3, 2026 at 3:30 PM UTC")
	assert.NotContains(t, msg.Body, testMeeting.StartURL)
	assert.True(t, sender.hadDeadline)

	assert.Equal(t, []string{KindConfirmation}, obs.kinds)
	assert.NoError(t, obs.errs[0])
}

func TestSendConfirmationUsesLocation(t *testing.T) {
	sender := &captureSender{}
	loc := time.FixedZone("EST", -5*3600)
	svc := NewService(sender, ServiceConfig{Location: loc}, nil)

	require.NoError(t, svc.SendConfirmation(context.Background(), "patient@example.com", testMeeting, testMeeting.ScheduledTime))
	assert.Contains(t, sender.msgs[0].Body, "10:30 AM EST")
	assert.False(t, sender.hadDeadline)
}

func TestSendReminder(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, ServiceConfig{}, nil)

	require.NoError(t, svc.SendReminder(context.Background(), "patient@example.com", testMeeting))
	require.Len(t, sender.msgs, 1)

	msg := sender.msgs[0]
	assert.Equal(t, ReminderSubject, msg.Subject)
	assert.Contains(t, msg.Body, "starts in 10 minutes")
	assert.Contains(t, msg.Body, testMeeting.JoinURL)
}

func TestSendWrapsTransportErrors(t *testing.T) {
	sender := &captureSender{err: errors.New("connection refused")}
	obs := &captureObserver{}
	svc := NewService(sender, ServiceConfig{Observer: obs}, nil)

	err := svc.SendReminder(context.Background(), "patient@example.com", testMeeting)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, []string{KindReminder}, obs.kinds)
	assert.Error(t, obs.errs[0])
}

func TestSendKeepsDeliveryErrors(t *testing.T) {
	inner := errors.Join(ErrDeliveryFailed, errors.New("sendgrid returned status 401"))
	svc := NewService(&captureSender{err: inner}, ServiceConfig{}, nil)

	err := svc.SendConfirmation(context.Background(), "patient@example.com", testMeeting, time.Now())
	assert.Same(t, inner, err)
}

func TestSendWithoutTransport(t *testing.T) {
	svc := NewService(nil, ServiceConfig{}, nil)

	err := svc.SendConfirmation(context.Background(), "patient@example.com", testMeeting, time.Now())
	assert.ErrorIs(t, err, ErrDeliveryFailed)
}

func TestSendRejectsEmptyRecipient(t *testing.T) {
	sender := &captureSender{}
	svc := NewService(sender, ServiceConfig{}, nil)

	err := svc.SendReminder(context.Background(), "  ", testMeeting)
	assert.ErrorIs(t, err, ErrDeliveryFailed)
	assert.Empty(t, sender.msgs)
}

func TestHumanizeLead(t *testing.T) {
	assert.Equal(t, "10 minutes", humanizeLead(10*time.Minute))
	assert.Equal(t, "1 minute", humanizeLead(time.Minute))
	assert.Equal(t, "90 minutes", humanizeLead(90*time.Minute))
}
