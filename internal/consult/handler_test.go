package consult

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medirobot/internal/zoom"
)

func newTestHandler(t *testing.T) (*Handler, *fixture) {
	t.Helper()
	f := newFixture(t)
	return NewHandler(f.service, f.store, nil), f
}

func postCreate(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/create-meeting", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.CreateMeeting(rec, req)
	return rec
}

func TestHandlerCreateMeeting(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postCreate(h, `{"patientEmail":"patient@example.com","scheduledTime":"2026-11-03T15:30:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "1001", body["meeting_id"])
	assert.Equal(t, "https://zoom.us/j/1001", body["join_url"])
	assert.Equal(t, "https://zoom.us/s/1001", body["start_url"])
	assert.Equal(t, true, body["confirmation_sent"])
	assert.Equal(t, true, body["reminder_scheduled"])
	assert.NotContains(t, body, "confirmation_error")
}

func TestHandlerCreateMeetingValidation(t *testing.T) {
	h, f := newTestHandler(t)

	rec := postCreate(h, `{"patientEmail":"patient@example.com"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "scheduledTime")
	assert.Zero(t, f.provider.tokenCalls)

	rec = postCreate(h, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.provider.tokenCalls)
}

func TestHandlerCreateMeetingProviderFailure(t *testing.T) {
	h, f := newTestHandler(t)
	f.provider.createErr = fmt.Errorf("%w: status 500: secret detail", zoom.ErrProviderFailed)

	rec := postCreate(h, `{"patientEmail":"patient@example.com","scheduledTime":"2026-11-03T15:30:00Z"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to create meeting"}`, rec.Body.String())
}

func TestHandlerCreateMeetingTooManyBookings(t *testing.T) {
	h, f := newTestHandler(t)
	f.service.deps.Limiter = &fakeLimiter{allowed: false}

	rec := postCreate(h, `{"patientEmail":"patient@example.com","scheduledTime":"2026-11-03T15:30:00Z"}`)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandlerCallRedirects(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, tc := range []struct {
		path    string
		handler http.HandlerFunc
	}{
		{"/start-call", h.StartCall},
		{"/join-call", h.JoinCall},
	} {
		rec := httptest.NewRecorder()
		tc.handler(rec, httptest.NewRequest(http.MethodGet, tc.path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.path)
		assert.Equal(t, NoMeetingMessage, rec.Body.String(), tc.path)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain", tc.path)
	}

	rec := postCreate(h, `{"patientEmail":"patient@example.com","scheduledTime":"2026-11-03T15:30:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.StartCall(rec, httptest.NewRequest(http.MethodGet, "/start-call", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://zoom.us/s/1001", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	h.JoinCall(rec, httptest.NewRequest(http.MethodGet, "/join-call", nil))
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://zoom.us/j/1001", rec.Header().Get("Location"))
}

func TestHandlerRedirectFollowsLatestMeeting(t *testing.T) {
	h, _ := newTestHandler(t)

	postCreate(h, `{"patientEmail":"a@example.com","scheduledTime":"2026-11-03T15:30:00Z"}`)
	postCreate(h, `{"patientEmail":"b@example.com","scheduledTime":"2026-11-03T16:30:00Z"}`)

	rec := httptest.NewRecorder()
	h.JoinCall(rec, httptest.NewRequest(http.MethodGet, "/join-call", nil))
	assert.Equal(t, "https://zoom.us/j/1002", rec.Header().Get("Location"))
}
