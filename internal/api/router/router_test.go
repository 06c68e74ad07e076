package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/medirobot/internal/consult"
	httpmiddleware "github.com/wolfman30/medirobot/internal/http/middleware"
	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/internal/reminders"
	"github.com/wolfman30/medirobot/internal/zoom"
	"github.com/wolfman30/medirobot/pkg/logging"
)

const testOrigin = "http://127.0.0.1:5500"

type stubProvider struct{}

func (stubProvider) FetchAccessToken(ctx context.Context) (zoom.Token, error) {
	return zoom.Token{AccessToken: "tok"}, nil
}

func (stubProvider) CreateMeeting(ctx context.Context, token zoom.Token, req zoom.MeetingRequest) (*meetings.Meeting, error) {
	return &meetings.Meeting{
		ID:            "42",
		JoinURL:       "https://zoom.us/j/42",
		StartURL:      "https://zoom.us/s/42",
		ScheduledTime: req.StartTime,
	}, nil
}

type testEnv struct {
	handler   http.Handler
	scheduler *reminders.Scheduler
}

func newTestRouter(t *testing.T, mutate func(*Config)) testEnv {
	t.Helper()

	logger := logging.Default()
	store := meetings.NewStore()
	scheduler := reminders.NewScheduler(nil, reminders.Options{}, logger)
	t.Cleanup(func() { scheduler.Stop() })

	svc, err := consult.NewService(consult.Deps{
		Provider:  stubProvider{},
		Store:     store,
		Reminders: scheduler,
	}, consult.Config{}, logger)
	require.NoError(t, err)

	cfg := &Config{
		Logger:             logger,
		ConsultHandler:     consult.NewHandler(svc, store, logger),
		RemindersHandler:   reminders.NewHandler(scheduler, logger),
		CORSAllowedOrigins: []string{testOrigin},
	}
	if mutate != nil {
		mutate(cfg)
	}
	return testEnv{handler: New(cfg), scheduler: scheduler}
}

func createMeeting(h http.Handler, email string) *httptest.ResponseRecorder {
	future := time.Now().Add(24 * time.Hour).UTC().Format(time.RFC3339)
	body := `{"patientEmail":"` + email + `","scheduledTime":"` + future + `"}`
	req := httptest.NewRequest(http.MethodPost, "/create-meeting", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", testOrigin)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func adminToken(t *testing.T, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "ops",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(5 * time.Minute)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestRouterBookingFlow(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/join-call", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = createMeeting(env.handler, "patient@example.com")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/start-call", nil))
	assert.Equal(t, http.StatusFound, rr.Code)
	assert.Equal(t, "https://zoom.us/s/42", rr.Header().Get("Location"))

	assert.Equal(t, 1, env.scheduler.PendingCount())
}

func TestRouterCORSPreflight(t *testing.T) {
	env := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/create-meeting", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, testOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterRateLimitsCreateMeeting(t *testing.T) {
	rl := httpmiddleware.NewRateLimiter(0.001, 1)
	t.Cleanup(rl.Close)
	env := newTestRouter(t, func(c *Config) { c.RateLimiter = rl })

	assert.Equal(t, http.StatusOK, createMeeting(env.handler, "a@example.com").Code)
	assert.Equal(t, http.StatusTooManyRequests, createMeeting(env.handler, "b@example.com").Code)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/join-call", nil))
	assert.Equal(t, http.StatusFound, rr.Code, "redirects are not rate limited")
}

func TestRouterAdminRoutesRequireSecret(t *testing.T) {
	env := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/reminders", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterAdminReminders(t *testing.T) {
	env := newTestRouter(t, func(c *Config) { c.AdminAuthSecret = "s3cret" })
	require.Equal(t, http.StatusOK, createMeeting(env.handler, "patient@example.com").Code)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/reminders", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/reminders", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "s3cret"))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 1, body.Count)

	req = httptest.NewRequest(http.MethodDelete, "/admin/reminders/patient@example.com", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t, "s3cret"))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, 0, env.scheduler.PendingCount())
}

func TestRouterMetricsEndpoint(t *testing.T) {
	env := newTestRouter(t, func(c *Config) {
		c.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics"))
		})
	})

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "# metrics", rr.Body.String())
}

func TestRouterServesStaticFrontend(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>Medi Robot</h1>"), 0o644))
	env := newTestRouter(t, func(c *Config) { c.StaticDir = dir })

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Medi Robot")

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Contains(t, rr.Body.String(), `"ok"`)
}
