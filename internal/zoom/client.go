// Package zoom talks to the Zoom REST API with a Server-to-Server OAuth app.
package zoom

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/pkg/logging"
)

var zoomTracer = otel.Tracer("medirobot.internal.zoom")

var (
	// ErrAuthFailed covers rejected credentials and failed token exchanges.
	ErrAuthFailed = errors.New("zoom: authentication failed")
	// ErrProviderFailed covers rejected or failed meeting API calls.
	ErrProviderFailed = errors.New("zoom: provider request failed")
)

// LatencyObserver receives the duration of each outbound provider call.
type LatencyObserver interface {
	ObserveProviderLatency(operation string, seconds float64)
}

// Client calls the Zoom OAuth and meetings endpoints.
type Client struct {
	oauthURL     string
	apiBaseURL   string
	clientID     string
	clientSecret string
	accountID    string
	httpClient   *http.Client
	latency      LatencyObserver
	logger       *logging.Logger
}

// Config holds configuration for the Zoom client
type Config struct {
	OAuthURL     string // e.g. "https://zoom.us/oauth/token"
	APIBaseURL   string // e.g. "https://api.zoom.us/v2"
	ClientID     string
	ClientSecret string
	AccountID    string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Latency      LatencyObserver
	Logger       *logging.Logger
}

// New creates a Zoom client. Credentials are not checked here; a missing
// value surfaces as ErrAuthFailed on the first token request.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.OAuthURL) == "" {
		return nil, fmt.Errorf("zoom: OAuthURL is required")
	}
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("zoom: APIBaseURL is required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Client{
		oauthURL:     cfg.OAuthURL,
		apiBaseURL:   strings.TrimSuffix(cfg.APIBaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		accountID:    cfg.AccountID,
		httpClient:   httpClient,
		latency:      cfg.Latency,
		logger:       logger,
	}, nil
}

// FetchAccessToken exchanges the account credentials for a bearer token.
// Tokens are not cached; every call performs a fresh exchange.
func (c *Client) FetchAccessToken(ctx context.Context) (Token, error) {
	ctx, span := zoomTracer.Start(ctx, "zoom.fetch_token", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()
	defer c.observe("fetch_token", start)

	tok, err := c.fetchAccessToken(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "token exchange failed")
		c.logger.Error("zoom: token exchange failed", "error", err)
		return Token{}, err
	}
	span.SetAttributes(attribute.Int("zoom.token.expires_in", tok.ExpiresIn))
	return tok, nil
}

func (c *Client) fetchAccessToken(ctx context.Context) (Token, error) {
	endpoint, err := url.Parse(c.oauthURL)
	if err != nil {
		return Token{}, fmt.Errorf("%w: parse oauth url: %v", ErrAuthFailed, err)
	}
	q := endpoint.Query()
	q.Set("grant_type", "account_credentials")
	q.Set("account_id", c.accountID)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), nil)
	if err != nil {
		return Token{}, fmt.Errorf("%w: create request: %v", ErrAuthFailed, err)
	}
	req.Header.Set("Authorization", "Basic "+basicCredentials(c.clientID, c.clientSecret))
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("%w: request: %v", ErrAuthFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Token{}, fmt.Errorf("%w: status %d: %s", ErrAuthFailed, resp.StatusCode, readAPIError(resp.Body))
	}

	var tok Token
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return Token{}, fmt.Errorf("%w: decode response: %v", ErrAuthFailed, err)
	}
	if tok.AccessToken == "" {
		return Token{}, fmt.Errorf("%w: empty access token", ErrAuthFailed)
	}
	return tok, nil
}

// CreateMeeting schedules a meeting for the token's user ("me") with host and
// participant video enabled.
func (c *Client) CreateMeeting(ctx context.Context, token Token, req MeetingRequest) (*meetings.Meeting, error) {
	ctx, span := zoomTracer.Start(ctx, "zoom.create_meeting", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	start := time.Now()
	defer c.observe("create_meeting", start)

	m, err := c.createMeeting(ctx, token, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create meeting failed")
		c.logger.Error("zoom: create meeting failed", "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.String("zoom.meeting_id", m.ID))
	c.logger.Info("zoom: meeting created", "meeting_id", m.ID, "start_time", m.ScheduledTime)
	return m, nil
}

func (c *Client) createMeeting(ctx context.Context, token Token, req MeetingRequest) (*meetings.Meeting, error) {
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrProviderFailed)
	}

	duration := int(req.Duration / time.Minute)
	if duration <= 0 {
		duration = 30
	}
	body := createMeetingBody{
		Topic:     req.Topic,
		Type:      MeetingTypeScheduled,
		StartTime: req.StartTime.UTC().Format("2006-01-02T15:04:05Z"),
		Duration:  duration,
		Settings: meetingSettings{
			HostVideo:        true,
			ParticipantVideo: true,
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrProviderFailed, err)
	}

	endpoint := c.apiBaseURL + "/users/me/meetings"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrProviderFailed, err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token.AccessToken)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: request: %v", ErrProviderFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrProviderFailed, resp.StatusCode, readAPIError(resp.Body))
	}

	var created meetingResponse
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(&created); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err)
	}
	if created.JoinURL == "" || created.StartURL == "" {
		return nil, fmt.Errorf("%w: response missing join/start url", ErrProviderFailed)
	}

	scheduled := req.StartTime.UTC()
	if created.StartTime != "" {
		if parsed, err := time.Parse(time.RFC3339, created.StartTime); err == nil {
			scheduled = parsed.UTC()
		}
	}
	topic := created.Topic
	if topic == "" {
		topic = req.Topic
	}

	return &meetings.Meeting{
		ID:            created.ID.String(),
		Topic:         topic,
		JoinURL:       created.JoinURL,
		StartURL:      created.StartURL,
		ScheduledTime: scheduled,
	}, nil
}

func (c *Client) observe(operation string, start time.Time) {
	if c.latency == nil {
		return
	}
	c.latency.ObserveProviderLatency(operation, time.Since(start).Seconds())
}

func basicCredentials(id, secret string) string {
	return base64.StdEncoding.EncodeToString([]byte(id + ":" + secret))
}

// readAPIError summarizes an error body without echoing arbitrarily large payloads.
func readAPIError(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, 4096))
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		switch {
		case apiErr.Message != "":
			return apiErr.Message
		case apiErr.Reason != "":
			return apiErr.Reason
		}
	}
	return strings.TrimSpace(string(raw))
}
