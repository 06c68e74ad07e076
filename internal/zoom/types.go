package zoom

import (
	"encoding/json"
	"time"
)

// Token is a short-lived bearer token from the account_credentials grant.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope"`
}

// MeetingType values accepted by POST /users/{userId}/meetings.
const (
	MeetingTypeInstant   = 1
	MeetingTypeScheduled = 2
)

// MeetingRequest describes a consultation to create.
type MeetingRequest struct {
	Topic     string
	StartTime time.Time
	Duration  time.Duration
}

type meetingSettings struct {
	HostVideo        bool `json:"host_video"`
	ParticipantVideo bool `json:"participant_video"`
}

type createMeetingBody struct {
	Topic     string          `json:"topic"`
	Type      int             `json:"type"`
	StartTime string          `json:"start_time"`
	Duration  int             `json:"duration"`
	Timezone  string          `json:"timezone,omitempty"`
	Settings  meetingSettings `json:"settings"`
}

type meetingResponse struct {
	ID        json.Number `json:"id"`
	UUID      string      `json:"uuid"`
	Topic     string      `json:"topic"`
	StartTime string      `json:"start_time"`
	Duration  int         `json:"duration"`
	JoinURL   string      `json:"join_url"`
	StartURL  string      `json:"start_url"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Reason  string `json:"reason"`
}
