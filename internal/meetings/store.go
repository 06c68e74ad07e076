// Package meetings holds the video-consultation meeting record and the
// single-slot store that start/join redirects read from.
package meetings

import (
	"errors"
	"sync"
	"time"
)

// ErrNoMeeting is returned when no meeting has been recorded since startup.
var ErrNoMeeting = errors.New("meetings: no meeting found")

// Meeting is a consultation session created at the video provider.
type Meeting struct {
	ID            string    `json:"id"`
	Topic         string    `json:"topic,omitempty"`
	JoinURL       string    `json:"join_url"`
	StartURL      string    `json:"start_url"`
	ScheduledTime time.Time `json:"scheduled_time"`
	PatientKey    string    `json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// Store keeps the most recently created meeting. It is a single cell, not a
// history: every Record replaces the previous value.
type Store struct {
	mu      sync.RWMutex
	current *Meeting
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{}
}

// Record overwrites the stored meeting. Last write wins.
func (s *Store) Record(m Meeting) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = &m
}

// Current returns a copy of the stored meeting or ErrNoMeeting.
func (s *Store) Current() (Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Meeting{}, ErrNoMeeting
	}
	return *s.current, nil
}
