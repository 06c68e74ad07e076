package consult

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/wolfman30/medirobot/internal/meetings"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// NoMeetingMessage is the plain-text body for start/join before any booking.
const NoMeetingMessage = "No meeting found. Please schedule a meeting first."

const maxRequestBody = 1 << 20

// Handler serves the booking and call redirect endpoints.
type Handler struct {
	service *Service
	store   *meetings.Store
	logger  *logging.Logger
}

// NewHandler creates a consultation HTTP handler.
func NewHandler(service *Service, store *meetings.Store, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, store: store, logger: logger}
}

// CreateMeeting handles POST /create-meeting.
func (h *Handler) CreateMeeting(w http.ResponseWriter, r *http.Request) {
	var req CreateMeetingRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body must be JSON with patientEmail and scheduledTime")
		return
	}

	result, err := h.service.CreateMeeting(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			writeJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrTooManyBookings):
			writeJSONError(w, http.StatusTooManyRequests, "too many bookings for this patient, try again later")
		default:
			h.logger.Error("consult: create meeting failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "failed to create meeting")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// StartCall handles GET /start-call by redirecting the host to the latest meeting.
func (h *Handler) StartCall(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, func(m meetings.Meeting) string { return m.StartURL })
}

// JoinCall handles GET /join-call by redirecting the patient to the latest meeting.
func (h *Handler) JoinCall(w http.ResponseWriter, r *http.Request) {
	h.redirect(w, r, func(m meetings.Meeting) string { return m.JoinURL })
}

func (h *Handler) redirect(w http.ResponseWriter, r *http.Request, pick func(meetings.Meeting) string) {
	m, err := h.store.Current()
	if err != nil || pick(m) == "" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, NoMeetingMessage)
		return
	}
	http.Redirect(w, r, pick(m), http.StatusFound)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
