package reminders

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/wolfman30/medirobot/pkg/logging"
)

// Handler provides admin endpoints for inspecting and cancelling reminders.
type Handler struct {
	scheduler *Scheduler
	logger    *logging.Logger
}

// NewHandler creates a reminders HTTP handler.
func NewHandler(scheduler *Scheduler, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{scheduler: scheduler, logger: logger}
}

// RegisterRoutes mounts reminder endpoints under a chi router.
// Expected to be mounted under /admin.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/reminders", h.listReminders)
	r.Delete("/reminders/{patientKey}", h.cancelReminder)
}

func (h *Handler) listReminders(w http.ResponseWriter, r *http.Request) {
	jobs := h.scheduler.Pending()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"reminders": jobs,
		"count":     len(jobs),
	})
}

func (h *Handler) cancelReminder(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "patientKey"))
	if err != nil || key == "" {
		http.Error(w, "invalid patient key", http.StatusBadRequest)
		return
	}

	if err := h.scheduler.Cancel(key); err != nil {
		if errors.Is(err, ErrNoPendingJob) {
			http.Error(w, "no pending reminder", http.StatusNotFound)
			return
		}
		h.logger.Error("reminders handler: cancel", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
