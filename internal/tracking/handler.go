package tracking

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/klaviyo-webflow/internal/klaviyo"
	"github.com/ignite/klaviyo-webflow/internal/pkg/httputil"
	"github.com/ignite/klaviyo-webflow/internal/pkg/logger"
)

const maxBeaconBytes = 64 << 10

// beacon is the body the served script posts when it tracks through the host.
type beacon struct {
	Event       string                 `json:"event"`
	Properties  map[string]interface{} `json:"properties"`
	APIKey      string                 `json:"api_key"`
	AnonymousID string                 `json:"anonymous_id"`
}

// Handler accepts tracking beacons and hands them to a klaviyo.Tracker.
type Handler struct {
	tracker klaviyo.Tracker
	log     *logger.Entry
}

func NewHandler(tracker klaviyo.Tracker) *Handler {
	return &Handler{tracker: tracker, log: logger.Component("tracking")}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/events", h.HandleEvent)
	r.Get("/health", h.HandleHealth)
	return r
}

// HandleEvent answers 202 once the event is handed off; delivery is
// best-effort.
func (h *Handler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	var b beacon
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBeaconBytes)).Decode(&b); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid event body")
		return
	}
	b.Event = strings.TrimSpace(b.Event)
	if b.Event == "" || b.APIKey == "" {
		httputil.Error(w, http.StatusBadRequest, "event and api_key are required")
		return
	}

	err := h.tracker.Track(r.Context(), klaviyo.Event{
		Name:        b.Event,
		Properties:  b.Properties,
		APIKey:      b.APIKey,
		AnonymousID: b.AnonymousID,
	})
	if err != nil {
		h.log.Error("error accepting tracking event", "event", b.Event, "ip", realIP(r), "error", err)
		httputil.Error(w, http.StatusInternalServerError, "event not accepted")
		return
	}

	h.log.Debug("tracking event accepted", "event", b.Event, "ip", realIP(r))
	httputil.JSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return xff
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
