package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/wolfman30/portfolio-bff/internal/appointments"
	"github.com/wolfman30/portfolio-bff/internal/progress"
	"github.com/wolfman30/portfolio-bff/pkg/logging"
)

// MaxListLimit caps the page size of the appointments listing.
const MaxListLimit = 500

type progressReader interface {
	Enabled() bool
	Topic() string
	Snapshot(ctx context.Context) ([]progress.PartitionProgress, error)
}

// AdminAppointmentsHandler serves the staff read views over ingested appointment events.
type AdminAppointmentsHandler struct {
	store    appointments.Store
	progress progressReader
	logger   *logging.Logger
}

func NewAdminAppointmentsHandler(store appointments.Store, tracker progressReader, logger *logging.Logger) *AdminAppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminAppointmentsHandler{store: store, progress: tracker, logger: logger}
}

// AppointmentEventResponse is one stored event as exposed to the portfolio frontend.
type AppointmentEventResponse struct {
	ID              int64     `json:"id"`
	EventID         string    `json:"eventId"`
	EventType       string    `json:"eventType"`
	OccurredAt      time.Time `json:"occurredAt"`
	AppointmentID   string    `json:"appointmentId"`
	UserID          string    `json:"userId"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
	DurationMinutes int       `json:"durationMinutes"`
	Email           string    `json:"email"`
	PhoneE164       string    `json:"phoneE164"`
	NotifyEmail     bool      `json:"notifyEmail"`
	NotifySMS       bool      `json:"notifySms"`
	KafkaTopic      string    `json:"kafkaTopic"`
	KafkaPartition  int32     `json:"kafkaPartition"`
	KafkaOffset     int64     `json:"kafkaOffset"`
	ReceivedAt      time.Time `json:"receivedAt"`
}

type ListAppointmentsResponse struct {
	Appointments []AppointmentEventResponse `json:"appointments"`
}

// ConsumerStatusResponse reports per-partition consumer progress.
type ConsumerStatusResponse struct {
	Enabled    bool                         `json:"enabled"`
	Topic      string                       `json:"topic,omitempty"`
	Partitions []progress.PartitionProgress `json:"partitions"`
}

// ListAppointments handles GET /admin/appointments?limit=N.
func (h *AdminAppointmentsHandler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	limit := appointments.DefaultListLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, MaxListLimit)
	}

	records, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to list appointment events", "error", err, "limit", limit)
		writeJSONError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	resp := ListAppointmentsResponse{Appointments: make([]AppointmentEventResponse, 0, len(records))}
	for _, rec := range records {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(rec))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ConsumerStatus handles GET /admin/appointments/consumer-status.
func (h *AdminAppointmentsHandler) ConsumerStatus(w http.ResponseWriter, r *http.Request) {
	if h.progress == nil || !h.progress.Enabled() {
		writeJSON(w, http.StatusOK, ConsumerStatusResponse{Partitions: []progress.PartitionProgress{}})
		return
	}
	partitions, err := h.progress.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("failed to read consumer progress", "error", err)
		writeJSONError(w, http.StatusServiceUnavailable, "consumer progress unavailable")
		return
	}
	if partitions == nil {
		partitions = []progress.PartitionProgress{}
	}
	writeJSON(w, http.StatusOK, ConsumerStatusResponse{
		Enabled:    true,
		Topic:      h.progress.Topic(),
		Partitions: partitions,
	})
}

func toAppointmentResponse(rec appointments.StoredRecord) AppointmentEventResponse {
	return AppointmentEventResponse{
		ID:              rec.ID,
		EventID:         rec.EventID,
		EventType:       rec.EventType,
		OccurredAt:      rec.OccurredAt.UTC(),
		AppointmentID:   rec.AppointmentID,
		UserID:          rec.UserID,
		StartTime:       rec.StartTime.UTC(),
		EndTime:         rec.EndTime.UTC(),
		DurationMinutes: rec.DurationMinutes,
		Email:           rec.Email,
		PhoneE164:       rec.PhoneE164,
		NotifyEmail:     rec.NotifyEmail,
		NotifySMS:       rec.NotifySMS,
		KafkaTopic:      rec.SourceTopic,
		KafkaPartition:  rec.SourcePartition,
		KafkaOffset:     rec.SourceOffset,
		ReceivedAt:      rec.ReceivedAt.UTC(),
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
