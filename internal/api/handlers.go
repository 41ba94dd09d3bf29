package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"shhe-backend/internal/models"
)

// StateReader exposes the ingestion state to collaborators
type StateReader interface {
	GetLatestRecord() (models.ClassifiedRecord, bool)
	GetLastStatus() string
}

// LogSource streams a consistent snapshot of the record log
type LogSource interface {
	CopyTo(w io.Writer) (int64, error)
	Path() string
}

// Scheduler manages medicine reminders
type Scheduler interface {
	Add(medicine string, datetimes []string) ([]models.ScheduleEntry, error)
	List() []models.ScheduleEntry
}

// Handler serves the collaborator HTTP surface
type Handler struct {
	state     StateReader
	log       LogSource
	scheduler Scheduler
	healthy   func() bool
	logger    *slog.Logger
}

// NewHandler creates an API handler. healthy may be nil.
func NewHandler(state StateReader, log LogSource, scheduler Scheduler, healthy func() bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if healthy == nil {
		healthy = func() bool { return true }
	}
	return &Handler{
		state:     state,
		log:       log,
		scheduler: scheduler,
		healthy:   healthy,
		logger:    logger.With("component", "api"),
	}
}

// AddSchedulesRequest is the body of POST /api/schedules
type AddSchedulesRequest struct {
	Medicine  string   `json:"medicine"`
	Schedules []string `json:"schedules"`
}

// AddSchedulesResponse lists the reminders that were new
type AddSchedulesResponse struct {
	Added []models.ScheduleEntry `json:"added"`
}

// HandleLatest returns the latest classified record
func (h *Handler) HandleLatest(w http.ResponseWriter, _ *http.Request) {
	rec, ok := h.state.GetLatestRecord()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.writeJSON(w, http.StatusOK, rec)
}

// HandleStatus returns the last emitted status
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, models.StatusEvent{Status: h.state.GetLastStatus()})
}

// HandleLog serves the CSV log
func (h *Handler) HandleLog(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	if _, err := h.log.CopyTo(&buf); err != nil {
		h.logger.Error("failed to read record log", "error", err)
		http.Error(w, "record log unavailable", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(h.log.Path())))
	_, _ = w.Write(buf.Bytes())
}

// HandleListSchedules returns all reminders
func (h *Handler) HandleListSchedules(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, h.scheduler.List())
}

// HandleAddSchedules adds reminders and publishes the new ones
func (h *Handler) HandleAddSchedules(w http.ResponseWriter, r *http.Request) {
	var req AddSchedulesRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Medicine == "" || len(req.Schedules) == 0 {
		http.Error(w, "medicine and schedules are required", http.StatusBadRequest)
		return
	}

	added, err := h.scheduler.Add(req.Medicine, req.Schedules)
	if errors.Is(err, models.ErrInvalidSchedule) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.logger.Error("failed to add schedules", "error", err)
		http.Error(w, "failed to add schedules", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, AddSchedulesResponse{Added: added})
}

// HandleHealth reports transport connectivity
func (h *Handler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	if !h.healthy() {
		http.Error(w, "mqtt disconnected", http.StatusServiceUnavailable)
		return
	}
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", "error", err)
	}
}
