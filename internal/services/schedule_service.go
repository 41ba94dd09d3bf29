package services

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"shhe-backend/internal/models"
)

// SchedulePublisher forwards new reminder timestamps to the scheduler topic
type SchedulePublisher interface {
	PublishSchedules(schedules []string) error
}

// ScheduleService keeps medicine reminders and publishes newly added ones
type ScheduleService struct {
	publisher SchedulePublisher
	logger    *slog.Logger

	mu      sync.Mutex
	entries []models.ScheduleEntry
	known   map[string]bool
}

// NewScheduleService creates a new schedule service
func NewScheduleService(publisher SchedulePublisher, logger *slog.Logger) *ScheduleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScheduleService{
		publisher: publisher,
		logger:    logger.With("component", "schedule"),
		known:     make(map[string]bool),
	}
}

// Add registers reminders for a medicine. Timestamps already scheduled (or
// repeated within the batch) are skipped. New timestamps are published
// once, fire-and-forget. The whole batch is rejected if any timestamp is malformed.
func (s *ScheduleService) Add(medicine string, datetimes []string) ([]models.ScheduleEntry, error) {
	normalized := make([]string, 0, len(datetimes))
	for _, dt := range datetimes {
		dt = strings.TrimSpace(dt)
		if _, err := time.Parse(models.ScheduleLayout, dt); err != nil {
			return nil, fmt.Errorf("%w: %q is not %s", models.ErrInvalidSchedule, dt, models.ScheduleLayout)
		}
		normalized = append(normalized, dt)
	}

	s.mu.Lock()
	added := make([]models.ScheduleEntry, 0, len(normalized))
	for _, dt := range normalized {
		if s.known[dt] {
			continue
		}
		s.known[dt] = true
		entry := models.ScheduleEntry{DateTime: dt, Medicine: medicine}
		s.entries = append(s.entries, entry)
		added = append(added, entry)
	}
	s.mu.Unlock()

	if len(added) == 0 {
		return added, nil
	}

	published := make([]string, len(added))
	for i, e := range added {
		published[i] = e.DateTime
	}
	if err := s.publisher.PublishSchedules(published); err != nil {
		s.logger.Warn("failed to publish schedules", "count", len(published), "error", err)
	} else {
		s.logger.Info("published schedules", "medicine", medicine, "schedules", published)
	}
	return added, nil
}

// List returns all reminders in insertion order
func (s *ScheduleService) List() []models.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]models.ScheduleEntry, 0, len(s.entries)), s.entries...)
}
