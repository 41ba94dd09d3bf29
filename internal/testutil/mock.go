package testutil

import (
	"sync"

	"shhe-backend/internal/models"
)

// MockPublisher records status and schedule publishes
type MockPublisher struct {
	mu        sync.Mutex
	statuses  []models.Label
	schedules [][]string

	// Err is returned from every publish when set
	Err error
}

// PublishStatus records a status publish
func (m *MockPublisher) PublishStatus(label models.Label) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.statuses = append(m.statuses, label)
	return m.Err
}

// PublishSchedules records a schedule publish
func (m *MockPublisher) PublishSchedules(schedules []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.schedules = append(m.schedules, append([]string(nil), schedules...))
	return m.Err
}

// Statuses returns the published statuses in order
func (m *MockPublisher) Statuses() []models.Label {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Label(nil), m.statuses...)
}

// Schedules returns the published schedule batches in order
func (m *MockPublisher) Schedules() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.schedules...)
}
