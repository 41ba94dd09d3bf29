package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shhe-backend/internal/metric"
	"shhe-backend/internal/models"
	"shhe-backend/internal/services"
	"shhe-backend/internal/storage"
	"shhe-backend/internal/testutil"
)

type stubState struct {
	latest *models.ClassifiedRecord
	status string
}

func (s *stubState) GetLatestRecord() (models.ClassifiedRecord, bool) {
	if s.latest == nil {
		return models.ClassifiedRecord{}, false
	}
	return *s.latest, true
}

func (s *stubState) GetLastStatus() string { return s.status }

type fixture struct {
	state     *stubState
	log       *storage.RecordLog
	publisher *testutil.MockPublisher
	healthy   bool
	server    *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log, err := storage.NewRecordLog(filepath.Join(t.TempDir(), "data.csv"), nil)
	require.NoError(t, err)

	f := &fixture{
		state:     &stubState{status: models.StatusNone},
		log:       log,
		publisher: &testutil.MockPublisher{},
		healthy:   true,
	}
	h := NewHandler(f.state, log, services.NewScheduleService(f.publisher, nil), func() bool { return f.healthy }, nil)
	f.server = httptest.NewServer(NewRouter(h, metric.NewMetrics().Handler()))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *fixture) post(t *testing.T, path, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(f.server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestLatest(t *testing.T) {
	f := newFixture(t)

	resp := f.get(t, "/api/latest")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	f.state.latest = &models.ClassifiedRecord{
		Timestamp: "2026-01-01 10:00:00",
		DeviceID:  "sensorA",
		Temp:      25,
		Hum:       50,
		Gas:       300,
		HeartRate: 80,
		Label:     models.LabelGood,
	}
	resp = f.get(t, "/api/latest")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got models.ClassifiedRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, *f.state.latest, got)
}

func TestStatus(t *testing.T) {
	f := newFixture(t)

	var got models.StatusEvent
	require.NoError(t, json.NewDecoder(f.get(t, "/api/status").Body).Decode(&got))
	assert.Equal(t, models.StatusNone, got.Status)

	f.state.status = "DANGER"
	require.NoError(t, json.NewDecoder(f.get(t, "/api/status").Body).Decode(&got))
	assert.Equal(t, "DANGER", got.Status)
}

func TestLogDownload(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.log.Append(models.ClassifiedRecord{
		Timestamp: "2026-01-01 10:00:00",
		DeviceID:  "sensorA",
		Temp:      25.5,
		Hum:       50,
		Gas:       300,
		HeartRate: 80,
		Label:     models.LabelAlert,
	}))

	resp := f.get(t, "/api/log")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="data.csv"`)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(body.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(storage.Columns, ","), lines[0])
	assert.Equal(t, "2026-01-01 10:00:00,sensorA,25.5,50,300,ALERT,80", lines[1])
}

func TestSchedules(t *testing.T) {
	f := newFixture(t)

	resp := f.post(t, "/api/schedules", `{"medicine":"paracetamol","schedules":["2026-01-01 08:00","2026-01-01 08:00"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var added AddSchedulesResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&added))
	assert.Equal(t, []models.ScheduleEntry{{DateTime: "2026-01-01 08:00", Medicine: "paracetamol"}}, added.Added)
	assert.Equal(t, [][]string{{"2026-01-01 08:00"}}, f.publisher.Schedules())

	var list []models.ScheduleEntry
	require.NoError(t, json.NewDecoder(f.get(t, "/api/schedules").Body).Decode(&list))
	assert.Equal(t, added.Added, list)
}

func TestSchedulesRejectsBadRequests(t *testing.T) {
	f := newFixture(t)

	for name, body := range map[string]string{
		"malformed json":   `{"medicine":`,
		"missing medicine": `{"schedules":["2026-01-01 08:00"]}`,
		"empty schedules":  `{"medicine":"x","schedules":[]}`,
		"bad layout":       `{"medicine":"x","schedules":["01/01/2026 8am"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			resp := f.post(t, "/api/schedules", body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		})
	}
	assert.Empty(t, f.publisher.Schedules())
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, http.StatusOK, f.get(t, "/healthz").StatusCode)

	f.healthy = false
	assert.Equal(t, http.StatusServiceUnavailable, f.get(t, "/healthz").StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	resp := f.get(t, "/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "go_goroutines")
}
