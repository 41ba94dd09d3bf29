package metric

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsAreRegistered(t *testing.T) {
	m := NewMetrics()
	m.MessagesReceived.Inc()
	m.MessagesDropped.WithLabelValues(ReasonStale).Inc()
	m.RecordsClassified.WithLabelValues("DANGER").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MessagesReceived))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordsClassified.WithLabelValues("DANGER")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["shhe_messages_received_total"])
	assert.True(t, names["shhe_messages_dropped_total"])
	assert.True(t, names["go_goroutines"])
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.StatusChanges.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "shhe_status_changes_total 1")
}
