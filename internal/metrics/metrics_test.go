package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponytojas/airlog/internal/models"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.CycleStarted()
	m.CycleStarted()
	m.ParseFailed()
	m.Parsed(models.Reading{CO2: 612, TVOC: 45})
	m.Saved()

	assert.Equal(t, float64(2), testutil.ToFloat64(m.cycles))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.parseFailures))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.saved))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.saveFailures))
	assert.Equal(t, float64(612), testutil.ToFloat64(m.co2))
	assert.Equal(t, float64(45), testutil.ToFloat64(m.tvoc))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.CycleStarted()
		m.ReadFailed()
		m.ParseFailed()
		m.Parsed(models.Reading{CO2: 1})
		m.SaveFailed()
		m.Saved()
	})
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.SaveFailed()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Result().Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "airlog_save_failures_total 1")
}
