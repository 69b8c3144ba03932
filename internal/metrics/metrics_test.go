package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/print-preflight/pkg/preflight"
)

func TestObserveResult(t *testing.T) {
	m := New()
	m.ObserveResult(preflight.Result{
		Overall: preflight.StatusWarning,
		Checks: []preflight.CheckResult{
			{Name: preflight.CheckSize, Status: preflight.StatusOK},
			{Name: preflight.CheckDPI, Status: preflight.StatusWarning},
		},
	}, 1500*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.results.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checks.WithLabelValues(preflight.CheckDPI, "warning")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.results.WithLabelValues("ok")))
}

func TestConversionAttempt(t *testing.T) {
	m := New()
	m.ConversionAttempt("application/pdf", "gs-render", errors.New("boom"))
	m.ConversionAttempt("application/pdf", "gs-draft", nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("application/pdf", "gs-render", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.attempts.WithLabelValues("application/pdf", "gs-draft", "success")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveResult(preflight.Result{Overall: preflight.StatusOK}, time.Second)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `preflight_results_total{overall="ok"} 1`)
	assert.Contains(t, string(body), "preflight_duration_seconds_count 1")
}
