package monitoring

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hotspot-cli/internal/config"
	"github.com/sells-group/hotspot-cli/internal/model"
)

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{
		CheckIntervalSecs:    1,
		LookbackWindowHours:  24,
		FailureRateThreshold: 0.10,
	}
	checker := NewChecker(NewCollector(&fakeRuns{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}

func TestChecker_CanceledBeforeStart(t *testing.T) {
	checker := NewChecker(NewCollector(&fakeRuns{}), NewAlerter(config.MonitoringConfig{}), config.MonitoringConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	checker.Run(ctx)
}

func TestChecker_CheckSendsAlerts(t *testing.T) {
	var received atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	now := time.Now().UTC()
	var runs []model.Run
	for i := 0; i < 6; i++ {
		runs = append(runs, finishedRun(model.RunStatusFailed, now.Add(-time.Duration(i+1)*time.Minute), time.Second))
	}

	cfg := config.MonitoringConfig{
		WebhookURL:           ts.URL,
		FailureRateThreshold: 0.5,
		LookbackWindowHours:  24,
		StaleAfterHours:      12,
	}
	checker := NewChecker(NewCollector(&fakeRuns{runs: runs}), NewAlerter(cfg), cfg)

	rep := checker.Check(context.Background())
	require.NotNil(t, rep)
	require.Len(t, rep.Alerts, 2)
	assert.Equal(t, 2, rep.Sent)
	assert.Equal(t, 6, rep.Snapshot.RunsFailed)
	assert.Equal(t, int32(2), received.Load())
}

func TestChecker_CollectErrorYieldsNil(t *testing.T) {
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&fakeRuns{listErr: errors.New("db down")}), NewAlerter(cfg), cfg)

	assert.Nil(t, checker.Check(context.Background()))
}

func TestChecker_ExportWritesHealth(t *testing.T) {
	now := time.Now().UTC()
	runs := []model.Run{
		finishedRun(model.RunStatusComplete, now.Add(-3*time.Hour), time.Minute),
		finishedRun(model.RunStatusFailed, now.Add(-2*time.Hour), time.Minute),
	}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24, StaleAfterHours: 1}
	path := filepath.Join(t.TempDir(), "health.prom")
	checker := NewChecker(NewCollector(&fakeRuns{runs: runs}), NewAlerter(cfg), cfg).Export(NewMetrics(), path)

	rep := checker.Check(context.Background())
	require.NotNil(t, rep)
	require.Len(t, rep.Alerts, 1)
	assert.Equal(t, AlertStaleResults, rep.Alerts[0].Type)
	assert.Zero(t, rep.Sent)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `hotspot_window_runs{status="failed"} 1`)
	assert.Contains(t, text, `hotspot_window_runs{status="complete"} 1`)
	assert.Contains(t, text, "hotspot_window_failure_rate 0.5")
	assert.Contains(t, text, `hotspot_alerts_firing{type="stale_results"} 1`)
	assert.Contains(t, text, `hotspot_alerts_firing{type="run_failure_rate"} 0`)
}
