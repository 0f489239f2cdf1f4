package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorsdk/worker-go/pkg/events"
)

func TestCollector_Counters(t *testing.T) {
	c := NewCollector()

	c.OnEvent(events.PollStarted{TaskType: "greet"})
	c.OnEvent(events.PollStarted{TaskType: "greet"})
	c.OnEvent(events.TaskPaused{TaskType: "greet"})
	c.OnEvent(events.WorkerRestarted{TaskType: "greet", Restarts: 1})
	c.OnEvent(events.TaskExecutionFailure{TaskType: "greet", Cause: errors.New("boom")})
	c.OnEvent(events.TaskUpdateFailure{TaskType: "greet", Cause: errors.New("down")})

	assert.Equal(t, float64(2), testutil.ToFloat64(c.pollTotal.WithLabelValues("greet")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.pausedTotal.WithLabelValues("greet")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.restartTotal.WithLabelValues("greet")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.executeError.WithLabelValues("greet", "errors.errorString")))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.updateError.WithLabelValues("greet", "errors.errorString")))
}

func TestCollector_Summaries(t *testing.T) {
	c := NewCollector()

	c.OnEvent(events.PollStarted{TaskType: "greet"})
	c.OnEvent(events.PollCompleted{TaskType: "greet", Duration: 10 * time.Millisecond, TasksReceived: 1})
	c.OnEvent(events.TaskExecutionCompleted{TaskType: "greet", Duration: 50 * time.Millisecond, OutputSizeBytes: 128})
	c.OnEvent(events.TaskUpdateCompleted{TaskType: "greet", Status: "COMPLETED", Duration: 5 * time.Millisecond})
	c.OnEvent(events.HTTPRequest{Method: "GET", URI: "/tasks/poll/batch/{taskType}", Status: "200", Duration: time.Millisecond})

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"task_poll_total",
		"task_poll_time_seconds",
		"task_execute_time_seconds",
		"task_update_time_seconds",
		"task_result_size",
		"http_api_client_request",
	} {
		assert.True(t, names[want], "missing metric %s", want)
	}
}

func TestCollector_ErrorLabel(t *testing.T) {
	assert.Equal(t, "none", errorLabel(nil))
	assert.Equal(t, "errors.errorString", errorLabel(errors.New("x")))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	c := NewCollector()
	c.OnEvent(events.PollStarted{TaskType: "greet"})

	healthy := true
	srv := NewServer(0, c, func() bool { return healthy })

	ts := httptest.NewServer(srv.srv.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy = false
	resp, err = http.Get(ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "task_poll_total")
}

func TestFileWriter_WritesTextFormat(t *testing.T) {
	c := NewCollector()
	c.OnEvent(events.PollStarted{TaskType: "greet"})
	c.OnEvent(events.TaskPaused{TaskType: "greet"})

	dir := t.TempDir()
	w := NewFileWriter(c, dir, "metrics.prom", time.Hour)
	w.Start()
	w.Stop() // final snapshot on stop

	data, err := os.ReadFile(filepath.Join(dir, "metrics.prom"))
	require.NoError(t, err)

	text := string(data)
	assert.True(t, strings.Contains(text, `task_poll_total{taskType="greet"} 1`), text)
	assert.True(t, strings.Contains(text, `task_paused_total{taskType="greet"} 1`), text)
}
