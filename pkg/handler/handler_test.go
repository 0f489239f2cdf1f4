package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/pkg/model"
	"github.com/conductorsdk/worker-go/pkg/worker"
)

type fakeServer struct {
	srv *httptest.Server

	mu       sync.Mutex
	queue    []model.Task
	updates  []model.TaskResult
	taskDefs []model.TaskDef
}

func newFakeServer(t *testing.T) *fakeServer {
	f := &fakeServer{}

	mux := http.NewServeMux()
	mux.HandleFunc("/tasks/poll/batch/", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		batch := f.queue
		f.queue = nil
		json.NewEncoder(w).Encode(batch)
	})
	mux.HandleFunc("/tasks/update-v2", func(w http.ResponseWriter, r *http.Request) {
		var res model.TaskResult
		require.NoError(t, json.NewDecoder(r.Body).Decode(&res))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.updates = append(f.updates, res)
	})
	mux.HandleFunc("/metadata/taskdefs", func(w http.ResponseWriter, r *http.Request) {
		var defs []model.TaskDef
		require.NoError(t, json.NewDecoder(r.Body).Decode(&defs))
		f.mu.Lock()
		defer f.mu.Unlock()
		f.taskDefs = append(f.taskDefs, defs...)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeServer) push(tasks ...model.Task) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, tasks...)
}

func (f *fakeServer) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeServer) registeredDefs() []model.TaskDef {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.TaskDef(nil), f.taskDefs...)
}

func testRuntime(f *fakeServer) *config.Runtime {
	return &config.Runtime{
		ServerURL: f.srv.URL,
		UpdateV2:  true,
		// No metrics exposure in tests; the collector still listens.
		Metrics: config.MetricsSettings{Mode: "none"},
	}
}

func fastWorker(t *testing.T, name string, fn func(ctx context.Context, task *model.Task) (interface{}, error)) *worker.Worker {
	t.Helper()
	w, err := worker.New(name, fn,
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithPollTimeout(time.Millisecond),
		worker.WithLeaseExtendEnabled(false))
	require.NoError(t, err)
	return w
}

func TestNew_RequiresWorkers(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	empty, err := worker.NewRegistry()
	require.NoError(t, err)
	_, err = New(empty)
	assert.Error(t, err)
}

func TestTaskHandler_EndToEnd(t *testing.T) {
	f := newFakeServer(t)
	f.push(model.Task{
		TaskID:      "t1",
		TaskDefName: "echo",
		InputData:   map[string]interface{}{"value": "ping"},
	})

	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return task.InputData, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(5 * time.Second)

	require.Eventually(t, func() bool { return f.updateCount() == 1 }, 3*time.Second, 5*time.Millisecond)

	f.mu.Lock()
	res := f.updates[0]
	f.mu.Unlock()
	assert.Equal(t, "t1", res.TaskID)
	assert.Equal(t, model.ResultCompleted, res.Status)
	assert.Equal(t, map[string]interface{}{"value": "ping"}, res.OutputData)
}

func TestTaskHandler_StartIsIdempotent(t *testing.T) {
	f := newFakeServer(t)
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)

	require.NoError(t, h.Start(context.Background()))
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(5 * time.Second)

	status := h.WorkerProcessStatus()
	require.Len(t, status, 1)
	assert.True(t, status["echo"].Alive)
	assert.Zero(t, status["echo"].Restarts)
}

func TestTaskHandler_StopIsIdempotent(t *testing.T) {
	f := newFakeServer(t)
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))

	h.Stop(5 * time.Second)
	h.Stop(5 * time.Second)

	status := h.WorkerProcessStatus()
	assert.False(t, status["echo"].Alive)
}

func TestTaskHandler_Health(t *testing.T) {
	f := newFakeServer(t)
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)

	assert.False(t, h.IsHealthy(), "not healthy before start")

	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(5 * time.Second)

	assert.True(t, h.IsHealthy())
}

func TestTaskHandler_RunStopsOnContextCancel(t *testing.T) {
	f := newFakeServer(t)
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestTaskHandler_RegistersTaskDefs(t *testing.T) {
	f := newFakeServer(t)

	w, err := worker.NewTyped("typed_echo", func(ctx context.Context, in struct {
		Value string `json:"value"`
	}) (interface{}, error) {
		return in.Value, nil
	},
		worker.WithPollInterval(5*time.Millisecond),
		worker.WithRegisterTaskDef(true),
		worker.WithDescription("echoes the value"))
	require.NoError(t, err)

	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	h, err := New(registry, WithRuntime(testRuntime(f)))
	require.NoError(t, err)
	require.NoError(t, h.Start(context.Background()))
	defer h.Stop(5 * time.Second)

	defs := f.registeredDefs()
	require.Len(t, defs, 1)
	assert.Equal(t, "typed_echo", defs[0].Name)
	assert.Equal(t, "echoes the value", defs[0].Description)
	require.NotNil(t, defs[0].InputSchema)
	assert.Equal(t, "JSON", defs[0].InputSchema.Type)
}

func TestTaskHandler_RejectsBadThreadCountFromEnv(t *testing.T) {
	t.Setenv("conductor.worker.echo.thread_count", "0")

	f := newFakeServer(t)
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	registry, err := worker.NewRegistry(w)
	require.NoError(t, err)

	_, err = New(registry, WithRuntime(testRuntime(f)))
	assert.ErrorIs(t, err, worker.ErrBadThreadCount)
}

func TestWorkerState_RestartPolicy(t *testing.T) {
	w := fastWorker(t, "echo", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return nil, nil
	})
	st := newWorkerState(w)

	now := time.Now()
	for i := 0; i < maxRestarts; i++ {
		assert.Zero(t, st.restartDelay(now), "restart %d should be allowed", i+1)
	}

	// Budget exhausted: the next restart waits for the window to clear.
	delay := st.restartDelay(now)
	assert.Greater(t, delay, time.Duration(0))
	assert.LessOrEqual(t, delay, restartWindow)

	// After the window the budget is replenished.
	later := now.Add(restartWindow + time.Second)
	assert.Zero(t, st.restartDelay(later))
}
