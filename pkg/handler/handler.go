package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/internal/runner"
	"github.com/conductorsdk/worker-go/internal/transport"
	"github.com/conductorsdk/worker-go/pkg/events"
	"github.com/conductorsdk/worker-go/pkg/metrics"
	"github.com/conductorsdk/worker-go/pkg/worker"
)

// DefaultStopGrace is how long Stop waits for runners to drain before
// force-abandoning in-flight work.
const DefaultStopGrace = 30 * time.Second

// WorkerStatus is one entry of the per-worker process status report.
type WorkerStatus struct {
	Alive    bool
	Restarts int
}

// TaskHandler supervises one runner per registered worker. It owns the
// shared transport, the event bus, metrics exposure, and restart policy.
type TaskHandler struct {
	registry  *worker.Registry
	cfg       *config.Runtime
	resolver  *config.Resolver
	client    *transport.Client
	bus       *events.Bus
	collector *metrics.Collector

	metricsServer *metrics.Server
	fileWriter    *metrics.FileWriter

	mu       sync.Mutex
	started  bool
	states   map[string]*workerState
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds a task handler over a fully populated registry. Configuration
// and registration problems are fatal here or at Start; nothing is retried.
func New(registry *worker.Registry, opts ...Option) (*TaskHandler, error) {
	if registry == nil || registry.Len() == 0 {
		return nil, fmt.Errorf("no workers registered")
	}

	o := defaultHandlerOptions()
	for _, opt := range opts {
		opt(o)
	}

	cfg := o.runtime
	if cfg == nil {
		loaded, err := config.LoadRuntime()
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	bus := events.NewBus()
	collector := metrics.NewCollector()
	bus.Register(collector)
	for _, l := range o.listeners {
		bus.Register(l)
	}

	client := transport.NewClient(transport.Options{
		BaseURL:      cfg.ServerURL,
		AuthKey:      cfg.AuthKey,
		AuthSecret:   cfg.AuthSecret,
		HTTP2Enabled: cfg.HTTP2Enabled,
	}, bus)

	resolver := o.resolver
	if resolver == nil {
		resolver = config.NewResolver()
	}

	h := &TaskHandler{
		registry:  registry,
		cfg:       cfg,
		resolver:  resolver,
		client:    client,
		bus:       bus,
		collector: collector,
		states:    make(map[string]*workerState),
		stopCh:    make(chan struct{}),
	}

	// Resolve every worker up front so invalid configuration fails before
	// anything starts.
	for _, w := range registry.All() {
		props := resolver.Resolve(w.TaskDefName(), w.Defaults())
		if props.ThreadCount <= 0 {
			return nil, fmt.Errorf("%w: %s", worker.ErrBadThreadCount, w.TaskDefName())
		}
		w.SetResolved(props)
		h.states[w.TaskDefName()] = newWorkerState(w)
	}

	return h, nil
}

// Bus exposes the event bus for late listener registration before Start.
func (h *TaskHandler) Bus() *events.Bus {
	return h.bus
}

// Metrics returns the built-in collector.
func (h *TaskHandler) Metrics() *metrics.Collector {
	return h.collector
}

// Start spawns one runner per worker. Idempotent; a second call is a
// no-op. Task definition registration failures are fatal.
func (h *TaskHandler) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.started {
		return nil
	}

	h.registry.Freeze()

	for _, st := range h.states {
		props := st.worker.Resolved()
		if props.RegisterTaskDef {
			if err := h.client.RegisterTaskDef(ctx, st.worker.TaskDef(), props.OverwriteTaskDef); err != nil {
				return err
			}
		}
	}

	h.startMetricsExposure()

	for _, st := range h.states {
		// Mark the worker alive before its goroutine is scheduled so the
		// status report is accurate as soon as Start returns.
		st.alive.Store(true)
		h.wg.Add(1)
		go h.supervise(st)
	}

	h.started = true
	logger.Info().Int("workers", len(h.states)).Msg("task handler started")
	return nil
}

func (h *TaskHandler) startMetricsExposure() {
	switch h.cfg.Metrics.Mode {
	case config.MetricsModeHTTP:
		h.metricsServer = metrics.NewServer(h.cfg.Metrics.HTTPPort, h.collector, h.IsHealthy)
		h.metricsServer.Start()
	case config.MetricsModeFile:
		if h.cfg.Metrics.Directory == "" {
			logger.Warn().Msg("metrics file mode selected without a directory, metrics disabled")
			return
		}
		h.fileWriter = metrics.NewFileWriter(h.collector, h.cfg.Metrics.Directory,
			h.cfg.Metrics.FileName, h.cfg.Metrics.Interval)
		h.fileWriter.Start()
	}
}

// Stop signals every runner, waits up to grace for a clean drain, then
// force-abandons survivors and closes shared resources. Idempotent; grace
// zero or below means the default.
func (h *TaskHandler) Stop(grace time.Duration) {
	if grace <= 0 {
		grace = DefaultStopGrace
	}

	h.stopOnce.Do(func() {
		close(h.stopCh)

		ctx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()

		var stops sync.WaitGroup
		h.mu.Lock()
		for _, st := range h.states {
			if r := st.current(); r != nil {
				stops.Add(1)
				go func(r *runner.Runner) {
					defer stops.Done()
					r.Stop(ctx)
				}(r)
			}
		}
		h.mu.Unlock()
		stops.Wait()

		h.wg.Wait()

		if h.metricsServer != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := h.metricsServer.Stop(shutdownCtx); err != nil {
				logger.Error().Err(err).Msg("metrics server shutdown error")
			}
			shutdownCancel()
		}
		if h.fileWriter != nil {
			h.fileWriter.Stop()
		}
		h.client.Close()

		logger.Info().Msg("task handler stopped")
	})
}

// Join blocks until every runner goroutine has exited.
func (h *TaskHandler) Join() {
	h.wg.Wait()
}

// Run starts the handler and blocks until ctx is cancelled, then stops
// with the default grace. It is the scoped-acquisition form of the
// lifecycle.
func (h *TaskHandler) Run(ctx context.Context) error {
	if err := h.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	h.Stop(DefaultStopGrace)
	return nil
}

// IsHealthy reports whether every runner is running or was restarted
// within the supervision policy.
func (h *TaskHandler) IsHealthy() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.started {
		return false
	}
	for _, st := range h.states {
		if st.unhealthy.Load() {
			return false
		}
	}
	return true
}

// WorkerProcessStatus reports liveness and restart counts per worker.
func (h *TaskHandler) WorkerProcessStatus() map[string]WorkerStatus {
	h.mu.Lock()
	defer h.mu.Unlock()

	status := make(map[string]WorkerStatus, len(h.states))
	for name, st := range h.states {
		status[name] = WorkerStatus{
			Alive:    st.alive.Load(),
			Restarts: int(st.restarts.Load()),
		}
	}
	return status
}
