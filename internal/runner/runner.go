package runner

import (
	"context"
	"sync"
	"time"

	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/internal/transport"
	"github.com/conductorsdk/worker-go/pkg/events"
	"github.com/conductorsdk/worker-go/pkg/model"
	"github.com/conductorsdk/worker-go/pkg/worker"
)

// Config wires one runner to its collaborators.
type Config struct {
	Worker   *worker.Worker
	Client   *transport.Client
	Bus      *events.Bus
	Resolver *config.Resolver
	UpdateV2 bool
}

// Runner drives the poll/execute/update loop for a single task type. The
// driver goroutine is single-threaded; executions and updates run on their
// own goroutines and report back through channels, so the only shared state
// is the pending set.
type Runner struct {
	worker   *worker.Worker
	client   *transport.Client
	bus      *events.Bus
	resolver *config.Resolver
	updateV2 bool
	props    config.WorkerProperties

	mu      sync.Mutex
	pending map[string]*execution

	released   chan string     // task ids whose execution finished
	chained    chan model.Task // next tasks returned by V2 updates
	localQueue []model.Task
	emptyPolls int
	pollCount  int

	stopCh   chan struct{}
	stopOnce sync.Once
	runDone  chan struct{}
	execWG   sync.WaitGroup
	updateWG sync.WaitGroup

	// hardCtx is cancelled only when the grace window expires; updates in
	// flight use it so a clean stop can drain them.
	hardCtx    context.Context
	hardCancel context.CancelFunc
}

// New creates a runner for a worker whose configuration has been resolved.
func New(cfg Config) *Runner {
	props := cfg.Worker.Resolved()
	hardCtx, hardCancel := context.WithCancel(context.Background())
	return &Runner{
		worker:     cfg.Worker,
		client:     cfg.Client,
		bus:        cfg.Bus,
		resolver:   cfg.Resolver,
		updateV2:   cfg.UpdateV2,
		props:      props,
		pending:    make(map[string]*execution),
		released:   make(chan string, props.ThreadCount),
		chained:    make(chan model.Task, props.ThreadCount),
		stopCh:     make(chan struct{}),
		runDone:    make(chan struct{}),
		hardCtx:    hardCtx,
		hardCancel: hardCancel,
	}
}

// TaskDefName returns the task type this runner serves.
func (r *Runner) TaskDefName() string {
	return r.worker.TaskDefName()
}

// Run drives the loop until Stop is called or ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.runDone)

	log := logger.WithTaskType(r.TaskDefName())
	log.Info().
		Str("worker_id", r.props.WorkerID).
		Int("thread_count", r.props.ThreadCount).
		Str("domain", r.props.Domain).
		Msg("runner started")

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		default:
		}
		r.runOnce(ctx)
	}
}

// runOnce is one cycle of the loop: reap, capacity check, pause check,
// adaptive backoff, obtain, account, dispatch, yield.
func (r *Runner) runOnce(ctx context.Context) {
	r.reap()

	free := r.freePermits()
	if free <= 0 {
		r.sleep(time.Millisecond)
		return
	}

	if r.resolver.Paused(r.TaskDefName()) {
		r.bus.Publish(events.TaskPaused{TaskType: r.TaskDefName()})
		r.sleep(r.pollInterval())
		return
	}

	if r.emptyPolls > 0 {
		r.sleep(r.backoff())
	}

	tasks := r.obtain(ctx, free)
	if len(tasks) == 0 {
		r.emptyPolls++
	} else {
		r.emptyPolls = 0
	}

	for i := range tasks {
		r.dispatch(tasks[i])
	}

	if len(tasks) > 0 {
		r.sleep(time.Millisecond)
	} else {
		r.sleep(r.pollInterval())
	}
}

// reap collects finished executions, releasing their permits, and folds
// chained tasks into the local queue.
func (r *Runner) reap() {
	for {
		select {
		case taskID := <-r.released:
			r.mu.Lock()
			delete(r.pending, taskID)
			r.mu.Unlock()
		case t := <-r.chained:
			r.localQueue = append(r.localQueue, t)
		default:
			return
		}
	}
}

// freePermits is thread_count minus in-flight executions. A permit is held
// from dispatch until the task's update has been delivered.
func (r *Runner) freePermits() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.props.ThreadCount - len(r.pending)
}

// obtain drains the local queue first, then issues one batch poll for
// whatever quota remains after the locally queued tasks are counted.
func (r *Runner) obtain(ctx context.Context, quota int) []model.Task {
	var tasks []model.Task

	n := quota
	if n > len(r.localQueue) {
		n = len(r.localQueue)
	}
	if n > 0 {
		tasks = append(tasks, r.localQueue[:n]...)
		r.localQueue = append(r.localQueue[:0], r.localQueue[n:]...)
	}

	remaining := quota - len(tasks) - len(r.localQueue)
	if remaining <= 0 {
		return tasks
	}

	r.pollCount++
	r.bus.Publish(events.PollStarted{
		TaskType:  r.TaskDefName(),
		WorkerID:  r.props.WorkerID,
		PollCount: r.pollCount,
	})

	start := time.Now()
	polled, err := r.client.BatchPoll(ctx, r.TaskDefName(), r.props.WorkerID, r.props.Domain,
		remaining, time.Duration(r.props.PollTimeoutMillis)*time.Millisecond)
	elapsed := time.Since(start)

	if err != nil {
		typeLog := logger.WithTaskType(r.TaskDefName())
		typeLog.Error().Err(err).Msg("batch poll failed")
		r.bus.Publish(events.PollFailure{
			TaskType: r.TaskDefName(),
			Duration: elapsed,
			Cause:    err,
		})
		return tasks
	}

	r.bus.Publish(events.PollCompleted{
		TaskType:      r.TaskDefName(),
		Duration:      elapsed,
		TasksReceived: len(polled),
	})
	return append(tasks, polled...)
}

// dispatch consumes a permit, registers the execution, schedules lease
// extension, and submits the handler call. Without lease extension the
// handler context carries the task's response-timeout deadline.
func (r *Runner) dispatch(t model.Task) {
	exec := newExecution(t)
	if timeout := t.ResponseTimeout(); !r.props.LeaseExtendEnabled && timeout > 0 {
		exec.ctx, exec.cancel = context.WithTimeout(r.hardCtx, timeout)
	} else {
		exec.ctx, exec.cancel = context.WithCancel(r.hardCtx)
	}

	r.mu.Lock()
	r.pending[t.TaskID] = exec
	r.mu.Unlock()

	if r.props.LeaseExtendEnabled && t.ResponseTimeout() > 0 {
		r.scheduleLease(exec)
	}

	r.execWG.Add(1)
	go r.execute(exec)
}

// Stop signals the loop to exit and drains in-flight work until ctx
// expires, at which point survivors are cancelled and abandoned to the
// server's lease expiry. Idempotent.
func (r *Runner) Stop(ctx context.Context) {
	r.stopOnce.Do(func() {
		close(r.stopCh)
	})

	done := make(chan struct{})
	go func() {
		r.execWG.Wait()
		r.updateWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		// Once the driver has exited too, collect the final permit
		// releases here.
		select {
		case <-r.runDone:
			r.reap()
		case <-ctx.Done():
		}
		drainLog := logger.WithTaskType(r.TaskDefName())
		drainLog.Info().Msg("runner drained")
	case <-ctx.Done():
		deadlineLog := logger.WithTaskType(r.TaskDefName())
		deadlineLog.Warn().Msg("runner stop deadline reached, abandoning in-flight tasks")
		r.cancelAll()
		r.hardCancel()
	}
}

// cancelAll cancels every in-flight handler and lease timer.
func (r *Runner) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, exec := range r.pending {
		exec.stopLease()
		exec.cancel()
	}
}

// InFlight returns the number of executions currently holding permits.
func (r *Runner) InFlight() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Runner) pollInterval() time.Duration {
	return time.Duration(r.props.PollIntervalMillis) * time.Millisecond
}

// backoff computes the adaptive empty-poll sleep:
// min(1ms * 2^emptyPolls, poll_interval_millis), with a 1ms floor on the
// cap so backoff still engages under tight polling.
func (r *Runner) backoff() time.Duration {
	limit := r.pollInterval()
	if limit < time.Millisecond {
		limit = time.Millisecond
	}
	shift := r.emptyPolls
	if shift > 20 {
		shift = 20
	}
	d := time.Millisecond << shift
	if d > limit {
		d = limit
	}
	return d
}

// sleep waits for d or until the runner is told to stop.
func (r *Runner) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-r.stopCh:
	}
}
