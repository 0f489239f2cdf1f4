package handler

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/internal/runner"
	"github.com/conductorsdk/worker-go/pkg/events"
	"github.com/conductorsdk/worker-go/pkg/worker"
)

// Restart policy: at most maxRestarts per worker within restartWindow.
// Beyond that the worker is unhealthy and waits for the window to clear.
const (
	maxRestarts   = 5
	restartWindow = 60 * time.Second
)

// workerState tracks one supervised runner across restarts.
type workerState struct {
	worker    *worker.Worker
	alive     atomic.Bool
	unhealthy atomic.Bool
	restarts  atomic.Int64

	mu     sync.Mutex
	runner *runner.Runner
	recent []time.Time
}

func newWorkerState(w *worker.Worker) *workerState {
	return &workerState{worker: w}
}

func (st *workerState) current() *runner.Runner {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.runner
}

func (st *workerState) setRunner(r *runner.Runner) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.runner = r
}

// restartDelay prunes the restart history and returns zero when another
// restart is allowed now, or how long to wait for the window to clear.
func (st *workerState) restartDelay(now time.Time) time.Duration {
	st.mu.Lock()
	defer st.mu.Unlock()

	kept := st.recent[:0]
	for _, ts := range st.recent {
		if now.Sub(ts) < restartWindow {
			kept = append(kept, ts)
		}
	}
	st.recent = kept

	if len(st.recent) < maxRestarts {
		st.recent = append(st.recent, now)
		return 0
	}
	return restartWindow - now.Sub(st.recent[0])
}

// supervise runs one worker's runner, restarting it within policy when it
// exits unexpectedly. A runner exit caused by Stop ends supervision.
func (h *TaskHandler) supervise(st *workerState) {
	defer h.wg.Done()

	log := logger.WithTaskType(st.worker.TaskDefName())

	for {
		r := runner.New(runner.Config{
			Worker:   st.worker,
			Client:   h.client,
			Bus:      h.bus,
			Resolver: h.resolver,
			UpdateV2: h.cfg.UpdateV2,
		})
		st.setRunner(r)
		st.alive.Store(true)

		h.runGuarded(r, log)
		st.alive.Store(false)

		select {
		case <-h.stopCh:
			return
		default:
		}

		// Unexpected exit. Rate-limit restarts.
		for {
			delay := st.restartDelay(time.Now())
			if delay <= 0 {
				st.unhealthy.Store(false)
				break
			}
			st.unhealthy.Store(true)
			log.Error().Dur("retry_in", delay).Msg("worker restart budget exhausted")
			select {
			case <-h.stopCh:
				return
			case <-time.After(delay):
			}
		}

		st.restarts.Add(1)
		log.Warn().Int64("restarts", st.restarts.Load()).Msg("restarting worker runner")
		h.bus.Publish(events.WorkerRestarted{
			TaskType: st.worker.TaskDefName(),
			Restarts: int(st.restarts.Load()),
		})
	}
}

// runGuarded contains driver panics so a crashing runner is restarted
// instead of taking the process down.
func (h *TaskHandler) runGuarded(r *runner.Runner, log zerolog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("runner crashed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-h.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	r.Run(ctx)
}
