package runner

import (
	"context"
	"time"

	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/pkg/model"
)

// leaseFraction is how far into the response timeout the extension fires.
const leaseFraction = 0.8

const leaseCallTimeout = 10 * time.Second

// scheduleLease arms a one-shot timer at 0.8x the task's response timeout.
// The extension runs concurrently with the handler; it never blocks it.
func (r *Runner) scheduleLease(exec *execution) {
	delay := time.Duration(float64(exec.task.ResponseTimeout()) * leaseFraction)

	exec.leaseMu.Lock()
	defer exec.leaseMu.Unlock()
	exec.lease = time.AfterFunc(delay, func() {
		r.extendLease(exec, delay)
	})
}

// extendLease posts an IN_PROGRESS update with extendLease set, then
// re-arms the timer relative to now. A completed execution is left alone.
func (r *Runner) extendLease(exec *execution, delay time.Duration) {
	if exec.done.Load() {
		return
	}

	result := model.NewTaskResult(&exec.task)
	result.Status = model.ResultInProgress
	result.WorkerID = r.props.WorkerID
	result.ExtendLease = true
	result.CallbackAfterSeconds = exec.task.ResponseTimeoutSeconds

	// Lease posts go to the legacy endpoint so they never consume a
	// chained next task.
	ctx, cancel := context.WithTimeout(r.hardCtx, leaseCallTimeout)
	err := r.client.UpdateTask(ctx, result)
	cancel()

	taskLog := logger.WithTask(exec.task.TaskID)
	if err != nil {
		taskLog.Warn().Err(err).
			Str("task_type", r.TaskDefName()).
			Msg("lease extension failed")
	} else {
		taskLog.Debug().
			Str("task_type", r.TaskDefName()).
			Msg("lease extended")
	}

	if exec.done.Load() {
		return
	}
	exec.leaseMu.Lock()
	defer exec.leaseMu.Unlock()
	if exec.lease != nil {
		exec.lease.Reset(delay)
	}
}
