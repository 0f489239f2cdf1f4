package runner

import (
	"context"
	"math/rand"
	"time"

	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/internal/transport"
	"github.com/conductorsdk/worker-go/pkg/events"
	"github.com/conductorsdk/worker-go/pkg/model"
)

const (
	maxUpdateAttempts = 4
	updateBackoffBase = 2 * time.Second
	updateCallTimeout = 30 * time.Second
)

// submitUpdate posts a result, retrying transient failures with
// exponential backoff. On the V2 endpoint a returned next task is fed to
// the local queue so the driver skips its next poll.
func (r *Runner) submitUpdate(result *model.TaskResult) {
	defer r.updateWG.Done()
	// Release the permit once the update path is done with the task. The
	// channel is sized to thread_count and every pending execution sends
	// exactly once, so this never blocks.
	defer func() { r.released <- result.TaskID }()

	log := logger.WithTask(result.TaskID)
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		if attempt > 0 && !r.waitUpdateBackoff(attempt) {
			break
		}

		ctx, cancel := context.WithTimeout(r.hardCtx, updateCallTimeout)
		var next *model.Task
		var err error
		if r.updateV2 {
			next, err = r.client.UpdateTaskV2(ctx, result)
		} else {
			err = r.client.UpdateTask(ctx, result)
		}
		cancel()

		if err == nil {
			r.bus.Publish(events.TaskUpdateCompleted{
				TaskType: r.TaskDefName(),
				Status:   string(result.Status),
				Duration: time.Since(start),
			})
			if next != nil {
				r.enqueueChained(*next)
			}
			return
		}

		if transport.IsTaskGone(err) {
			// The server reassigned the task after a lease violation.
			log.Warn().Err(err).Msg("task moved on, dropping update")
			return
		}

		lastErr = err
		if !transport.Retryable(err) {
			break
		}
		log.Warn().Err(err).Int("attempt", attempt+1).Msg("task update failed, retrying")
	}

	log.Error().Err(lastErr).
		Str("task_type", r.TaskDefName()).
		Msg("task update failed after retries, leaving task to lease expiry")
	r.bus.Publish(events.TaskUpdateFailure{
		TaskType: r.TaskDefName(),
		Duration: time.Since(start),
		Cause:    lastErr,
	})
}

// waitUpdateBackoff sleeps 2^attempt seconds starting at 2s, with ±10%
// jitter. Returns false when the hard stop fired first.
func (r *Runner) waitUpdateBackoff(attempt int) bool {
	delay := updateBackoffBase << (attempt - 1)
	jitter := time.Duration(float64(delay) * 0.1 * (rand.Float64()*2 - 1))
	timer := time.NewTimer(delay + jitter)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.hardCtx.Done():
		return false
	}
}

// enqueueChained hands a V2-returned task to the driver. The channel is
// drained every cycle; if the runner is stopping the task is abandoned to
// the server's lease expiry.
func (r *Runner) enqueueChained(t model.Task) {
	select {
	case r.chained <- t:
	case <-r.stopCh:
		chainedLog := logger.WithTask(t.TaskID)
		chainedLog.Warn().Msg("runner stopping, abandoning chained task")
	}
}
