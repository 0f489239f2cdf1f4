package runner

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conductorsdk/worker-go/internal/logger"
	"github.com/conductorsdk/worker-go/pkg/events"
	"github.com/conductorsdk/worker-go/pkg/model"
)

// execution tracks one in-flight task: its handler context, start time,
// lease timer, and completion flag. The flag is what keeps an automated
// lease extension from racing a finished handler.
type execution struct {
	task      model.Task
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc

	done    atomic.Bool
	leaseMu sync.Mutex
	lease   *time.Timer
}

func newExecution(t model.Task) *execution {
	return &execution{
		task:      t,
		startedAt: time.Now(),
	}
}

func (e *execution) stopLease() {
	e.leaseMu.Lock()
	defer e.leaseMu.Unlock()
	if e.lease != nil {
		e.lease.Stop()
	}
}

// execute runs the handler on its own goroutine, classifies the outcome,
// and hands the result to the update path, which releases the permit once
// the update is done.
func (r *Runner) execute(exec *execution) {
	defer r.execWG.Done()

	r.bus.Publish(events.TaskExecutionStarted{
		TaskType:           r.TaskDefName(),
		TaskID:             exec.task.TaskID,
		WorkflowInstanceID: exec.task.WorkflowInstanceID,
		WorkerID:           r.props.WorkerID,
	})

	value, err := r.invoke(exec)
	exec.done.Store(true)
	exec.stopLease()

	elapsed := time.Since(exec.startedAt)
	result := r.classify(exec, value, err)

	if err != nil {
		taskLog := logger.WithTask(exec.task.TaskID)
		taskLog.Error().Err(err).
			Str("task_type", r.TaskDefName()).
			Dur("duration", elapsed).
			Str("status", string(result.Status)).
			Msg("task execution failed")
		r.bus.Publish(events.TaskExecutionFailure{
			TaskType:           r.TaskDefName(),
			TaskID:             exec.task.TaskID,
			WorkflowInstanceID: exec.task.WorkflowInstanceID,
			WorkerID:           r.props.WorkerID,
			Duration:           elapsed,
			Cause:              err,
		})
	} else {
		taskLog := logger.WithTask(exec.task.TaskID)
		taskLog.Debug().
			Str("task_type", r.TaskDefName()).
			Dur("duration", elapsed).
			Str("status", string(result.Status)).
			Msg("task executed")
		r.bus.Publish(events.TaskExecutionCompleted{
			TaskType:           r.TaskDefName(),
			TaskID:             exec.task.TaskID,
			WorkflowInstanceID: exec.task.WorkflowInstanceID,
			WorkerID:           r.props.WorkerID,
			Duration:           elapsed,
			OutputSizeBytes:    result.OutputSize(),
		})
	}

	// The permit stays held until the update is delivered; that is what
	// keeps a chained next task ahead of the next poll.
	r.updateWG.Add(1)
	go r.submitUpdate(result)

	exec.cancel()
}

// invoke calls the handler with panic containment.
func (r *Runner) invoke(exec *execution) (value interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			taskLog := logger.WithTask(exec.task.TaskID)
			taskLog.Error().
				Str("task_type", r.TaskDefName()).
				Interface("panic", rec).
				Str("stack", string(debug.Stack())).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", rec)
		}
	}()

	return r.worker.Execute(exec.ctx, &exec.task)
}

// classify maps a handler outcome onto the result sent to the server.
func (r *Runner) classify(exec *execution, value interface{}, err error) *model.TaskResult {
	result := model.NewTaskResult(&exec.task)
	result.WorkerID = r.props.WorkerID

	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			result.Status = model.ResultFailed
			result.ReasonForIncompletion = "execution timed out"
		case model.IsNonRetryable(err):
			result.Status = model.ResultTerminalError
			result.ReasonForIncompletion = err.Error()
		default:
			result.Status = model.ResultFailed
			result.ReasonForIncompletion = err.Error()
		}
		return result
	}

	switch v := value.(type) {
	case nil:
		// A nil return is a legitimate completion with empty output, never
		// an in-progress signal.
		result.Status = model.ResultCompleted
	case *model.TaskInProgress:
		result.Status = model.ResultInProgress
		result.OutputData = v.OutputData
		result.CallbackAfterSeconds = v.CallbackAfterSeconds
	case model.TaskInProgress:
		result.Status = model.ResultInProgress
		result.OutputData = v.OutputData
		result.CallbackAfterSeconds = v.CallbackAfterSeconds
	case *model.TaskResult:
		// The handler assembled the result itself; fill in identity it
		// left blank.
		if v.TaskID == "" {
			v.TaskID = exec.task.TaskID
		}
		if v.WorkflowInstanceID == "" {
			v.WorkflowInstanceID = exec.task.WorkflowInstanceID
		}
		if v.WorkerID == "" {
			v.WorkerID = r.props.WorkerID
		}
		return v
	case map[string]interface{}:
		result.Status = model.ResultCompleted
		result.OutputData = v
	default:
		result.Status = model.ResultCompleted
		result.OutputData = map[string]interface{}{"result": v}
	}
	return result
}
