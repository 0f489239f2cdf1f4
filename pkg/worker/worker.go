package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/pkg/model"
)

// ExecuteFunc is the adapter stored for a worker: whole task in, handler
// value out. Binding and coercion decisions are made once at registration,
// never in the hot path.
type ExecuteFunc func(ctx context.Context, t *model.Task) (interface{}, error)

// Registration errors are fatal: the task handler refuses to start on them.
var (
	ErrEmptyTaskDefName = errors.New("task definition name must not be empty")
	ErrNilHandler       = errors.New("worker handler must not be nil")
	ErrBadThreadCount   = errors.New("thread count must be positive")
)

// Worker couples a task definition name with a handler adapter and its
// configuration. Code-level option values are the lowest tier of the
// configuration resolution; environment variables override them at start.
type Worker struct {
	taskDefName string
	description string
	execute     ExecuteFunc
	inputSchema map[string]interface{}

	defaults config.WorkerProperties
	resolved config.WorkerProperties
}

// New registers a raw handler that receives the whole task.
func New(taskDefName string, fn func(ctx context.Context, t *model.Task) (interface{}, error), opts ...Option) (*Worker, error) {
	if taskDefName == "" {
		return nil, ErrEmptyTaskDefName
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, taskDefName)
	}

	w := &Worker{
		taskDefName: taskDefName,
		execute:     fn,
		defaults:    config.DefaultWorkerProperties(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.defaults.ThreadCount <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrBadThreadCount, taskDefName)
	}
	w.resolved = w.defaults
	return w, nil
}

// TaskDefName returns the task type this worker serves.
func (w *Worker) TaskDefName() string {
	return w.taskDefName
}

// Execute invokes the handler adapter.
func (w *Worker) Execute(ctx context.Context, t *model.Task) (interface{}, error) {
	return w.execute(ctx, t)
}

// Defaults returns the code-level configuration tier.
func (w *Worker) Defaults() config.WorkerProperties {
	return w.defaults
}

// Resolved returns the effective configuration after environment merging.
func (w *Worker) Resolved() config.WorkerProperties {
	return w.resolved
}

// SetResolved stores the effective configuration. Called by the task
// handler before the worker's runner starts; the registry is immutable
// afterwards.
func (w *Worker) SetResolved(props config.WorkerProperties) {
	w.resolved = props
}

// InputSchema returns the generated draft-07 input schema, or nil for raw
// workers.
func (w *Worker) InputSchema() map[string]interface{} {
	return w.inputSchema
}

// TaskDef builds the server-side task definition registered at startup
// when register_task_def is enabled.
func (w *Worker) TaskDef() *model.TaskDef {
	def := &model.TaskDef{
		Name:        w.taskDefName,
		Description: w.description,
	}
	if w.inputSchema != nil {
		def.InputSchema = &model.SchemaDef{
			Name: w.taskDefName + "_input",
			Type: "JSON",
			Data: w.inputSchema,
		}
		def.EnforceSchema = w.resolved.StrictSchema
	}
	return def
}
