package worker

import "time"

// Option sets a code-level default on a worker. Environment variables
// (conductor.worker.<name>.<property>, then conductor.worker.all.<property>)
// take precedence at start.
type Option func(*Worker)

// WithPollInterval sets the sleep after a poll cycle that obtained no tasks
// and on each paused cycle; it also caps the empty-poll backoff. A cycle
// that obtained tasks is followed by a 1ms sleep instead.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		w.defaults.PollIntervalMillis = int(d.Milliseconds())
	}
}

// WithThreadCount sets the maximum concurrent executions for this worker.
func WithThreadCount(n int) Option {
	return func(w *Worker) {
		w.defaults.ThreadCount = n
	}
}

// WithDomain routes polls to a task domain.
func WithDomain(domain string) Option {
	return func(w *Worker) {
		w.defaults.Domain = domain
	}
}

// WithWorkerID overrides the host-derived worker identity.
func WithWorkerID(id string) Option {
	return func(w *Worker) {
		w.defaults.WorkerID = id
	}
}

// WithPollTimeout sets the server-side long-poll duration.
func WithPollTimeout(d time.Duration) Option {
	return func(w *Worker) {
		w.defaults.PollTimeoutMillis = int(d.Milliseconds())
	}
}

// WithLeaseExtendEnabled toggles automatic lease extension for
// long-running tasks.
func WithLeaseExtendEnabled(enabled bool) Option {
	return func(w *Worker) {
		w.defaults.LeaseExtendEnabled = enabled
	}
}

// WithRegisterTaskDef registers the task definition with the server at
// startup.
func WithRegisterTaskDef(register bool) Option {
	return func(w *Worker) {
		w.defaults.RegisterTaskDef = register
	}
}

// WithOverwriteTaskDef controls whether an existing server-side definition
// is replaced when registering.
func WithOverwriteTaskDef(overwrite bool) Option {
	return func(w *Worker) {
		w.defaults.OverwriteTaskDef = overwrite
	}
}

// WithStrictSchema rejects task inputs carrying unknown keys.
func WithStrictSchema(strict bool) Option {
	return func(w *Worker) {
		w.defaults.StrictSchema = strict
	}
}

// WithDescription sets the description used on task definition
// registration.
func WithDescription(description string) Option {
	return func(w *Worker) {
		w.description = description
	}
}
