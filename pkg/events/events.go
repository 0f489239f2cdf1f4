package events

import "time"

// Type identifies an event kind on the bus.
type Type string

const (
	TypePollStarted            Type = "poll.started"
	TypePollCompleted          Type = "poll.completed"
	TypePollFailure            Type = "poll.failure"
	TypeTaskExecutionStarted   Type = "task.execution.started"
	TypeTaskExecutionCompleted Type = "task.execution.completed"
	TypeTaskExecutionFailure   Type = "task.execution.failure"
	TypeTaskUpdateCompleted    Type = "task.update.completed"
	TypeTaskUpdateFailure      Type = "task.update.failure"
	TypeTaskPaused             Type = "task.paused"
	TypeWorkerRestarted        Type = "worker.restarted"
	TypeHTTPRequest            Type = "http.request"
)

// Event is a typed observation emitted by the runtime at a well-defined
// point of the poll/execute/update cycle.
type Event interface {
	EventType() Type
}

// PollStarted is emitted before a batch poll is issued.
type PollStarted struct {
	TaskType  string `json:"task_type"`
	WorkerID  string `json:"worker_id"`
	PollCount int    `json:"poll_count"`
}

func (PollStarted) EventType() Type { return TypePollStarted }

// PollCompleted is emitted after a successful poll.
type PollCompleted struct {
	TaskType      string        `json:"task_type"`
	Duration      time.Duration `json:"duration"`
	TasksReceived int           `json:"tasks_received"`
}

func (PollCompleted) EventType() Type { return TypePollCompleted }

// PollFailure is emitted after a failed poll.
type PollFailure struct {
	TaskType string        `json:"task_type"`
	Duration time.Duration `json:"duration"`
	Cause    error         `json:"-"`
}

func (PollFailure) EventType() Type { return TypePollFailure }

// TaskExecutionStarted is emitted right before a handler is invoked.
type TaskExecutionStarted struct {
	TaskType           string `json:"task_type"`
	TaskID             string `json:"task_id"`
	WorkflowInstanceID string `json:"workflow_instance_id"`
	WorkerID           string `json:"worker_id"`
}

func (TaskExecutionStarted) EventType() Type { return TypeTaskExecutionStarted }

// TaskExecutionCompleted is emitted after a successful completion.
// Duration covers submission to completion, not submission alone.
type TaskExecutionCompleted struct {
	TaskType           string        `json:"task_type"`
	TaskID             string        `json:"task_id"`
	WorkflowInstanceID string        `json:"workflow_instance_id"`
	WorkerID           string        `json:"worker_id"`
	Duration           time.Duration `json:"duration"`
	OutputSizeBytes    int           `json:"output_size_bytes"`
}

func (TaskExecutionCompleted) EventType() Type { return TypeTaskExecutionCompleted }

// TaskExecutionFailure is emitted after a terminal or retryable failure.
type TaskExecutionFailure struct {
	TaskType           string        `json:"task_type"`
	TaskID             string        `json:"task_id"`
	WorkflowInstanceID string        `json:"workflow_instance_id"`
	WorkerID           string        `json:"worker_id"`
	Duration           time.Duration `json:"duration"`
	Cause              error         `json:"-"`
}

func (TaskExecutionFailure) EventType() Type { return TypeTaskExecutionFailure }

// TaskUpdateCompleted is emitted after a result update is accepted.
type TaskUpdateCompleted struct {
	TaskType string        `json:"task_type"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

func (TaskUpdateCompleted) EventType() Type { return TypeTaskUpdateCompleted }

// TaskUpdateFailure is emitted when an update fails after its retries.
type TaskUpdateFailure struct {
	TaskType string        `json:"task_type"`
	Duration time.Duration `json:"duration"`
	Cause    error         `json:"-"`
}

func (TaskUpdateFailure) EventType() Type { return TypeTaskUpdateFailure }

// TaskPaused is emitted on every cycle a paused worker skips polling.
type TaskPaused struct {
	TaskType string `json:"task_type"`
}

func (TaskPaused) EventType() Type { return TypeTaskPaused }

// WorkerRestarted is emitted when the supervisor restarts a crashed runner.
type WorkerRestarted struct {
	TaskType string `json:"task_type"`
	Restarts int    `json:"restarts"`
}

func (WorkerRestarted) EventType() Type { return TypeWorkerRestarted }

// HTTPRequest is emitted for every transport request regardless of outcome.
// URI is the route pattern, not the concrete path, to keep label
// cardinality bounded.
type HTTPRequest struct {
	Method   string        `json:"method"`
	URI      string        `json:"uri"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
}

func (HTTPRequest) EventType() Type { return TypeHTTPRequest }
