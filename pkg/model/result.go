package model

import (
	"encoding/json"
	"time"
)

// TaskResultStatus is the outcome a worker reports for a task.
type TaskResultStatus string

const (
	ResultCompleted     TaskResultStatus = "COMPLETED"
	ResultFailed        TaskResultStatus = "FAILED"
	ResultTerminalError TaskResultStatus = "FAILED_WITH_TERMINAL_ERROR"
	ResultInProgress    TaskResultStatus = "IN_PROGRESS"
)

// IsTerminal reports whether the status ends the task from the worker's
// point of view. IN_PROGRESS keeps the lease alive and expects a later
// terminal update.
func (s TaskResultStatus) IsTerminal() bool {
	return s == ResultCompleted || s == ResultFailed || s == ResultTerminalError
}

// TaskExecLog is one execution log line attached to a result.
type TaskExecLog struct {
	Log         string `json:"log"`
	CreatedTime int64  `json:"createdTime"`
	TaskID      string `json:"taskId,omitempty"`
}

// NewTaskExecLog stamps a log line with the current time in epoch millis.
func NewTaskExecLog(taskID, line string) TaskExecLog {
	return TaskExecLog{
		Log:         line,
		CreatedTime: time.Now().UnixMilli(),
		TaskID:      taskID,
	}
}

// TaskResult is what the worker sends back for a polled task.
type TaskResult struct {
	TaskID                string                 `json:"taskId"`
	WorkflowInstanceID    string                 `json:"workflowInstanceId"`
	Status                TaskResultStatus       `json:"status"`
	OutputData            map[string]interface{} `json:"outputData,omitempty"`
	ReasonForIncompletion string                 `json:"reasonForIncompletion,omitempty"`
	Logs                  []TaskExecLog          `json:"logs,omitempty"`
	WorkerID              string                 `json:"workerId,omitempty"`
	ExtendLease           bool                   `json:"extendLease,omitempty"`
	CallbackAfterSeconds  int64                  `json:"callbackAfterSeconds,omitempty"`
}

// NewTaskResult seeds a result with the identity of the task it answers.
func NewTaskResult(t *Task) *TaskResult {
	return &TaskResult{
		TaskID:             t.TaskID,
		WorkflowInstanceID: t.WorkflowInstanceID,
	}
}

// AddLog appends an execution log line to the result.
func (r *TaskResult) AddLog(line string) {
	r.Logs = append(r.Logs, NewTaskExecLog(r.TaskID, line))
}

// OutputSize returns the serialized size of the output data in bytes.
// Used for result-size metrics; a result that fails to serialize counts
// as zero.
func (r *TaskResult) OutputSize() int {
	if len(r.OutputData) == 0 {
		return 0
	}
	data, err := json.Marshal(r.OutputData)
	if err != nil {
		return 0
	}
	return len(data)
}

// TaskInProgress is the sentinel a handler returns to explicitly keep the
// lease with a snapshot of partial output. The runner turns it into an
// IN_PROGRESS update carrying CallbackAfterSeconds.
type TaskInProgress struct {
	OutputData           map[string]interface{}
	CallbackAfterSeconds int64
}
