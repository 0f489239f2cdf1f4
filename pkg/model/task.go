package model

import (
	"encoding/json"
	"time"
)

// TaskStatus is the server-side task state as seen by a worker.
type TaskStatus string

const (
	TaskStatusScheduled  TaskStatus = "SCHEDULED"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusTimedOut   TaskStatus = "TIMED_OUT"
	TaskStatusCanceled   TaskStatus = "CANCELED"
)

// Task is the unit of work handed out by the orchestrator on a poll.
// Only the fields consumed by the worker runtime are modelled.
type Task struct {
	TaskID                 string                 `json:"taskId"`
	TaskDefName            string                 `json:"taskDefName"`
	WorkflowInstanceID     string                 `json:"workflowInstanceId"`
	ReferenceTaskName      string                 `json:"referenceTaskName,omitempty"`
	InputData              map[string]interface{} `json:"inputData,omitempty"`
	PollCount              int                    `json:"pollCount,omitempty"`
	ResponseTimeoutSeconds int64                  `json:"responseTimeoutSeconds,omitempty"`
	RetryCount             int                    `json:"retryCount,omitempty"`
	Status                 TaskStatus             `json:"status,omitempty"`
	CallbackAfterSeconds   int64                  `json:"callbackAfterSeconds,omitempty"`
	WorkerID               string                 `json:"workerId,omitempty"`
	Domain                 string                 `json:"domain,omitempty"`
}

// ResponseTimeout returns the task's lease duration, or zero when the
// server did not set one.
func (t *Task) ResponseTimeout() time.Duration {
	if t.ResponseTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(t.ResponseTimeoutSeconds) * time.Second
}

// ToJSON serializes the task to its wire form.
func (t *Task) ToJSON() ([]byte, error) {
	return json.Marshal(t)
}

// TaskFromJSON deserializes a task from its wire form.
func TaskFromJSON(data []byte) (*Task, error) {
	var t Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
