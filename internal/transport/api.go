package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/conductorsdk/worker-go/pkg/model"
)

// BatchPoll requests up to count pending tasks of the given type, holding
// the request open server-side for up to timeout. An empty response means
// no work is available.
func (c *Client) BatchPoll(ctx context.Context, taskType, workerID, domain string, count int, timeout time.Duration) ([]model.Task, error) {
	query := url.Values{}
	query.Set("workerid", workerID)
	query.Set("count", strconv.Itoa(count))
	query.Set("timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if domain != "" {
		query.Set("domain", domain)
	}

	var tasks []model.Task
	_, err := c.do(ctx, request{
		method:     http.MethodGet,
		pattern:    "/tasks/poll/batch/{taskType}",
		path:       "/tasks/poll/batch/" + url.PathEscape(taskType),
		query:      query,
		out:        &tasks,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// UpdateTask submits a result on the legacy endpoint. The response carries
// only an acknowledgment.
func (c *Client) UpdateTask(ctx context.Context, result *model.TaskResult) error {
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		pattern: "/tasks",
		path:    "/tasks",
		body:    result,
	})
	return err
}

// UpdateTaskV2 submits a result on the V2 endpoint. The server may answer
// with the next pending task of the same type; a response without a taskId
// is treated as empty.
func (c *Client) UpdateTaskV2(ctx context.Context, result *model.TaskResult) (*model.Task, error) {
	var next model.Task
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		pattern: "/tasks/update-v2",
		path:    "/tasks/update-v2",
		body:    result,
		out:     &next,
	})
	if err != nil {
		return nil, err
	}
	if next.TaskID == "" {
		return nil, nil
	}
	return &next, nil
}

// LogForTask appends one execution log line to a task.
func (c *Client) LogForTask(ctx context.Context, taskID, line string) error {
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		pattern: "/tasks/{taskId}/log",
		path:    "/tasks/" + url.PathEscape(taskID) + "/log",
		body:    line,
	})
	return err
}

// GetTask fetches a task by id. Diagnostic use only.
func (c *Client) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	var t model.Task
	_, err := c.do(ctx, request{
		method:     http.MethodGet,
		pattern:    "/tasks/{taskId}",
		path:       "/tasks/" + url.PathEscape(taskID),
		out:        &t,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// QueueSize returns the pending queue depth for a task type.
func (c *Client) QueueSize(ctx context.Context, taskType string) (int, error) {
	query := url.Values{}
	query.Set("taskType", taskType)

	var sizes map[string]int
	_, err := c.do(ctx, request{
		method:     http.MethodGet,
		pattern:    "/tasks/queue/sizes",
		path:       "/tasks/queue/sizes",
		query:      query,
		out:        &sizes,
		idempotent: true,
	})
	if err != nil {
		return 0, err
	}
	return sizes[taskType], nil
}

// RegisterTaskDef registers a task definition with the server at startup.
// With overwrite false, an existing definition is left untouched.
func (c *Client) RegisterTaskDef(ctx context.Context, def *model.TaskDef, overwrite bool) error {
	if !overwrite {
		if existing, err := c.getTaskDef(ctx, def.Name); err == nil && existing != nil {
			return nil
		}
	}
	_, err := c.do(ctx, request{
		method:  http.MethodPost,
		pattern: "/metadata/taskdefs",
		path:    "/metadata/taskdefs",
		body:    []*model.TaskDef{def},
	})
	if err != nil {
		return fmt.Errorf("failed to register task definition %s: %w", def.Name, err)
	}
	return nil
}

func (c *Client) getTaskDef(ctx context.Context, name string) (*model.TaskDef, error) {
	var def model.TaskDef
	_, err := c.do(ctx, request{
		method:     http.MethodGet,
		pattern:    "/metadata/taskdefs/{name}",
		path:       "/metadata/taskdefs/" + url.PathEscape(name),
		out:        &def,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, nil
	}
	return &def, nil
}
