package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/conductorsdk/worker-go/pkg/model"
)

// NewTyped registers a handler whose input parameter is bound from the
// task's inputData by JSON field name, with primitive coercion. The binding
// adapter and the draft-07 input schema are generated once here; execution
// does no reflection beyond the JSON round trip.
//
// Special input shapes:
//   - *model.Task receives the whole task.
//   - map[string]interface{} receives inputData verbatim.
//
// With strict_schema resolved true, unknown inputData keys fail the task
// with FAILED_WITH_TERMINAL_ERROR; otherwise they are ignored.
func NewTyped[I any](taskDefName string, fn func(ctx context.Context, input I) (interface{}, error), opts ...Option) (*Worker, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: %s", ErrNilHandler, taskDefName)
	}

	bind := binderFor[I]()

	var w *Worker
	execute := func(ctx context.Context, t *model.Task) (interface{}, error) {
		input, err := bind(t, w.resolved.StrictSchema)
		if err != nil {
			if w.resolved.StrictSchema {
				return nil, model.NewNonRetryableError(fmt.Errorf("input schema violation: %w", err))
			}
			return nil, fmt.Errorf("failed to bind task input: %w", err)
		}
		return fn(ctx, input)
	}

	w, err := New(taskDefName, execute, opts...)
	if err != nil {
		return nil, err
	}
	w.inputSchema = generateSchema(reflect.TypeOf((*I)(nil)).Elem())
	return w, nil
}

// binderFor resolves the binding strategy for the input type once, at
// registration.
func binderFor[I any]() func(t *model.Task, strict bool) (I, error) {
	var zero I
	switch any(zero).(type) {
	case *model.Task:
		return func(t *model.Task, _ bool) (I, error) {
			return any(t).(I), nil
		}
	case map[string]interface{}:
		return func(t *model.Task, _ bool) (I, error) {
			data := t.InputData
			if data == nil {
				data = map[string]interface{}{}
			}
			return any(data).(I), nil
		}
	default:
		return func(t *model.Task, strict bool) (I, error) {
			var input I
			data, err := json.Marshal(t.InputData)
			if err != nil {
				return input, err
			}
			dec := json.NewDecoder(bytes.NewReader(data))
			if strict {
				dec.DisallowUnknownFields()
			}
			if err := dec.Decode(&input); err != nil {
				return input, err
			}
			return input, nil
		}
	}
}
