package worker

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorsdk/worker-go/internal/config"
	"github.com/conductorsdk/worker-go/pkg/model"
)

type greetInput struct {
	Name  string `json:"name"`
	Count int    `json:"count,omitempty"`
}

func TestNewTyped_BindsByName(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, in greetInput) (interface{}, error) {
		return fmt.Sprintf("Hello %s x%d", in.Name, in.Count), nil
	})
	require.NoError(t, err)

	out, err := w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"name": "World", "count": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello World x2", out)
}

func TestNewTyped_IgnoresUnknownKeysByDefault(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, in greetInput) (interface{}, error) {
		return in.Name, nil
	})
	require.NoError(t, err)

	out, err := w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"name": "World", "extra": true},
	})
	require.NoError(t, err)
	assert.Equal(t, "World", out)
}

func TestNewTyped_StrictSchemaRejectsUnknownKeys(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, in greetInput) (interface{}, error) {
		return in.Name, nil
	})
	require.NoError(t, err)

	props := config.DefaultWorkerProperties()
	props.StrictSchema = true
	w.SetResolved(props)

	_, err = w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"name": "World", "extra": true},
	})
	require.Error(t, err)
	assert.True(t, model.IsNonRetryable(err))
	assert.Contains(t, err.Error(), "schema violation")
}

func TestNewTyped_WholeTaskParameter(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, task *model.Task) (interface{}, error) {
		return task.TaskID, nil
	})
	require.NoError(t, err)

	out, err := w.Execute(context.Background(), &model.Task{TaskID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "t1", out)
}

func TestNewTyped_MapParameter(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, in map[string]interface{}) (interface{}, error) {
		return in["name"], nil
	})
	require.NoError(t, err)

	out, err := w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"name": "World"},
	})
	require.NoError(t, err)
	assert.Equal(t, "World", out)

	// nil inputData binds to an empty map, not nil.
	out, err = w.Execute(context.Background(), &model.Task{})
	require.NoError(t, err)
	assert.Nil(t, out)
}

func TestNewTyped_NilHandler(t *testing.T) {
	_, err := NewTyped[greetInput]("greet", nil)
	assert.ErrorIs(t, err, ErrNilHandler)
}

func TestNewTyped_PrimitiveCoercion(t *testing.T) {
	w, err := NewTyped("sum", func(ctx context.Context, in struct {
		A int     `json:"a"`
		B float64 `json:"b"`
	}) (interface{}, error) {
		return float64(in.A) + in.B, nil
	})
	require.NoError(t, err)

	// JSON numbers arrive as float64; integral values coerce to int fields.
	out, err := w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"a": float64(2), "b": 1.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 3.5, out)
}
