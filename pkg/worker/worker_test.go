package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conductorsdk/worker-go/pkg/model"
)

func echoHandler(ctx context.Context, t *model.Task) (interface{}, error) {
	return t.InputData, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", echoHandler)
	assert.ErrorIs(t, err, ErrEmptyTaskDefName)

	_, err = New("greet", nil)
	assert.ErrorIs(t, err, ErrNilHandler)

	_, err = New("greet", echoHandler, WithThreadCount(0))
	assert.ErrorIs(t, err, ErrBadThreadCount)

	_, err = New("greet", echoHandler, WithThreadCount(-3))
	assert.ErrorIs(t, err, ErrBadThreadCount)
}

func TestNew_Options(t *testing.T) {
	w, err := New("greet", echoHandler,
		WithPollInterval(250*time.Millisecond),
		WithThreadCount(4),
		WithDomain("payments"),
		WithWorkerID("worker-7"),
		WithPollTimeout(500*time.Millisecond),
		WithLeaseExtendEnabled(false),
		WithRegisterTaskDef(true),
		WithOverwriteTaskDef(false),
		WithStrictSchema(true),
		WithDescription("test worker"))
	require.NoError(t, err)

	defaults := w.Defaults()
	assert.Equal(t, 250, defaults.PollIntervalMillis)
	assert.Equal(t, 4, defaults.ThreadCount)
	assert.Equal(t, "payments", defaults.Domain)
	assert.Equal(t, "worker-7", defaults.WorkerID)
	assert.Equal(t, 500, defaults.PollTimeoutMillis)
	assert.False(t, defaults.LeaseExtendEnabled)
	assert.True(t, defaults.RegisterTaskDef)
	assert.False(t, defaults.OverwriteTaskDef)
	assert.True(t, defaults.StrictSchema)
}

func TestWorker_Execute(t *testing.T) {
	w, err := New("greet", echoHandler)
	require.NoError(t, err)

	out, err := w.Execute(context.Background(), &model.Task{
		InputData: map[string]interface{}{"name": "World"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "World"}, out)
}

func TestWorker_TaskDef(t *testing.T) {
	w, err := NewTyped("greet", func(ctx context.Context, in struct {
		Name string `json:"name"`
	}) (interface{}, error) {
		return nil, nil
	}, WithDescription("greets people"))
	require.NoError(t, err)

	def := w.TaskDef()
	assert.Equal(t, "greet", def.Name)
	assert.Equal(t, "greets people", def.Description)
	require.NotNil(t, def.InputSchema)
	assert.Equal(t, "JSON", def.InputSchema.Type)
	assert.Equal(t, "greet_input", def.InputSchema.Name)
}

func TestRegistry(t *testing.T) {
	first, err := New("alpha", echoHandler)
	require.NoError(t, err)
	second, err := New("beta", echoHandler)
	require.NoError(t, err)

	r, err := NewRegistry(first, second)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	got, ok := r.Get("alpha")
	assert.True(t, ok)
	assert.Same(t, first, got)

	_, ok = r.Get("missing")
	assert.False(t, ok)

	// One worker per task type per process.
	dup, err := New("alpha", echoHandler)
	require.NoError(t, err)
	assert.Error(t, r.Register(dup))

	all := r.All()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].TaskDefName())
	assert.Equal(t, "beta", all[1].TaskDefName())
}

func TestRegistry_Freeze(t *testing.T) {
	w, err := New("alpha", echoHandler)
	require.NoError(t, err)

	r, err := NewRegistry(w)
	require.NoError(t, err)
	r.Freeze()

	late, err := New("beta", echoHandler)
	require.NoError(t, err)
	assert.Error(t, r.Register(late))
}
