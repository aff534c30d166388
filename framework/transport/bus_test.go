package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akriventsev/commerce/framework/core"
)

type pingCommand struct {
	ID string
}

func (pingCommand) CommandName() string { return "ping" }

type otherCommand struct{}

func (otherCommand) CommandName() string { return "other" }

type echoQuery struct {
	Value string
}

func (echoQuery) QueryName() string { return "echo" }

type recordingInterceptor struct {
	name  string
	calls *[]string
}

func (i recordingInterceptor) Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) (interface{}, error)) (interface{}, error) {
	*i.calls = append(*i.calls, i.name)
	return next(ctx, cmd)
}

func TestCommandBus_DispatchReturnsHandlerResult(t *testing.T) {
	bus := NewInMemoryCommandBus()
	require.NoError(t, bus.Register(NewCommandHandler(func(ctx context.Context, cmd pingCommand) (interface{}, error) {
		return "pong:" + cmd.ID, nil
	})))

	result, err := Dispatch[string](context.Background(), bus, pingCommand{ID: "1"})
	require.NoError(t, err)
	assert.Equal(t, "pong:1", result)
	assert.True(t, bus.Has("ping"))
}

func TestCommandBus_UnhandledCommand(t *testing.T) {
	bus := NewInMemoryCommandBus()

	_, err := bus.Dispatch(context.Background(), otherCommand{})
	require.Error(t, err)
	assert.True(t, core.IsKind(err, core.KindUnhandledCommand))
}

func TestCommandBus_DuplicateRegistration(t *testing.T) {
	bus := NewInMemoryCommandBus()
	h := NewCommandHandler(func(ctx context.Context, cmd pingCommand) (interface{}, error) { return nil, nil })

	require.NoError(t, bus.Register(h))
	assert.Error(t, bus.Register(h))
}

func TestCommandBus_PropagatesHandlerError(t *testing.T) {
	bus := NewInMemoryCommandBus()
	boom := errors.New("boom")
	require.NoError(t, bus.Register(NewCommandHandler(func(ctx context.Context, cmd pingCommand) (interface{}, error) {
		return nil, boom
	})))

	_, err := bus.Dispatch(context.Background(), pingCommand{})
	assert.ErrorIs(t, err, boom)
}

func TestCommandBus_MiddlewareOrder(t *testing.T) {
	var calls []string
	bus := NewInMemoryCommandBus().WithMiddleware(
		recordingInterceptor{name: "first", calls: &calls},
		recordingInterceptor{name: "second", calls: &calls},
	)
	require.NoError(t, bus.Register(NewCommandHandler(func(ctx context.Context, cmd pingCommand) (interface{}, error) {
		calls = append(calls, "handler")
		return nil, nil
	})))

	_, err := bus.Dispatch(context.Background(), pingCommand{})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "handler"}, calls)
}

func TestDispatch_WrongResultType(t *testing.T) {
	bus := NewInMemoryCommandBus()
	require.NoError(t, bus.Register(NewCommandHandler(func(ctx context.Context, cmd pingCommand) (interface{}, error) {
		return 42, nil
	})))

	_, err := Dispatch[string](context.Background(), bus, pingCommand{})
	assert.Error(t, err)
}

func TestQueryBus_Ask(t *testing.T) {
	bus := NewInMemoryQueryBus()
	require.NoError(t, bus.Register(NewQueryHandler(func(ctx context.Context, q echoQuery) (interface{}, error) {
		return q.Value, nil
	})))

	got, err := Ask[string](context.Background(), bus, echoQuery{Value: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "hi", got)

	_, err = NewInMemoryQueryBus().Ask(context.Background(), echoQuery{})
	assert.True(t, core.IsKind(err, core.KindUnhandledCommand))
}
