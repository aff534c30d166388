// Package transport предоставляет шины команд и запросов CQRS и абстракции брокера сообщений.
package transport

import (
	"context"
	"fmt"
)

// Command представляет команду CQRS
type Command interface {
	CommandName() string
}

// CommandHandler обработчик команд. Возвращает результат, который шина
// синхронно отдает вызывающему.
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (interface{}, error)
	CommandName() string
}

// CommandFunc типизированная функция-обработчик
type CommandFunc[C Command] func(ctx context.Context, cmd C) (interface{}, error)

type commandFuncHandler[C Command] struct {
	name string
	fn   CommandFunc[C]
}

// NewCommandHandler оборачивает типизированную функцию в CommandHandler
func NewCommandHandler[C Command](fn CommandFunc[C]) CommandHandler {
	var zero C
	return &commandFuncHandler[C]{name: zero.CommandName(), fn: fn}
}

func (h *commandFuncHandler[C]) Handle(ctx context.Context, cmd Command) (interface{}, error) {
	typed, ok := cmd.(C)
	if !ok {
		return nil, fmt.Errorf("unexpected command type %T for %s", cmd, h.name)
	}
	return h.fn(ctx, typed)
}

func (h *commandFuncHandler[C]) CommandName() string {
	return h.name
}

// CommandInterceptor интерфейс для перехвата команд
type CommandInterceptor interface {
	Intercept(ctx context.Context, cmd Command, next func(ctx context.Context, cmd Command) (interface{}, error)) (interface{}, error)
}

// CommandBus шина команд
type CommandBus interface {
	Dispatch(ctx context.Context, cmd Command) (interface{}, error)
	Register(handler CommandHandler) error
}

// Dispatch отправляет команду и приводит результат к ожидаемому типу
func Dispatch[R any](ctx context.Context, bus CommandBus, cmd Command) (R, error) {
	var zero R
	result, err := bus.Dispatch(ctx, cmd)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("command %s returned %T, expected %T", cmd.CommandName(), result, zero)
	}
	return typed, nil
}
