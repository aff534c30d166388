package transport

import (
	"context"
	"fmt"
)

// Query представляет запрос CQRS
type Query interface {
	QueryName() string
}

// QueryHandler обработчик запросов
type QueryHandler interface {
	Handle(ctx context.Context, q Query) (interface{}, error)
	QueryName() string
}

// QueryFunc типизированная функция-обработчик запроса
type QueryFunc[Q Query] func(ctx context.Context, q Q) (interface{}, error)

type queryFuncHandler[Q Query] struct {
	name string
	fn   QueryFunc[Q]
}

// NewQueryHandler оборачивает типизированную функцию в QueryHandler
func NewQueryHandler[Q Query](fn QueryFunc[Q]) QueryHandler {
	var zero Q
	return &queryFuncHandler[Q]{name: zero.QueryName(), fn: fn}
}

func (h *queryFuncHandler[Q]) Handle(ctx context.Context, q Query) (interface{}, error) {
	typed, ok := q.(Q)
	if !ok {
		return nil, fmt.Errorf("unexpected query type %T for %s", q, h.name)
	}
	return h.fn(ctx, typed)
}

func (h *queryFuncHandler[Q]) QueryName() string {
	return h.name
}

// QueryInterceptor интерфейс для перехвата запросов
type QueryInterceptor interface {
	Intercept(ctx context.Context, q Query, next func(ctx context.Context, q Query) (interface{}, error)) (interface{}, error)
}

// QueryBus шина запросов
type QueryBus interface {
	Ask(ctx context.Context, q Query) (interface{}, error)
	Register(handler QueryHandler) error
}

// Ask выполняет запрос и приводит результат к ожидаемому типу
func Ask[R any](ctx context.Context, bus QueryBus, q Query) (R, error) {
	var zero R
	result, err := bus.Ask(ctx, q)
	if err != nil {
		return zero, err
	}
	if result == nil {
		return zero, nil
	}
	typed, ok := result.(R)
	if !ok {
		return zero, fmt.Errorf("query %s returned %T, expected %T", q.QueryName(), result, zero)
	}
	return typed, nil
}
