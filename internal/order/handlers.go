package order

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/cqrs"
	"github.com/akriventsev/commerce/framework/eventsourcing"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/transport"
)

// Module обработчики заказов. Хранилище должно поддерживать FindBy по "userId".
type Module struct {
	orders  repository.Repository[Order]
	emitter *eventsourcing.Emitter
	logger  *zap.Logger
}

// NewModule создает модуль
func NewModule(orders repository.Repository[Order], emitter *eventsourcing.Emitter, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{orders: orders, emitter: emitter, logger: logger.Named("order")}
}

// NewInMemoryOrders создает in-memory хранилище с индексом пользователя
func NewInMemoryOrders() *repository.InMemoryRepository[Order] {
	return repository.NewInMemoryRepository[Order](repository.DefaultInMemoryConfig()).
		AddIndex("userId", func(o Order) string { return o.UserID })
}

func (m *Module) Name() string { return "order" }

// RegisterHandlers реализует cqrs.Module
func (m *Module) RegisterHandlers(r *cqrs.Registry) error {
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Create)); err != nil {
		return err
	}
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Delete)); err != nil {
		return err
	}
	if err := r.RegisterQueryHandler(transport.NewQueryHandler(m.Get)); err != nil {
		return err
	}
	return r.RegisterQueryHandler(transport.NewQueryHandler(m.ByUser))
}

// Create сохраняет заказ в статусе PENDING и возвращает его id
func (m *Module) Create(ctx context.Context, cmd CreateOrderCommand) (interface{}, error) {
	o := Order{
		OrderID:       uuid.New().String(),
		UserID:        cmd.UserID,
		TotalAmount:   cmd.TotalAmount,
		TotalPrice:    cmd.TotalPrice,
		PickupTime:    cmd.PickupTime.UTC(),
		PaymentMethod: cmd.PaymentMethod,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.orders.Insert(ctx, o); err != nil {
		m.logger.Error("failed to create order", zap.String("user_id", cmd.UserID), zap.Error(err))
		return nil, err
	}

	_, err := m.emitter.Emit(ctx, OrderCreated{
		BaseEvent:   events.NewBaseEvent(EventOrderCreated, AggregateType, o.OrderID),
		OrderID:     o.OrderID,
		UserID:      o.UserID,
		TotalAmount: o.TotalAmount,
		TotalPrice:  o.TotalPrice,
	})
	if err != nil {
		return nil, err
	}
	return o.OrderID, nil
}

// Delete удаляет заказ. Отсутствующий заказ только логируется.
func (m *Module) Delete(ctx context.Context, cmd DeleteOrderCommand) (interface{}, error) {
	err := m.orders.Delete(ctx, cmd.ID)
	if core.IsKind(err, core.KindNotFound) {
		m.logger.Warn("no order found", zap.String("order_id", cmd.ID))
		return nil, nil
	}
	if err != nil {
		m.logger.Error("failed to delete order", zap.String("order_id", cmd.ID), zap.Error(err))
		return nil, err
	}

	_, err = m.emitter.Emit(ctx, OrderDeleted{
		BaseEvent: events.NewBaseEvent(EventOrderDeleted, AggregateType, cmd.ID),
		OrderID:   cmd.ID,
	})
	if err != nil {
		return nil, err
	}
	return cmd.ID, nil
}

// Get возвращает заказ по id
func (m *Module) Get(ctx context.Context, q OrderQuery) (interface{}, error) {
	return m.orders.FindByID(ctx, q.ID)
}

// ByUser возвращает заказы пользователя
func (m *Module) ByUser(ctx context.Context, q OrdersByUserQuery) (interface{}, error) {
	return m.orders.FindBy(ctx, "userId", q.UserID)
}
