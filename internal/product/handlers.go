package product

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
	"github.com/akriventsev/commerce/framework/outbox"
	"github.com/akriventsev/commerce/framework/transport"
	"github.com/akriventsev/commerce/internal/inventory"
)

// Module обработчики команд и запросов товаров
type Module struct {
	products  repository.Repository[Product]
	projector *Projector
	emitter   *eventsourcing.Emitter
	cascade   *outbox.Outbox
	logger    *zap.Logger
}

// NewModule создает модуль. cascade получает команду удаления остатка.
func NewModule(
	products repository.Repository[Product],
	projector *Projector,
	emitter *eventsourcing.Emitter,
	cascade *outbox.Outbox,
	logger *zap.Logger,
) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		products:  products,
		projector: projector,
		emitter:   emitter,
		cascade:   cascade,
		logger:    logger.Named("product"),
	}
}

func (m *Module) Name() string { return "product" }

// RegisterHandlers реализует cqrs.Module
func (m *Module) RegisterHandlers(r *cqrs.Registry) error {
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Create)); err != nil {
		return err
	}
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Delete)); err != nil {
		return err
	}
	if err := r.RegisterQueryHandler(transport.NewQueryHandler(m.projector.Get)); err != nil {
		return err
	}
	return r.RegisterQueryHandler(transport.NewQueryHandler(m.projector.BySeller))
}

// Subscriptions подписки проектора
func (m *Module) Subscriptions() []events.Subscription {
	return m.projector.Subscriptions()
}

// Create сохраняет товар и возвращает его id
func (m *Module) Create(ctx context.Context, cmd CreateProductCommand) (interface{}, error) {
	p := Product{
		ProductID:   uuid.New().String(),
		SellerID:    cmd.SellerID,
		Name:        cmd.Name,
		Price:       cmd.Price,
		Description: cmd.Description,
		Status:      StatusActive,
		CreatedAt:   time.Now().UTC(),
	}
	if err := m.products.Insert(ctx, p); err != nil {
		m.logger.Error("failed to create product", zap.String("product_id", p.ProductID), zap.Error(err))
		return nil, err
	}

	_, err := m.emitter.Emit(ctx, ProductCreated{
		BaseEvent: events.NewBaseEvent(EventProductCreated, AggregateType, p.ProductID),
		ProductID: p.ProductID,
		SellerID:  p.SellerID,
		Name:      p.Name,
		Price:     p.Price,
	})
	if err != nil {
		return nil, err
	}
	return p.ProductID, nil
}

// Delete удаляет товар и ставит удаление остатка в outbox.
// Отсутствующий товар не ошибка: ни команды, ни события не создаются.
// Исключение: если в журнале товара нет завершающего ProductDeleted,
// предыдущее удаление прервалось после удаления записи, и каскад с
// событием повторяются.
func (m *Module) Delete(ctx context.Context, cmd DeleteProductCommand) (interface{}, error) {
	err := m.products.Delete(ctx, cmd.ID)
	if core.IsKind(err, core.KindNotFound) {
		interrupted, histErr := m.deletionInterrupted(ctx, cmd.ID)
		if histErr != nil {
			return nil, histErr
		}
		if !interrupted {
			m.logger.Warn("no product found", zap.String("product_id", cmd.ID))
			return nil, nil
		}
		m.logger.Warn("resuming interrupted product deletion", zap.String("product_id", cmd.ID))
		return m.completeDelete(ctx, cmd.ID)
	}
	if err != nil {
		m.logger.Error("failed to delete product", zap.String("product_id", cmd.ID), zap.Error(err))
		return nil, err
	}
	m.logger.Info("product deleted", zap.String("product_id", cmd.ID))
	return m.completeDelete(ctx, cmd.ID)
}

// completeDelete ставит каскад в outbox и фиксирует ProductDeleted.
// Повтор каскада безопасен: удаление отсутствующего остатка это no-op.
func (m *Module) completeDelete(ctx context.Context, id string) (interface{}, error) {
	entry, err := m.cascade.Enqueue(ctx, inventory.DeleteInventoryCommand{ID: id})
	if err != nil {
		m.logger.Error("failed to enqueue inventory deletion", zap.String("product_id", id), zap.Error(err))
		return nil, err
	}
	m.logger.Info("inventory deletion enqueued",
		zap.String("product_id", id),
		zap.String("entry_id", entry.ID))

	_, err = m.emitter.Emit(ctx, ProductDeleted{
		BaseEvent: events.NewBaseEvent(EventProductDeleted, AggregateType, id),
		ProductID: id,
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// deletionInterrupted сообщает, что товар известен журналу, но последнее
// событие в его потоке не ProductDeleted
func (m *Module) deletionInterrupted(ctx context.Context, id string) (bool, error) {
	history, err := m.emitter.History(ctx, id)
	if err != nil {
		m.logger.Error("failed to read product history", zap.String("product_id", id), zap.Error(err))
		return false, core.Wrap(err, core.KindPropagated, "failed to read product history")
	}
	if len(history) == 0 {
		return false, nil
	}
	return history[len(history)-1].EventType != EventProductDeleted, nil
}
