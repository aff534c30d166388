package inventory

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/cqrs"
	"github.com/akriventsev/commerce/framework/eventsourcing"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/outbox"
	"github.com/akriventsev/commerce/framework/transport"
)

// Module обработчики команд и запросов склада
type Module struct {
	repo    repository.Repository[Inventory]
	emitter *eventsourcing.Emitter
	logger  *zap.Logger
}

// NewModule создает модуль
func NewModule(repo repository.Repository[Inventory], emitter *eventsourcing.Emitter, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{repo: repo, emitter: emitter, logger: logger.Named("inventory")}
}

func (m *Module) Name() string { return "inventory" }

// RegisterHandlers реализует cqrs.Module
func (m *Module) RegisterHandlers(r *cqrs.Registry) error {
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Set)); err != nil {
		return err
	}
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Delete)); err != nil {
		return err
	}
	return r.RegisterQueryHandler(transport.NewQueryHandler(m.Get))
}

// RegisterOutboxCommands регистрирует команды, которые другие модули ставят в outbox
func (m *Module) RegisterOutboxCommands(codec *outbox.Codec) {
	outbox.RegisterCommand[DeleteInventoryCommand](codec)
}

// Set сохраняет остаток и возвращает id товара
func (m *Module) Set(ctx context.Context, cmd SetInventoryCommand) (interface{}, error) {
	item := Inventory{
		ProductID: cmd.ProductID,
		Quantity:  cmd.Quantity,
		UpdatedAt: time.Now().UTC(),
	}
	if err := m.repo.Save(ctx, item); err != nil {
		m.logger.Error("failed to save inventory", zap.String("product_id", cmd.ProductID), zap.Error(err))
		return nil, err
	}

	_, err := m.emitter.Emit(ctx, InventoryUpdated{
		BaseEvent: events.NewBaseEvent(EventInventoryUpdated, AggregateType, cmd.ProductID),
		ProductID: cmd.ProductID,
		Quantity:  cmd.Quantity,
	})
	if err != nil {
		return nil, err
	}
	return cmd.ProductID, nil
}

// Delete удаляет остаток. Отсутствие записи не ошибка: команда приходит
// из outbox и может быть доставлена повторно.
func (m *Module) Delete(ctx context.Context, cmd DeleteInventoryCommand) (interface{}, error) {
	err := m.repo.Delete(ctx, cmd.ID)
	if core.IsKind(err, core.KindNotFound) {
		m.logger.Warn("no inventory found", zap.String("product_id", cmd.ID))
		return nil, nil
	}
	if err != nil {
		m.logger.Error("failed to delete inventory", zap.String("product_id", cmd.ID), zap.Error(err))
		return nil, err
	}

	_, err = m.emitter.Emit(ctx, InventoryDeleted{
		BaseEvent: events.NewBaseEvent(EventInventoryDeleted, AggregateType, cmd.ID),
		ProductID: cmd.ID,
	})
	if err != nil {
		return nil, err
	}
	return cmd.ID, nil
}

// Get возвращает остаток товара
func (m *Module) Get(ctx context.Context, q InventoryQuery) (interface{}, error) {
	return m.repo.FindByID(ctx, q.ProductID)
}
