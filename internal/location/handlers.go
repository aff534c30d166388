package location

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

// Module команды и запросы локаций
type Module struct {
	records   repository.Repository[Record]
	emitter   *eventsourcing.Emitter
	registrar *Registrar
	queries   *QueryService
	logger    *zap.Logger
}

// NewModule создает модуль. Репозиторий записей должен поддерживать DeleteBy по "userId".
func NewModule(records repository.Repository[Record], emitter *eventsourcing.Emitter, registrar *Registrar, queries *QueryService, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{
		records:   records,
		emitter:   emitter,
		registrar: registrar,
		queries:   queries,
		logger:    logger.Named("location"),
	}
}

func (m *Module) Name() string { return "location" }

// RegisterHandlers реализует cqrs.Module
func (m *Module) RegisterHandlers(r *cqrs.Registry) error {
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Save)); err != nil {
		return err
	}
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.DeleteUser)); err != nil {
		return err
	}
	if err := r.RegisterQueryHandler(transport.NewQueryHandler(m.Current)); err != nil {
		return err
	}
	return r.RegisterQueryHandler(transport.NewQueryHandler(m.UserLocations))
}

// Subscriptions подписки проектора представлений
func (m *Module) Subscriptions() []events.Subscription {
	return []events.Subscription{
		{Name: "location-view:saved", EventType: EventLocationSaved, Handler: events.Typed(m.onSaved)},
		{Name: "location-view:deleted", EventType: EventUserLocationsDeleted, Handler: events.Typed(m.onDeleted)},
	}
}

// Save сохраняет запись о местоположении и возвращает ее id
func (m *Module) Save(ctx context.Context, cmd SaveLocationCommand) (interface{}, error) {
	locationType, err := ParseType(cmd.LocationType)
	if err != nil {
		return nil, core.Wrap(err, core.KindInvalidArgument, "invalid location type")
	}

	rec := Record{
		LocationID:   uuid.New().String(),
		UserID:       cmd.UserID,
		Latitude:     cmd.Latitude,
		Longitude:    cmd.Longitude,
		LocationType: locationType,
		IsAgreed:     cmd.IsAgreed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := m.records.Insert(ctx, rec); err != nil {
		m.logger.Error("failed to save location", zap.String("user_id", cmd.UserID), zap.Error(err))
		return nil, err
	}

	_, err = m.emitter.Emit(ctx, LocationSaved{
		BaseEvent:    events.NewBaseEvent(EventLocationSaved, AggregateType, rec.LocationID),
		LocationID:   rec.LocationID,
		UserID:       rec.UserID,
		Latitude:     rec.Latitude,
		Longitude:    rec.Longitude,
		LocationType: rec.LocationType,
		IsAgreed:     rec.IsAgreed,
	})
	if err != nil {
		return nil, err
	}
	return rec.LocationID, nil
}

// DeleteUser удаляет все записи пользователя. Пользователь без записей
// только логируется.
func (m *Module) DeleteUser(ctx context.Context, cmd DeleteUserLocationsCommand) (interface{}, error) {
	n, err := m.records.DeleteBy(ctx, userField, cmd.UserID)
	if err != nil {
		m.logger.Error("failed to delete locations", zap.String("user_id", cmd.UserID), zap.Error(err))
		return nil, err
	}
	if n == 0 {
		m.logger.Warn("no locations found", zap.String("user_id", cmd.UserID))
		return nil, nil
	}

	_, err = m.emitter.Emit(ctx, UserLocationsDeleted{
		BaseEvent: events.NewBaseEvent(EventUserLocationsDeleted, AggregateType, cmd.UserID),
		UserID:    cmd.UserID,
		Deleted:   n,
	})
	if err != nil {
		return nil, err
	}
	return cmd.UserID, nil
}

// Current возвращает текущую локацию пользователя или nil
func (m *Module) Current(ctx context.Context, q CurrentLocationQuery) (interface{}, error) {
	v, err := m.queries.FindCurrentLocation(ctx, q.UserID)
	if err != nil || v == nil {
		return nil, err
	}
	return *v, nil
}

// UserLocations возвращает все локации пользователя с адресами
func (m *Module) UserLocations(ctx context.Context, q UserLocationsQuery) (interface{}, error) {
	return m.queries.FindAllLocations(ctx, q.UserID)
}

func (m *Module) onSaved(ctx context.Context, e LocationSaved) error {
	_, err := m.registrar.Create(ctx, View{
		LocationID:   e.LocationID,
		UserID:       e.UserID,
		Latitude:     e.Latitude,
		Longitude:    e.Longitude,
		IsCurrent:    true,
		LocationType: e.LocationType,
		IsAgreed:     e.IsAgreed,
		UpdatedAt:    e.OccurredAt().UTC(),
	})
	return err
}

func (m *Module) onDeleted(ctx context.Context, e UserLocationsDeleted) error {
	_, err := m.registrar.DeleteAll(ctx, e.UserID)
	return err
}
