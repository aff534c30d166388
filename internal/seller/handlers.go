package seller

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/cqrs"
	"github.com/akriventsev/commerce/framework/eventsourcing"
	"github.com/akriventsev/commerce/framework/events"
	"github.com/akriventsev/commerce/framework/transport"
)

const emailField = "email"

// Module регистрация продавцов. Хранилище должно поддерживать FindBy по "email".
type Module struct {
	sellers repository.Repository[Seller]
	emitter *eventsourcing.Emitter
	cost    int
	logger  *zap.Logger
}

// NewModule создает модуль
func NewModule(sellers repository.Repository[Seller], emitter *eventsourcing.Emitter, logger *zap.Logger) *Module {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Module{sellers: sellers, emitter: emitter, cost: bcrypt.DefaultCost, logger: logger.Named("seller")}
}

// NewInMemorySellers in-memory хранилище с индексом email
func NewInMemorySellers() *repository.InMemoryRepository[Seller] {
	return repository.NewInMemoryRepository[Seller](repository.DefaultInMemoryConfig()).
		AddIndex(emailField, func(s Seller) string { return s.Email })
}

func (m *Module) Name() string { return "seller" }

// RegisterHandlers реализует cqrs.Module
func (m *Module) RegisterHandlers(r *cqrs.Registry) error {
	if err := r.RegisterCommandHandler(transport.NewCommandHandler(m.Register)); err != nil {
		return err
	}
	return r.RegisterQueryHandler(transport.NewQueryHandler(m.Get))
}

// Register создает продавца и возвращает его id
func (m *Module) Register(ctx context.Context, cmd RegisterSellerCommand) (interface{}, error) {
	if cmd.Password != cmd.PwConfirm {
		return nil, core.NewError(core.KindInvalidArgument, "password confirmation does not match")
	}
	email := strings.ToLower(strings.TrimSpace(cmd.Email))

	existing, err := m.sellers.FindBy(ctx, emailField, email)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, core.Errorf(core.KindAlreadyExists, "seller already registered: %s", email)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), m.cost)
	if err != nil {
		return nil, core.Wrap(err, core.KindPropagated, "failed to hash password")
	}

	s := Seller{
		SellerID:         uuid.New().String(),
		Email:            email,
		PasswordHash:     string(hash),
		Name:             cmd.Name,
		PhoneNumber:      cmd.PhoneNumber,
		StoreName:        cmd.StoreName,
		StoreAddress:     cmd.StoreAddress,
		StorePhoneNumber: cmd.StorePhoneNumber,
		BusinessNumber:   cmd.BusinessNumber,
		CreatedAt:        time.Now().UTC(),
	}
	if err := m.sellers.Insert(ctx, s); err != nil {
		// уникальный индекс по email в postgres
		if core.IsKind(err, core.KindConditionalWriteConflict) {
			return nil, core.Wrap(err, core.KindAlreadyExists, "seller already registered: "+email)
		}
		m.logger.Error("failed to register seller", zap.String("email", email), zap.Error(err))
		return nil, err
	}

	_, err = m.emitter.Emit(ctx, SellerRegistered{
		BaseEvent: events.NewBaseEvent(EventSellerRegistered, AggregateType, s.SellerID),
		SellerID:  s.SellerID,
		Email:     s.Email,
		StoreName: s.StoreName,
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("seller registered", zap.String("seller_id", s.SellerID))
	return s.SellerID, nil
}

// Get возвращает продавца без хеша пароля
func (m *Module) Get(ctx context.Context, q SellerQuery) (interface{}, error) {
	s, err := m.sellers.FindByID(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	s.PasswordHash = ""
	return s, nil
}

// CheckPassword сверяет пароль продавца с хешем
func CheckPassword(s Seller, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(s.PasswordHash), []byte(password)) == nil
}
