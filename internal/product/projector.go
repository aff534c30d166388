package product

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/akriventsev/commerce/framework/adapters/repository"
	"github.com/akriventsev/commerce/framework/core"
	"github.com/akriventsev/commerce/framework/events"
)

// Projector поддерживает View в согласии с каноническими товарами
type Projector struct {
	views  repository.Repository[View]
	logger *zap.Logger
}

// NewProjector создает проектор. Хранилище должно поддерживать FindBy по "sellerId".
func NewProjector(views repository.Repository[View], logger *zap.Logger) *Projector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Projector{views: views, logger: logger.Named("product-view")}
}

// NewInMemoryViews создает in-memory хранилище представлений с индексом продавца
func NewInMemoryViews() *repository.InMemoryRepository[View] {
	return repository.NewInMemoryRepository[View](repository.DefaultInMemoryConfig()).
		AddIndex("sellerId", func(v View) string { return v.SellerID })
}

// Subscriptions явные подписки проектора
func (p *Projector) Subscriptions() []events.Subscription {
	return []events.Subscription{
		{Name: "product-view:created", EventType: EventProductCreated, Handler: events.Typed(p.onCreated)},
		{Name: "product-view:deleted", EventType: EventProductDeleted, Handler: events.Typed(p.onDeleted)},
	}
}

func (p *Projector) onCreated(ctx context.Context, e ProductCreated) error {
	err := p.views.Insert(ctx, View{
		ProductID: e.ProductID,
		SellerID:  e.SellerID,
		Name:      e.Name,
		Price:     e.Price,
		Status:    StatusActive,
		UpdatedAt: time.Now().UTC(),
	})
	if core.IsKind(err, core.KindConditionalWriteConflict) {
		p.logger.Warn("product view already exists", zap.String("product_id", e.ProductID))
		return nil
	}
	return err
}

func (p *Projector) onDeleted(ctx context.Context, e ProductDeleted) error {
	err := p.views.Delete(ctx, e.ProductID)
	if core.IsKind(err, core.KindNotFound) {
		p.logger.Warn("product view not found", zap.String("product_id", e.ProductID))
		return nil
	}
	return err
}

// Get возвращает представление товара
func (p *Projector) Get(ctx context.Context, q ProductQuery) (interface{}, error) {
	return p.views.FindByID(ctx, q.ID)
}

// BySeller возвращает представления товаров продавца
func (p *Projector) BySeller(ctx context.Context, q ProductsBySellerQuery) (interface{}, error) {
	return p.views.FindBy(ctx, "sellerId", q.SellerID)
}
