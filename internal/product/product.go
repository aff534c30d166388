// Package product управляет товарами продавцов и их публичным представлением.
package product

import (
	"fmt"
	"time"

	"github.com/akriventsev/commerce/framework/events"
)

// AggregateType тип агрегата в журнале событий
const AggregateType = "Product"

// Статусы товара
const (
	StatusActive  = "ACTIVE"
	StatusDeleted = "DELETED"
)

// Product каноническая запись товара
type Product struct {
	ProductID   string    `json:"productId" bson:"_id"`
	SellerID    string    `json:"sellerId" bson:"sellerId"`
	Name        string    `json:"name" bson:"name"`
	Price       int64     `json:"price" bson:"price"`
	Description string    `json:"description" bson:"description"`
	Status      string    `json:"status" bson:"status"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

func (p Product) ID() string { return p.ProductID }

// View денормализованное представление товара для чтения
type View struct {
	ProductID string    `json:"productId" bson:"_id"`
	SellerID  string    `json:"sellerId" bson:"sellerId"`
	Name      string    `json:"name" bson:"name"`
	Price     int64     `json:"price" bson:"price"`
	Status    string    `json:"status" bson:"status"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (v View) ID() string { return v.ProductID }

// CreateProductCommand создает товар
type CreateProductCommand struct {
	SellerID    string `json:"sellerId"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Description string `json:"description"`
}

func (CreateProductCommand) CommandName() string { return "CreateProduct" }

// Validate проверяет команду
func (c CreateProductCommand) Validate() error {
	if c.SellerID == "" {
		return fmt.Errorf("sellerId is required")
	}
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}
	if c.Price < 0 {
		return fmt.Errorf("price cannot be negative")
	}
	return nil
}

// DeleteProductCommand удаляет товар вместе с его остатком
type DeleteProductCommand struct {
	ID string `json:"id"`
}

func (DeleteProductCommand) CommandName() string { return "DeleteProduct" }

// ProductQuery возвращает представление товара
type ProductQuery struct {
	ID string
}

func (ProductQuery) QueryName() string { return "Product" }

// ProductsBySellerQuery возвращает товары продавца
type ProductsBySellerQuery struct {
	SellerID string
}

func (ProductsBySellerQuery) QueryName() string { return "ProductsBySeller" }

const (
	EventProductCreated = "ProductCreated"
	EventProductDeleted = "ProductDeleted"
)

// ProductCreated товар создан
type ProductCreated struct {
	events.BaseEvent
	ProductID string `json:"productId"`
	SellerID  string `json:"sellerId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
}

// ProductDeleted товар удален
type ProductDeleted struct {
	events.BaseEvent
	ProductID string `json:"productId"`
}
