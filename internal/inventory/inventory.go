// Package inventory управляет складскими остатками товаров.
package inventory

import (
	"fmt"
	"time"

	"github.com/akriventsev/commerce/framework/events"
)

// AggregateType тип агрегата в журнале событий
const AggregateType = "Inventory"

// Inventory остаток товара. Идентификатор совпадает с id товара.
type Inventory struct {
	ProductID string    `json:"productId" bson:"_id"`
	Quantity  int       `json:"quantity" bson:"quantity"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// ID реализует repository.Entity
func (i Inventory) ID() string {
	return i.ProductID
}

// SetInventoryCommand устанавливает остаток товара
type SetInventoryCommand struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

func (SetInventoryCommand) CommandName() string { return "SetInventory" }

// Validate проверяет команду
func (c SetInventoryCommand) Validate() error {
	if c.ProductID == "" {
		return fmt.Errorf("productId is required")
	}
	if c.Quantity < 0 {
		return fmt.Errorf("quantity cannot be negative")
	}
	return nil
}

// DeleteInventoryCommand удаляет остаток. Отправляется каскадом при удалении товара.
type DeleteInventoryCommand struct {
	ID string `json:"id"`
}

func (DeleteInventoryCommand) CommandName() string { return "DeleteInventory" }

// InventoryQuery возвращает остаток товара
type InventoryQuery struct {
	ProductID string
}

func (InventoryQuery) QueryName() string { return "Inventory" }

// InventoryUpdated остаток изменен
type InventoryUpdated struct {
	events.BaseEvent
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// InventoryDeleted остаток удален
type InventoryDeleted struct {
	events.BaseEvent
	ProductID string `json:"productId"`
}

const (
	EventInventoryUpdated = "InventoryUpdated"
	EventInventoryDeleted = "InventoryDeleted"
)
