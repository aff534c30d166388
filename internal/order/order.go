// Package order управляет заказами покупателей.
package order

import (
	"fmt"
	"time"

	"github.com/akriventsev/commerce/framework/events"
)

// AggregateType тип агрегата в журнале событий
const AggregateType = "Order"

// StatusPending статус нового заказа
const StatusPending = "PENDING"

// Order заказ покупателя
type Order struct {
	OrderID       string    `json:"orderId" bson:"_id"`
	UserID        string    `json:"userId" bson:"userId"`
	TotalAmount   int64     `json:"totalAmount" bson:"totalAmount"`
	TotalPrice    int64     `json:"totalPrice" bson:"totalPrice"`
	PickupTime    time.Time `json:"pickupTime" bson:"pickupTime"`
	PaymentMethod string    `json:"paymentMethod" bson:"paymentMethod"`
	Status        string    `json:"status" bson:"status"`
	CreatedAt     time.Time `json:"createdAt" bson:"createdAt"`
}

func (o Order) ID() string { return o.OrderID }

// CreateOrderCommand создает заказ
type CreateOrderCommand struct {
	UserID        string    `json:"userId"`
	TotalAmount   int64     `json:"totalAmount"`
	TotalPrice    int64     `json:"totalPrice"`
	PickupTime    time.Time `json:"pickupTime"`
	PaymentMethod string    `json:"paymentMethod"`
}

func (CreateOrderCommand) CommandName() string { return "CreateOrder" }

// Validate проверяет команду
func (c CreateOrderCommand) Validate() error {
	switch {
	case c.UserID == "":
		return fmt.Errorf("userId is required")
	case c.TotalAmount <= 0:
		return fmt.Errorf("totalAmount must be positive")
	case c.TotalPrice < 0:
		return fmt.Errorf("totalPrice cannot be negative")
	case c.PaymentMethod == "":
		return fmt.Errorf("paymentMethod is required")
	case c.PickupTime.IsZero():
		return fmt.Errorf("pickupTime is required")
	}
	return nil
}

// DeleteOrderCommand удаляет заказ
type DeleteOrderCommand struct {
	ID string `json:"id"`
}

func (DeleteOrderCommand) CommandName() string { return "DeleteOrder" }

// OrderQuery возвращает заказ
type OrderQuery struct {
	ID string
}

func (OrderQuery) QueryName() string { return "Order" }

// OrdersByUserQuery возвращает заказы пользователя
type OrdersByUserQuery struct {
	UserID string
}

func (OrdersByUserQuery) QueryName() string { return "OrdersByUser" }

const (
	EventOrderCreated = "OrderCreated"
	EventOrderDeleted = "OrderDeleted"
)

// OrderCreated заказ создан
type OrderCreated struct {
	events.BaseEvent
	OrderID     string `json:"orderId"`
	UserID      string `json:"userId"`
	TotalAmount int64  `json:"totalAmount"`
	TotalPrice  int64  `json:"totalPrice"`
}

// OrderDeleted заказ удален
type OrderDeleted struct {
	events.BaseEvent
	OrderID string `json:"orderId"`
}
