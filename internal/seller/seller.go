// Package seller регистрирует продавцов.
package seller

import (
	"fmt"
	"net/mail"
	"time"

	"github.com/akriventsev/commerce/framework/events"
)

// AggregateType тип агрегата в журнале событий
const AggregateType = "Seller"

const EventSellerRegistered = "SellerRegistered"

// Seller продавец и его магазин
type Seller struct {
	SellerID         string    `json:"sellerId" bson:"_id"`
	Email            string    `json:"email" bson:"email"`
	PasswordHash     string    `json:"passwordHash" bson:"passwordHash"`
	Name             string    `json:"name" bson:"name"`
	PhoneNumber      string    `json:"phoneNumber" bson:"phoneNumber"`
	StoreName        string    `json:"storeName" bson:"storeName"`
	StoreAddress     string    `json:"storeAddress" bson:"storeAddress"`
	StorePhoneNumber string    `json:"storePhoneNumber" bson:"storePhoneNumber"`
	BusinessNumber   string    `json:"businessNumber,omitempty" bson:"businessNumber,omitempty"`
	CreatedAt        time.Time `json:"createdAt" bson:"createdAt"`
}

func (s Seller) ID() string { return s.SellerID }

// RegisterSellerCommand регистрирует продавца
type RegisterSellerCommand struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	PwConfirm        string `json:"pwConfirm"`
	Name             string `json:"name"`
	PhoneNumber      string `json:"phoneNumber"`
	StoreName        string `json:"storeName"`
	StoreAddress     string `json:"storeAddress"`
	StorePhoneNumber string `json:"storePhoneNumber"`
	BusinessNumber   string `json:"businessNumber,omitempty"`
}

func (RegisterSellerCommand) CommandName() string { return "RegisterSeller" }

// Validate проверяет обязательные поля. Совпадение паролей проверяет обработчик.
func (c RegisterSellerCommand) Validate() error {
	if _, err := mail.ParseAddress(c.Email); err != nil {
		return fmt.Errorf("invalid email: %q", c.Email)
	}
	if len(c.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	if c.Name == "" || c.StoreName == "" {
		return fmt.Errorf("name and storeName are required")
	}
	return nil
}

// SellerQuery возвращает продавца без хеша пароля
type SellerQuery struct {
	ID string
}

func (SellerQuery) QueryName() string { return "Seller" }

// SellerRegistered продавец зарегистрирован
type SellerRegistered struct {
	events.BaseEvent
	SellerID  string `json:"sellerId"`
	Email     string `json:"email"`
	StoreName string `json:"storeName"`
}
