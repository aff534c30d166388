// Package location хранит местоположения пользователей и поддерживает
// представления с единственной текущей локацией на пользователя.
//
// Создание и чтение адресуются отдельной записью, удаление представлений
// выполняется целиком для пользователя.
package location

import (
	"fmt"
	"time"

	"github.com/akriventsev/commerce/framework/events"
)

// AggregateType тип агрегата в журнале событий
const AggregateType = "Location"

// AddressNotFound адрес, подставляемый при неудачном геокодировании
const AddressNotFound = "Address not found"

// Type способ получения координат
type Type string

const (
	TypeRealtime Type = "REALTIME"
	TypeHome     Type = "HOME"
	TypeManual   Type = "MANUAL"
)

// ParseType проверяет значение типа локации
func ParseType(s string) (Type, error) {
	switch t := Type(s); t {
	case TypeRealtime, TypeHome, TypeManual:
		return t, nil
	}
	return "", fmt.Errorf("unknown location type: %q", s)
}

// Record каноническая запись о местоположении
type Record struct {
	LocationID   string    `json:"locationId" bson:"_id"`
	UserID       string    `json:"userId" bson:"userId"`
	Latitude     string    `json:"latitude" bson:"latitude"`
	Longitude    string    `json:"longitude" bson:"longitude"`
	LocationType Type      `json:"locationType" bson:"locationType"`
	IsAgreed     bool      `json:"isAgreed" bson:"isAgreed"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

func (r Record) ID() string { return r.LocationID }

// View представление локации для чтения
type View struct {
	LocationID   string    `json:"locationId" bson:"_id"`
	UserID       string    `json:"userId" bson:"userId"`
	Latitude     string    `json:"latitude" bson:"latitude"`
	Longitude    string    `json:"longitude" bson:"longitude"`
	IsCurrent    bool      `json:"isCurrent" bson:"isCurrent"`
	LocationType Type      `json:"locationType" bson:"locationType"`
	IsAgreed     bool      `json:"isAgreed" bson:"isAgreed"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (v View) ID() string { return v.LocationID }

// EnrichedView представление с адресом
type EnrichedView struct {
	View
	Address string `json:"address"`
}

// SaveLocationCommand сохраняет новое местоположение пользователя
type SaveLocationCommand struct {
	UserID       string `json:"userId"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	LocationType string `json:"locationType"`
	IsAgreed     bool   `json:"isAgreed"`
}

func (SaveLocationCommand) CommandName() string { return "SaveLocation" }

// Validate проверяет команду
func (c SaveLocationCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	if c.Latitude == "" || c.Longitude == "" {
		return fmt.Errorf("latitude and longitude are required")
	}
	_, err := ParseType(c.LocationType)
	return err
}

// DeleteUserLocationsCommand удаляет все локации пользователя
type DeleteUserLocationsCommand struct {
	UserID string `json:"userId"`
}

func (DeleteUserLocationsCommand) CommandName() string { return "DeleteUserLocations" }

func (c DeleteUserLocationsCommand) Validate() error {
	if c.UserID == "" {
		return fmt.Errorf("userId is required")
	}
	return nil
}

// CurrentLocationQuery текущая согласованная локация пользователя
type CurrentLocationQuery struct {
	UserID string
}

func (CurrentLocationQuery) QueryName() string { return "CurrentLocation" }

// UserLocationsQuery все локации пользователя с адресами
type UserLocationsQuery struct {
	UserID string
}

func (UserLocationsQuery) QueryName() string { return "UserLocations" }

const (
	EventLocationSaved        = "LocationSaved"
	EventUserLocationsDeleted = "UserLocationsDeleted"
)

// LocationSaved локация сохранена
type LocationSaved struct {
	events.BaseEvent
	LocationID   string `json:"locationId"`
	UserID       string `json:"userId"`
	Latitude     string `json:"latitude"`
	Longitude    string `json:"longitude"`
	LocationType Type   `json:"locationType"`
	IsAgreed     bool   `json:"isAgreed"`
}

// OrderingKey события локаций одного пользователя проецируются по порядку
func (e LocationSaved) OrderingKey() string { return e.UserID }

// UserLocationsDeleted удалены все локации пользователя.
// AggregateID события равен id пользователя.
type UserLocationsDeleted struct {
	events.BaseEvent
	UserID  string `json:"userId"`
	Deleted int64  `json:"deleted"`
}

func (e UserLocationsDeleted) OrderingKey() string { return e.UserID }
