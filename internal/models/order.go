package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	OrderPending         = "PENDING"
	OrderAwaitingPayment = "AWAITING_PAYMENT"
	OrderPaid            = "PAID"
	OrderFailed          = "FAILED"
	OrderExpired         = "EXPIRED"
)

// Order is one checkout attempt. PublicID is the identifier shared with the
// payment provider and doubles as the idempotency key for createPayment.
type Order struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	PublicID          string    `gorm:"not null;uniqueIndex"`
	UserID            uuid.UUID `gorm:"type:uuid;not null;index"`
	User              User
	EventID           uuid.UUID `gorm:"type:uuid;not null;index"`
	Event             Event
	ReservationID     uuid.UUID `gorm:"type:uuid;not null"`
	Reservation       Reservation
	Quantity          int    `gorm:"not null"`
	Amount            int    `gorm:"not null"`
	Provider          string `gorm:"not null"`
	ProviderReference string `gorm:"index"`
	RedirectURL       string
	Status            string `gorm:"not null;default:'PENDING';index"`
	NeedsReview       bool   `gorm:"not null;default:false"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return
}

func (order *Order) IsTerminal() bool {
	switch order.Status {
	case OrderPaid, OrderFailed, OrderExpired:
		return true
	}
	return false
}
