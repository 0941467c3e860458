package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Ticket is one issued seat. Code is the opaque redemption token handed to
// the holder; an external renderer embeds it in a QR payload.
type Ticket struct {
	gorm.Model
	ID      uuid.UUID `gorm:"type:uuid;primary_key"`
	Code    string    `gorm:"not null;uniqueIndex"`
	OrderID uuid.UUID `gorm:"type:uuid;not null;index"`
	Order   Order
	EventID uuid.UUID `gorm:"type:uuid;not null;index"`
	Event   Event
	UserID  uuid.UUID `gorm:"type:uuid;not null;index"`
	User    User
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	if ticket.Code == "" {
		ticket.Code = uuid.NewString()
	}
	return
}
