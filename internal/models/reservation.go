package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ReservationHeld      = "held"
	ReservationCommitted = "committed"
	ReservationReleased  = "released"
)

// Reservation is a time-bounded soft hold on N seats of one event. It is
// created when a purchase starts and must always end up committed or
// released; the expiry sweep releases holds that never see a payment.
type Reservation struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	EventID   uuid.UUID `gorm:"type:uuid;not null;index"`
	Event     Event
	Quantity  int       `gorm:"not null"`
	Status    string    `gorm:"not null;default:'held';index"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (reservation *Reservation) BeforeCreate(tx *gorm.DB) (err error) {
	if reservation.ID == uuid.Nil {
		reservation.ID = uuid.New()
	}
	return
}
