package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Event struct {
	gorm.Model
	ID          uuid.UUID `gorm:"type:uuid;primary_key"`
	Title       string    `gorm:"not null"`
	Description string    `gorm:"not null"`
	Artist      string    `gorm:"not null"`
	Location    string    `gorm:"not null"`
	StartTime   time.Time `gorm:"not null"`
	Price       int       `gorm:"not null"`
	TotalSeats  int       `gorm:"not null"`
	IssuedCount int       `gorm:"not null;default:0"`
	User        User
	UserID      uuid.UUID
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}

// AvailableSeats is derived; issued_count is the single counter that
// reserve/release mutate.
func (event *Event) AvailableSeats() int {
	return event.TotalSeats - event.IssuedCount
}
