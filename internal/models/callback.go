package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PaymentCallback is the idempotency inbox for provider notifications.
// Deliveries are at-least-once, so every verified callback is recorded
// here keyed by (provider, reference, status); the unique index survives
// restarts, unlike in-memory dedup.
type PaymentCallback struct {
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	Provider          string    `gorm:"not null;uniqueIndex:idx_callback_dedupe"`
	ProviderReference string    `gorm:"not null;uniqueIndex:idx_callback_dedupe"`
	Status            string    `gorm:"not null;uniqueIndex:idx_callback_dedupe"`
	RawStatus         string    `gorm:"not null"`
	ReceivedAt        time.Time `gorm:"not null"`
}

func (callback *PaymentCallback) BeforeCreate(tx *gorm.DB) (err error) {
	if callback.ID == uuid.Nil {
		callback.ID = uuid.New()
	}
	return
}
