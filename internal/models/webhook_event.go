package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Webhook event outcomes.
const (
	EventApplied   = "applied"
	EventUnmatched = "unmatched"
	EventIgnored   = "ignored"
	EventNotified  = "notified"
)

// WebhookEvent records every signature-verified Stripe event and what
// became of it. Unmatched events are acknowledged to Stripe but kept
// here so they can be reconciled by hand.
type WebhookEvent struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	EventID        string         `gorm:"size:255;index" json:"event_id"`
	Type           string         `gorm:"size:100;not null;index" json:"type"`
	SubscriptionID string         `gorm:"size:255;index" json:"subscription_id"`
	Outcome        string         `gorm:"size:20;not null" json:"outcome"`
	Payload        datatypes.JSON `gorm:"type:jsonb" json:"payload"`
	CreatedAt      time.Time      `json:"created_at"`
}
