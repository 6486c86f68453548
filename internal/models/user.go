package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the coarse access category, independent of billing state.
type Role string

const (
	RoleClient Role = "client"
	RoleCoach  Role = "coach"
	RoleAdmin  Role = "admin"
)

// SubscriptionStatus is the billing lifecycle state. The empty string
// marks legacy rows (clients) that predate billing and have no status.
type SubscriptionStatus string

const (
	SubscriptionFree              SubscriptionStatus = "free"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
)

// User is the single shared account row. The same table is read and
// written by the pbcoach mobile backend, so columns are additive and
// rows are never hard-deleted here.
//
// One provider column per identity provider: the same person may sign
// in via Entra first and Google later, so the columns accumulate over
// time and email is the durable join key. AzureAdID is the legacy
// column the mobile app still reads; only Entra and Microsoft logins
// ever populate it.
type User struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email     string    `gorm:"size:255;index" json:"email"`
	FirstName string    `gorm:"size:100" json:"firstName"`
	LastName  string    `gorm:"size:100" json:"lastName"`
	Phone     *string   `gorm:"size:50" json:"phone"`
	Role      Role      `gorm:"size:20;not null;default:'coach'" json:"role"`

	EntraAccountID     *string `gorm:"size:255;index" json:"-"`
	GoogleAccountID    *string `gorm:"size:255;index" json:"-"`
	MicrosoftAccountID *string `gorm:"size:255;index" json:"-"`
	AppleAccountID     *string `gorm:"size:255;index" json:"-"`
	AzureAdID          *string `gorm:"size:255;index" json:"-"`

	StripeCustomerID     *string            `gorm:"size:255" json:"stripeCustomerId"`
	StripeSubscriptionID *string            `gorm:"size:255;index" json:"stripeSubscriptionId"`
	SubscriptionStatus   SubscriptionStatus `gorm:"size:50" json:"subscriptionStatus"`
	SubscriptionEndDate  *time.Time         `json:"subscriptionEndDate"`

	IsActive  bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
