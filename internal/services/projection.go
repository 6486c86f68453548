package services

import "github.com/rtmcdo/schedulecoaches-web/internal/models"

// StatusFlags are the user-facing access flags derived from stored
// billing state. They are recomputed on every read and never stored,
// so they cannot drift from the row they describe.
type StatusFlags struct {
	HasActiveSubscription  bool `json:"hasActiveSubscription"`
	NeedsProfileCompletion bool `json:"needsProfileCompletion"`
	NeedsPayment           bool `json:"needsPayment"`
	IsInGracePeriod        bool `json:"isInGracePeriod"`
}

// ProjectStatus derives the access flags for a user row. Admins always
// have an active subscription regardless of billing state.
func ProjectStatus(u *models.User) StatusFlags {
	hasActive := u.SubscriptionStatus == models.SubscriptionActive ||
		u.SubscriptionStatus == models.SubscriptionFree ||
		u.SubscriptionStatus == models.SubscriptionTrialing ||
		u.Role == models.RoleAdmin

	needsProfile := u.StripeCustomerID == nil &&
		u.SubscriptionStatus == models.SubscriptionUnpaid

	needsPayment := u.Role == models.RoleCoach &&
		(u.SubscriptionStatus == models.SubscriptionUnpaid ||
			u.SubscriptionStatus == models.SubscriptionCanceled ||
			u.SubscriptionStatus == models.SubscriptionIncomplete ||
			u.SubscriptionStatus == models.SubscriptionIncompleteExpired)

	return StatusFlags{
		HasActiveSubscription:  hasActive,
		NeedsProfileCompletion: needsProfile,
		NeedsPayment:           needsPayment,
		IsInGracePeriod:        u.SubscriptionStatus == models.SubscriptionPastDue,
	}
}
