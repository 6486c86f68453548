package dto

import (
	"time"

	"github.com/google/uuid"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/rtmcdo/schedulecoaches-web/internal/services"
)

// UserResponse is the full user row plus the derived access flags.
type UserResponse struct {
	models.User
	services.StatusFlags
}

type AuthMeResponse struct {
	User UserResponse `json:"user"`
}

func NewAuthMeResponse(user *models.User, flags services.StatusFlags) AuthMeResponse {
	return AuthMeResponse{User: UserResponse{User: *user, StatusFlags: flags}}
}

// SubscriptionStatusResponse is the lightweight polling shape; it
// omits provider linkage and profile internals.
type SubscriptionStatusResponse struct {
	ID                  uuid.UUID                 `json:"id"`
	Email               string                    `json:"email"`
	FirstName           string                    `json:"firstName"`
	LastName            string                    `json:"lastName"`
	Role                models.Role               `json:"role"`
	SubscriptionStatus  models.SubscriptionStatus `json:"subscriptionStatus"`
	SubscriptionEndDate *time.Time                `json:"subscriptionEndDate"`
	StripeCustomerID    *string                   `json:"stripeCustomerId"`
	services.StatusFlags
}

func NewSubscriptionStatusResponse(user *models.User, flags services.StatusFlags) SubscriptionStatusResponse {
	return SubscriptionStatusResponse{
		ID:                  user.ID,
		Email:               user.Email,
		FirstName:           user.FirstName,
		LastName:            user.LastName,
		Role:                user.Role,
		SubscriptionStatus:  user.SubscriptionStatus,
		SubscriptionEndDate: user.SubscriptionEndDate,
		StripeCustomerID:    user.StripeCustomerID,
		StatusFlags:         flags,
	}
}
