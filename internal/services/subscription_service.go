package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/stripe/stripe-go/v81"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrEventUnresolvable marks an event that carries neither a user id
// nor an email, so no subject can ever be found for it.
var ErrEventUnresolvable = errors.New("event has no resolvable subject")

// SubscriptionService consumes signature-verified Stripe events and
// moves the matching user's billing columns, idempotently. Every
// handler is a full overwrite computed from the event payload, so
// replaying an event produces the same end state. Delivery order is
// not tracked: the last-delivered event wins.
type SubscriptionService struct {
	db *gorm.DB
}

func NewSubscriptionService(db *gorm.DB) *SubscriptionService {
	return &SubscriptionService{db: db}
}

func (s *SubscriptionService) HandleEvent(ctx context.Context, event stripe.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		return s.handleCheckoutCompleted(ctx, event)
	case "customer.subscription.updated":
		return s.handleSubscriptionUpdated(ctx, event)
	case "customer.subscription.deleted":
		return s.handleSubscriptionDeleted(ctx, event)
	case "invoice.payment_succeeded":
		return s.handleInvoicePaymentSucceeded(ctx, event)
	case "invoice.payment_failed":
		return s.handleInvoicePaymentFailed(ctx, event)
	case "customer.subscription.trial_will_end":
		// Notification only; no state change.
		return s.recordEvent(ctx, event, "", models.EventNotified)
	default:
		slog.Info("unhandled webhook event type", "event_type", event.Type)
		return s.recordEvent(ctx, event, "", models.EventIgnored)
	}
}

// handleCheckoutCompleted stores the new customer and subscription
// references and activates the subscription. The user is matched by the
// database id embedded in the session metadata at checkout creation,
// falling back to email.
func (s *SubscriptionService) handleCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return fmt.Errorf("failed to parse checkout session: %w", err)
	}

	userID := session.Metadata["user_id"]
	email := session.CustomerEmail
	if email == "" {
		email = session.Metadata["user_email"]
	}
	if userID == "" && email == "" {
		return ErrEventUnresolvable
	}

	var customerID, subscriptionID string
	if session.Customer != nil {
		customerID = session.Customer.ID
	}
	if session.Subscription != nil {
		subscriptionID = session.Subscription.ID
	}

	status := models.SubscriptionActive
	var endDate *time.Time
	if session.Subscription != nil && session.Subscription.TrialEnd > 0 {
		status = models.SubscriptionTrialing
		t := time.Unix(session.Subscription.TrialEnd, 0).UTC()
		endDate = &t
	}

	updates := map[string]interface{}{
		"stripe_customer_id":     customerID,
		"stripe_subscription_id": subscriptionID,
		"subscription_status":    status,
	}
	if endDate != nil {
		updates["subscription_end_date"] = endDate
	}

	// Metadata user_id must be a well-formed UUID before it can be used
	// as a key; anything else falls through to the email match.
	matched := int64(0)
	if id, err := uuid.Parse(userID); userID != "" && err == nil {
		result := s.db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", id).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to apply checkout completion: %w", result.Error)
		}
		matched = result.RowsAffected
	} else if userID != "" {
		slog.Warn("checkout metadata user_id is not a UUID, using email match", "user_id", userID)
	}

	if matched == 0 && email != "" {
		result := s.db.WithContext(ctx).Model(&models.User{}).
			Where("LOWER(email) = LOWER(?)", email).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to apply checkout completion: %w", result.Error)
		}
		matched = result.RowsAffected
	}

	if matched == 0 {
		slog.Warn("no user matched checkout session", "session_id", session.ID, "event_id", event.ID)
		return s.recordEvent(ctx, event, subscriptionID, models.EventUnmatched)
	}

	slog.Info("subscription activated", "subscription_id", subscriptionID, "status", status)
	return s.recordEvent(ctx, event, subscriptionID, models.EventApplied)
}

// handleSubscriptionUpdated overwrites the status and period end with
// the processor-reported values. Stripe's unpaid state is folded into
// canceled; this system does not distinguish them.
func (s *SubscriptionService) handleSubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	status := models.SubscriptionStatus(sub.Status)
	if status == models.SubscriptionUnpaid {
		status = models.SubscriptionCanceled
	}

	updates := map[string]interface{}{
		"subscription_status": status,
	}
	if sub.CurrentPeriodEnd > 0 {
		updates["subscription_end_date"] = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}

	return s.applyBySubscriptionID(ctx, event, sub.ID, updates)
}

func (s *SubscriptionService) handleSubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return fmt.Errorf("failed to parse subscription: %w", err)
	}

	return s.applyBySubscriptionID(ctx, event, sub.ID, map[string]interface{}{
		"subscription_status": models.SubscriptionCanceled,
	})
}

func (s *SubscriptionService) handleInvoicePaymentSucceeded(ctx context.Context, event stripe.Event) error {
	subscriptionID, err := invoiceSubscriptionID(event)
	if err != nil {
		return err
	}
	if subscriptionID == "" {
		slog.Info("invoice has no subscription reference, skipping", "event_id", event.ID)
		return s.recordEvent(ctx, event, "", models.EventIgnored)
	}

	return s.applyBySubscriptionID(ctx, event, subscriptionID, map[string]interface{}{
		"subscription_status": models.SubscriptionActive,
	})
}

func (s *SubscriptionService) handleInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	subscriptionID, err := invoiceSubscriptionID(event)
	if err != nil {
		return err
	}
	if subscriptionID == "" {
		slog.Info("invoice has no subscription reference, skipping", "event_id", event.ID)
		return s.recordEvent(ctx, event, "", models.EventIgnored)
	}

	return s.applyBySubscriptionID(ctx, event, subscriptionID, map[string]interface{}{
		"subscription_status": models.SubscriptionPastDue,
	})
}

// applyBySubscriptionID runs a full-overwrite update keyed by the
// stored subscription reference. A zero-row result means the event's
// subject is unknown here; it is recorded and acknowledged, never
// retried.
func (s *SubscriptionService) applyBySubscriptionID(ctx context.Context, event stripe.Event, subscriptionID string, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("stripe_subscription_id = ?", subscriptionID).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to apply %s: %w", event.Type, result.Error)
	}

	if result.RowsAffected == 0 {
		slog.Warn("no user found for subscription", "subscription_id", subscriptionID, "event_type", event.Type)
		return s.recordEvent(ctx, event, subscriptionID, models.EventUnmatched)
	}

	slog.Info("subscription event applied", "subscription_id", subscriptionID, "event_type", event.Type)
	return s.recordEvent(ctx, event, subscriptionID, models.EventApplied)
}

func (s *SubscriptionService) recordEvent(ctx context.Context, event stripe.Event, subscriptionID, outcome string) error {
	record := models.WebhookEvent{
		ID:             uuid.New(),
		EventID:        event.ID,
		Type:           string(event.Type),
		SubscriptionID: subscriptionID,
		Outcome:        outcome,
		Payload:        datatypes.JSON(event.Data.Raw),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("failed to record webhook event: %w", err)
	}
	return nil
}

func invoiceSubscriptionID(event stripe.Event) (string, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return "", fmt.Errorf("failed to parse invoice: %w", err)
	}
	if invoice.Subscription == nil {
		return "", nil
	}
	return invoice.Subscription.ID, nil
}
