package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/rtmcdo/schedulecoaches-web/internal/dto"
	"github.com/rtmcdo/schedulecoaches-web/internal/services"
	"github.com/stripe/stripe-go/v81/webhook"
)

type WebhookHandler struct {
	subscriptions *services.SubscriptionService
	signingSecret string
}

func NewWebhookHandler(subscriptions *services.SubscriptionService, signingSecret string) *WebhookHandler {
	return &WebhookHandler{subscriptions: subscriptions, signingSecret: signingSecret}
}

// HandleStripe verifies the event signature and hands the event to the
// subscription state machine. Once the signature is valid and the event
// is classified the response is 200 even when no user matched, so
// Stripe never storms us with redeliveries; 400 is reserved for a
// missing/invalid signature or an unusable payload.
func (h *WebhookHandler) HandleStripe(c *fiber.Ctx) error {
	signature := c.Get("Stripe-Signature")
	if signature == "" {
		slog.Warn("webhook received without signature header", "request_id", requestID(c), "ip", c.IP())
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Missing Stripe-Signature header",
		})
	}

	event, err := webhook.ConstructEvent(c.Body(), signature, h.signingSecret)
	if err != nil {
		slog.Warn("webhook signature verification failed", "request_id", requestID(c), "ip", c.IP(), "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Error: true, Message: "Webhook signature verification failed",
		})
	}

	if err := h.subscriptions.HandleEvent(c.UserContext(), event); err != nil {
		if errors.Is(err, services.ErrEventUnresolvable) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Missing user id or email in event payload",
			})
		}
		slog.Error("webhook processing failed", "request_id", requestID(c), "event_type", event.Type, "event_id", event.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to process webhook event",
		})
	}

	slog.Info("webhook processed", "event_type", event.Type, "event_id", event.ID)
	return c.JSON(fiber.Map{"received": true})
}
