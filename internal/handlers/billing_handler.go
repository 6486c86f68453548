package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/rtmcdo/schedulecoaches-web/internal/dto"
	"github.com/rtmcdo/schedulecoaches-web/internal/middleware"
	"github.com/rtmcdo/schedulecoaches-web/internal/services"
)

type BillingHandler struct {
	accounts *services.AccountService
	billing  *services.BillingService
}

func NewBillingHandler(accounts *services.AccountService, billing *services.BillingService) *BillingHandler {
	return &BillingHandler{accounts: accounts, billing: billing}
}

// CreateCheckoutSession returns a hosted checkout URL for the caller.
// The caller must already have an account row; the webhook needs its
// database id, not the token subject.
func (h *BillingHandler) CreateCheckoutSession(c *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(c)

	var req dto.CheckoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "Invalid request body",
			})
		}
	}

	user, err := h.accounts.Lookup(c.UserContext(), claims)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found. Please ensure your account was created via /api/auth-me first",
			})
		}
		slog.Error("checkout user lookup failed", "request_id", requestID(c), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create checkout session", Details: err.Error(),
		})
	}

	url, err := h.billing.CreateCheckoutSession(c.UserContext(), user, services.CheckoutParams{
		LookupKey:    req.LookupKey,
		ReferralCode: req.ReferralCode,
		Metadata:     req.Metadata,
	})
	if err != nil {
		if errors.Is(err, services.ErrPriceNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "Price not found for the given lookup key",
			})
		}
		slog.Error("checkout session creation failed", "request_id", requestID(c), "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create checkout session",
		})
	}

	return c.JSON(dto.SessionResponse{URL: url})
}

// CreatePortalSession returns a billing portal URL. It requires the
// caller to already have a Stripe customer reference.
func (h *BillingHandler) CreatePortalSession(c *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(c)

	user, err := h.accounts.Lookup(c.UserContext(), claims)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found. Please ensure your account was created via /api/auth-me first",
			})
		}
		slog.Error("portal user lookup failed", "request_id", requestID(c), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create portal session", Details: err.Error(),
		})
	}

	url, err := h.billing.CreatePortalSession(c.UserContext(), user)
	if err != nil {
		if errors.Is(err, services.ErrNoBillingAccount) {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
				Error: true, Message: "No billing account found. Please complete a payment first",
			})
		}
		slog.Error("portal session creation failed", "request_id", requestID(c), "user_id", user.ID, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to create portal session",
		})
	}

	return c.JSON(dto.SessionResponse{URL: url})
}
