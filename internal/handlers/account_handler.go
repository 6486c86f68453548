package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"
	"github.com/rtmcdo/schedulecoaches-web/internal/dto"
	"github.com/rtmcdo/schedulecoaches-web/internal/middleware"
	"github.com/rtmcdo/schedulecoaches-web/internal/services"
)

type AccountHandler struct {
	accounts *services.AccountService
}

func NewAccountHandler(accounts *services.AccountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

// AuthMe resolves the authenticated caller to their account row,
// creating and linking it as needed, and returns the row with the
// derived subscription flags.
func (h *AccountHandler) AuthMe(c *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(c)

	user, err := h.accounts.Resolve(c.UserContext(), claims)
	if err != nil {
		if errors.Is(err, services.ErrCreateRaceUnresolved) {
			// Correctness-threatening condition: the guarded insert lost
			// the race but the winner's row is not visible.
			sentry.CaptureException(err)
			slog.Error("account creation race unresolved", "request_id", requestID(c), "provider", claims.Provider, "error", err)
		} else {
			slog.Error("account resolution failed", "request_id", requestID(c), "provider", claims.Provider, "error", err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to get or create user", Details: err.Error(),
		})
	}

	return c.JSON(dto.NewAuthMeResponse(user, services.ProjectStatus(user)))
}

// SubscriptionStatus is the read-only polling variant of AuthMe: it
// never creates or links accounts, and a missing row is a 404.
func (h *AccountHandler) SubscriptionStatus(c *fiber.Ctx) error {
	claims := middleware.ClaimsFromCtx(c)

	user, err := h.accounts.Lookup(c.UserContext(), claims)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
				Error: true, Message: "User not found. Please complete signup at schedulecoaches.com first",
			})
		}
		slog.Error("subscription status lookup failed", "request_id", requestID(c), "provider", claims.Provider, "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{
			Error: true, Message: "Failed to get subscription status", Details: err.Error(),
		})
	}

	status := string(user.SubscriptionStatus)
	if status == "" {
		status = "none"
	}

	// Polling endpoint: let browsers reuse the answer for a minute.
	c.Set("Cache-Control", "private, max-age=60")
	c.Set("ETag", fmt.Sprintf("%q", user.ID.String()+"-"+status))

	return c.JSON(dto.NewSubscriptionStatusResponse(user, services.ProjectStatus(user)))
}
