package routes

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/handlers"
	"github.com/rtmcdo/schedulecoaches-web/internal/middleware"
)

func Setup(
	app *fiber.App,
	cfg *config.Config,
	verifier middleware.TokenVerifier,
	accountHandler *handlers.AccountHandler,
	billingHandler *handlers.BillingHandler,
	webhookHandler *handlers.WebhookHandler,
	healthHandler *handlers.HealthHandler,
) {
	api := app.Group("/api")

	// General API rate limiter: 60 req/min per IP. The Stripe webhook is
	// exempt; redelivery bursts must never be throttled into retries.
	api.Use(limiter.New(limiter.Config{
		Max:               60,
		Expiration:        1 * time.Minute,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      func(c *fiber.Ctx) string { return c.IP() },
		Next: func(c *fiber.Ctx) bool {
			return strings.HasSuffix(c.Path(), "/webhook")
		},
	}))

	// Health (public)
	api.Get("/health", healthHandler.Check)

	// Stripe webhook is authenticated by signature, not bearer token
	api.Post("/webhook", webhookHandler.HandleStripe)

	// Protected routes (federated bearer token required)
	authed := middleware.RequireAuth(verifier, cfg.VerifyTimeout)
	api.Get("/auth-me", authed, accountHandler.AuthMe)
	api.Get("/subscription-status", authed, accountHandler.SubscriptionStatus)
	api.Post("/create-checkout-session", authed, billingHandler.CreateCheckoutSession)
	api.Post("/create-portal-session", authed, billingHandler.CreatePortalSession)
}
