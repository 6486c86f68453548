package handlers_test

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
	"github.com/rtmcdo/schedulecoaches-web/internal/handlers"
	"github.com/rtmcdo/schedulecoaches-web/internal/identity"
	"github.com/rtmcdo/schedulecoaches-web/internal/models"
	"github.com/rtmcdo/schedulecoaches-web/internal/routes"
	"github.com/rtmcdo/schedulecoaches-web/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

// fakeVerifier stands in for the federated token verifier so handler
// tests can mint identities without real provider tokens.
type fakeVerifier struct {
	claims *identity.Claims
	err    error
}

func (f *fakeVerifier) Verify(ctx context.Context, rawToken string) (*identity.Claims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

type testEnv struct {
	app *fiber.App
	db  *gorm.DB
}

func setupApp(t *testing.T, verifier *fakeVerifier) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.WebhookEvent{}))

	cfg := &config.Config{
		Domain:              "https://schedulecoaches.com",
		StripeWebhookSecret: testWebhookSecret,
		VerifyTimeout:       5 * time.Second,
	}

	accountService := services.NewAccountService(db, cfg)
	subscriptionService := services.NewSubscriptionService(db)
	billingService := services.NewBillingService(&client.API{}, cfg)

	app := fiber.New()
	routes.Setup(app, cfg, verifier,
		handlers.NewAccountHandler(accountService),
		handlers.NewBillingHandler(accountService, billingService),
		handlers.NewWebhookHandler(subscriptionService, cfg.StripeWebhookSecret),
		handlers.NewHealthHandler(db),
	)
	return &testEnv{app: app, db: db}
}

func coachClaims() *identity.Claims {
	return &identity.Claims{
		Provider:   identity.ProviderEntra,
		ProviderID: "entra-1",
		Email:      "pat@example.com",
		FirstName:  "Pat",
		LastName:   "Coach",
	}
}

func doRequest(t *testing.T, app *fiber.App, method, path string, authed bool) *http.Response {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if authed {
		req.Header.Set("Authorization", "Bearer test-token")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealthEndpoint(t *testing.T) {
	env := setupApp(t, &fakeVerifier{claims: coachClaims()})

	resp := doRequest(t, env.app, "GET", "/api/health", false)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["db"])
}

func TestAuthMe(t *testing.T) {
	t.Run("requires a token", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		resp := doRequest(t, env.app, "GET", "/api/auth-me", false)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "No token provided", decodeBody(t, resp)["message"])
	})

	t.Run("rejects an expired token", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{err: identity.ErrTokenExpired})
		resp := doRequest(t, env.app, "GET", "/api/auth-me", true)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "Token has expired", decodeBody(t, resp)["message"])
	})

	t.Run("creates the user on first login", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})

		resp := doRequest(t, env.app, "GET", "/api/auth-me", true)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		body := decodeBody(t, resp)
		user := body["user"].(map[string]interface{})
		assert.Equal(t, "pat@example.com", user["email"])
		assert.Equal(t, "coach", user["role"])
		assert.Equal(t, "unpaid", user["subscriptionStatus"])
		assert.Equal(t, false, user["hasActiveSubscription"])
		assert.Equal(t, true, user["needsPayment"])

		var count int64
		env.db.Model(&models.User{}).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

func TestSubscriptionStatus(t *testing.T) {
	t.Run("unknown user is 404", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		resp := doRequest(t, env.app, "GET", "/api/subscription-status", true)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Contains(t, decodeBody(t, resp)["message"], "User not found")
	})

	t.Run("known user gets status with cache headers", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		doRequest(t, env.app, "GET", "/api/auth-me", true)

		resp := doRequest(t, env.app, "GET", "/api/subscription-status", true)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "private, max-age=60", resp.Header.Get("Cache-Control"))
		assert.Contains(t, resp.Header.Get("ETag"), "-unpaid")

		body := decodeBody(t, resp)
		assert.Equal(t, "unpaid", body["subscriptionStatus"])
		assert.Equal(t, true, body["needsPayment"])
	})
}

func TestCreateCheckoutSession(t *testing.T) {
	t.Run("unknown user is 404", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		resp := doRequest(t, env.app, "POST", "/api/create-checkout-session", true)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("unknown price is 404", func(t *testing.T) {
		// No configured price and lookup disabled.
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		doRequest(t, env.app, "GET", "/api/auth-me", true)

		resp := doRequest(t, env.app, "POST", "/api/create-checkout-session", true)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Contains(t, decodeBody(t, resp)["message"], "Price not found")
	})
}

func TestCreatePortalSession(t *testing.T) {
	t.Run("no billing account is 400", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		doRequest(t, env.app, "GET", "/api/auth-me", true)

		resp := doRequest(t, env.app, "POST", "/api/create-portal-session", true)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeBody(t, resp)["message"], "No billing account")
	})
}

func TestWebhook(t *testing.T) {
	signedRequest := func(t *testing.T, payload []byte) *http.Request {
		t.Helper()
		now := time.Now()
		sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
		req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader(string(payload)))
		req.Header.Set("Stripe-Signature",
			fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig)))
		return req
	}

	eventPayload := func(eventType, object string) []byte {
		return []byte(fmt.Sprintf(`{
			"id": "evt_test_1",
			"api_version": %q,
			"type": %q,
			"data": {"object": %s}
		}`, stripe.APIVersion, eventType, object))
	}

	t.Run("missing signature is 400", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader("{}"))
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeBody(t, resp)["message"], "Missing Stripe-Signature")
	})

	t.Run("bad signature is 400", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})
		req := httptest.NewRequest("POST", "/api/webhook", strings.NewReader("{}"))
		req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
		resp, err := env.app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("valid event moves subscription state", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})

		subID := "sub_1"
		user := models.User{
			ID:                   uuid.New(),
			Email:                "coach@example.com",
			Role:                 models.RoleCoach,
			SubscriptionStatus:   models.SubscriptionActive,
			StripeSubscriptionID: &subID,
			IsActive:             true,
		}
		require.NoError(t, env.db.Create(&user).Error)

		payload := eventPayload("customer.subscription.deleted", `{"id": "sub_1", "status": "canceled"}`)
		resp, err := env.app.Test(signedRequest(t, payload), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, decodeBody(t, resp)["received"])

		var stored models.User
		require.NoError(t, env.db.First(&stored, "id = ?", user.ID).Error)
		assert.Equal(t, models.SubscriptionCanceled, stored.SubscriptionStatus)
	})

	t.Run("unmatched event is still 200", func(t *testing.T) {
		env := setupApp(t, &fakeVerifier{claims: coachClaims()})

		payload := eventPayload("customer.subscription.updated", `{"id": "sub_missing", "status": "active"}`)
		resp, err := env.app.Test(signedRequest(t, payload), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		var count int64
		env.db.Model(&models.WebhookEvent{}).Where("outcome = ?", models.EventUnmatched).Count(&count)
		assert.Equal(t, int64(1), count)
	})
}

