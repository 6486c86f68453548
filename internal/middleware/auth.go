package middleware

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rtmcdo/schedulecoaches-web/internal/dto"
	"github.com/rtmcdo/schedulecoaches-web/internal/identity"
)

const claimsKey = "identity_claims"

// TokenVerifier verifies a bearer token and returns normalized claims.
type TokenVerifier interface {
	Verify(ctx context.Context, rawToken string) (*identity.Claims, error)
}

// RequireAuth verifies the bearer token against the identity providers
// and stores the normalized claims in the request locals. Verification
// failures are 401 and never leak internal detail.
func RequireAuth(verifier TokenVerifier, timeout time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: "No token provided",
			})
		}

		ctx, cancel := context.WithTimeout(c.UserContext(), timeout)
		defer cancel()

		claims, err := verifier.Verify(ctx, token)
		if err != nil {
			message := "Invalid token"
			if errors.Is(err, identity.ErrTokenExpired) {
				message = "Token has expired"
			}
			return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{
				Error: true, Message: message,
			})
		}

		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

// ClaimsFromCtx returns the claims stored by RequireAuth.
func ClaimsFromCtx(c *fiber.Ctx) *identity.Claims {
	claims, _ := c.Locals(claimsKey).(*identity.Claims)
	return claims
}

func bearerToken(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}
