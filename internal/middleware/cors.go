package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/rtmcdo/schedulecoaches-web/internal/config"
)

// CORS restricts browser access to the configured origin allow-list.
// Patterns may contain a single wildcard (e.g. https://*.azurestaticapps.net)
// for preview deployment hosts. Preflights are answered with 204.
func CORS(cfg *config.Config) fiber.Handler {
	patterns := cfg.CORSOrigins
	return cors.New(cors.Config{
		AllowOriginsFunc: func(origin string) bool {
			return originAllowed(patterns, origin)
		},
		AllowHeaders: "Origin, Content-Type, Authorization, Accept, X-Request-ID, Stripe-Signature",
		AllowMethods: "GET, POST, PUT, DELETE, PATCH, OPTIONS",
		MaxAge:       86400,
	})
}

func originAllowed(patterns []string, origin string) bool {
	for _, p := range patterns {
		if matchOrigin(p, origin) {
			return true
		}
	}
	return false
}

func matchOrigin(pattern, origin string) bool {
	star := strings.Index(pattern, "*")
	if star < 0 {
		return pattern == origin
	}
	prefix, suffix := pattern[:star], pattern[star+1:]
	return len(origin) >= len(prefix)+len(suffix) &&
		strings.HasPrefix(origin, prefix) &&
		strings.HasSuffix(origin, suffix)
}
