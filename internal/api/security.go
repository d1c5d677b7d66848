package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// SecurityHeaders sets the response headers for a JSON-only API. Certificate
// files under /files keep their own content type and may be embedded.
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")

		if c.Protocol() == "https" {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		if !strings.HasPrefix(c.Path(), "/files") {
			c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			c.Set("X-Frame-Options", "DENY")
		}

		return c.Next()
	}
}
