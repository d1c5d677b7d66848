package api

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dnacommunity/backend/internal/account"

	"github.com/gofiber/fiber/v2"
)

const localUserID = "uid"

// Authenticator verifies bearer tokens.
type Authenticator interface {
	Authenticate(token string) (*account.Claims, error)
}

// AdminChecker decides whether a user may act as an admin.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID string) (bool, error)
}

// Authenticated requires a valid bearer token and stores its uid in the locals.
func Authenticated(auth Authenticator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return ErrMissingToken
		}

		claims, err := auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			return account.ErrInvalidToken
		}

		c.Locals(localUserID, claims.UID)
		return c.Next()
	}
}

// SameUser lets the request through when the route parameter names the
// caller. Admins may act on anyone.
func SameUser(param string, admins AdminChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Params(param) == UserID(c) {
			return c.Next()
		}
		isAdmin, err := admins.IsAdmin(c.UserContext(), UserID(c))
		if err != nil || !isAdmin {
			return ErrForbidden
		}
		return c.Next()
	}
}

func AdminOnly(admins AdminChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		isAdmin, err := admins.IsAdmin(c.UserContext(), UserID(c))
		if err != nil || !isAdmin {
			return ErrAdminRequired
		}
		return c.Next()
	}
}

// UserID returns the authenticated caller, or "" on public routes.
func UserID(c *fiber.Ctx) string {
	uid, _ := c.Locals(localUserID).(string)
	return uid
}

// RequestLogger writes one record per request. Errors are rendered here so
// the logged status is the one the client gets.
func RequestLogger(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if err := c.Next(); err != nil {
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				return herr
			}
		}

		attrs := []any{
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"latency", time.Since(start),
			"ip", c.IP(),
		}
		if rid, ok := c.Locals("requestid").(string); ok {
			attrs = append(attrs, "request_id", rid)
		}
		if uid := UserID(c); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		logger.InfoContext(c.UserContext(), "Request", attrs...)
		return nil
	}
}
