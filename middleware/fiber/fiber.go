// Package fiber provides Fiber helpers for wiring the billing engine into a
// Fiber app: user identity middleware and webhook mounting.
package fiber

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// UserExtractor extracts the acting user from a Fiber context.
// Return a UserInfo with an empty UserID if the user is not authenticated.
type UserExtractor func(c *fiber.Ctx) mirror.UserInfo

// WithUser returns middleware that resolves the acting user via extract and
// stores it in the user context where mirrorhttp.UserFromContext finds it.
// Requests without a user are rejected with 401.
//
// Fiber uses fasthttp, so downstream handlers must read the user through
// c.UserContext(), not the fasthttp request context.
func WithUser(extract UserExtractor) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := extract(c)
		if user.UserID == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
		}
		c.SetUserContext(mirrorhttp.NewContext(c.UserContext(), user))
		return c.Next()
	}
}

// FromContext returns a UserExtractor that reads a user id string set by auth
// middleware via c.Locals(key, userID).
func FromContext(key string) UserExtractor {
	return func(c *fiber.Ctx) mirror.UserInfo {
		if userID, ok := c.Locals(key).(string); ok {
			return mirror.UserInfo{UserID: userID}
		}
		return mirror.UserInfo{}
	}
}

// FromHeader returns a UserExtractor that reads the user id from a header.
// Fiber v2 uses c.Get() for headers.
func FromHeader(headerName string) UserExtractor {
	return func(c *fiber.Ctx) mirror.UserInfo {
		return mirror.UserInfo{UserID: c.Get(headerName)}
	}
}

// webhookProvider is the part of the engine the mount helper needs.
type webhookProvider interface {
	WebhookHandler() http.Handler
}

// Webhook returns a Fiber handler for the webhook endpoint. The underlying
// handler reads the raw request body itself; mount it on a route without body
// parsing middleware or signature verification will fail.
func Webhook(p webhookProvider) fiber.Handler {
	return adaptor.HTTPHandler(p.WebhookHandler())
}
