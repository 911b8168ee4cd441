// Package gin provides Gin helpers for wiring the billing engine into a Gin
// router: user identity middleware and webhook mounting.
package gin

import (
	"net/http"

	gongin "github.com/gin-gonic/gin"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// UserExtractor extracts the acting user from a Gin context.
// Return a UserInfo with an empty UserID if the user is not authenticated.
type UserExtractor func(c *gongin.Context) mirror.UserInfo

// WithUser returns middleware that resolves the acting user via extract and
// stores it in the request context where mirrorhttp.UserFromContext finds it.
// Requests without a user are aborted with 401.
func WithUser(extract UserExtractor) gongin.HandlerFunc {
	return func(c *gongin.Context) {
		user := extract(c)
		if user.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gongin.H{"error": "Unauthorized"})
			return
		}
		c.Request = c.Request.WithContext(mirrorhttp.NewContext(c.Request.Context(), user))
		c.Next()
	}
}

// FromContext returns a UserExtractor that reads a user id string set by auth
// middleware via c.Set(key, userID).
func FromContext(key string) UserExtractor {
	return func(c *gongin.Context) mirror.UserInfo {
		if userID, ok := c.Get(key); ok {
			if str, ok := userID.(string); ok {
				return mirror.UserInfo{UserID: str}
			}
		}
		return mirror.UserInfo{}
	}
}

// FromHeader returns a UserExtractor that reads the user id from a header.
func FromHeader(headerName string) UserExtractor {
	return func(c *gongin.Context) mirror.UserInfo {
		return mirror.UserInfo{UserID: c.GetHeader(headerName)}
	}
}

// webhookProvider is the part of the engine the mount helper needs.
type webhookProvider interface {
	WebhookHandler() http.Handler
}

// Webhook returns a Gin handler for the webhook endpoint. The underlying
// handler reads the raw request body itself; mount it on a route without body
// parsing middleware or signature verification will fail.
func Webhook(p webhookProvider) gongin.HandlerFunc {
	handler := p.WebhookHandler()
	return func(c *gongin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}
