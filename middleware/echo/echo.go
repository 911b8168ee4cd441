// Package echo provides Echo helpers for wiring the billing engine into an
// Echo router: user identity middleware and webhook mounting.
package echo

import (
	"net/http"

	"github.com/labstack/echo/v4"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// UserExtractor extracts the acting user from an Echo context.
// Return a UserInfo with an empty UserID if the user is not authenticated.
type UserExtractor func(c echo.Context) mirror.UserInfo

// WithUser returns middleware that resolves the acting user via extract and
// stores it in the request context where mirrorhttp.UserFromContext finds it.
// Requests without a user are rejected with 401.
func WithUser(extract UserExtractor) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			user := extract(c)
			if user.UserID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
			}
			req := c.Request()
			c.SetRequest(req.WithContext(mirrorhttp.NewContext(req.Context(), user)))
			return next(c)
		}
	}
}

// FromContext returns a UserExtractor that reads a user id string set by auth
// middleware via c.Set(key, userID).
func FromContext(key string) UserExtractor {
	return func(c echo.Context) mirror.UserInfo {
		if userID, ok := c.Get(key).(string); ok {
			return mirror.UserInfo{UserID: userID}
		}
		return mirror.UserInfo{}
	}
}

// FromHeader returns a UserExtractor that reads the user id from a header.
func FromHeader(headerName string) UserExtractor {
	return func(c echo.Context) mirror.UserInfo {
		return mirror.UserInfo{UserID: c.Request().Header.Get(headerName)}
	}
}

// webhookProvider is the part of the engine the mount helper needs.
type webhookProvider interface {
	WebhookHandler() http.Handler
}

// Webhook returns an Echo handler for the webhook endpoint. The underlying
// handler reads the raw request body itself; mount it on a route without body
// parsing middleware or signature verification will fail.
func Webhook(p webhookProvider) echo.HandlerFunc {
	handler := p.WebhookHandler()
	return func(c echo.Context) error {
		handler.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}
