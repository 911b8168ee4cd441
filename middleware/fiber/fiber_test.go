package fiber

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func TestWithUserFromHeader(t *testing.T) {
	app := fiber.New()

	var seen mirror.UserInfo
	app.Get("/billing/subscription", WithUser(FromHeader("X-User-ID")), func(c *fiber.Ctx) error {
		seen, _ = mirrorhttp.UserFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	req.Header.Set("X-User-ID", "user_123")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user_123", seen.UserID)
}

func TestWithUserUnauthorized(t *testing.T) {
	app := fiber.New()
	app.Get("/billing/subscription", WithUser(FromHeader("X-User-ID")), func(c *fiber.Ctx) error {
		t.Error("handler should not run for anonymous request")
		return nil
	})

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestFromContext(t *testing.T) {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("auth_user", "user_from_auth")
		return c.Next()
	})

	var seen mirror.UserInfo
	app.Get("/", WithUser(FromContext("auth_user")), func(c *fiber.Ctx) error {
		seen, _ = mirrorhttp.UserFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "user_from_auth", seen.UserID)
}

type stubProvider struct{}

func (stubProvider) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestWebhook(t *testing.T) {
	app := fiber.New()
	app.Post("/webhooks/stripe", Webhook(stubProvider{}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusTeapot, resp.StatusCode)
}
