package echo

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func TestWithUserFromHeader(t *testing.T) {
	e := echo.New()

	var seen mirror.UserInfo
	e.GET("/billing/subscription", func(c echo.Context) error {
		seen, _ = mirrorhttp.UserFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, WithUser(FromHeader("X-User-ID")))

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	req.Header.Set("X-User-ID", "user_123")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_123", seen.UserID)
}

func TestWithUserUnauthorized(t *testing.T) {
	e := echo.New()
	e.GET("/billing/subscription", func(c echo.Context) error {
		t.Error("handler should not run for anonymous request")
		return nil
	}, WithUser(FromHeader("X-User-ID")))

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFromContext(t *testing.T) {
	e := echo.New()

	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Set("auth_user", "user_from_auth")
			return next(c)
		}
	})

	var seen mirror.UserInfo
	e.GET("/", func(c echo.Context) error {
		seen, _ = mirrorhttp.UserFromContext(c.Request().Context())
		return c.NoContent(http.StatusOK)
	}, WithUser(FromContext("auth_user")))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_from_auth", seen.UserID)
}

type stubProvider struct{}

func (stubProvider) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestWebhook(t *testing.T) {
	e := echo.New()
	e.POST("/webhooks/stripe", Webhook(stubProvider{}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}
