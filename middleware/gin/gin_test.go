package gin

import (
	"net/http"
	"net/http/httptest"
	"testing"

	gongin "github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mirrorhttp "github.com/mihaimyh/stripemirror/middleware/http"
	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func newRouter() *gongin.Engine {
	gongin.SetMode(gongin.TestMode)
	return gongin.New()
}

func TestWithUserFromHeader(t *testing.T) {
	router := newRouter()

	var seen mirror.UserInfo
	router.GET("/billing/subscription", WithUser(FromHeader("X-User-ID")), func(c *gongin.Context) {
		seen, _ = mirrorhttp.UserFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	req.Header.Set("X-User-ID", "user_123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user_123", seen.UserID)
}

func TestWithUserUnauthorized(t *testing.T) {
	router := newRouter()
	router.GET("/billing/subscription", WithUser(FromHeader("X-User-ID")), func(c *gongin.Context) {
		t.Error("handler should not run for anonymous request")
	})

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, w.Body.String())
}

func TestFromContext(t *testing.T) {
	router := newRouter()

	// Upstream auth middleware sets the user id; the extractor picks it up.
	router.Use(func(c *gongin.Context) {
		c.Set("auth_user", "user_from_auth")
	})

	var seen mirror.UserInfo
	router.GET("/", WithUser(FromContext("auth_user")), func(c *gongin.Context) {
		seen, _ = mirrorhttp.UserFromContext(c.Request.Context())
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

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
	router := newRouter()
	router.POST("/webhooks/stripe", Webhook(stubProvider{}))

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTeapot, w.Code)
}
