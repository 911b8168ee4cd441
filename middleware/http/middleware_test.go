package http

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

func TestWithUser(t *testing.T) {
	var seen mirror.UserInfo
	handler := WithUser(FromHeader("X-User-ID"), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = UserFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	req.Header.Set("X-User-ID", "user_123")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if seen.UserID != "user_123" {
		t.Errorf("Expected user_123 in context, got %q", seen.UserID)
	}
}

func TestWithUserUnauthorized(t *testing.T) {
	called := false
	handler := WithUser(FromHeader("X-User-ID"), nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
		}))

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
	if called {
		t.Error("Expected handler to be skipped for anonymous request")
	}
}

func TestWithUserCustomUnauthorized(t *testing.T) {
	handler := WithUser(FromHeader("X-User-ID"), func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest(http.MethodGet, "/billing/subscription", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusFound {
		t.Errorf("Expected redirect, got %d", w.Code)
	}
}

func TestUserFromContext(t *testing.T) {
	user := mirror.UserInfo{UserID: "user_123", Email: "test@example.com"}
	ctx := NewContext(context.Background(), user)

	got, err := UserFromContext(ctx)
	if err != nil {
		t.Fatalf("Failed to read user from context: %v", err)
	}
	if got != user {
		t.Errorf("Expected %+v, got %+v", user, got)
	}

	// Missing and empty users both fail the same way, so UserFromContext can
	// serve directly as the engine's UserResolver.
	if _, err := UserFromContext(context.Background()); !errors.Is(err, mirror.ErrCustomerNotFound) {
		t.Errorf("Expected ErrCustomerNotFound for empty context, got %v", err)
	}
	if _, err := UserFromContext(NewContext(context.Background(), mirror.UserInfo{})); err == nil {
		t.Error("Expected error for user without id")
	}
}

func TestFromContext(t *testing.T) {
	type ctxKey string
	const authKey ctxKey = "auth_user"

	extract := FromContext(authKey)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), authKey, "user_from_auth"))
	if user := extract(req); user.UserID != "user_from_auth" {
		t.Errorf("Expected user_from_auth, got %q", user.UserID)
	}

	bare := httptest.NewRequest(http.MethodGet, "/", nil)
	if user := extract(bare); user.UserID != "" {
		t.Errorf("Expected empty user without auth, got %q", user.UserID)
	}
}

type stubProvider struct{}

func (stubProvider) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
}

func TestMount(t *testing.T) {
	mux := http.NewServeMux()
	Mount(mux, "/webhooks/stripe", stubProvider{})

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", nil)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected mounted handler to serve, got %d", w.Code)
	}
}
