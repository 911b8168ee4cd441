// Package http provides net/http helpers for wiring the billing engine into
// a server: user identity middleware and webhook mounting. The identity
// middleware stores the resolved user in the request context where
// UserFromContext can find it, so it can serve as the engine's UserResolver.
package http

import (
	"context"
	"net/http"

	"github.com/mihaimyh/stripemirror/pkg/mirror"
)

// UserExtractor extracts the acting user from an HTTP request.
// Return a UserInfo with an empty UserID if the user is not authenticated.
type UserExtractor func(r *http.Request) mirror.UserInfo

// ContextKey is a type for context keys.
type ContextKey string

// UserKey is the context key under which WithUser stores the resolved user.
const UserKey ContextKey = "stripemirror:user"

// WithUser returns middleware that resolves the acting user via extract and
// stores it in the request context. Requests without a user are rejected with
// 401 unless onUnauthorized overrides that.
func WithUser(extract UserExtractor, onUnauthorized http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := extract(r)
			if user.UserID == "" {
				if onUnauthorized != nil {
					onUnauthorized(w, r)
				} else {
					http.Error(w, "Unauthorized", http.StatusUnauthorized)
				}
				return
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), user)))
		})
	}
}

// NewContext returns ctx with the user stored under UserKey.
func NewContext(ctx context.Context, user mirror.UserInfo) context.Context {
	return context.WithValue(ctx, UserKey, user)
}

// UserFromContext reads the user stored by WithUser (or any of the framework
// adapters). It matches the engine's UserResolver signature:
//
//	cfg.UserResolver = mirrorhttp.UserFromContext
func UserFromContext(ctx context.Context) (mirror.UserInfo, error) {
	if user, ok := ctx.Value(UserKey).(mirror.UserInfo); ok && user.UserID != "" {
		return user, nil
	}
	return mirror.UserInfo{}, mirror.ErrCustomerNotFound
}

// FromHeader returns a UserExtractor that reads the user id from a header.
func FromHeader(headerName string) UserExtractor {
	return func(r *http.Request) mirror.UserInfo {
		return mirror.UserInfo{UserID: r.Header.Get(headerName)}
	}
}

// FromContext returns a UserExtractor that reads a user id string stored in
// the request context under key by upstream auth middleware.
func FromContext(key interface{}) UserExtractor {
	return func(r *http.Request) mirror.UserInfo {
		if userID, ok := r.Context().Value(key).(string); ok {
			return mirror.UserInfo{UserID: userID}
		}
		return mirror.UserInfo{}
	}
}

// webhookProvider is the part of the engine the mount helper needs.
type webhookProvider interface {
	WebhookHandler() http.Handler
}

// Mount registers the webhook endpoint on mux at path. The handler reads the
// raw request body itself; do not wrap it in middleware that consumes or
// rewrites the body, or signature verification will fail.
func Mount(mux *http.ServeMux, path string, p webhookProvider) {
	mux.Handle(path, p.WebhookHandler())
}
