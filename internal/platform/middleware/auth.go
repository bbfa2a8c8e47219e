package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// TokenValidator validates bearer tokens presented to the API.
type TokenValidator interface {
	ValidateToken(tokenString string) (*TokenClaims, error)
}

// TokenClaims carries the authenticated principal. Exactly one of UserID or
// ControllerRef is set depending on who the token was issued to.
type TokenClaims struct {
	UserID        string
	ControllerRef string
}

type contextKeyUserID struct{}
type contextKeyControllerRef struct{}

// WithUserID returns a context carrying an authenticated user ID. Used by
// handler tests to bypass token validation.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKeyUserID{}, userID)
}

// WithControllerRef returns a context carrying an authenticated controller
// reference.
func WithControllerRef(ctx context.Context, ref string) context.Context {
	return context.WithValue(ctx, contextKeyControllerRef{}, ref)
}

// GetUserID retrieves the authenticated pseudonymous user ID from the context.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(contextKeyUserID{}).(string); ok {
		return userID
	}
	return ""
}

// GetControllerRef retrieves the authenticated controller reference from the context.
func GetControllerRef(ctx context.Context) string {
	if ref, ok := ctx.Value(contextKeyControllerRef{}).(string); ok {
		return ref
	}
	return ""
}

// RequireAuth validates the Authorization bearer token and stores the
// authenticated principal in the request context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "unauthorized access, missing token",
					"request_id", GetRequestID(ctx),
				)
				unauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access, invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				unauthorized(w, "Invalid or expired token")
				return
			}

			if claims.UserID != "" {
				ctx = WithUserID(ctx, claims.UserID)
			}
			if claims.ControllerRef != "" {
				ctx = WithControllerRef(ctx, claims.ControllerRef)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"unauthorized","message":"` + message + `"}`))
}
