package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/rohanmalik/merakistore-backend/internal/identity"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxRole     contextKey = "actor_role"
	ctxAccessID contextKey = "access_id"
	ctxOwnerKey contextKey = "owner_key"
	ctxGuestKey contextKey = "guest_key"
)

func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserID).(string); ok {
		return v
	}
	return ""
}

// UserUUIDFromContext parses the authenticated user id, returning
// uuid.Nil for anonymous requests.
func UserUUIDFromContext(ctx context.Context) uuid.UUID {
	raw := UserIDFromContext(ctx)
	if raw == "" {
		return uuid.Nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func RoleFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(string); ok {
		return v
	}
	return ""
}

// AccessIDFromContext returns the jti of the presented access token.
func AccessIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxAccessID).(string); ok {
		return v
	}
	return ""
}

// OwnerKeyFromContext returns the cart identity for the request: the
// user key when authenticated, otherwise the guest key.
func OwnerKeyFromContext(ctx context.Context) (identity.OwnerKey, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(ctxOwnerKey).(identity.OwnerKey); ok {
		return v, true
	}
	return "", false
}

// GuestKeyFromContext returns the guest identity from the visitor
// cookie even when the request is authenticated, so login can pick up
// the anonymous cart.
func GuestKeyFromContext(ctx context.Context) (identity.OwnerKey, bool) {
	if ctx == nil {
		return "", false
	}
	if v, ok := ctx.Value(ctxGuestKey).(identity.OwnerKey); ok {
		return v, true
	}
	return "", false
}

// WithUserID injects the user identifier into the context.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithRole injects the actor's role into the context.
func WithRole(ctx context.Context, role string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxRole, role)
}

// WithAccessID injects the access token jti into the context.
func WithAccessID(ctx context.Context, accessID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccessID, accessID)
}

// WithOwnerKey injects the cart identity into the context.
func WithOwnerKey(ctx context.Context, owner identity.OwnerKey) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxOwnerKey, owner)
}

// WithGuestKey injects the visitor cookie identity into the context.
func WithGuestKey(ctx context.Context, guest identity.OwnerKey) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxGuestKey, guest)
}
