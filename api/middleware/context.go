package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID contextKey = "user_id"
	ctxRole   contextKey = "actor_role"
	ctxShopID contextKey = "shop_id"
)

func UserIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxUserID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func RoleFromContext(ctx context.Context) enums.ActorRole {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRole).(enums.ActorRole); ok {
		return v
	}
	return ""
}

// ShopIDFromContext returns the seller's shop scope, uuid.Nil for buyers.
func ShopIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxShopID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

// WithIdentity injects the authenticated identity, used by tests to
// bypass the JWT middleware.
func WithIdentity(ctx context.Context, userID uuid.UUID, role enums.ActorRole, shopID *uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxRole, role)
	if shopID != nil {
		ctx = context.WithValue(ctx, ctxShopID, *shopID)
	}
	return ctx
}
