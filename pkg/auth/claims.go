package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/tundeoa/sokohub-backend/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID uuid.UUID
	ShopID *uuid.UUID
	Role   enums.ActorRole
	Email  string
	JTI    string
}

// AccessTokenClaims represents the typed JWT issued to clients. ShopID is
// set only for sellers and scopes them to the shop they own.
type AccessTokenClaims struct {
	UserID uuid.UUID       `json:"user_id"`
	ShopID *uuid.UUID      `json:"shop_id,omitempty"`
	Role   enums.ActorRole `json:"role"`
	Email  string          `json:"email,omitempty"`
	jwt.RegisteredClaims
}
