package realtime

import (
	"context"
	"errors"
	"fmt"

	"notification-hub/internal/auth"
	"notification-hub/internal/models"
)

var (
	errTokenRequired = errors.New("a token is required")
	errNoUserID      = errors.New("user_id is required")
)

// Identity is the logical user bound to a connection after auth.
type Identity struct {
	UserID string
	Role   string
}

// IdentityResolver turns an auth message into an identity.
type IdentityResolver interface {
	ResolveIdentity(ctx context.Context, req models.AuthPayload) (Identity, error)
}

// TokenValidator is satisfied by *auth.Manager.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// TokenResolver prefers a signed token and, unless RequireToken is set,
// falls back to the identity the client claims.
type TokenResolver struct {
	Tokens       TokenValidator
	RequireToken bool
}

// ResolveIdentity implements IdentityResolver.
func (r TokenResolver) ResolveIdentity(_ context.Context, req models.AuthPayload) (Identity, error) {
	if req.Token != "" {
		if r.Tokens == nil {
			return Identity{}, errors.New("token authentication is not configured")
		}
		claims, err := r.Tokens.ValidateToken(req.Token)
		if err != nil {
			return Identity{}, fmt.Errorf("invalid token: %w", err)
		}
		return Identity{UserID: claims.UserID, Role: claims.Role}, nil
	}

	if r.RequireToken {
		return Identity{}, errTokenRequired
	}
	if req.UserID == "" {
		return Identity{}, errNoUserID
	}
	return Identity{UserID: req.UserID, Role: req.Role}, nil
}
