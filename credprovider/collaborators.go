package credprovider

import (
	"context"
	"time"
)

// IdentityService is the external collaborator contract the Refresh
// Coordinator and Hydrator call out to. The twitchapi package ships the
// default HTTP-backed implementation; tests supply fakes.
type IdentityService interface {
	// RefreshUserToken exchanges a refresh token for a new access token.
	// Implementations must populate ExpiresIn and Timestamp on success;
	// the Refresh Coordinator fails fatally if either is zero.
	RefreshUserToken(ctx context.Context, clientID, clientSecret, refreshToken string) (AccessTokenResponse, error)

	// GetTokenInfo introspects an access token. Used only during
	// hydration.
	GetTokenInfo(ctx context.Context, accessToken, clientID string) (TokenInfo, error)
}

// AccessTokenResponse is what a successful refresh call returns.
type AccessTokenResponse struct {
	AccessToken  string
	RefreshToken string
	Scopes       []string
	ExpiresIn    time.Duration
	Timestamp    time.Time
}

// TokenInfo is what the identity service's introspection endpoint returns.
type TokenInfo struct {
	ClientID   string
	Login      string
	UserID     string
	Scopes     []string
	ExpiryDate *time.Time
}
