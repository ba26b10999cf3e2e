package credprovider

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// fakeIdentity is an in-memory IdentityService test double. refreshCalls
// counts calls to RefreshUserToken so single-flight behavior can be
// asserted.
type fakeIdentity struct {
	mu sync.Mutex

	refreshCalls int
	refreshFunc  func(ctx context.Context, clientID, clientSecret, refreshToken string) (AccessTokenResponse, error)

	tokenInfoFunc func(ctx context.Context, accessToken, clientID string) (TokenInfo, error)
}

func (f *fakeIdentity) RefreshUserToken(ctx context.Context, clientID, clientSecret, refreshToken string) (AccessTokenResponse, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refreshFunc(ctx, clientID, clientSecret, refreshToken)
}

func (f *fakeIdentity) GetTokenInfo(ctx context.Context, accessToken, clientID string) (TokenInfo, error) {
	if f.tokenInfoFunc != nil {
		return f.tokenInfoFunc(ctx, accessToken, clientID)
	}
	return TokenInfo{ClientID: clientID, Scopes: []string{"chat:read"}}, nil
}

func (f *fakeIdentity) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

// sequentialRefresh returns a refreshFunc that hands out a fresh access
// token on every call, always valid for the given ttl from now.
func sequentialRefresh(ttl time.Duration) func(context.Context, string, string, string) (AccessTokenResponse, error) {
	n := 0
	var mu sync.Mutex
	return func(_ context.Context, _, _, _ string) (AccessTokenResponse, error) {
		mu.Lock()
		n++
		token := n
		mu.Unlock()
		return AccessTokenResponse{
			AccessToken:  "access-" + strconv.Itoa(token),
			RefreshToken: "refresh-" + strconv.Itoa(token),
			Scopes:       []string{"chat:read"},
			ExpiresIn:    ttl,
			Timestamp:    time.Now(),
		}, nil
	}
}
