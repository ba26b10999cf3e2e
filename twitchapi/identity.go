// Package twitchapi implements the default HTTP client the credprovider
// package calls out to for token refresh and introspection against the
// real Twitch identity service.
package twitchapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/twitchdev/credprovider/credprovider"
	"github.com/twitchdev/credprovider/internal/transport"
)

const (
	defaultTokenURL    = "https://id.twitch.tv/oauth2/token"
	defaultValidateURL = "https://id.twitch.tv/oauth2/validate"
)

// Config configures an HTTPIdentityService.
type Config struct {
	TokenURL    string
	ValidateURL string

	// RateLimit caps outbound requests per second against the identity
	// service, mirroring the client-side limiter this codebase applies
	// to other rate-limited upstreams. Zero disables throttling.
	RateLimit rate.Limit
	Burst     int

	HTTPClient *transport.Client
	Logger     credprovider.Logger
}

// HTTPIdentityService is the default credprovider.IdentityService
// implementation, talking to id.twitch.tv over HTTP.
type HTTPIdentityService struct {
	tokenURL    string
	validateURL string
	client      *transport.Client
	limiter     *rate.Limiter
	logger      credprovider.Logger
}

// New builds an HTTPIdentityService from cfg, filling in Twitch's real
// endpoints and a retrying transport client when not supplied.
func New(cfg Config) *HTTPIdentityService {
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.ValidateURL == "" {
		cfg.ValidateURL = defaultValidateURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = transport.New(transport.Config{UserAgent: "twitch-credprovider/1.0"})
	}
	if cfg.Logger == nil {
		cfg.Logger = credprovider.NoopLogger{}
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	return &HTTPIdentityService{
		tokenURL:    cfg.TokenURL,
		validateURL: cfg.ValidateURL,
		client:      cfg.HTTPClient,
		limiter:     limiter,
		logger:      cfg.Logger,
	}
}

type tokenResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	Scope        []string `json:"scope"`
	TokenType    string   `json:"token_type"`
}

// RefreshUserToken exchanges a refresh token for a new access token via
// Twitch's form-encoded /oauth2/token endpoint.
func (s *HTTPIdentityService) RefreshUserToken(ctx context.Context, clientID, clientSecret, refreshToken string) (credprovider.AccessTokenResponse, error) {
	if err := s.wait(ctx); err != nil {
		return credprovider.AccessTokenResponse{}, err
	}

	correlationID := uuid.NewString()

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", clientID)
	form.Set("client_secret", clientSecret)

	req, err := transport.NewFormRequest(ctx, "POST", s.tokenURL, form)
	if err != nil {
		return credprovider.AccessTokenResponse{}, fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("X-Correlation-Id", correlationID)

	issuedAt := time.Now()
	resp, err := s.client.Do(ctx, req)
	if err != nil {
		s.logger.Warn("refresh request failed", map[string]interface{}{"correlation_id": correlationID, "error": err.Error()})
		return credprovider.AccessTokenResponse{}, fmt.Errorf("refresh request: %w", err)
	}

	var parsed tokenResponse
	if err := transport.ReadJSON(resp, &parsed); err != nil {
		return credprovider.AccessTokenResponse{}, fmt.Errorf("decoding refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return credprovider.AccessTokenResponse{}, fmt.Errorf("refresh response missing access_token")
	}

	return credprovider.AccessTokenResponse{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		Scopes:       parsed.Scope,
		ExpiresIn:    time.Duration(parsed.ExpiresIn) * time.Second,
		Timestamp:    issuedAt,
	}, nil
}

type validateResponse struct {
	ClientID  string   `json:"client_id"`
	Login     string   `json:"login"`
	UserID    string   `json:"user_id"`
	Scopes    []string `json:"scopes"`
	ExpiresIn int64    `json:"expires_in"`
}

// GetTokenInfo introspects an access token via Twitch's /oauth2/validate
// endpoint.
func (s *HTTPIdentityService) GetTokenInfo(ctx context.Context, accessToken, clientID string) (credprovider.TokenInfo, error) {
	if err := s.wait(ctx); err != nil {
		return credprovider.TokenInfo{}, err
	}

	req, err := transport.NewJSONRequest(ctx, "GET", s.validateURL, nil)
	if err != nil {
		return credprovider.TokenInfo{}, fmt.Errorf("building validate request: %w", err)
	}
	req.Header.Set("Authorization", "OAuth "+accessToken)

	resp, err := s.client.Do(ctx, req)
	if err != nil {
		return credprovider.TokenInfo{}, fmt.Errorf("validate request: %w", err)
	}

	var parsed validateResponse
	if err := transport.ReadJSON(resp, &parsed); err != nil {
		return credprovider.TokenInfo{}, fmt.Errorf("decoding validate response: %w", err)
	}

	info := credprovider.TokenInfo{
		ClientID: parsed.ClientID,
		Login:    parsed.Login,
		UserID:   parsed.UserID,
		Scopes:   parsed.Scopes,
	}
	if parsed.ExpiresIn > 0 {
		expiry := time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
		info.ExpiryDate = &expiry
	}
	if info.ClientID == "" {
		info.ClientID = clientID
	}
	return info, nil
}

// Metrics returns a snapshot of the underlying transport client's request
// counters, for callers that want to surface identity-service health (the
// CLI prints this on exit).
func (s *HTTPIdentityService) Metrics() transport.Metrics {
	return s.client.GetMetrics()
}

func (s *HTTPIdentityService) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// FormatExpiresIn is a small helper exposed for callers building their own
// diagnostics/log lines around a raw validate response.
func FormatExpiresIn(seconds int64) string {
	return strconv.FormatInt(seconds, 10) + "s"
}
