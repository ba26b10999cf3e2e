// Command twitchcred loads a YAML config, builds a credential Provider for
// one Twitch application identity, fetches the current access token, and
// prints it. It exists to exercise the credprovider/twitchapi/config
// packages end-to-end, not as a production credential distribution tool.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/twitchdev/credprovider/config"
	"github.com/twitchdev/credprovider/credprovider"
	"github.com/twitchdev/credprovider/internal/transport"
	"github.com/twitchdev/credprovider/twitchapi"
)

func main() {
	configFile := flag.String("config", "twitchcred.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	store, err := buildStore(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	identity := buildIdentityService(cfg)
	defer reportMetrics(identity)

	provider := credprovider.NewProviderBuilder(store, identity).
		WithLogger(stderrLogger{}).
		WithRefreshPadding(cfg.RefreshPadding.Duration).
		WithExpiryAge(cfg.ExpiryAge.Duration).
		Build()
	defer provider.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	creds, err := provider.Fetch(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fetch failed:", err)
		os.Exit(1)
	}

	fmt.Printf("access_token=%s scopes=%v\n", creds.AccessToken, creds.Scopes)
}

// buildIdentityService selects the IdentityService implementation named by
// cfg.IdentityService.Type, defaulting to the hand-rolled HTTP client.
func buildIdentityService(cfg *config.Config) credprovider.IdentityService {
	base := twitchapi.Config{
		TokenURL:    cfg.IdentityService.TokenURL,
		ValidateURL: cfg.IdentityService.ValidateURL,
		RateLimit:   rate.Limit(cfg.IdentityService.RateLimitRPS),
		Burst:       1,
		Logger:      stderrLogger{},
	}

	switch cfg.IdentityService.Type {
	case "", "http":
		return twitchapi.New(base)
	case "oauth2":
		return twitchapi.NewOAuth2IdentityService(base)
	default:
		// config.Validate already rejects unknown types before main gets
		// here.
		panic("unreachable: unknown identity_service type " + cfg.IdentityService.Type)
	}
}

// metricsReporter is satisfied by both twitchapi identity service variants;
// it lets reportMetrics print a summary without caring which one was built.
type metricsReporter interface {
	Metrics() transport.Metrics
}

func reportMetrics(identity credprovider.IdentityService) {
	reporter, ok := identity.(metricsReporter)
	if !ok {
		return
	}
	m := reporter.Metrics()
	fmt.Fprintf(os.Stderr, "identity service requests=%d successes=%d failures=%d retries=%d avg_latency=%s\n",
		m.TotalRequests, m.SuccessfulReqs, m.FailedReqs, m.RetryCount, m.AvgLatency)
}

func buildStore(cfg *config.Config) (credprovider.Store, error) {
	base := credprovider.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		AccessToken:  cfg.AccessToken,
		RefreshToken: cfg.RefreshToken,
	}

	switch cfg.Storage.Type {
	case "", "memory":
		return credprovider.NewMemoryStore(base), nil
	case "static":
		return credprovider.NewStaticStore(base), nil
	case "file":
		return credprovider.NewFileStore(cfg.Storage.Path, 0), nil
	case "encrypted-file":
		return credprovider.NewEncryptedFileStore(cfg.Storage.Path, 0, cfg.Storage.EncryptionPassphrase)
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Storage.Type)
	}
}

type stderrLogger struct{}

func (stderrLogger) Warn(msg string, fields map[string]interface{}) {
	fmt.Fprintf(os.Stderr, "WARN %s %v\n", msg, fields)
}

func (stderrLogger) Error(msg string, fields map[string]interface{}) {
	fmt.Fprintf(os.Stderr, "ERROR %s %v\n", msg, fields)
}
