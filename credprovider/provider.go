package credprovider

import (
	"context"
	"sync"
	"time"
)

const (
	// defaultRefreshPadding is the pre-expiry window during which Fetch
	// proactively refreshes rather than waiting for outright expiry.
	defaultRefreshPadding = 500 * time.Millisecond

	// defaultExpiryAge is how long a settled RefreshMap entry survives
	// past its own ExpiryDate before the pruner reclaims it.
	defaultExpiryAge = 24 * time.Hour
)

// Provider is the single long-lived object holding the canonical
// credential set for one Twitch application identity. It composes the
// Credential Cell, Hydrator, Refresh Coordinator, Persistence Bridge and
// Pruner described by this package; callers only ever touch Fetch and
// IdempotentRefresh.
type Provider struct {
	mu         sync.Mutex
	cell       credentialCell
	refreshMap map[string]*refreshEntry

	store    Store
	identity IdentityService
	logger   Logger

	refreshPadding time.Duration
	expiryAge      time.Duration
	nextSaveRetry  *time.Time

	closeCh   chan struct{}
	closeOnce sync.Once
}

// ProviderBuilder constructs a Provider, matching the fluent WithX/Build
// configuration style used throughout this module.
type ProviderBuilder struct {
	store          Store
	identity       IdentityService
	logger         Logger
	refreshPadding time.Duration
	expiryAge      time.Duration
}

// NewProviderBuilder starts building a Provider backed by store for
// persistence and identity for the refresh/hydration collaborator calls.
func NewProviderBuilder(store Store, identity IdentityService) *ProviderBuilder {
	return &ProviderBuilder{store: store, identity: identity}
}

// WithLogger overrides the default no-op Logger.
func (b *ProviderBuilder) WithLogger(logger Logger) *ProviderBuilder {
	b.logger = logger
	return b
}

// WithRefreshPadding overrides the default 500ms pre-expiry window.
func (b *ProviderBuilder) WithRefreshPadding(d time.Duration) *ProviderBuilder {
	b.refreshPadding = d
	return b
}

// WithExpiryAge overrides the default 24h refresh-map retention window.
func (b *ProviderBuilder) WithExpiryAge(d time.Duration) *ProviderBuilder {
	b.expiryAge = d
	return b
}

// Build constructs the Provider and schedules the initial load+hydrate
// pass. Build itself never blocks on the identity service or the store;
// the load begins on its own goroutine so any subclass-style setup the
// caller still wants to do between Build() and the first Fetch() can
// happen first, mirroring the "one scheduling tick after construction"
// rule in the source design.
func (b *ProviderBuilder) Build() *Provider {
	p := &Provider{
		refreshMap:     make(map[string]*refreshEntry),
		store:          b.store,
		identity:       b.identity,
		logger:         b.logger,
		refreshPadding: b.refreshPadding,
		expiryAge:      b.expiryAge,
		closeCh:        make(chan struct{}),
	}
	if p.logger == nil {
		p.logger = NoopLogger{}
	}
	if p.refreshPadding == 0 {
		p.refreshPadding = defaultRefreshPadding
	}
	if p.expiryAge == 0 {
		p.expiryAge = defaultExpiryAge
	}

	initial := p.cell.install()
	go p.loadAndHydrate(initial)

	p.startPruner()
	return p
}

func (p *Provider) loadAndHydrate(state *cellState) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loaded, err := p.store.Load(ctx)
	if err != nil {
		state.settle(Credentials{}, newLoadError("load", "loading initial credentials", err))
		return
	}

	hydrated, err := hydrate(ctx, p.identity, loaded)
	if err != nil {
		state.settle(Credentials{}, err)
		return
	}

	state.settle(hydrated, nil)

	if hydrated.Refreshable() {
		p.scheduleSave(hydrated)
	}
}

// Fetch returns the current credentials, refreshing first if the access
// token is within refreshPadding of expiry.
func (p *Provider) Fetch(ctx context.Context) (Credentials, error) {
	cur, err := p.cell.Get(ctx)
	if err != nil {
		return Credentials{}, err
	}

	if cur.ExpiryDate == nil {
		return cur, nil
	}

	remaining := time.Until(*cur.ExpiryDate) - p.refreshPadding
	if remaining > 0 {
		p.maybeRetrySave(cur)
		return cur, nil
	}

	if !cur.Refreshable() {
		return Credentials{}, newFatalError("fetch", "static credentials have expired", nil)
	}
	return p.IdempotentRefresh(ctx, cur.AccessToken)
}

// IdempotentRefresh is the concurrency-critical operation: at most one
// in-flight refresh exists per oldAccessToken system-wide, and every
// concurrent caller naming the same oldAccessToken observes the same
// result.
func (p *Provider) IdempotentRefresh(ctx context.Context, oldAccessToken string) (Credentials, error) {
	p.mu.Lock()
	if entry, ok := p.refreshMap[oldAccessToken]; ok {
		p.mu.Unlock()
		return awaitEntry(ctx, entry)
	}

	// Capture the pre-refresh cell state before replacing it — this is
	// the "cur" the new future validates oldAccessToken against and, on
	// failure, rolls back to (see DESIGN.md for why this departs from a
	// literal reading of "never rolled back").
	prevState := p.cell.current()

	entry := newRefreshEntry()
	p.refreshMap[oldAccessToken] = entry
	newState := p.cell.install()
	p.nextSaveRetry = nil
	p.mu.Unlock()

	// The refresh itself runs on a context independent of this particular
	// caller: every other goroutine that lands in the p.refreshMap hit
	// above is depending on the same future, and this caller's ctx being
	// cancelled or timing out must not abort the refresh for the rest of
	// them. Each waiter, including this one, only ever detaches itself via
	// awaitEntry's own ctx.Done() case.
	go p.runRefreshAsync(oldAccessToken, prevState, newState, entry)

	return awaitEntry(ctx, entry)
}

// runRefreshAsync drives the shared refresh to completion and settles entry,
// using its own timeout rather than any caller's ctx (mirrors trySave's use
// of an independent context in persistence.go).
func (p *Provider) runRefreshAsync(oldAccessToken string, prevState, newState *cellState, entry *refreshEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	record, err := p.runRefresh(ctx, oldAccessToken, prevState, newState)
	if err != nil {
		// Remove the failed entry before waking its waiters, so a caller
		// that retries as soon as it sees the error starts a new refresh.
		p.mu.Lock()
		delete(p.refreshMap, oldAccessToken)
		p.mu.Unlock()
	}
	entry.settle(record, err)
}

func awaitEntry(ctx context.Context, entry *refreshEntry) (Credentials, error) {
	select {
	case <-entry.done:
		if entry.err != nil {
			return Credentials{}, entry.err
		}
		return entry.record.Clone(), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

// runRefresh performs the actual network round trip and either settles
// newState with the fresh record or, on failure, rolls newState back to
// the pre-refresh value so the next Fetch can attempt again (required for
// P6: a failed refresh must not leave the Provider permanently stuck).
func (p *Provider) runRefresh(ctx context.Context, oldAccessToken string, prevState, newState *cellState) (Credentials, error) {
	cur, err := awaitCellState(ctx, prevState)
	if err != nil {
		// No valid prior value to roll back to: propagate the load
		// failure itself.
		newState.settle(Credentials{}, err)
		return Credentials{}, err
	}

	fail := func(e error) (Credentials, error) {
		newState.settle(cur, nil)
		p.logger.Error("refresh failed", map[string]interface{}{"error": e.Error()})
		return Credentials{}, e
	}

	if !cur.Refreshable() {
		return fail(newFatalError("refresh", "credentials are missing client secret or refresh token", nil))
	}
	if cur.AccessToken != oldAccessToken {
		return fail(newFatalError("refresh", "refresh was called with a stale or unknown access token", nil))
	}

	resp, err := p.identity.RefreshUserToken(ctx, cur.ClientID, cur.ClientSecret, cur.RefreshToken)
	if err != nil {
		return fail(newUpstreamError("refresh", "calling refreshUserToken", err))
	}
	if resp.ExpiresIn == 0 || resp.Timestamp.IsZero() {
		return fail(newFatalError("refresh", "identity service response is missing expires_in or timestamp", nil))
	}

	next := Credentials{
		ClientID:     cur.ClientID,
		AccessToken:  resp.AccessToken,
		ClientSecret: cur.ClientSecret,
		RefreshToken: resp.RefreshToken,
		Scopes:       resp.Scopes,
	}
	if next.RefreshToken == "" {
		next.RefreshToken = cur.RefreshToken
	}
	if next.Scopes == nil {
		next.Scopes = cur.Scopes
	}
	next = next.WithExpiry(resp.Timestamp, resp.ExpiresIn)

	newState.settle(next, nil)
	p.scheduleSave(next)
	return next, nil
}

func awaitCellState(ctx context.Context, state *cellState) (Credentials, error) {
	select {
	case <-state.done:
		if state.err != nil {
			return Credentials{}, state.err
		}
		return state.value.Clone(), nil
	case <-ctx.Done():
		return Credentials{}, ctx.Err()
	}
}

// Close stops the pruner. It does not affect any in-flight refresh; other
// callers may still be awaiting one.
func (p *Provider) Close() {
	p.closeOnce.Do(func() {
		close(p.closeCh)
	})
}
