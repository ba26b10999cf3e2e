package credprovider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expiringCreds(expiry time.Time) Credentials {
	return Credentials{
		ClientID:     "c",
		AccessToken:  "a0",
		ClientSecret: "s",
		RefreshToken: "r0",
		Scopes:       []string{"x", "y"},
		ExpiryDate:   &expiry,
	}
}

func buildProvider(t *testing.T, store Store, identity IdentityService, padding time.Duration) *Provider {
	t.Helper()
	p := NewProviderBuilder(store, identity).WithRefreshPadding(padding).Build()
	t.Cleanup(p.Close)
	return p
}

// waitSettled blocks until the Provider's initial load+hydrate has settled,
// by calling Fetch once with a generous deadline.
func waitSettled(t *testing.T, p *Provider) Credentials {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	creds, err := p.Fetch(ctx)
	require.NoError(t, err)
	return creds
}

func TestFetch_FreshUnexpiredToken_S1(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(time.Hour)))
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	creds := waitSettled(t, p)

	assert.Equal(t, "a0", creds.AccessToken)
	assert.Equal(t, 0, identity.calls())
}

func TestFetch_ExpiredToken_OneCaller_S2(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	creds := waitSettled(t, p)

	assert.Equal(t, "access-1", creds.AccessToken)
	assert.Equal(t, 1, identity.calls())
}

func TestFetch_ExpiredToken_TwoConcurrentCallers_S3_P1(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	var wg sync.WaitGroup
	results := make([]Credentials, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			results[i], errs[i] = p.Fetch(ctx)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].AccessToken, results[1].AccessToken)
	assert.Equal(t, 1, identity.calls())
}

func TestIdempotentRefresh_RetryWithOldTokenAfterRefresh_S4(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	first := waitSettled(t, p)
	require.Equal(t, "access-1", first.AccessToken)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, err := p.IdempotentRefresh(ctx, "a0")
	require.NoError(t, err)

	assert.Equal(t, first.AccessToken, second.AccessToken)
	assert.Equal(t, 1, identity.calls())
}

// TestIdempotentRefresh_CallerCancellationDoesNotAbortSharedRefresh covers
// the guarantee that a waiter's own context only detaches that waiter: one
// of two concurrent callers refreshing the same stale token has its ctx
// time out mid-flight, but the other caller (with a generous deadline) must
// still observe the refresh complete successfully, and the identity service
// must still be called exactly once.
func TestIdempotentRefresh_CallerCancellationDoesNotAbortSharedRefresh(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))

	upstreamStarted := make(chan struct{})
	release := make(chan struct{})
	identity := &fakeIdentity{
		refreshFunc: func(ctx context.Context, clientID, clientSecret, refreshToken string) (AccessTokenResponse, error) {
			close(upstreamStarted)
			<-release
			return sequentialRefresh(time.Hour)(ctx, clientID, clientSecret, refreshToken)
		},
	}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	var wg sync.WaitGroup
	var shortErr, longErr error
	var longResult Credentials

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, shortErr = p.IdempotentRefresh(ctx, "a0")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		longResult, longErr = p.IdempotentRefresh(ctx, "a0")
	}()

	<-upstreamStarted
	// Let the short-lived caller's context expire while the shared refresh
	// is still blocked in the fake upstream call.
	time.Sleep(100 * time.Millisecond)
	close(release)

	wg.Wait()

	require.Error(t, shortErr, "the cancelled caller should observe its own context deadline")
	assert.ErrorIs(t, shortErr, context.DeadlineExceeded)

	require.NoError(t, longErr, "the other caller's refresh must not be aborted by an unrelated caller's cancellation")
	assert.Equal(t, "access-1", longResult.AccessToken)
	assert.Equal(t, 1, identity.calls(), "only one shared refresh should ever hit the identity service")
}

func TestIdempotentRefresh_StaleTokenUnknown_S5_P3(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	waitSettled(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.IdempotentRefresh(ctx, "a_unknown")
	require.Error(t, err)

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindFatal, kind)
}

func TestFetch_PreExpiryPadding_P4(t *testing.T) {
	padding := 500 * time.Millisecond

	t.Run("within padding triggers refresh", func(t *testing.T) {
		store := NewMemoryStore(expiringCreds(time.Now().Add(200 * time.Millisecond)))
		identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
		p := buildProvider(t, store, identity, padding)

		waitSettled(t, p)
		assert.Equal(t, 1, identity.calls())
	})

	t.Run("outside padding does not refresh", func(t *testing.T) {
		store := NewMemoryStore(expiringCreds(time.Now().Add(time.Hour)))
		identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
		p := buildProvider(t, store, identity, padding)

		waitSettled(t, p)
		assert.Equal(t, 0, identity.calls())
	})
}

func TestFetch_NullExpiryNeverRefreshes_P5(t *testing.T) {
	store := NewMemoryStore(Credentials{
		ClientID:     "c",
		AccessToken:  "a0",
		ClientSecret: "s",
		RefreshToken: "r0",
		Scopes:       []string{"x"},
		ExpiryDate:   nil,
	})
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	creds := waitSettled(t, p)

	assert.Equal(t, "a0", creds.AccessToken)
	assert.Equal(t, 0, identity.calls())
}

func TestIdempotentRefresh_FailureTransparency_P6(t *testing.T) {
	store := NewMemoryStore(expiringCreds(time.Now().Add(-time.Second)))

	attempt := 0
	identity := &fakeIdentity{
		refreshFunc: func(ctx context.Context, clientID, clientSecret, refreshToken string) (AccessTokenResponse, error) {
			attempt++
			if attempt == 1 {
				return AccessTokenResponse{}, assertError("upstream down")
			}
			return sequentialRefresh(time.Hour)(ctx, clientID, clientSecret, refreshToken)
		},
	}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Fetch(ctx)
	require.Error(t, err)

	// A later fetch must attempt a new refresh rather than replaying the
	// failed attempt forever.
	creds := waitSettled(t, p)
	assert.NotEmpty(t, creds.AccessToken)
	assert.Equal(t, 2, identity.calls())
}

func TestFetch_PersistenceResilience_P7(t *testing.T) {
	failSave := true
	store := &saveControlledStore{
		inner: NewMemoryStore(expiringCreds(time.Now().Add(-time.Second))),
		save: func(Credentials) error {
			if failSave {
				return assertError("disk full")
			}
			return nil
		},
	}
	identity := &fakeIdentity{refreshFunc: sequentialRefresh(time.Hour)}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	creds := waitSettled(t, p)
	assert.Equal(t, "access-1", creds.AccessToken, "a failed save must not fail the fetch that triggered it")

	time.Sleep(50 * time.Millisecond)
	failSave = false

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := p.Fetch(ctx)
	require.NoError(t, err)
}

func TestHydration_PopulatesMissingScopes_P9(t *testing.T) {
	store := NewMemoryStore(Credentials{
		ClientID:     "c",
		AccessToken:  "a0",
		ClientSecret: "s",
		RefreshToken: "r0",
		// Scopes intentionally absent.
		ExpiryDate: timePtr(time.Now().Add(time.Hour)),
	})
	identity := &fakeIdentity{
		refreshFunc: sequentialRefresh(time.Hour),
		tokenInfoFunc: func(ctx context.Context, accessToken, clientID string) (TokenInfo, error) {
			return TokenInfo{ClientID: clientID, Scopes: []string{"chat:read", "chat:write"}}, nil
		},
	}
	p := buildProvider(t, store, identity, 500*time.Millisecond)

	creds := waitSettled(t, p)
	assert.Equal(t, []string{"chat:read", "chat:write"}, creds.Scopes)
}

func TestPruner_RemovesSettledNotInFlight_P8(t *testing.T) {
	p := &Provider{
		refreshMap: make(map[string]*refreshEntry),
		logger:     NoopLogger{},
		expiryAge:  time.Minute,
	}

	settled := newRefreshEntry()
	settled.settle(Credentials{ExpiryDate: timePtr(time.Now().Add(-2 * time.Hour))}, nil)
	p.refreshMap["settled-old"] = settled

	stillFresh := newRefreshEntry()
	stillFresh.settle(Credentials{ExpiryDate: timePtr(time.Now().Add(time.Hour))}, nil)
	p.refreshMap["settled-fresh"] = stillFresh

	inFlight := newRefreshEntry()
	p.refreshMap["in-flight"] = inFlight

	p.pruneOnce(time.Now())

	_, hasOld := p.refreshMap["settled-old"]
	_, hasFresh := p.refreshMap["settled-fresh"]
	_, hasInFlight := p.refreshMap["in-flight"]

	assert.False(t, hasOld)
	assert.True(t, hasFresh)
	assert.True(t, hasInFlight, "an in-flight entry must never be pruned")
}

func timePtr(t time.Time) *time.Time { return &t }

type assertError string

func (e assertError) Error() string { return string(e) }

type saveControlledStore struct {
	inner Store
	save  func(Credentials) error
}

func (s *saveControlledStore) Load(ctx context.Context) (Credentials, error) {
	return s.inner.Load(ctx)
}

func (s *saveControlledStore) Save(_ context.Context, creds Credentials) error {
	return s.save(creds)
}
