package credprovider

import "context"

// Store is the persistence contract a Provider is built on top of. It
// mirrors the load/save contract of this module's token-storage interfaces
// elsewhere in the ecosystem, narrowed to exactly the two operations the
// Provider needs.
type Store interface {
	// Load is called exactly once, during Provider construction. Any
	// failure here propagates to every Credential Cell waiter.
	Load(ctx context.Context) (Credentials, error)

	// Save is fire-and-forget relative to the caller that triggered it;
	// a failure is absorbed by the Persistence Bridge, never surfaced
	// from Fetch/IdempotentRefresh.
	Save(ctx context.Context, creds Credentials) error
}

// StaticStore wraps a fixed, non-refreshable credential record. Save
// always fails fatally: a Static provider has no store to write to, and
// the Refresh Coordinator must never route a save through one (enforced
// by refusing refresh on non-refreshable records upstream).
type StaticStore struct {
	creds Credentials
}

// NewStaticStore builds a Store around a constructor-supplied record that
// is never refreshed.
func NewStaticStore(creds Credentials) *StaticStore {
	return &StaticStore{creds: creds}
}

func (s *StaticStore) Load(_ context.Context) (Credentials, error) {
	return s.creds.Clone(), nil
}

func (s *StaticStore) Save(_ context.Context, _ Credentials) error {
	return newFatalError("save", "static credentials store has no backing store", nil)
}

// MemoryStore wraps a constructor-supplied refreshable record entirely
// in-memory. Save is a no-op: there is nowhere durable to write, but
// unlike StaticStore this is not an error — the in-memory value already
// holds whatever the last successful refresh produced.
type MemoryStore struct {
	creds Credentials
}

// NewMemoryStore builds a Store around a refreshable in-memory record.
func NewMemoryStore(creds Credentials) *MemoryStore {
	return &MemoryStore{creds: creds}
}

func (s *MemoryStore) Load(_ context.Context) (Credentials, error) {
	return s.creds.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, _ Credentials) error {
	return nil
}
