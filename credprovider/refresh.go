package credprovider

import "time"

// refreshEntry is a RefreshMap value. It starts in-flight (waiters block on
// done) and transitions exactly once to settled, either with a record (on
// success) or an error (on failure). The tag is implicit in whether err is
// nil once done is closed, mirroring the InFlight|Settled variant from the
// design notes without needing a separate enum.
type refreshEntry struct {
	done      chan struct{}
	record    Credentials
	err       error
	settledAt time.Time // zero until done is closed
}

func newRefreshEntry() *refreshEntry {
	return &refreshEntry{done: make(chan struct{})}
}

func (e *refreshEntry) settle(record Credentials, err error) {
	e.record = record
	e.err = err
	e.settledAt = time.Now()
	close(e.done)
}

// expired reports whether a settled entry is old enough for the pruner to
// evict it. In-flight entries (err set mid-flight doesn't apply here; this
// is only ever called under the Provider lock after confirming the entry
// is settled) are never considered.
func (e *refreshEntry) expired(expiryAge time.Duration, now time.Time) bool {
	if e.err != nil {
		// A failed attempt is removed from the map immediately by
		// idempotentRefresh itself; the pruner should never still find
		// one, but treat it as prunable defensively.
		return true
	}
	if e.record.ExpiryDate == nil {
		return false
	}
	return now.After(e.record.ExpiryDate.Add(expiryAge))
}
